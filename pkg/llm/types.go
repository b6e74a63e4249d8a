package llm

import "context"

// ═══════════════════════════════════════════════════════════════════════════
// Provider 接口
// ═══════════════════════════════════════════════════════════════════════════

// Provider 对话服务提供者接口
type Provider interface {
	// Complete 同步完成
	Complete(ctx context.Context, messages []Message, opts *Options) (*Response, error)

	// Stream 流式完成
	//
	// 返回的 channel 以恰好一个 complete 或 error 事件结束，随后关闭。
	// 调用方必须读完 channel，即使已经取消 ctx。
	Stream(ctx context.Context, messages []Message, opts *Options) (<-chan *Event, error)

	// Close 关闭连接
	Close() error
}

// ═══════════════════════════════════════════════════════════════════════════
// Provider 选项与响应
// ═══════════════════════════════════════════════════════════════════════════

// Options 单次请求选项
type Options struct {
	// Model 覆盖配置中的模型
	Model string `json:"model,omitempty"`

	// Temperature 为 nil 时不发送该字段
	Temperature *float64 `json:"temperature,omitempty"`
}

// WithTemperature 返回设置了温度的选项副本
func (o *Options) WithTemperature(t float64) *Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	out.Temperature = &t
	return &out
}

// Response 同步调用的响应
type Response struct {
	Message      Message     `json:"message"`
	FinishReason string      `json:"finish_reason"`
	Model        string      `json:"model,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`

	// Terminal 是否找到终止内容（stop + assistant）
	// 为 false 时 Message.Content 为空，表示"无终止内容"，而不是错误。
	Terminal bool `json:"terminal"`
}

// TokenUsage Token 使用量
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 缺失终止内容策略
// ═══════════════════════════════════════════════════════════════════════════

// MissingTerminalPolicy 决定同步调用找不到终止内容时的行为
type MissingTerminalPolicy string

const (
	// MissingTerminalAbsent 返回空结果（默认）
	MissingTerminalAbsent MissingTerminalPolicy = "absent"

	// MissingTerminalError 返回 ErrNoTerminalContent
	MissingTerminalError MissingTerminalPolicy = "error"
)

package core

import (
	"errors"

	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 请求构建与响应提取
// ═══════════════════════════════════════════════════════════════════════════

// Transformer 请求构建器与响应提取器
//
// 定义请求体与响应解析的骨架，协议差异委托给 ProtocolAdapter。
//
// 使用示例：
//
//	t := core.NewTransformer(gigachat.NewAdapter())
//
//	body, err := t.BuildRequest("GigaChat", messages, opts, false)
//	resp, err := t.ParseResponse(apiResp)
type Transformer struct {
	adapter ProtocolAdapter
}

// NewTransformer 创建转换器
func NewTransformer(adapter ProtocolAdapter) *Transformer {
	return &Transformer{adapter: adapter}
}

// BuildRequest 构建请求体
//
// 产出 {model, messages, temperature?, stream?}：
//   - opts.Model 非空时覆盖 model
//   - temperature 仅在 opts.Temperature 非 nil 时出现
//   - stream 仅在流式请求时出现
//
// 角色校验在这里完成，早于任何网络请求。
func (t *Transformer) BuildRequest(
	model string,
	messages []llm.Message,
	opts *llm.Options,
	stream bool,
) (map[string]any, error) {
	if len(messages) == 0 {
		return nil, llm.NewRequestError("build", errors.New("at least one message is required"))
	}

	apiMsgs, err := t.adapter.ConvertToAPI(messages)
	if err != nil {
		return nil, err
	}

	if opts != nil && opts.Model != "" {
		model = opts.Model
	}

	req := map[string]any{
		"model":    model,
		"messages": apiMsgs,
	}
	if opts != nil && opts.Temperature != nil {
		req["temperature"] = *opts.Temperature
	}
	if stream {
		req["stream"] = true
	}
	return req, nil
}

// ParseResponse 解析同步响应
//
// 响应带错误信封时返回 *llm.APIError；找不到终止内容时返回
// Terminal=false 的 Response，而不是错误。
func (t *Transformer) ParseResponse(apiResp map[string]any) (*llm.Response, error) {
	if apiErr := t.adapter.ConvertError(apiResp); apiErr != nil {
		return nil, apiErr
	}

	msg, finishReason, found := t.adapter.ConvertFromAPI(apiResp)
	return &llm.Response{
		Message:      msg,
		FinishReason: finishReason,
		Model:        GetString(apiResp["model"]),
		Usage:        t.adapter.ConvertUsage(apiResp),
		Terminal:     found,
	}, nil
}

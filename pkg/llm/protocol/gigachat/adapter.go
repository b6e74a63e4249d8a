// Package gigachat 实现 GigaChat 对话补全协议的消息转换与 SSE 事件处理
package gigachat

import (
	"strconv"

	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/core"
)

// finishReasonStop 表示自然完成
const finishReasonStop = "stop"

// ═══════════════════════════════════════════════════════════════════════════
// GigaChat 协议适配器
// ═══════════════════════════════════════════════════════════════════════════

// Adapter GigaChat 协议适配器
//
// 实现 core.ProtocolAdapter 接口。
//
// 协议要点：
//  1. 只发送 user 与 assistant 角色，system 直接拒绝
//  2. 终止内容是第一个 finish_reason == "stop" 且 message.role == "assistant" 的 choice
//  3. 错误信封：{"error": {"status": 401, "message": "..."}}
type Adapter struct{}

// NewAdapter 创建协议适配器
func NewAdapter() *Adapter {
	return &Adapter{}
}

// ═══════════════════════════════════════════════════════════════════════════
// ConvertToAPI - 消息转换
// ═══════════════════════════════════════════════════════════════════════════

// ConvertToAPI 将消息转换为 [{role, content}]，顺序与输入一致
func (a *Adapter) ConvertToAPI(messages []llm.Message) ([]map[string]any, error) {
	result := make([]map[string]any, 0, len(messages))

	for i, msg := range messages {
		role, err := mapRole(msg.Role, i)
		if err != nil {
			return nil, err
		}
		result = append(result, map[string]any{
			"role":    role,
			"content": msg.Content,
		})
	}

	return result, nil
}

// mapRole 角色映射，system 及未知角色返回 UnsupportedRoleError
func mapRole(role llm.Role, index int) (string, error) {
	switch role {
	case llm.RoleUser:
		return "user", nil
	case llm.RoleAssistant:
		return "assistant", nil
	default:
		return "", llm.NewUnsupportedRoleError(role, index)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// ConvertFromAPI - 解析同步响应
// ═══════════════════════════════════════════════════════════════════════════

// ConvertFromAPI 选取第一个终止 choice
//
// 响应格式：
//
//	{
//	  "choices": [{
//	    "message": {"role": "assistant", "content": "..."},
//	    "finish_reason": "stop"
//	  }]
//	}
//
// 没有终止 choice 时 found 为 false，finishReason 取第一个 choice 的值。
func (a *Adapter) ConvertFromAPI(resp map[string]any) (llm.Message, string, bool) {
	msg := llm.Message{Role: llm.RoleAssistant}

	choices := core.GetSlice(resp["choices"])
	for _, c := range choices {
		choice := core.GetMap(c)
		if core.GetString(choice["finish_reason"]) != finishReasonStop {
			continue
		}
		message := core.GetMap(choice["message"])
		if core.GetString(message["role"]) != string(llm.RoleAssistant) {
			continue
		}
		msg.Content = core.GetString(message["content"])
		return msg, finishReasonStop, true
	}

	var finishReason string
	if len(choices) > 0 {
		finishReason = core.GetString(core.GetMap(choices[0])["finish_reason"])
	}
	return msg, finishReason, false
}

// ═══════════════════════════════════════════════════════════════════════════
// ConvertError / ConvertUsage
// ═══════════════════════════════════════════════════════════════════════════

// ConvertError 提取 {"error": {"status", "message"}} 错误信封
func (a *Adapter) ConvertError(resp map[string]any) *llm.APIError {
	return convertError(resp)
}

func convertError(resp map[string]any) *llm.APIError {
	raw, ok := resp["error"]
	if !ok || raw == nil {
		return nil
	}

	errObj := core.GetMap(raw)
	if errObj == nil {
		// 个别网关返回字符串形式的 error
		return llm.NewAPIError(0, core.GetString(raw))
	}
	return llm.NewAPIError(parseStatus(errObj["status"]), core.GetString(errObj["message"]))
}

// parseStatus 兼容数字与字符串形式的 status
func parseStatus(v any) int {
	if s, ok := v.(string); ok {
		n, _ := strconv.Atoi(s)
		return n
	}
	return int(core.GetInt64(v))
}

// ConvertUsage 解析 Token 使用量
func (a *Adapter) ConvertUsage(resp map[string]any) *llm.TokenUsage {
	usage := core.GetMap(resp["usage"])
	if usage == nil {
		return nil
	}
	return &llm.TokenUsage{
		InputTokens:  core.GetInt64(usage["prompt_tokens"]),
		OutputTokens: core.GetInt64(usage["completion_tokens"]),
		TotalTokens:  core.GetInt64(usage["total_tokens"]),
	}
}

// 确保 Adapter 实现了 ProtocolAdapter 接口
var _ core.ProtocolAdapter = (*Adapter)(nil)

package gigachat

import (
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/core"
)

// terminator 流结束哨兵
const terminator = "[DONE]"

// ═══════════════════════════════════════════════════════════════════════════
// SSE 事件处理器
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler GigaChat SSE 事件处理器
//
// 流式格式：
//
//	data: {"choices": [{"delta": {"content": "Hel"}}]}
//	data: {"choices": [{"delta": {"content": "lo"}}]}
//	data: [DONE]
//
// 流中也可能出现错误信封 {"error": {"status", "message"}}。
type EventHandler struct{}

// NewEventHandler 创建事件处理器
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// IsTerminator 检查 [DONE] 哨兵
func (h *EventHandler) IsTerminator(payload string) bool {
	return payload == terminator
}

// HandleEvent 按数组顺序提取每个 choices[i].delta.content
func (h *EventHandler) HandleEvent(data map[string]any) ([]string, error) {
	if apiErr := convertError(data); apiErr != nil {
		return nil, apiErr
	}

	var frags []string
	for _, c := range core.GetSlice(data["choices"]) {
		delta := core.GetMap(core.GetMap(c)["delta"])
		if content := core.GetString(delta["content"]); content != "" {
			frags = append(frags, content)
		}
	}
	return frags, nil
}

// 确保 EventHandler 实现了 core.EventHandler 接口
var _ core.EventHandler = (*EventHandler)(nil)

package llm

import "time"

// ═══════════════════════════════════════════════════════════════════════════
// 事件类型 - 流式事件系统
// ═══════════════════════════════════════════════════════════════════════════

// EventType 事件类型
type EventType string

const (
	EventTypePartial  EventType = "partial"  // 文本增量
	EventTypeComplete EventType = "complete" // 完成，携带完整文本
	EventTypeError    EventType = "error"    // 错误
)

// Event 流式事件
//
// 一次流式请求产生零个或多个 partial 事件，最后是恰好一个 complete 或 error 事件。
//
// 使用示例：
//
//	for event := range stream {
//	    switch event.Type {
//	    case llm.EventTypePartial:
//	        fmt.Print(event.TextDelta)
//	    case llm.EventTypeComplete:
//	        fmt.Println()
//	    case llm.EventTypeError:
//	        log.Printf("%s: %s", event.ErrorKind, event.ErrorMessage)
//	    }
//	}
type Event struct {
	Type EventType `json:"type"`

	// Partial event - 文本增量
	TextDelta string `json:"text_delta,omitempty"`

	// Complete event - 按到达顺序拼接的完整文本
	Text string `json:"text,omitempty"`

	// Error event
	ErrorKind    ErrorType `json:"error_kind,omitempty"`
	Error        error     `json:"-"`
	ErrorMessage string    `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp,omitzero"`
}

// PartialEvent 创建增量事件
func PartialEvent(delta string) *Event {
	return &Event{Type: EventTypePartial, TextDelta: delta, Timestamp: time.Now()}
}

// CompleteEvent 创建完成事件
func CompleteEvent(text string) *Event {
	return &Event{Type: EventTypeComplete, Text: text, Timestamp: time.Now()}
}

// ErrorEvent 创建错误事件，kind 由 KindOf 推导
func ErrorEvent(err error) *Event {
	return &Event{
		Type:         EventTypeError,
		ErrorKind:    KindOf(err),
		Error:        err,
		ErrorMessage: MessageOf(err),
		Timestamp:    time.Now(),
	}
}

// IsTerminal 是否为结束事件（complete 或 error）
func (e *Event) IsTerminal() bool {
	return e.Type == EventTypeComplete || e.Type == EventTypeError
}

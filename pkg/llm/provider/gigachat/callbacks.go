package gigachat

import "github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"

// Callbacks 流式调用的回调
//
// 所有回调都经由 Executor 串行交付，顺序与事件到达顺序一致。
// 回调可以为 nil。
type Callbacks struct {
	// OnPartial 每个文本增量
	OnPartial func(delta string)

	// OnComplete 流正常结束，text 为按到达顺序拼接的完整文本
	OnComplete func(text string)

	// OnError 流失败，kind 见 llm.ErrorType
	OnError func(kind llm.ErrorType, message string)

	// Executor 在调用方的执行上下文中运行回调（例如投递到调用方自己的事件循环）
	//
	// 为 nil 时回调直接在流式 goroutine 上按顺序执行。
	// 自定义 Executor 必须按提交顺序执行任务。
	Executor func(func())
}

func (cb Callbacks) executor() func(func()) {
	if cb.Executor != nil {
		return cb.Executor
	}
	return func(f func()) { f() }
}

func (cb Callbacks) dispatch(ev *llm.Event) {
	switch ev.Type {
	case llm.EventTypePartial:
		if cb.OnPartial != nil {
			cb.OnPartial(ev.TextDelta)
		}
	case llm.EventTypeComplete:
		if cb.OnComplete != nil {
			cb.OnComplete(ev.Text)
		}
	case llm.EventTypeError:
		if cb.OnError != nil {
			cb.OnError(ev.ErrorKind, ev.ErrorMessage)
		}
	}
}

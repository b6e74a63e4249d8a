package gigachat

import (
	"strings"

	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
)

// StreamResult 流式解析结果
type StreamResult struct {
	Text      string        // 完整文本
	Err       error         // 流失败时的错误
	ErrorKind llm.ErrorType // Err 的分类
}

// StreamParser 将 Stream 返回的事件聚合为最终结果
//
// 以 complete 事件中的文本为准；流在没有结束事件时关闭，则使用已累积的增量。
type StreamParser struct {
	textBuf  strings.Builder
	final    string
	complete bool
	err      error
	kind     llm.ErrorType
}

// NewStreamParser 创建新的流解析器
func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// Parse 读完 channel 并返回结果
//
// 示例：
//
//	stream, _ := client.Stream(ctx, messages, nil)
//	result := gigachat.NewStreamParser().Parse(stream)
//	fmt.Println(result.Text)
func (p *StreamParser) Parse(stream <-chan *llm.Event) StreamResult {
	for ev := range stream {
		p.Feed(ev)
	}
	return p.Result()
}

// Feed 增量喂入单个事件
func (p *StreamParser) Feed(ev *llm.Event) {
	switch ev.Type {
	case llm.EventTypePartial:
		p.textBuf.WriteString(ev.TextDelta)
	case llm.EventTypeComplete:
		p.final = ev.Text
		p.complete = true
	case llm.EventTypeError:
		p.err = ev.Error
		p.kind = ev.ErrorKind
	}
}

// CurrentText 获取当前累积的文本
func (p *StreamParser) CurrentText() string {
	return p.textBuf.String()
}

// Result 当前状态的结果
func (p *StreamParser) Result() StreamResult {
	text := p.textBuf.String()
	if p.complete {
		text = p.final
	}
	return StreamResult{Text: text, Err: p.err, ErrorKind: p.kind}
}

// ParseStream 便捷函数：解析流式响应
//
// 等价于 NewStreamParser().Parse(stream)
func ParseStream(stream <-chan *llm.Event) StreamResult {
	return NewStreamParser().Parse(stream)
}

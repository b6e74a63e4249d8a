package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// SSE 事件处理器接口
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler 协议特定的 SSE 事件处理器
//
// SSEParser 只负责行扫描和 JSON 解码，载荷语义交给 EventHandler：
//   - 哪个载荷是终止哨兵（如 "[DONE]"）
//   - 如何从一个事件中取出文本片段，错误信封如何转换为错误
type EventHandler interface {
	// IsTerminator 载荷是否为终止哨兵
	IsTerminator(payload string) bool

	// HandleEvent 从已解码的事件中按顺序提取文本片段
	//
	// 事件携带错误信封时返回错误（通常是 *llm.APIError）。
	HandleEvent(data map[string]any) ([]string, error)
}

// ═══════════════════════════════════════════════════════════════════════════
// StreamAggregator
// ═══════════════════════════════════════════════════════════════════════════

// StreamAggregator 单次流式请求的累积状态
//
// 由传输层按到达顺序反复调用 Feed。每个 chunk 可以包含零或多行，
// 最后一行不完整时保留到下一个 chunk 拼接。只处理 "data: <payload>" 行：
//   - 终止哨兵不追加、不报错，之后的行全部忽略
//   - 非法 JSON 使本次累积失败（*llm.ParseError），之后的调用返回同一个错误
//   - 其他事件的片段按数组顺序追加
//
// 一个 StreamAggregator 只服务一次请求，新请求总是从空缓冲开始。
type StreamAggregator struct {
	handler   EventHandler
	pending   string
	fragments []string
	done      bool
	err       error
}

// NewStreamAggregator 创建空的累积器
func NewStreamAggregator(handler EventHandler) *StreamAggregator {
	return &StreamAggregator{handler: handler}
}

// Feed 喂入一个原始 chunk，返回本次新追加的片段
//
// 出错时仍返回出错前已追加的片段。
func (a *StreamAggregator) Feed(chunk string) ([]string, error) {
	if a.err != nil {
		return nil, a.err
	}

	lines := strings.Split(a.pending+chunk, "\n")
	a.pending = lines[len(lines)-1]

	var appended []string
	for _, line := range lines[:len(lines)-1] {
		frags, err := a.handleLine(line)
		appended = append(appended, frags...)
		if err != nil {
			a.err = err
			return appended, err
		}
	}
	return appended, nil
}

// Finish 处理残留的不完整行，返回按到达顺序拼接的完整文本
func (a *StreamAggregator) Finish() (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.pending != "" {
		line := a.pending
		a.pending = ""
		if _, err := a.handleLine(line); err != nil {
			a.err = err
			return "", err
		}
	}
	return a.Text(), nil
}

// Text 当前累积的文本
func (a *StreamAggregator) Text() string {
	return strings.Join(a.fragments, "")
}

// Done 是否已经收到终止哨兵
func (a *StreamAggregator) Done() bool {
	return a.done
}

// Err 累积失败的原因
func (a *StreamAggregator) Err() error {
	return a.err
}

func (a *StreamAggregator) handleLine(line string) ([]string, error) {
	if a.done {
		return nil, nil
	}

	payload, ok := strings.CutPrefix(strings.TrimRight(line, "\r"), "data:")
	if !ok {
		return nil, nil
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, nil
	}

	if a.handler.IsTerminator(payload) {
		a.done = true
		return nil, nil
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, llm.NewParseError(payload, err)
	}

	frags, err := a.handler.HandleEvent(data)
	if err != nil {
		return nil, err
	}
	a.fragments = append(a.fragments, frags...)
	return frags, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// SSE 解析器
// ═══════════════════════════════════════════════════════════════════════════

// defaultReadSize 每次从响应体读取的字节数
const defaultReadSize = 4096

// SSEParser 从传输层响应体读取 SSE 流
//
// 每次 Consume 使用新的 StreamAggregator。
//
// 使用示例：
//
//	parser := core.NewSSEParser(gigachat.NewEventHandler())
//	text, err := parser.Consume(ctx, resp.RawBody(), func(e *llm.Event) {
//	    fmt.Print(e.TextDelta)
//	})
type SSEParser struct {
	handler  EventHandler
	readSize int
}

// NewSSEParser 创建 SSE 解析器
func NewSSEParser(handler EventHandler) *SSEParser {
	return &SSEParser{handler: handler, readSize: defaultReadSize}
}

// NewAggregator 为一次请求创建累积器
func (p *SSEParser) NewAggregator() *StreamAggregator {
	return NewStreamAggregator(p.handler)
}

// Consume 读取 body 直到 EOF、终止哨兵、错误或 ctx 取消
//
// 每个追加的片段通过 emit 以 partial 事件交出。成功时返回完整文本；
// 失败时返回已累积的文本和错误。不关闭 body。
func (p *SSEParser) Consume(ctx context.Context, body io.Reader, emit func(*llm.Event)) (string, error) {
	agg := p.NewAggregator()
	buf := make([]byte, p.readSize)

	for {
		if err := ctx.Err(); err != nil {
			return agg.Text(), err
		}

		n, rerr := body.Read(buf)
		if n > 0 {
			frags, err := agg.Feed(string(buf[:n]))
			for _, f := range frags {
				emit(llm.PartialEvent(f))
			}
			if err != nil {
				return agg.Text(), err
			}
			if agg.Done() {
				return agg.Finish()
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				// 最后一行可能没有换行符
				frags, err := agg.Feed("\n")
				for _, f := range frags {
					emit(llm.PartialEvent(f))
				}
				if err != nil {
					return agg.Text(), err
				}
				return agg.Finish()
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return agg.Text(), ctxErr
			}
			return agg.Text(), llm.NewStreamError("read stream", rerr)
		}
	}
}

package gigachat

import (
	"context"

	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/protocol/gigachat"
)

// ═══════════════════════════════════════════════════════════════════════════
// 客户端
// ═══════════════════════════════════════════════════════════════════════════

// Client GigaChat 客户端
//
// 实现 [llm.Provider] 接口，并提供面向单条提示词的 [Client.Chat] 与
// [Client.ChatStreaming]。
//
// 架构设计：
//   - core.BaseClient 负责令牌、HTTP、请求构建与流式聚合
//   - 协议差异由 protocol/gigachat 适配器封装
type Client struct {
	*core.BaseClient
}

// New 创建客户端
//
// 参数 cfg 必须包含 APIKey，其余字段为空时使用默认值。
func New(cfg *llm.Config, opts ...core.ClientOption) (*Client, error) {
	base, err := core.NewBaseClient(cfg, gigachat.NewAdapter(), gigachat.NewEventHandler(), opts...)
	if err != nil {
		return nil, err
	}
	return &Client{BaseClient: base}, nil
}

// Close 关闭客户端
//
// 实现 [llm.Provider] 接口。当前实现为空操作，HTTP 客户端无需显式关闭。
func (c *Client) Close() error {
	return nil
}

// Token 返回可用的访问令牌，必要时刷新
func (c *Client) Token(ctx context.Context) (core.Token, error) {
	return c.Tokens().EnsureValid(ctx)
}

// ═══════════════════════════════════════════════════════════════════════════
// 同步调用
// ═══════════════════════════════════════════════════════════════════════════

// Chat 发送单条用户提示词并返回终止内容
//
// 阻塞调用，失败时返回 AuthError、APIError 等。找不到终止内容时，
// 默认返回空字符串；配置为 MissingTerminalError 时返回 llm.ErrNoTerminalContent。
func (c *Client) Chat(ctx context.Context, prompt string) (string, error) {
	return c.ChatMessages(ctx, []llm.Message{llm.UserMessage(prompt)}, nil)
}

// ChatMessages 与 Chat 相同，但接受完整的消息列表
func (c *Client) ChatMessages(ctx context.Context, messages []llm.Message, opts *llm.Options) (string, error) {
	resp, err := c.Complete(ctx, messages, opts)
	if err != nil {
		return "", err
	}
	if !resp.Terminal && c.Config().MissingTerminal == llm.MissingTerminalError {
		return "", llm.ErrNoTerminalContent
	}
	return resp.Message.Content, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 流式调用
// ═══════════════════════════════════════════════════════════════════════════

// ChatStreaming 以流式方式发送单条用户提示词
//
// 非阻塞：立即返回，结果通过回调交付。所有错误只通过 OnError 交付，
// 不会返回或 panic。返回的 channel 在最后一个回调交给 Executor 后关闭。
func (c *Client) ChatStreaming(ctx context.Context, prompt string, cb Callbacks) <-chan struct{} {
	return c.StreamMessages(ctx, []llm.Message{llm.UserMessage(prompt)}, nil, cb)
}

// StreamMessages 与 ChatStreaming 相同，但接受完整的消息列表
func (c *Client) StreamMessages(ctx context.Context, messages []llm.Message, opts *llm.Options, cb Callbacks) <-chan struct{} {
	done := make(chan struct{})
	exec := cb.executor()

	go func() {
		defer close(done)

		stream, err := c.Stream(ctx, messages, opts)
		if err != nil {
			ev := llm.ErrorEvent(err)
			exec(func() { cb.dispatch(ev) })
			return
		}
		for ev := range stream {
			exec(func() { cb.dispatch(ev) })
		}
	}()

	return done
}

// 确保 Client 实现了 llm.Provider 接口
var _ llm.Provider = (*Client)(nil)

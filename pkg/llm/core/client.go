package core

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/observability"
)

// ChatEndpoint 对话端点（相对 BaseURL）
const ChatEndpoint = "/chat/completions"

// streamBuffer 事件 channel 缓冲区大小
const streamBuffer = 10

// ═══════════════════════════════════════════════════════════════════════════
// 选项
// ═══════════════════════════════════════════════════════════════════════════

type clientOptions struct {
	logger    *slog.Logger
	tokenOpts []TokenOption
	endpoint  string
}

// ClientOption BaseClient 选项
type ClientOption func(*clientOptions)

// WithLogger 设置日志，默认 slog.Default()
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTokenOptions 透传 TokenManager 选项（时钟、RqUID 生成器等）
func WithTokenOptions(opts ...TokenOption) ClientOption {
	return func(o *clientOptions) {
		o.tokenOpts = append(o.tokenOpts, opts...)
	}
}

// WithEndpoint 覆盖对话端点路径
func WithEndpoint(path string) ClientOption {
	return func(o *clientOptions) {
		if path != "" {
			o.endpoint = path
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// BaseClient 基础客户端
// ═══════════════════════════════════════════════════════════════════════════

// BaseClient 基础客户端
//
// 封装令牌管理、HTTP 通信、请求构建、响应提取和流式聚合的通用流程，
// 协议差异委托给 ProtocolAdapter 与 EventHandler。
//
// 调用流程：
//  1. 构建请求体（角色校验，早于任何网络请求）
//  2. TokenManager 确保令牌有效（必要时同步刷新）
//  3. 发送 HTTP POST
//  4. 同步模式由 Transformer 提取终止内容；流式模式由 SSEParser 聚合片段
//
// 不做任何自动重试。
type BaseClient struct {
	config      llm.Config
	resty       *resty.Client
	tokens      *TokenManager
	transformer *Transformer
	sseParser   *SSEParser
	logger      *slog.Logger
	endpoint    string
}

// NewBaseClient 创建基础客户端
//
// 参数：
//   - cfg: 客户端配置，空字段使用默认值
//   - adapter: 协议适配器
//   - eventHandler: SSE 事件处理器
//
// 缺少 API Key 时返回 ConfigError。
func NewBaseClient(
	cfg *llm.Config,
	adapter ProtocolAdapter,
	eventHandler EventHandler,
	opts ...ClientOption,
) (*BaseClient, error) {
	if cfg == nil {
		return nil, llm.NewConfigError("config is required", nil)
	}

	o := clientOptions{logger: slog.Default(), endpoint: ChatEndpoint}
	for _, opt := range opts {
		opt(&o)
	}

	config := *cfg
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r := newResty(&config).
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json")

	tokenOpts := append([]TokenOption{
		WithTokenTimeout(config.AuthTimeout),
		WithTokenRestyClient(newResty(&config)),
		WithTokenLogger(o.logger),
	}, o.tokenOpts...)
	tokens, err := NewTokenManager(config.AuthURL, Credentials{
		APIKey: config.APIKey,
		Scope:  config.Scope,
	}, tokenOpts...)
	if err != nil {
		return nil, err
	}

	return &BaseClient{
		config:      config,
		resty:       r,
		tokens:      tokens,
		transformer: NewTransformer(adapter),
		sseParser:   NewSSEParser(eventHandler),
		logger:      o.logger,
		endpoint:    o.endpoint,
	}, nil
}

// newResty 创建带 TLS 配置的 resty 客户端
func newResty(cfg *llm.Config) *resty.Client {
	r := resty.New()
	if cfg.InsecureSkipVerify {
		r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // opt-in via config
	}
	if cfg.CACertFile != "" {
		r.SetRootCertificate(cfg.CACertFile)
	}
	return r
}

// Config 返回应用默认值后的配置
func (c *BaseClient) Config() llm.Config {
	return c.config
}

// Tokens 返回令牌管理器
func (c *BaseClient) Tokens() *TokenManager {
	return c.tokens
}

// Complete 同步完成
//
// 响应带错误信封或 HTTP 状态 >= 400 时返回 *llm.APIError；
// 找不到终止内容时返回 Terminal=false 的 Response。
func (c *BaseClient) Complete(ctx context.Context, messages []llm.Message, opts *llm.Options) (resp *llm.Response, err error) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "chat.complete")
	defer func() {
		c.finishRequest(span, observability.ModeBlocking, start, err)
		span.End()
	}()

	bodyBytes, model, err := c.buildBody(messages, opts, false)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("gigachat.model", model))

	token, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.resty.R().
		SetContext(ctx).
		SetAuthToken(token.Value).
		SetHeader("Accept", "application/json").
		SetBody(bodyBytes).
		Post(c.endpoint)
	if err != nil {
		return nil, llm.NewHTTPError("request failed", err)
	}

	var apiResp map[string]any
	jsonErr := json.Unmarshal(httpResp.Body(), &apiResp)
	if httpResp.StatusCode() >= 400 {
		return nil, c.statusError(httpResp.StatusCode(), apiResp, httpResp.String(), httpResp.Header().Get("X-Request-ID"))
	}
	if jsonErr != nil {
		return nil, llm.NewResponseError("body", jsonErr)
	}

	resp, err = c.transformer.ParseResponse(apiResp)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = model
	}
	if !resp.Terminal {
		c.logger.Debug("response has no terminal content", "model", model, "finish_reason", resp.FinishReason)
	}
	return resp, nil
}

// Stream 流式完成
//
// 请求构建、令牌、连接和 HTTP 状态错误同步返回；连接建立后的所有结果
// 通过 channel 交付：零或多个 partial 事件，然后恰好一个 complete 或
// error 事件，最后关闭 channel。
//
// ctx 取消会终止读取循环并丢弃尚未入队的 partial，结束事件为 kind
// canceled 的 error 事件。调用方必须读完 channel（取消后很快就会关闭），
// 否则读取 goroutine 会阻塞在结束事件上。
func (c *BaseClient) Stream(ctx context.Context, messages []llm.Message, opts *llm.Options) (_ <-chan *llm.Event, err error) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "chat.stream")
	defer func() {
		if err != nil {
			c.finishRequest(span, observability.ModeStreaming, start, err)
			span.End()
		}
	}()

	bodyBytes, model, err := c.buildBody(messages, opts, true)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("gigachat.model", model))

	token, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.resty.R().
		SetContext(ctx).
		SetAuthToken(token.Value).
		SetHeader("Accept", "text/event-stream").
		SetBody(bodyBytes).
		SetDoNotParseResponse(true).
		Post(c.endpoint)
	if err != nil {
		return nil, llm.NewHTTPError("request failed", err)
	}

	body := httpResp.RawBody()
	if httpResp.StatusCode() >= 400 {
		raw, _ := io.ReadAll(body)
		_ = body.Close()
		var apiResp map[string]any
		_ = json.Unmarshal(raw, &apiResp)
		return nil, c.statusError(httpResp.StatusCode(), apiResp, string(raw), httpResp.Header().Get("X-Request-ID"))
	}

	events := make(chan *llm.Event, streamBuffer)
	go c.consume(ctx, body, events, start, span)
	return events, nil
}

// consume 在 goroutine 中聚合 SSE 流
func (c *BaseClient) consume(ctx context.Context, body io.ReadCloser, events chan<- *llm.Event, start time.Time, span trace.Span) {
	observability.ActiveStreams.Inc()
	defer func() {
		_ = body.Close()
		close(events)
		observability.ActiveStreams.Dec()
	}()

	fragments := 0
	text, err := c.sseParser.Consume(ctx, body, func(e *llm.Event) {
		select {
		case events <- e:
			fragments++
			observability.StreamFragmentsTotal.Inc()
		case <-ctx.Done():
		}
	})
	// 取消后 partial 可能被丢弃，不能再报告 complete
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	c.finishRequest(span, observability.ModeStreaming, start, err)
	span.End()

	final := llm.CompleteEvent(text)
	if err != nil {
		c.logger.Warn("stream failed", "kind", llm.KindOf(err), "fragments", fragments, "error", err)
		final = llm.ErrorEvent(err)
	} else {
		c.logger.Debug("stream completed", "fragments", fragments, "chars", len(text))
	}

	// 结束事件总是阻塞发送，调用方必须读完 channel
	events <- final
}

// ═══════════════════════════════════════════════════════════════════════════
// 辅助方法
// ═══════════════════════════════════════════════════════════════════════════

// buildBody 构建并序列化请求体，返回实际使用的模型
func (c *BaseClient) buildBody(messages []llm.Message, opts *llm.Options, stream bool) ([]byte, string, error) {
	if opts == nil && c.config.Temperature != nil {
		opts = &llm.Options{Temperature: c.config.Temperature}
	} else if opts != nil && opts.Temperature == nil && c.config.Temperature != nil {
		merged := *opts
		merged.Temperature = c.config.Temperature
		opts = &merged
	}

	body, err := c.transformer.BuildRequest(c.config.Model, messages, opts, stream)
	if err != nil {
		return nil, "", err
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, "", llm.NewRequestError("marshal", err)
	}
	return bodyBytes, GetString(body["model"]), nil
}

// statusError 将 HTTP >= 400 的响应转换为 APIError
//
// 优先使用嵌套的错误信封，其次是顶层 {status, message}，最后是原始响应体。
func (c *BaseClient) statusError(status int, apiResp map[string]any, raw, requestID string) *llm.APIError {
	apiErr := c.transformer.adapter.ConvertError(apiResp)
	if apiErr == nil {
		apiErr = llm.NewAPIError(status, GetString(apiResp["message"]))
	}
	if apiErr.StatusCode == 0 {
		apiErr.StatusCode = status
	}
	apiErr = apiErr.WithResponse(raw)
	if requestID != "" {
		apiErr = apiErr.WithRequestID(requestID)
	}
	c.logger.Warn("chat endpoint returned error", "status", status, "message", apiErr.Message)
	return apiErr
}

// finishRequest 记录指标与 span 状态
func (c *BaseClient) finishRequest(span trace.Span, mode string, start time.Time, err error) {
	kind := "none"
	if err != nil {
		kind = string(llm.KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
	}
	observability.RequestsTotal.WithLabelValues(mode, kind).Inc()
	observability.RequestDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

// ═══════════════════════════════════════════════════════════════════════════
// 辅助函数
// ═══════════════════════════════════════════════════════════════════════════

// NewInvalidConfigError 创建无效配置错误
func NewInvalidConfigError(field string) error {
	return llm.NewConfigError(field+" is required", nil)
}

// NewMissingAPIKeyError 创建缺少 API Key 错误
func NewMissingAPIKeyError() error {
	return llm.NewConfigError("API key is required", nil)
}

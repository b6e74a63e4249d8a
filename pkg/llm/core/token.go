package core

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/observability"
)

// TokenSafetyMargin 令牌剩余有效期不大于该值时视为过期
const TokenSafetyMargin = 60 * time.Second

// singleflight 键：按需刷新与强制刷新各占一个槽位
//
// 强制刷新不能并入按需刷新，后者可能直接返回缓存中的旧令牌。
const (
	refreshKey      = "token"
	forceRefreshKey = "token:force"
)

// ═══════════════════════════════════════════════════════════════════════════
// 凭据与令牌
// ═══════════════════════════════════════════════════════════════════════════

// Credentials 构造时提供的不可变凭据
type Credentials struct {
	APIKey string
	Scope  llm.Scope
}

// Token 访问令牌
type Token struct {
	Value     string
	ExpiresAt int64 // epoch 秒
}

// ValidAt 在 now 时刻令牌是否仍可用（剩余有效期大于 TokenSafetyMargin）
func (t Token) ValidAt(now time.Time) bool {
	return t.Value != "" && t.ExpiresAt-now.Unix() > int64(TokenSafetyMargin/time.Second)
}

// ═══════════════════════════════════════════════════════════════════════════
// TokenCache
// ═══════════════════════════════════════════════════════════════════════════

// TokenCache 由 TokenManager 独占的令牌缓存
//
// 只在刷新流程中整体替换，读取方拿到的是值拷贝。
type TokenCache struct {
	mu    sync.RWMutex
	token Token
	set   bool
}

// Load 读取缓存的令牌
func (c *TokenCache) Load() (Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.set
}

// Store 原子替换缓存的令牌
func (c *TokenCache) Store(t Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = t
	c.set = true
}

// Clear 清空缓存
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = Token{}
	c.set = false
}

// ═══════════════════════════════════════════════════════════════════════════
// TokenManager
// ═══════════════════════════════════════════════════════════════════════════

// IDGenerator 生成 RqUID 请求关联标识（仅用于追踪，不是安全凭据）
type IDGenerator func() string

// NewRqUID 默认的 RqUID 生成器
func NewRqUID() string {
	return uuid.NewString()
}

// TokenManager 持有凭据，缓存访问令牌并在过期时刷新
//
// 刷新通过 singleflight 串行化：同一实例同一时刻最多只有一个刷新请求，
// 并发调用方共享它的结果。不做任何自动重试。
type TokenManager struct {
	creds   Credentials
	authURL string
	timeout time.Duration

	resty  *resty.Client
	cache  TokenCache
	flight singleflight.Group

	newID  IDGenerator
	now    func() time.Time
	logger *slog.Logger
}

// TokenOption TokenManager 选项
type TokenOption func(*TokenManager)

// WithIDGenerator 注入 RqUID 生成器（测试中可提供确定值）
func WithIDGenerator(gen IDGenerator) TokenOption {
	return func(m *TokenManager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// WithClock 注入时钟
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTokenTimeout 设置令牌请求超时，默认 5 秒
func WithTokenTimeout(d time.Duration) TokenOption {
	return func(m *TokenManager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithTokenRestyClient 使用已配置（如 TLS）的 resty 客户端
func WithTokenRestyClient(r *resty.Client) TokenOption {
	return func(m *TokenManager) {
		if r != nil {
			m.resty = r
		}
	}
}

// WithTokenLogger 设置日志
func WithTokenLogger(logger *slog.Logger) TokenOption {
	return func(m *TokenManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithInitialToken 预置缓存令牌
func WithInitialToken(t Token) TokenOption {
	return func(m *TokenManager) {
		m.cache.Store(t)
	}
}

// NewTokenManager 创建令牌管理器
//
// API Key 为空时返回 ConfigError。
func NewTokenManager(authURL string, creds Credentials, opts ...TokenOption) (*TokenManager, error) {
	if creds.APIKey == "" {
		return nil, NewMissingAPIKeyError()
	}
	if authURL == "" {
		return nil, NewInvalidConfigError("auth URL")
	}

	m := &TokenManager{
		creds:   creds,
		authURL: authURL,
		timeout: llm.DefaultAuthTimeout,
		newID:   NewRqUID,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.resty == nil {
		m.resty = resty.New()
	}
	return m, nil
}

// EnsureValid 返回可用的访问令牌
//
// 缓存令牌仍然有效时直接返回，不发起网络请求；否则同步刷新。
func (m *TokenManager) EnsureValid(ctx context.Context) (Token, error) {
	if tok, ok := m.cache.Load(); ok && tok.ValidAt(m.now()) {
		return tok, nil
	}
	return m.refresh(ctx, false)
}

// Refresh 强制刷新令牌
//
// 不会并入进行中的按需刷新，总是请求新令牌；并发的强制刷新之间共享结果。
func (m *TokenManager) Refresh(ctx context.Context) (Token, error) {
	return m.refresh(ctx, true)
}

// Cached 返回当前缓存的令牌（可能已过期）
func (m *TokenManager) Cached() (Token, bool) {
	return m.cache.Load()
}

// Invalidate 丢弃缓存令牌，下次 EnsureValid 会刷新
//
// 适用于对话端点以 401 拒绝了仍在有效期内的令牌的情况。
func (m *TokenManager) Invalidate() {
	m.cache.Clear()
}

func (m *TokenManager) refresh(ctx context.Context, force bool) (Token, error) {
	key := refreshKey
	if force {
		key = forceRefreshKey
	}
	v, err, _ := m.flight.Do(key, func() (any, error) {
		// 另一个刷新可能刚刚完成
		if !force {
			if tok, ok := m.cache.Load(); ok && tok.ValidAt(m.now()) {
				return tok, nil
			}
		}
		tok, err := m.fetch(ctx)
		if err != nil {
			return nil, err
		}
		m.cache.Store(tok)
		return tok, nil
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// fetch 请求令牌端点
func (m *TokenManager) fetch(ctx context.Context) (tok Token, err error) {
	ctx, span := observability.Tracer().Start(ctx, "token.refresh")
	defer func() {
		result := observability.ResultSuccess
		if err != nil {
			result = observability.ResultError
			span.RecordError(err)
			span.SetStatus(codes.Error, "token refresh failed")
		}
		observability.TokenRefreshesTotal.WithLabelValues(result).Inc()
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	rqUID := m.newID()
	span.SetAttributes(attribute.String("gigachat.rq_uid", rqUID))
	m.logger.Debug("refreshing access token", "rq_uid", rqUID, "scope", m.creds.Scope)

	resp, err := m.resty.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+m.creds.APIKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetHeader("Accept", "application/json").
		SetHeader("RqUID", rqUID).
		SetFormData(map[string]string{"scope": string(m.creds.Scope)}).
		Post(m.authURL)
	if err != nil {
		m.logger.Warn("token request failed", "rq_uid", rqUID, "error", err)
		return Token{}, llm.NewAuthError(0, "", err)
	}

	status := resp.StatusCode()
	span.SetAttributes(attribute.Int("http.status_code", status))
	if !resp.IsSuccess() {
		m.logger.Warn("token endpoint rejected request", "rq_uid", rqUID, "status", status)
		return Token{}, llm.NewAuthError(status, resp.String(), nil)
	}

	var body map[string]any
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return Token{}, llm.NewAuthError(status, resp.String(), err)
	}
	value := GetString(body["access_token"])
	if value == "" {
		return Token{}, llm.NewAuthError(status, resp.String(), errors.New("missing access_token"))
	}

	expiresAtMs := GetInt64(body["expires_at"])
	if expiresAtMs <= 0 {
		return Token{}, llm.NewAuthError(status, resp.String(), errors.New("missing expires_at"))
	}

	tok = Token{
		Value:     value,
		ExpiresAt: expiresAtMs / 1000,
	}
	m.logger.Debug("access token refreshed", "rq_uid", rqUID, "expires_at", tok.ExpiresAt)
	return tok, nil
}

package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
)

const (
	// AuthPath 令牌端点路径
	AuthPath = "/api/v2/oauth"

	// ChatPath 对话端点路径
	ChatPath = "/api/v1/chat/completions"

	// ScenarioHeader 按请求选择场景的请求头
	ScenarioHeader = "X-Mock-Scenario"

	defaultTokenTTL = 30 * time.Minute
	defaultResponse = "This is a mock response."
	finishedReply   = "[scenario finished]"
)

// 未显式设置 GIN_MODE 时关闭 gin 的调试输出
func init() {
	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 调用记录
// ═══════════════════════════════════════════════════════════════════════════

// TokenCall 令牌端点的一次调用
type TokenCall struct {
	Authorization string
	RqUID         string
	ContentType   string
	Scope         string
	Time          time.Time
}

// ChatCall 对话端点的一次调用
type ChatCall struct {
	Authorization string
	Request       ChatRequest
	Time          time.Time
}

// ChatRequest 对话请求体
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// ChatMessage 对话消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ═══════════════════════════════════════════════════════════════════════════
// Server
// ═══════════════════════════════════════════════════════════════════════════

// Server 模拟 GigaChat 服务（令牌端点 + 对话端点）
type Server struct {
	mu         sync.Mutex
	cfg        *Config
	err        error
	engine     *gin.Engine
	ts         *httptest.Server
	scenarios  map[string]*scenarioState
	scenario   string
	tokens     map[string]time.Time
	tokenSeq   int
	tokenCalls []TokenCall
	chatCalls  []ChatCall
	now        func() time.Time
}

// Option 服务选项
type Option func(*Server)

// WithConfig 使用配置对象
func WithConfig(cfg *Config) Option {
	return func(s *Server) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithConfigFile 从配置文件加载设置
//
// 加载失败时，错误在对话端点的每次调用中以 500 返回。
func WithConfigFile(path string) Option {
	return func(s *Server) {
		cfg, err := LoadConfigFile(path)
		if err != nil {
			s.err = fmt.Errorf("load config file: %w", err)
			return
		}
		s.cfg = cfg
	}
}

// WithScenario 设置默认场景
func WithScenario(name string) Option {
	return func(s *Server) {
		s.scenario = name
	}
}

// WithClock 设置时钟（影响令牌的签发与过期判断）
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New 创建模拟服务（不监听端口）
//
// 返回值实现 http.Handler，可挂到任意 http.Server 上。
func New(opts ...Option) *Server {
	s := &Server{
		cfg:    &Config{},
		tokens: make(map[string]time.Time),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loadScenarios()

	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.POST(AuthPath, s.handleToken)
	s.engine.POST(ChatPath, s.handleChat)
	return s
}

// NewServer 创建并启动本地测试服务
//
// 使用完毕需调用 Close。
func NewServer(opts ...Option) *Server {
	s := New(opts...)
	s.ts = httptest.NewServer(s.engine)
	return s
}

// ServeHTTP 实现 http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// URL 服务根地址（仅 NewServer 创建时有效）
func (s *Server) URL() string {
	if s.ts == nil {
		return ""
	}
	return s.ts.URL
}

// AuthURL 令牌端点完整地址
func (s *Server) AuthURL() string {
	return s.URL() + AuthPath
}

// BaseURL 对话 API 基础地址
func (s *Server) BaseURL() string {
	return s.URL() + strings.TrimSuffix(ChatPath, "/chat/completions")
}

// ClientConfig 返回指向本服务的客户端配置
func (s *Server) ClientConfig(apiKey string) *llm.Config {
	return &llm.Config{
		APIKey:  apiKey,
		Scope:   llm.ScopePersonal,
		BaseURL: s.BaseURL(),
		AuthURL: s.AuthURL(),
	}
}

// Close 关闭测试服务
func (s *Server) Close() {
	if s.ts != nil {
		s.ts.Close()
	}
}

// TokenCalls 令牌端点调用记录
func (s *Server) TokenCalls() []TokenCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TokenCall(nil), s.tokenCalls...)
}

// ChatCalls 对话端点调用记录
func (s *Server) ChatCalls() []ChatCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatCall(nil), s.chatCalls...)
}

// ExpireTokens 使已签发的令牌全部失效（模拟服务端吊销）
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.tokens)
}

// Reset 清空调用记录并重置场景进度
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenCalls = nil
	s.chatCalls = nil
	s.loadScenarios()
}

func (s *Server) loadScenarios() {
	s.scenarios = make(map[string]*scenarioState, len(s.cfg.Scenarios))
	for _, sc := range s.cfg.Scenarios {
		if sc.Name != "" {
			s.scenarios[sc.Name] = &scenarioState{scenario: sc}
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 令牌端点
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) handleToken(c *gin.Context) {
	call := TokenCall{
		Authorization: c.GetHeader("Authorization"),
		RqUID:         c.GetHeader("RqUID"),
		ContentType:   c.GetHeader("Content-Type"),
		Scope:         c.PostForm("scope"),
	}

	s.mu.Lock()
	now := s.now()
	call.Time = now
	s.tokenCalls = append(s.tokenCalls, call)
	tokenCfg := s.cfg.Token
	ttl := s.cfg.tokenTTL()

	if tokenCfg.Status != 0 {
		s.mu.Unlock()
		c.String(tokenCfg.Status, tokenCfg.Body)
		return
	}
	if key, ok := strings.CutPrefix(call.Authorization, "Bearer "); !ok || key == "" {
		s.mu.Unlock()
		c.JSON(http.StatusUnauthorized, gin.H{"code": 6, "message": "credentials doesn't match db data"})
		return
	}

	s.tokenSeq++
	value := fmt.Sprintf("mock-token-%d", s.tokenSeq)
	expiresAt := now.Add(ttl)
	s.tokens[value] = expiresAt
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"access_token": value,
		"expires_at":   expiresAt.UnixMilli(),
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 对话端点
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": http.StatusBadRequest, "message": "invalid request"})
		return
	}

	auth := c.GetHeader("Authorization")

	s.mu.Lock()
	now := s.now()
	s.chatCalls = append(s.chatCalls, ChatCall{Authorization: auth, Request: req, Time: now})
	loadErr := s.err
	token, _ := strings.CutPrefix(auth, "Bearer ")
	expiresAt, issued := s.tokens[token]
	valid := issued && now.Before(expiresAt)
	turn := s.nextTurn(c.GetHeader(ScenarioHeader))
	errSpec := s.cfg.SimulateError
	delay := s.cfg.delay()
	s.mu.Unlock()

	if loadErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": http.StatusInternalServerError, "message": loadErr.Error()})
		return
	}
	if !valid {
		c.JSON(http.StatusUnauthorized, gin.H{"status": http.StatusUnauthorized, "message": "Token has expired"})
		return
	}

	if turn.Error != nil {
		errSpec = turn.Error
	}
	if errSpec != nil && !errSpec.Envelope {
		c.JSON(errSpec.httpStatus(), gin.H{"status": errSpec.httpStatus(), "message": errSpec.Message})
		return
	}

	content := renderTemplate(turn.Assistant, newTemplateData(req))
	finishReason := turn.FinishReason
	if finishReason == "" {
		finishReason = "stop"
	}

	if req.Stream {
		s.writeStream(c, req, turn.chunks(content), finishReason, errSpec, delay)
		return
	}

	if !sleep(c.Request.Context(), delay) {
		return
	}
	if errSpec != nil {
		c.JSON(http.StatusOK, gin.H{"error": gin.H{"status": errSpec.Status, "message": errSpec.Message}})
		return
	}

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += len(strings.Fields(m.Content))
	}
	completionTokens := len(strings.Fields(content))

	c.JSON(http.StatusOK, gin.H{
		"object":  "chat.completion",
		"model":   req.Model,
		"created": now.Unix(),
		"choices": []gin.H{{
			"index":         0,
			"message":       gin.H{"role": "assistant", "content": content},
			"finish_reason": finishReason,
		}},
		"usage": gin.H{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	})
}

// nextTurn 选取本次请求的响应轮次，调用方持有锁
func (s *Server) nextTurn(header string) Turn {
	name := header
	if name == "" {
		name = s.scenario
	}
	if state, ok := s.scenarios[name]; ok {
		if turn, ok := state.next(); ok {
			return turn
		}
		return Turn{Assistant: finishedReply}
	}

	reply := s.cfg.DefaultResponse
	if reply == "" {
		reply = defaultResponse
	}
	return Turn{Assistant: reply}
}

// writeStream 以 SSE 格式写出片段，最后写 [DONE]
func (s *Server) writeStream(c *gin.Context, req ChatRequest, chunks []string, finishReason string, errSpec *ErrorSpec, delay time.Duration) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	if errSpec != nil {
		writeData(c, gin.H{"error": gin.H{"status": errSpec.Status, "message": errSpec.Message}})
		return
	}

	for _, chunk := range chunks {
		if !sleep(ctx, delay) {
			return
		}
		writeData(c, gin.H{
			"model": req.Model,
			"choices": []gin.H{{
				"index": 0,
				"delta": gin.H{"role": "assistant", "content": chunk},
			}},
		})
	}
	writeData(c, gin.H{
		"model": req.Model,
		"choices": []gin.H{{
			"index":         0,
			"delta":         gin.H{"content": ""},
			"finish_reason": finishReason,
		}},
	})
	_, _ = fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

func writeData(c *gin.Context, payload gin.H) {
	b, _ := json.Marshal(payload)
	_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", b)
	c.Writer.Flush()
}

// sleep 等待 d，ctx 取消时返回 false
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

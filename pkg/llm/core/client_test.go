package core_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/protocol/gigachat"
)

// ═══════════════════════════════════════════════════════════════════════════
// 测试服务端
// ═══════════════════════════════════════════════════════════════════════════

// upstream 令牌端点与对话端点合一的测试服务端
type upstream struct {
	tokenHits atomic.Int32
	chatHits  atomic.Int32

	mu     sync.Mutex
	bodies []map[string]any
	paths  []string

	chat http.HandlerFunc
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth" {
		u.tokenHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		exp := time.Now().Add(30 * time.Minute).UnixMilli()
		_, _ = fmt.Fprintf(w, `{"access_token":"tok","expires_at":%d}`, exp)
		return
	}

	u.chatHits.Add(1)
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	u.mu.Lock()
	u.bodies = append(u.bodies, body)
	u.paths = append(u.paths, r.URL.Path)
	u.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer tok" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	u.chat(w, r)
}

func (u *upstream) lastBody() map[string]any {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.bodies[len(u.bodies)-1]
}

func jsonReply(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func sseReply(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, l := range lines {
			_, _ = fmt.Fprintf(w, "%s\n\n", l)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func newClient(t *testing.T, chat http.HandlerFunc, mutate func(*llm.Config), opts ...core.ClientOption) (*core.BaseClient, *upstream) {
	t.Helper()
	u := &upstream{chat: chat}
	srv := httptest.NewServer(u)
	t.Cleanup(srv.Close)

	cfg := &llm.Config{
		APIKey:  "secret",
		BaseURL: srv.URL + "/api/v1",
		AuthURL: srv.URL + "/oauth",
	}
	if mutate != nil {
		mutate(cfg)
	}
	c, err := core.NewBaseClient(cfg, gigachat.NewAdapter(), gigachat.NewEventHandler(), opts...)
	require.NoError(t, err)
	return c, u
}

func drain(ch <-chan *llm.Event) []*llm.Event {
	var out []*llm.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// 构造
// ═══════════════════════════════════════════════════════════════════════════

func TestNewBaseClient_ConfigErrors(t *testing.T) {
	_, err := core.NewBaseClient(nil, gigachat.NewAdapter(), gigachat.NewEventHandler())
	assert.True(t, llm.IsConfigError(err))

	_, err = core.NewBaseClient(&llm.Config{}, gigachat.NewAdapter(), gigachat.NewEventHandler())
	assert.True(t, llm.IsConfigError(err))

	_, err = core.NewBaseClient(&llm.Config{APIKey: "k", MissingTerminal: "maybe"}, gigachat.NewAdapter(), gigachat.NewEventHandler())
	assert.True(t, llm.IsConfigError(err))
}

func TestNewBaseClient_AppliesDefaults(t *testing.T) {
	c, err := core.NewBaseClient(&llm.Config{APIKey: "k"}, gigachat.NewAdapter(), gigachat.NewEventHandler())
	require.NoError(t, err)

	cfg := c.Config()
	assert.Equal(t, llm.DefaultModel, cfg.Model)
	assert.Equal(t, llm.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, llm.DefaultAuthTimeout, cfg.AuthTimeout)
	assert.Equal(t, llm.MissingTerminalAbsent, cfg.MissingTerminal)
	assert.NotNil(t, c.Tokens())
}

// ═══════════════════════════════════════════════════════════════════════════
// Complete
// ═══════════════════════════════════════════════════════════════════════════

func TestBaseClient_Complete(t *testing.T) {
	c, u := newClient(t, jsonReply(`{
		"model": "GigaChat:1.0",
		"choices": [
			{"index": 0, "finish_reason": "length", "message": {"role": "assistant", "content": "cut"}},
			{"index": 1, "finish_reason": "stop", "message": {"role": "assistant", "content": "Hello!"}}
		],
		"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
	}`), nil)

	resp, err := c.Complete(context.Background(), []llm.Message{llm.UserMessage("Hi")}, nil)
	require.NoError(t, err)

	assert.True(t, resp.Terminal)
	assert.Equal(t, "Hello!", resp.Message.Content)
	assert.Equal(t, "GigaChat:1.0", resp.Model)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, int64(5), resp.Usage.TotalTokens)

	body := u.lastBody()
	assert.Equal(t, llm.DefaultModel, body["model"])
	assert.NotContains(t, body, "temperature")
	assert.NotContains(t, body, "stream")
	assert.Equal(t, []any{map[string]any{"role": "user", "content": "Hi"}}, body["messages"])
}

func TestBaseClient_Complete_NoTerminal(t *testing.T) {
	c, _ := newClient(t, jsonReply(`{"choices":[{"finish_reason":"length","message":{"role":"assistant","content":"cut"}}]}`), nil)

	resp, err := c.Complete(context.Background(), []llm.Message{llm.UserMessage("Hi")}, nil)
	require.NoError(t, err)
	assert.False(t, resp.Terminal)
	assert.Empty(t, resp.Message.Content)
	assert.Equal(t, "length", resp.FinishReason)
}

func TestBaseClient_Complete_Temperature(t *testing.T) {
	temp := 0.7
	c, u := newClient(t, jsonReply(`{"choices":[]}`), func(cfg *llm.Config) { cfg.Temperature = &temp })

	_, err := c.Complete(context.Background(), []llm.Message{llm.UserMessage("Hi")}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, u.lastBody()["temperature"], 1e-9)

	// 单次选项优先于配置
	_, err = c.Complete(context.Background(), []llm.Message{llm.UserMessage("Hi")}, (&llm.Options{Model: "GigaChat-Max"}).WithTemperature(0.1))
	require.NoError(t, err)
	assert.InDelta(t, 0.1, u.lastBody()["temperature"], 1e-9)
	assert.Equal(t, "GigaChat-Max", u.lastBody()["model"])
}

func TestBaseClient_UnsupportedRoleBeforeNetwork(t *testing.T) {
	c, u := newClient(t, jsonReply(`{}`), nil)
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: "be brief"}, llm.UserMessage("Hi")}

	_, err := c.Complete(context.Background(), msgs, nil)
	assert.True(t, llm.IsUnsupportedRoleError(err))

	_, err = c.Stream(context.Background(), msgs, nil)
	assert.True(t, llm.IsUnsupportedRoleError(err))

	assert.Zero(t, u.tokenHits.Load())
	assert.Zero(t, u.chatHits.Load())
}

func TestBaseClient_Complete_APIErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
		message string
	}{
		{
			name: "nested envelope with http error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("X-Request-ID", "req-1")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"status":401,"message":"bad token"}}`))
			},
			status:  401,
			message: "bad token",
		},
		{
			name: "top level status and message",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"status":429,"message":"slow down"}`))
			},
			status:  429,
			message: "slow down",
		},
		{
			name:    "envelope with http 200",
			handler: jsonReply(`{"error":{"status":"403","message":"forbidden"}}`),
			status:  403,
			message: "forbidden",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newClient(t, tt.handler, nil)

			_, err := c.Complete(context.Background(), []llm.Message{llm.UserMessage("Hi")}, nil)
			apiErr, ok := llm.GetAPIError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestBaseClient_Complete_RequestID(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Request-ID", "req-42")
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)

	_, err := c.Complete(context.Background(), []llm.Message{llm.UserMessage("Hi")}, nil)
	apiErr, ok := llm.GetAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "req-42", apiErr.RequestID)
	assert.True(t, apiErr.IsRetryable())
}

func TestBaseClient_WithEndpoint(t *testing.T) {
	c, u := newClient(t, jsonReply(`{"choices":[]}`), nil, core.WithEndpoint("/v2/chat"))

	_, err := c.Complete(context.Background(), []llm.Message{llm.UserMessage("Hi")}, nil)
	require.NoError(t, err)

	u.mu.Lock()
	defer u.mu.Unlock()
	assert.Equal(t, []string{"/api/v1/v2/chat"}, u.paths)
}

func TestBaseClient_InsecureTLS(t *testing.T) {
	u := &upstream{chat: jsonReply(`{"choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"secure"}}]}`)}
	srv := httptest.NewTLSServer(u)
	t.Cleanup(srv.Close)

	newTLS := func(insecure bool) *core.BaseClient {
		c, err := core.NewBaseClient(&llm.Config{
			APIKey:             "secret",
			BaseURL:            srv.URL,
			AuthURL:            srv.URL + "/oauth",
			InsecureSkipVerify: insecure,
		}, gigachat.NewAdapter(), gigachat.NewEventHandler())
		require.NoError(t, err)
		return c
	}

	_, err := newTLS(false).Complete(context.Background(), []llm.Message{llm.UserMessage("Hi")}, nil)
	assert.True(t, llm.IsAuthError(err), "self-signed certificate must be rejected by default")

	resp, err := newTLS(true).Complete(context.Background(), []llm.Message{llm.UserMessage("Hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "secure", resp.Message.Content)
}

// ═══════════════════════════════════════════════════════════════════════════
// Stream
// ═══════════════════════════════════════════════════════════════════════════

func TestBaseClient_Stream(t *testing.T) {
	c, u := newClient(t, sseReply(
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	), nil)

	stream, err := c.Stream(context.Background(), []llm.Message{llm.UserMessage("Hi")}, nil)
	require.NoError(t, err)
	events := drain(stream)

	require.Len(t, events, 3)
	assert.Equal(t, "Hel", events[0].TextDelta)
	assert.Equal(t, "lo", events[1].TextDelta)
	assert.Equal(t, llm.EventTypeComplete, events[2].Type)
	assert.Equal(t, "Hello", events[2].Text)

	assert.Equal(t, true, u.lastBody()["stream"])
}

func TestBaseClient_Stream_ErrorEvents(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		kind     llm.ErrorType
		message  string
		partials int
	}{
		{
			name:     "envelope mid stream",
			lines:    []string{`data: {"choices":[{"delta":{"content":"a"}}]}`, `data: {"error":{"status":500,"message":"boom"}}`},
			kind:     llm.ErrTypeAPI,
			message:  "boom",
			partials: 1,
		},
		{
			name:    "malformed payload",
			lines:   []string{`data: {not json`},
			kind:    llm.ErrTypeParse,
			message: "malformed stream event payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newClient(t, sseReply(tt.lines...), nil)

			stream, err := c.Stream(context.Background(), []llm.Message{llm.UserMessage("Hi")}, nil)
			require.NoError(t, err)
			events := drain(stream)

			require.Len(t, events, tt.partials+1)
			last := events[len(events)-1]
			assert.Equal(t, llm.EventTypeError, last.Type)
			assert.Equal(t, tt.kind, last.ErrorKind)
			assert.Contains(t, last.ErrorMessage, tt.message)
		})
	}
}

func TestBaseClient_Stream_HTTPErrorIsSynchronous(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":400,"message":"bad model"}`))
	}, nil)

	stream, err := c.Stream(context.Background(), []llm.Message{llm.UserMessage("Hi")}, nil)
	assert.Nil(t, stream)
	apiErr, ok := llm.GetAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "bad model", apiErr.Message)
}

func TestBaseClient_Stream_Cancel(t *testing.T) {
	release := make(chan struct{})
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, nil)
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.Stream(ctx, []llm.Message{llm.UserMessage("Hi")}, nil)
	require.NoError(t, err)

	first := <-stream
	require.Equal(t, "first", first.TextDelta)
	cancel()

	var last *llm.Event
	for ev := range stream {
		last = ev
	}
	require.NotNil(t, last, "stream must end with a terminal event")
	assert.Equal(t, llm.EventTypeError, last.Type)
	assert.Equal(t, llm.ErrTypeCanceled, last.ErrorKind)
}

func TestBaseClient_Stream_CancelWithFullBuffer(t *testing.T) {
	lines := make([]string, 0, 41)
	for range 40 {
		lines = append(lines, `data: {"choices":[{"delta":{"content":"x"}}]}`)
	}
	lines = append(lines, "data: [DONE]")
	c, _ := newClient(t, sseReply(lines...), nil)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.Stream(ctx, []llm.Message{llm.UserMessage("Hi")}, nil)
	require.NoError(t, err)

	// 不读取，直到缓冲区被填满后再取消
	require.Eventually(t, func() bool { return len(stream) == cap(stream) }, 2*time.Second, 5*time.Millisecond)
	cancel()

	events := drain(stream)
	partials := 0
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, llm.EventTypePartial, ev.Type)
		partials++
	}
	last := events[len(events)-1]
	assert.Equal(t, llm.EventTypeError, last.Type)
	assert.Equal(t, llm.ErrTypeCanceled, last.ErrorKind)
	assert.Less(t, partials, 40)
}

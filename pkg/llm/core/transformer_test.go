package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
)

// stubAdapter 只接受 user/assistant，终止 choice 取第一个 finish_reason == "stop"
type stubAdapter struct{}

func (stubAdapter) ConvertToAPI(messages []llm.Message) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(messages))
	for i, m := range messages {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			return nil, llm.NewUnsupportedRoleError(m.Role, i)
		}
		out = append(out, map[string]any{"role": string(m.Role), "content": m.Content})
	}
	return out, nil
}

func (stubAdapter) ConvertError(resp map[string]any) *llm.APIError {
	e := GetMap(resp["error"])
	if e == nil {
		return nil
	}
	return llm.NewAPIError(int(GetInt64(e["status"])), GetString(e["message"]))
}

func (stubAdapter) ConvertFromAPI(resp map[string]any) (llm.Message, string, bool) {
	for _, c := range GetSlice(resp["choices"]) {
		choice := GetMap(c)
		if GetString(choice["finish_reason"]) == "stop" {
			return llm.AssistantMessage(GetString(GetMap(choice["message"])["content"])), "stop", true
		}
	}
	return llm.Message{Role: llm.RoleAssistant}, "", false
}

func (stubAdapter) ConvertUsage(map[string]any) *llm.TokenUsage { return nil }

func TestTransformer_BuildRequest(t *testing.T) {
	temp := 0.3

	tests := []struct {
		name   string
		opts   *llm.Options
		stream bool
		want   map[string]any
	}{
		{
			name: "defaults",
			want: map[string]any{"model": "GigaChat"},
		},
		{
			name: "model override",
			opts: &llm.Options{Model: "GigaChat-Pro"},
			want: map[string]any{"model": "GigaChat-Pro"},
		},
		{
			name: "temperature",
			opts: &llm.Options{Temperature: &temp},
			want: map[string]any{"model": "GigaChat", "temperature": 0.3},
		},
		{
			name:   "stream",
			stream: true,
			want:   map[string]any{"model": "GigaChat", "stream": true},
		},
	}

	tr := NewTransformer(stubAdapter{})
	msgs := []llm.Message{llm.UserMessage("hi"), llm.AssistantMessage("hello"), llm.UserMessage("again")}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := tr.BuildRequest("GigaChat", msgs, tt.opts, tt.stream)
			require.NoError(t, err)

			apiMsgs := body["messages"]
			delete(body, "messages")
			assert.Equal(t, tt.want, body)

			assert.Equal(t, []map[string]any{
				{"role": "user", "content": "hi"},
				{"role": "assistant", "content": "hello"},
				{"role": "user", "content": "again"},
			}, apiMsgs)
		})
	}
}

func TestTransformer_BuildRequest_Errors(t *testing.T) {
	tr := NewTransformer(stubAdapter{})

	_, err := tr.BuildRequest("GigaChat", nil, nil, false)
	assert.True(t, llm.IsRequestError(err))

	_, err = tr.BuildRequest("GigaChat", []llm.Message{
		llm.UserMessage("hi"),
		{Role: llm.RoleSystem, Content: "be brief"},
	}, nil, false)
	var roleErr *llm.UnsupportedRoleError
	require.ErrorAs(t, err, &roleErr)
	assert.Equal(t, llm.RoleSystem, roleErr.Role)
	assert.Equal(t, 1, roleErr.Index)
}

func TestTransformer_ParseResponse(t *testing.T) {
	tr := NewTransformer(stubAdapter{})

	t.Run("terminal", func(t *testing.T) {
		resp, err := tr.ParseResponse(map[string]any{
			"model": "GigaChat",
			"choices": []any{
				map[string]any{"finish_reason": "length", "message": map[string]any{"content": "partial"}},
				map[string]any{"finish_reason": "stop", "message": map[string]any{"content": "done"}},
			},
		})
		require.NoError(t, err)
		assert.True(t, resp.Terminal)
		assert.Equal(t, "done", resp.Message.Content)
		assert.Equal(t, "GigaChat", resp.Model)
	})

	t.Run("no terminal", func(t *testing.T) {
		resp, err := tr.ParseResponse(map[string]any{"choices": []any{}})
		require.NoError(t, err)
		assert.False(t, resp.Terminal)
		assert.Empty(t, resp.Message.Content)
	})

	t.Run("error envelope wins", func(t *testing.T) {
		_, err := tr.ParseResponse(map[string]any{
			"error": map[string]any{"status": 401, "message": "bad token"},
			"choices": []any{
				map[string]any{"finish_reason": "stop", "message": map[string]any{"content": "ignored"}},
			},
		})
		apiErr, ok := llm.GetAPIError(err)
		require.True(t, ok)
		assert.Equal(t, 401, apiErr.StatusCode)
		assert.Equal(t, "bad token", apiErr.Message)
	})
}

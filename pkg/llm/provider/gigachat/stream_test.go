package gigachat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/provider/mock"
)

func feed(events ...*llm.Event) <-chan *llm.Event {
	ch := make(chan *llm.Event, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch
}

func TestParseStream_Complete(t *testing.T) {
	result := ParseStream(feed(
		llm.PartialEvent("Hel"),
		llm.PartialEvent("lo"),
		llm.CompleteEvent("Hello"),
	))

	assert.Equal(t, "Hello", result.Text)
	assert.NoError(t, result.Err)
	assert.Empty(t, result.ErrorKind)
}

func TestParseStream_Error(t *testing.T) {
	result := ParseStream(feed(
		llm.PartialEvent("Hel"),
		llm.ErrorEvent(llm.NewParseError("{oops", nil)),
	))

	assert.Equal(t, "Hel", result.Text)
	require.Error(t, result.Err)
	assert.True(t, llm.IsParseError(result.Err))
	assert.Equal(t, llm.ErrTypeParse, result.ErrorKind)
}

func TestStreamParser_Incremental(t *testing.T) {
	p := NewStreamParser()
	p.Feed(llm.PartialEvent("a"))
	assert.Equal(t, "a", p.CurrentText())
	p.Feed(llm.PartialEvent("b"))
	assert.Equal(t, "ab", p.CurrentText())

	// 没有结束事件时使用累积的增量
	assert.Equal(t, "ab", p.Result().Text)
}

func TestParseStream_FromClient(t *testing.T) {
	srv := exampleServer(t, mock.WithScenario("greeting"))
	client := newTestClient(t, srv.ClientConfig("secret"))

	stream, err := client.Stream(context.Background(), []llm.Message{llm.UserMessage("Hi")}, nil)
	require.NoError(t, err)

	result := ParseStream(stream)
	require.NoError(t, result.Err)
	assert.Equal(t, "Hello! How can I help you today?", result.Text)
}

package gigachat_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/provider/gigachat"
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/provider/mock"
)

func ExampleClient_Chat() {
	srv := mock.NewServer(mock.WithConfig(&mock.Config{DefaultResponse: "Echo: {{.LastUserMessage}}"}))
	defer srv.Close()

	client, err := gigachat.New(srv.ClientConfig("credentials"))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer func() { _ = client.Close() }()

	text, err := client.Chat(context.Background(), "Hello!")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(text)
	// Output: Echo: Hello!
}

func ExampleClient_ChatStreaming() {
	srv := mock.NewServer(mock.WithConfig(&mock.Config{DefaultResponse: "streamed reply"}))
	defer srv.Close()

	client, _ := gigachat.New(srv.ClientConfig("credentials"))

	var sb strings.Builder
	done := client.ChatStreaming(context.Background(), "Hi", gigachat.Callbacks{
		OnPartial:  func(delta string) { sb.WriteString(delta) },
		OnComplete: func(text string) { fmt.Println("complete:", text) },
		OnError:    func(kind llm.ErrorType, msg string) { fmt.Println(kind, msg) },
	})
	<-done

	fmt.Println("partials:", sb.String())
	// Output:
	// complete: streamed reply
	// partials: streamed reply
}

func ExampleClient_ChatMessages_unsupportedRole() {
	client, _ := gigachat.New(&llm.Config{APIKey: "credentials"})

	_, err := client.ChatMessages(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a pirate."},
	}, nil)
	fmt.Println(llm.KindOf(err))
	// Output: unsupported_role
}

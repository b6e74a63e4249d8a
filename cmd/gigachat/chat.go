package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/provider/gigachat"
)

// ═══════════════════════════════════════════════════════════════════════════
// 公共
// ═══════════════════════════════════════════════════════════════════════════

// newClient 根据命令行上下文创建客户端
func newClient(cmd *cobra.Command) (*gigachat.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}
	return gigachat.New(cfg, core.WithLogger(logger))
}

// readPrompt 参数拼接为提示词；没有参数时读取标准输入
func readPrompt(cmd *cobra.Command, args []string) (string, error) {
	prompt := strings.Join(args, " ")
	if prompt == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", err
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		return "", errors.New("prompt is empty")
	}
	return prompt, nil
}

// chatOptions 仅在显式指定 --temperature 时覆盖配置
func chatOptions(cmd *cobra.Command) *llm.Options {
	if !cmd.Flags().Changed("temperature") {
		return nil
	}
	t, _ := cmd.Flags().GetFloat64("temperature")
	return (&llm.Options{}).WithTemperature(t)
}

// ═══════════════════════════════════════════════════════════════════════════
// chat
// ═══════════════════════════════════════════════════════════════════════════

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [prompt...]",
		Short: "发送提示词并打印回复",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(cmd, args)
			if err != nil {
				return err
			}
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			text, err := client.ChatMessages(cmd.Context(), []llm.Message{llm.UserMessage(prompt)}, chatOptions(cmd))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().Float64("temperature", 0, "采样温度")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════
// stream
// ═══════════════════════════════════════════════════════════════════════════

// streamFailure 流式回调交付的错误
type streamFailure struct {
	kind    llm.ErrorType
	message string
}

func (e *streamFailure) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func newStreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream [prompt...]",
		Short: "以流式方式发送提示词，边接收边打印",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(cmd, args)
			if err != nil {
				return err
			}
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			out := cmd.OutOrStdout()
			var failure error
			done := client.StreamMessages(cmd.Context(), []llm.Message{llm.UserMessage(prompt)}, chatOptions(cmd), gigachat.Callbacks{
				OnPartial:  func(delta string) { _, _ = fmt.Fprint(out, delta) },
				OnComplete: func(string) { _, _ = fmt.Fprintln(out) },
				OnError: func(kind llm.ErrorType, message string) {
					failure = &streamFailure{kind: kind, message: message}
				},
			})
			<-done
			return failure
		},
	}
	cmd.Flags().Float64("temperature", 0, "采样温度")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════
// token
// ═══════════════════════════════════════════════════════════════════════════

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "获取访问令牌并打印过期时间",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			tok, err := client.Token(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires_at: %s\n",
				tok.Value, time.Unix(tok.ExpiresAt, 0).UTC().Format(time.RFC3339))
			return err
		},
	}
}

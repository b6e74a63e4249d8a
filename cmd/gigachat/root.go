package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd 创建根命令
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gigachat",
		Short:         "GigaChat 命令行客户端",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "配置文件路径（默认 ./gigachat.yaml）")
	pf.String("log-level", "warn", "日志级别 (debug, info, warn, error)")
	pf.String("scope", "", "授权范围 (GIGACHAT_API_PERS, GIGACHAT_API_B2B, GIGACHAT_API_CORP)")
	pf.String("model", "", "模型名称")
	pf.String("base-url", "", "对话 API 基础地址")
	pf.String("auth-url", "", "令牌端点地址")
	pf.Duration("timeout", 0, "对话请求超时")
	pf.Bool("insecure", false, "跳过 TLS 证书校验")
	pf.String("ca-cert", "", "自定义 CA 证书文件")

	rootCmd.AddCommand(
		newChatCmd(),
		newStreamCmd(),
		newTokenCmd(),
		newMockCmd(),
	)
	return rootCmd
}

// Package main 提供 GigaChat 命令行客户端
//
// 用法：
//
//	export GIGACHAT_CREDENTIALS=...
//	gigachat chat "Привет!"
//	gigachat stream --temperature 0.7 "Расскажи анекдот"
//	gigachat mock --addr :8080 --scenarios scenarios.yaml
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

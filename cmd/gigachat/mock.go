package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/provider/mock"
)

func newMockCmd() *cobra.Command {
	var (
		addr      string
		scenarios string
		scenario  string
	)

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "启动本地模拟 GigaChat 服务（令牌端点 + 对话端点）",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd)
			if err != nil {
				return err
			}

			opts := []mock.Option{mock.WithScenario(scenario)}
			if scenarios != "" {
				cfg, err := mock.LoadConfigFile(scenarios)
				if err != nil {
					return err
				}
				opts = append(opts, mock.WithConfig(cfg))
			} else {
				cfg, err := mock.LoadExampleConfig()
				if err != nil {
					return err
				}
				opts = append(opts, mock.WithConfig(cfg))
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           mock.New(opts...),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx := cmd.Context()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "auth url: http://%s%s\nbase url: http://%s/api/v1\n", addr, mock.AuthPath, addr)
			logger.Info("mock server listening", "addr", addr, "scenario", scenario)

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "监听地址")
	cmd.Flags().StringVar(&scenarios, "scenarios", "", "场景配置文件（YAML/JSON，默认使用内置示例）")
	cmd.Flags().StringVar(&scenario, "scenario", "", "默认场景名称")
	return cmd
}

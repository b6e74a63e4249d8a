package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
)

// envPrefix 环境变量前缀，如 GIGACHAT_MODEL
const envPrefix = "GIGACHAT"

// configKeys 可通过配置文件、环境变量或命令行设置的键
var configKeys = []string{
	"scope", "model", "base_url", "auth_url",
	"timeout", "auth_timeout",
	"insecure_skip_verify", "ca_cert_file", "missing_terminal",
}

// flagKeys 命令行 flag 与配置键的对应关系
var flagKeys = map[string]string{
	"scope":    "scope",
	"model":    "model",
	"base-url": "base_url",
	"auth-url": "auth_url",
	"timeout":  "timeout",
	"insecure": "insecure_skip_verify",
	"ca-cert":  "ca_cert_file",
}

// loadConfig 合并配置文件、环境变量与命令行 flag
//
// 优先级：flag > 环境变量 > 配置文件 > 默认值。
// 未指定 --config 时在当前目录查找 gigachat.yaml，找不到不报错。
func loadConfig(cmd *cobra.Command) (*llm.Config, error) {
	v := viper.New()

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gigachat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	// 授权密钥兼容两个变量名
	if err := v.BindEnv("api_key", "GIGACHAT_CREDENTIALS", "GIGACHAT_API_KEY"); err != nil {
		return nil, err
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, llm.NewConfigError("read config file", err)
		}
	}

	cfg := &llm.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, llm.NewConfigError("decode config", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// newLogger 按 --log-level 创建输出到 stderr 的 slog.Logger
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	name, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// Package provider 提供创建 LLM Provider 的工厂函数
package provider

import (
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/provider/gigachat"
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm/provider/mock"
)

// ═══════════════════════════════════════════════════════════════════════════
// 工厂函数
// ═══════════════════════════════════════════════════════════════════════════

// New 创建 Provider
//
// cfg 为 nil 或缺少 API Key 时返回 ConfigError。
func New(cfg *llm.Config, opts ...core.ClientOption) (llm.Provider, error) {
	client, err := gigachat.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// FromFile 从 YAML 配置文件创建 Provider
//
// 文件中未设置 api_key 时回退到环境变量。
func FromFile(path string, opts ...core.ClientOption) (llm.Provider, error) {
	cfg, err := llm.LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// ═══════════════════════════════════════════════════════════════════════════
// 便捷函数
// ═══════════════════════════════════════════════════════════════════════════

// Mock 启动本地模拟服务并返回指向它的客户端（用于测试）
//
// 使用完毕需调用 srv.Close()。
func Mock(opts ...mock.Option) (*gigachat.Client, *mock.Server) {
	srv := mock.NewServer(opts...)
	client, err := gigachat.New(srv.ClientConfig("mock-credentials"))
	if err != nil {
		srv.Close()
		panic(err)
	}
	return client, srv
}

// Must 创建 Provider，失败时 panic
func Must(cfg *llm.Config, opts ...core.ClientOption) llm.Provider {
	p, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Default 使用默认配置创建 Provider
//
// API Key 从 GIGACHAT_CREDENTIALS 或 GIGACHAT_API_KEY 读取。
func Default(opts ...core.ClientOption) (llm.Provider, error) {
	cfg := llm.DefaultConfig()
	return New(&cfg, opts...)
}

// MustDefault 使用默认配置创建 Provider，失败时 panic
func MustDefault(opts ...core.ClientOption) llm.Provider {
	p, err := Default(opts...)
	if err != nil {
		panic(err)
	}
	return p
}

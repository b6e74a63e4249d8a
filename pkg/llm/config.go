package llm

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ═══════════════════════════════════════════════════════════════════════════
// 客户端配置
// ═══════════════════════════════════════════════════════════════════════════

// Config 客户端创建配置
//
// 基本用法：
//
//	cfg := &llm.Config{
//	    APIKey: "base64(client_id:client_secret)",
//	    Scope:  llm.ScopePersonal,
//	}
//
// 从文件加载：
//
//	cfg, err := llm.LoadConfigFile("gigachat.yaml")
type Config struct {
	// APIKey 授权密钥（必需），作为令牌请求的 Bearer 凭据
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// Scope 授权范围，默认 GIGACHAT_API_PERS
	Scope Scope `yaml:"scope" mapstructure:"scope"`

	// 可选字段（有默认值）
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	AuthURL string `yaml:"auth_url" mapstructure:"auth_url"`

	// Temperature 默认温度，nil 表示不发送
	Temperature *float64 `yaml:"temperature,omitempty" mapstructure:"temperature"`

	// 网络配置
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	AuthTimeout time.Duration `yaml:"auth_timeout" mapstructure:"auth_timeout"`

	// TLS 配置
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
	CACertFile         string `yaml:"ca_cert_file" mapstructure:"ca_cert_file"`

	// MissingTerminal 同步调用找不到终止内容时的行为
	MissingTerminal MissingTerminalPolicy `yaml:"missing_terminal" mapstructure:"missing_terminal"`
}

// 默认超时
const (
	DefaultTimeout     = 120 * time.Second
	DefaultAuthTimeout = 5 * time.Second
)

// DefaultConfig 返回默认配置，API Key 等从环境变量读取
func DefaultConfig() Config {
	cfg := Config{
		APIKey:          GetEnvAPIKey(),
		Scope:           ScopePersonal,
		Model:           DefaultModel,
		BaseURL:         DefaultBaseURL,
		AuthURL:         DefaultAuthURL,
		Timeout:         DefaultTimeout,
		AuthTimeout:     DefaultAuthTimeout,
		MissingTerminal: MissingTerminalAbsent,
	}
	if v := os.Getenv("GIGACHAT_SCOPE"); v != "" {
		cfg.Scope = Scope(v)
	}
	if v := os.Getenv("GIGACHAT_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("GIGACHAT_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("GIGACHAT_AUTH_URL"); v != "" {
		cfg.AuthURL = v
	}
	return cfg
}

// GetEnvAPIKey 按优先级读取 API Key
func GetEnvAPIKey() string {
	for _, key := range []string{"GIGACHAT_CREDENTIALS", "GIGACHAT_API_KEY"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// ApplyDefaults 为空字段填充默认值
func (c *Config) ApplyDefaults() {
	if c.Scope == "" {
		c.Scope = ScopePersonal
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.AuthTimeout == 0 {
		c.AuthTimeout = DefaultAuthTimeout
	}
	if c.MissingTerminal == "" {
		c.MissingTerminal = MissingTerminalAbsent
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return NewConfigError("API key is required", nil)
	}
	switch c.MissingTerminal {
	case "", MissingTerminalAbsent, MissingTerminalError:
	default:
		return NewConfigError(fmt.Sprintf("unknown missing_terminal policy %q", c.MissingTerminal), nil)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 配置文件
// ═══════════════════════════════════════════════════════════════════════════

// LoadConfigFile 从 YAML 文件加载配置，空字段使用默认值
//
// 文件中未设置 api_key 时回退到环境变量。
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigError("read config file", err)
	}
	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes 从 YAML 字节加载配置
func LoadConfigFromBytes(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, NewConfigError("parse YAML", err)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = GetEnvAPIKey()
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

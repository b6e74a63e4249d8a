package mock

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed examples/scenarios.yaml
var exampleConfigYAML []byte

// Config 模拟服务配置
type Config struct {
	// DefaultResponse 默认响应（没有指定场景时使用，支持模板语法）
	DefaultResponse string `yaml:"default_response" json:"default_response"`

	// Token 令牌端点行为
	Token TokenConfig `yaml:"token" json:"token"`

	// Scenarios 场景列表（通过 name 标识）
	Scenarios []Scenario `yaml:"scenarios" json:"scenarios"`

	// Delay 每个响应（流式时为每个片段）之前的延迟，如 "100ms"
	Delay string `yaml:"delay" json:"delay"`

	// SimulateError 对话端点固定返回的错误
	SimulateError *ErrorSpec `yaml:"simulate_error,omitempty" json:"simulate_error,omitempty"`
}

// TokenConfig 令牌端点配置
type TokenConfig struct {
	// TTL 令牌有效期，默认 30m
	TTL string `yaml:"ttl" json:"ttl"`

	// Status 非 0 时令牌端点返回该状态码
	Status int `yaml:"status,omitempty" json:"status,omitempty"`

	// Body Status 非 0 时的响应体
	Body string `yaml:"body,omitempty" json:"body,omitempty"`
}

// Scenario 场景（支持多轮对话，每次对话请求消耗一轮）
type Scenario struct {
	// Name 场景名称（必需）
	Name string `yaml:"name" json:"name"`

	// Turns 对话轮次列表
	Turns []Turn `yaml:"turns" json:"turns"`
}

// Turn 单轮响应
type Turn struct {
	// User 用户消息（可选，仅用于文档说明）
	User string `yaml:"user,omitempty" json:"user,omitempty"`

	// Assistant 助手响应（支持模板语法）
	Assistant string `yaml:"assistant,omitempty" json:"assistant,omitempty"`

	// FinishReason 默认 "stop"
	FinishReason string `yaml:"finish_reason,omitempty" json:"finish_reason,omitempty"`

	// Chunks 流式片段；为空时按空白切分 Assistant
	Chunks []string `yaml:"chunks,omitempty" json:"chunks,omitempty"`

	// Error 本轮返回错误
	Error *ErrorSpec `yaml:"error,omitempty" json:"error,omitempty"`
}

// ErrorSpec 模拟错误
type ErrorSpec struct {
	// Status HTTP 状态码；Envelope 为 true 时写入信封
	Status int `yaml:"status" json:"status"`

	// Message 错误信息
	Message string `yaml:"message" json:"message"`

	// Envelope 以 200 + {"error": {...}} 返回（流式时作为一条 data 行）
	Envelope bool `yaml:"envelope,omitempty" json:"envelope,omitempty"`
}

// httpStatus 未设置状态码时按 500 处理
func (e *ErrorSpec) httpStatus() int {
	if e.Status == 0 {
		return 500
	}
	return e.Status
}

// LoadConfigFile 从文件加载配置
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	return LoadConfigFromBytes(data, ext)
}

// LoadConfigFromBytes 从字节数据加载配置
func LoadConfigFromBytes(data []byte, format string) (*Config, error) {
	cfg := &Config{}

	// 规范化格式字符串（支持 ".yaml" 或 "yaml"）
	format = strings.TrimPrefix(strings.ToLower(format), ".")

	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s (expected yaml, yml, or json)", format)
	}

	return cfg, nil
}

// LoadExampleConfig 加载内嵌的示例配置
func LoadExampleConfig() (*Config, error) {
	return LoadConfigFromBytes(exampleConfigYAML, "yaml")
}

// tokenTTL 解析令牌有效期
func (c *Config) tokenTTL() time.Duration {
	if d, err := time.ParseDuration(c.Token.TTL); err == nil && d > 0 {
		return d
	}
	return defaultTokenTTL
}

// delay 解析响应延迟
func (c *Config) delay() time.Duration {
	d, _ := time.ParseDuration(c.Delay)
	return d
}

// ═══════════════════════════════════════════════════════════════════════════
// 场景状态管理
// ═══════════════════════════════════════════════════════════════════════════

// scenarioState 场景状态
type scenarioState struct {
	scenario Scenario
	turnIdx  int // 当前轮次索引
}

// next 取出当前轮次并前进；场景结束后返回 false
func (s *scenarioState) next() (Turn, bool) {
	if s.turnIdx >= len(s.scenario.Turns) {
		return Turn{}, false
	}
	turn := s.scenario.Turns[s.turnIdx]
	s.turnIdx++
	return turn, true
}

// chunks 流式片段
func (t Turn) chunks(rendered string) []string {
	if len(t.Chunks) > 0 {
		return t.Chunks
	}
	// 保留空白，使拼接结果与 rendered 一致
	var out []string
	for _, w := range strings.SplitAfter(rendered, " ") {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// 模板渲染
// ═══════════════════════════════════════════════════════════════════════════

// templateFuncs 模板函数映射
var templateFuncs = template.FuncMap{
	"env":     envFunc,
	"default": defaultFunc,
	"upper":   strings.ToUpper,
}

// envFunc 获取环境变量
func envFunc(key string, defaultVal ...string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if len(defaultVal) > 0 {
		return defaultVal[0]
	}
	return ""
}

// defaultFunc 提供默认值
func defaultFunc(defaultVal, value any) any {
	if value == nil {
		return defaultVal
	}
	if str, ok := value.(string); ok && str == "" {
		return defaultVal
	}
	return value
}

// renderTemplate 渲染响应模板，失败时原样返回
//
// 可用变量：.LastUserMessage .MessageCount .Model
func renderTemplate(text string, data templateData) string {
	tmpl, err := template.New("response").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return text
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return text
	}
	return buf.String()
}

// templateData 模板数据
type templateData struct {
	LastUserMessage string
	MessageCount    int
	Model           string
}

func newTemplateData(req ChatRequest) templateData {
	data := templateData{MessageCount: len(req.Messages), Model: req.Model}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			data.LastUserMessage = req.Messages[i].Content
			break
		}
	}
	return data
}

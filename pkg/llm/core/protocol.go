package core

import (
	"github.com/lwmacct/251215-go-pkg-gigachat/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 协议适配器接口
// ═══════════════════════════════════════════════════════════════════════════

// ProtocolAdapter 协议适配器接口
//
// 每种线上协议实现此接口来定义消息格式转换和响应解析。
//
// 职责边界：
//   - ✅ 负责：角色映射、消息格式转换、错误信封与终止 choice 的识别
//   - ❌ 不负责：HTTP 通信、令牌管理、配置
type ProtocolAdapter interface {
	// ConvertToAPI 将统一的 Message 转换为 API 请求格式
	//
	// 必须保持消息顺序，不得去重或重排。
	// 遇到不被支持的角色立即返回 *llm.UnsupportedRoleError。
	ConvertToAPI(messages []llm.Message) ([]map[string]any, error)

	// ConvertError 提取响应中的错误信封，没有时返回 nil
	ConvertError(apiResp map[string]any) *llm.APIError

	// ConvertFromAPI 从完整响应中选取终止内容
	//
	// found 为 false 表示响应中没有终止内容。
	ConvertFromAPI(apiResp map[string]any) (msg llm.Message, finishReason string, found bool)

	// ConvertUsage 解析 Token 使用量，没有 usage 字段时返回 nil
	ConvertUsage(apiResp map[string]any) *llm.TokenUsage
}

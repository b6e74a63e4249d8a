// Package llm 提供 GigaChat 风格对话补全 API 的公共抽象层
//
// 本包定义了与对话服务交互所需的核心类型，包括：
//   - [Provider]: 统一的调用抽象（同步 + 流式）
//   - [Message]: 对话消息结构
//   - [Event]: 流式事件定义（partial / complete / error）
//   - [Config]: 客户端配置与环境变量探测
//
// # 核心类型
//
// [Provider] 接口定义了服务的调用契约，支持同步和流式两种模式。
//
// [Message] 表示对话中的单条消息。仅 user 与 assistant 两种角色会被发送，
// system 角色会被显式拒绝（[UnsupportedRoleError]），不会被静默映射。
//
// [Response] 的 Terminal 字段标记是否找到了终止内容
// （finish_reason == "stop" 且 role == "assistant" 的 choice）。
//
// # 错误处理
//
// 所有错误都嵌入 [BaseError]，可以通过 IsXxx 辅助函数或 errors.As 匹配：
//   - [ConfigError]: 缺少 API Key 等配置问题
//   - [AuthError]: 令牌请求失败或超时
//   - [APIError]: 对话端点返回错误信封
//   - [UnsupportedRoleError]: 消息角色不被支持
//   - [ParseError]: 流式事件载荷不是合法 JSON
//
// 流式模式通过 [KindOf] 将错误归类为 (kind, message) 交给回调。
//
// # 环境变量
//
// API Key（按优先级）:
//   - GIGACHAT_CREDENTIALS
//   - GIGACHAT_API_KEY
//
// 其他:
//   - GIGACHAT_SCOPE
//   - GIGACHAT_MODEL
//   - GIGACHAT_BASE_URL
//   - GIGACHAT_AUTH_URL
//
// # 包文件组织
//
//   - types.go: Provider 接口、Options、Response
//   - message.go: Role、Message
//   - event.go: Event、EventType
//   - scope.go: Scope 枚举与默认端点
//   - config.go: Config、环境变量探测、YAML 加载
//   - errors.go: 错误分类
package llm

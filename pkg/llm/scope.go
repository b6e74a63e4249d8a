package llm

// Scope OAuth 授权范围
type Scope string

const (
	// ScopePersonal 个人版
	ScopePersonal Scope = "GIGACHAT_API_PERS"

	// ScopeB2B 企业预付费
	ScopeB2B Scope = "GIGACHAT_API_B2B"

	// ScopeCorp 企业后付费
	ScopeCorp Scope = "GIGACHAT_API_CORP"
)

// 默认端点与模型
const (
	DefaultAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	DefaultBaseURL = "https://gigachat.devices.sberbank.ru/api/v1"
	DefaultModel   = "GigaChat"
)

// String 返回字符串表示
func (s Scope) String() string {
	return string(s)
}

// Valid 是否为已知的授权范围
//
// 未知的 scope 仍会原样发送，服务端决定是否接受。
func (s Scope) Valid() bool {
	switch s {
	case ScopePersonal, ScopeB2B, ScopeCorp:
		return true
	default:
		return false
	}
}

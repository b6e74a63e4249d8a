package core

// ═══════════════════════════════════════════════════════════════════════════
// 类型转换辅助函数
// ═══════════════════════════════════════════════════════════════════════════

// GetInt64 将 JSON 解码得到的数字安全转换为 int64
//
// 支持 float64（JSON 数字默认类型）、int、int64，其他类型返回 0。
//
// 示例：
//
//	expiresAt := GetInt64(body["expires_at"]) // 毫秒时间戳
func GetInt64(val any) int64 {
	switch v := val.(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}

// GetString 将 any 安全转换为 string，非字符串返回 ""
func GetString(val any) string {
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

// GetMap 将 any 安全转换为 JSON 对象，失败返回 nil
func GetMap(val any) map[string]any {
	if m, ok := val.(map[string]any); ok {
		return m
	}
	return nil
}

// GetSlice 将 any 安全转换为 JSON 数组，失败返回 nil
func GetSlice(val any) []any {
	if s, ok := val.([]any); ok {
		return s
	}
	return nil
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ═══════════════════════════════════════════════════════════════════════════
// 错误类型
// ═══════════════════════════════════════════════════════════════════════════

// ErrorType 错误类型，同时作为流式回调中的 kind
type ErrorType string

const (
	// ErrTypeConfig 配置错误（缺少 API Key 等）
	ErrTypeConfig ErrorType = "config_error"

	// ErrTypeAuth 令牌请求失败或超时
	ErrTypeAuth ErrorType = "auth_error"

	// ErrTypeAPI 对话端点返回错误信封
	ErrTypeAPI ErrorType = "api_error"

	// ErrTypeUnsupportedRole 消息角色不被支持
	ErrTypeUnsupportedRole ErrorType = "unsupported_role"

	// ErrTypeParse 流式事件载荷解析失败
	ErrTypeParse ErrorType = "parse_error"

	// ErrTypeRequest 请求错误（序列化、构建等）
	ErrTypeRequest ErrorType = "request_error"

	// ErrTypeHTTP HTTP 层错误（网络、超时等）
	ErrTypeHTTP ErrorType = "http_error"

	// ErrTypeResponse 同步响应解析错误
	ErrTypeResponse ErrorType = "response_error"

	// ErrTypeStream 流读取错误
	ErrTypeStream ErrorType = "stream_error"

	// ErrTypeCanceled 调用方取消
	ErrTypeCanceled ErrorType = "canceled"

	// ErrTypeUnknown 未分类错误
	ErrTypeUnknown ErrorType = "unknown_error"
)

// ErrNoTerminalContent 同步响应中没有 stop + assistant 的 choice
//
// 仅在 MissingTerminalError 策略下返回。
var ErrNoTerminalContent = errors.New("no terminal assistant content in response")

// ═══════════════════════════════════════════════════════════════════════════
// 基础错误
// ═══════════════════════════════════════════════════════════════════════════

// BaseError 基础错误实现
type BaseError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *BaseError) Unwrap() error {
	return e.Err
}

// ═══════════════════════════════════════════════════════════════════════════
// 配置错误
// ═══════════════════════════════════════════════════════════════════════════

// ConfigError 配置错误
type ConfigError struct {
	*BaseError
}

// NewConfigError 创建配置错误
func NewConfigError(message string, err error) *ConfigError {
	return &ConfigError{
		BaseError: &BaseError{Type: ErrTypeConfig, Message: message, Err: err},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 认证错误
// ═══════════════════════════════════════════════════════════════════════════

// AuthError 令牌端点返回非 2xx，或请求失败/超时
//
// 传输层失败时 Status 为 0，Body 为空。
type AuthError struct {
	*BaseError

	Status int
	Body   string
}

// NewAuthError 创建认证错误
func NewAuthError(status int, body string, err error) *AuthError {
	msg := fmt.Sprintf("token request failed with status %d", status)
	if status == 0 {
		msg = "token request failed"
	}
	return &AuthError{
		BaseError: &BaseError{Type: ErrTypeAuth, Message: msg, Err: err},
		Status:    status,
		Body:      body,
	}
}

func (e *AuthError) Error() string {
	base := e.BaseError.Error()
	if e.Body != "" {
		return fmt.Sprintf("%s (body: %s)", base, e.Body)
	}
	return base
}

// ═══════════════════════════════════════════════════════════════════════════
// API 错误
// ═══════════════════════════════════════════════════════════════════════════

// APIError 对话端点返回的错误信封 {"error": {"status": ..., "message": ...}}
type APIError struct {
	*BaseError

	StatusCode int
	Response   string
	RequestID  string
}

// NewAPIError 创建 API 错误
//
// message 为空时使用通用描述。
func NewAPIError(statusCode int, message string) *APIError {
	if message == "" {
		message = fmt.Sprintf("API returned error status %d", statusCode)
	}
	return &APIError{
		BaseError:  &BaseError{Type: ErrTypeAPI, Message: message},
		StatusCode: statusCode,
	}
}

// WithResponse 记录原始响应体
func (e *APIError) WithResponse(body string) *APIError {
	e.Response = body
	return e
}

// WithRequestID 设置请求 ID
func (e *APIError) WithRequestID(requestID string) *APIError {
	e.RequestID = requestID
	return e
}

func (e *APIError) Error() string {
	base := fmt.Sprintf("%s (status %d)", e.BaseError.Error(), e.StatusCode)
	if e.RequestID != "" {
		return fmt.Sprintf("%s (request_id: %s)", base, e.RequestID)
	}
	return base
}

// IsRetryable 检查错误是否值得调用方重试
//
// 本库自身从不重试。
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500 && e.StatusCode <= 504
}

// ═══════════════════════════════════════════════════════════════════════════
// 角色错误
// ═══════════════════════════════════════════════════════════════════════════

// UnsupportedRoleError 请求中出现了不被支持的消息角色
type UnsupportedRoleError struct {
	*BaseError

	Role  Role
	Index int
}

// NewUnsupportedRoleError 创建角色错误
func NewUnsupportedRoleError(role Role, index int) *UnsupportedRoleError {
	return &UnsupportedRoleError{
		BaseError: &BaseError{
			Type:    ErrTypeUnsupportedRole,
			Message: fmt.Sprintf("role %q at message %d is not supported", role, index),
		},
		Role:  role,
		Index: index,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 解析错误
// ═══════════════════════════════════════════════════════════════════════════

// ParseError 流式事件载荷不是合法 JSON
type ParseError struct {
	*BaseError

	Payload string
}

// NewParseError 创建解析错误
func NewParseError(payload string, err error) *ParseError {
	return &ParseError{
		BaseError: &BaseError{Type: ErrTypeParse, Message: "malformed stream event payload", Err: err},
		Payload:   payload,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求 / HTTP / 响应 / 流错误
// ═══════════════════════════════════════════════════════════════════════════

// RequestError 请求错误
type RequestError struct {
	*BaseError

	Stage string // "marshal", "build", etc.
}

// NewRequestError 创建请求错误
func NewRequestError(stage string, err error) *RequestError {
	return &RequestError{
		BaseError: &BaseError{
			Type:    ErrTypeRequest,
			Message: fmt.Sprintf("failed to %s request", stage),
			Err:     err,
		},
		Stage: stage,
	}
}

// HTTPError HTTP 层错误
type HTTPError struct {
	*BaseError
}

// NewHTTPError 创建 HTTP 错误
func NewHTTPError(message string, err error) *HTTPError {
	return &HTTPError{
		BaseError: &BaseError{Type: ErrTypeHTTP, Message: message, Err: err},
	}
}

// ResponseError 同步响应解析错误
type ResponseError struct {
	*BaseError

	Field string
}

// NewResponseError 创建响应错误
func NewResponseError(field string, err error) *ResponseError {
	return &ResponseError{
		BaseError: &BaseError{
			Type:    ErrTypeResponse,
			Message: fmt.Sprintf("failed to parse response field '%s'", field),
			Err:     err,
		},
		Field: field,
	}
}

// StreamError 流读取错误
type StreamError struct {
	*BaseError
}

// NewStreamError 创建流式错误
func NewStreamError(message string, err error) *StreamError {
	return &StreamError{
		BaseError: &BaseError{Type: ErrTypeStream, Message: message, Err: err},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 错误匹配函数（支持 errors.Is/As）
// ═══════════════════════════════════════════════════════════════════════════

// IsConfigError 检查是否为配置错误
func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}

// IsAuthError 检查是否为认证错误
func IsAuthError(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

// IsAPIError 检查是否为 API 错误
func IsAPIError(err error) bool {
	var e *APIError
	return errors.As(err, &e)
}

// IsUnsupportedRoleError 检查是否为角色错误
func IsUnsupportedRoleError(err error) bool {
	var e *UnsupportedRoleError
	return errors.As(err, &e)
}

// IsParseError 检查是否为解析错误
func IsParseError(err error) bool {
	var e *ParseError
	return errors.As(err, &e)
}

// IsRequestError 检查是否为请求错误
func IsRequestError(err error) bool {
	var e *RequestError
	return errors.As(err, &e)
}

// IsHTTPError 检查是否为 HTTP 错误
func IsHTTPError(err error) bool {
	var e *HTTPError
	return errors.As(err, &e)
}

// IsStreamError 检查是否为流式错误
func IsStreamError(err error) bool {
	var e *StreamError
	return errors.As(err, &e)
}

// GetAPIError 提取 APIError（如果存在）
func GetAPIError(err error) (*APIError, bool) {
	var e *APIError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetStatusCode 提取状态码（API 错误或认证错误）
func GetStatusCode(err error) int {
	if e, ok := GetAPIError(err); ok {
		return e.StatusCode
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

// KindOf 将错误归类为流式回调使用的 kind
//
// 先匹配核心分类，再匹配传输层分类；context.Canceled 优先于一切。
// 传输层超时（http.Client.Timeout）同样满足 context.DeadlineExceeded，
// 因此只有未被分类包装的 DeadlineExceeded 才视为调用方取消。
func KindOf(err error) ErrorType {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ErrTypeCanceled
	case IsUnsupportedRoleError(err):
		return ErrTypeUnsupportedRole
	case IsParseError(err):
		return ErrTypeParse
	case IsAuthError(err):
		return ErrTypeAuth
	case IsAPIError(err):
		return ErrTypeAPI
	case IsConfigError(err):
		return ErrTypeConfig
	case IsRequestError(err):
		return ErrTypeRequest
	case IsHTTPError(err):
		return ErrTypeHTTP
	case IsStreamError(err):
		return ErrTypeStream
	}
	var re *ResponseError
	if errors.As(err, &re) {
		return ErrTypeResponse
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTypeCanceled
	}
	return ErrTypeUnknown
}

// MessageOf 返回适合展示给调用方的错误消息
//
// API 错误返回信封中的 message，其余返回 err.Error()。
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := GetAPIError(err); ok {
		return e.Message
	}
	return err.Error()
}

package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// APIError 表示 provider 返回的非 2xx HTTP 响应。
//
// 除状态码外还携带分类所需的字段：provider 错误码/类型、请求追踪 ID、
// 限流场景的 Retry-After。
type APIError struct {
	Provider   Provider
	StatusCode int

	// Code provider 特定的错误码
	Code string

	// Type provider 特定的错误类型
	Type string

	// Message 人类可读的错误消息
	Message string

	// RequestID 请求追踪 ID
	RequestID string

	// RetryAfter 服务端建议的重试等待时间，0 表示未提供
	RetryAfter time.Duration

	// Raw 原始响应体
	Raw []byte

	// Cause 底层传输错误
	Cause error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}

	s := fmt.Sprintf("%s: http %d: %s", e.Provider, e.StatusCode, msg)
	if code := strings.TrimSpace(e.Code); code != "" {
		s += " (" + code + ")"
	}
	if id := strings.TrimSpace(e.RequestID); id != "" {
		s += " request_id=" + id
	}
	return s
}

func (e *APIError) Unwrap() error { return e.Cause }

// AsAPIError 判断错误链中是否存在 APIError
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsRateLimit 判断是否为限流错误
func IsRateLimit(err error) bool {
	ae, ok := AsAPIError(err)
	if !ok {
		return false
	}
	if ae.StatusCode == http.StatusTooManyRequests {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(ae.Code)) {
	case "rate_limit", "rate_limit_exceeded":
		return true
	}
	return false
}

// IsAuth 判断是否为认证/授权错误
func IsAuth(err error) bool {
	ae, ok := AsAPIError(err)
	if !ok {
		return false
	}
	return ae.StatusCode == http.StatusUnauthorized || ae.StatusCode == http.StatusForbidden
}

// IsTemporary 判断是否为临时错误，调用方可在退避后重试
func IsTemporary(err error) bool {
	ae, ok := AsAPIError(err)
	if !ok {
		return false
	}
	switch ae.StatusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return ae.RetryAfter > 0
}

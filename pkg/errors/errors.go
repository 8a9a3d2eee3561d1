// Package errors 定义统一错误码
package errors

import (
	"fmt"
	"net/http"
)

// Code 错误码
type Code string

// 错误码定义
const (
	CodeOK              Code = "OK"
	CodeUnknown         Code = "UNKNOWN"
	CodeInvalidRequest  Code = "INVALID_REQUEST"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInternal        Code = "INTERNAL"

	// 订单 (4xxx)
	CodeInvalidOrderParameters Code = "INVALID_ORDER_PARAMETERS"
	CodeDuplicateOrderID       Code = "DUPLICATE_ORDER_ID"
	CodeOrderNotFound          Code = "ORDER_NOT_FOUND"
	CodeInternalInconsistency  Code = "INTERNAL_INCONSISTENCY"
)

// Error 业务错误
type Error struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// New 创建错误
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf 创建格式化错误
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// NewWithDefault 创建错误，message 为空时使用默认文案
func NewWithDefault(code Code, message string) *Error {
	if message == "" {
		message = defaultMessage(code)
	}
	return New(code, message)
}

// WithRequestID 返回携带请求 ID 的副本，不修改原错误
// （预定义错误是共享的，不能就地变更）
func (e *Error) WithRequestID(requestID string) *Error {
	out := *e
	out.RequestID = requestID
	return &out
}

// HTTPStatus 返回对应的 HTTP 状态码
func (e *Error) HTTPStatus() int {
	return httpStatus(e.Code)
}

// CodeOf 提取错误码，非业务错误返回 UNKNOWN
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return CodeUnknown
}

func defaultMessage(code Code) string {
	switch code {
	case CodeInvalidOrderParameters:
		return "invalid order parameters"
	case CodeDuplicateOrderID:
		return "customer order id already in use"
	case CodeOrderNotFound:
		return "order not found"
	case CodeNotFound:
		return "not found"
	case CodeUnauthenticated:
		return "unauthenticated"
	case CodeInvalidRequest:
		return "invalid request"
	case CodeInternalInconsistency:
		return "internal inconsistency"
	default:
		return "internal error"
	}
}

// httpStatus 错误码对应的 HTTP 状态码
func httpStatus(code Code) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidRequest, CodeInvalidOrderParameters:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeNotFound, CodeOrderNotFound:
		return http.StatusNotFound
	case CodeDuplicateOrderID:
		return http.StatusConflict
	case CodeInternal, CodeInternalInconsistency, CodeUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrDuplicateOrderID = New(CodeDuplicateOrderID, "customer order id already in use")
	ErrOrderNotFound    = New(CodeOrderNotFound, "order not found")
)

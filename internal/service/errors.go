package service

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidCredentials 登录失败统一错误：
	// 「用户不存在」与「密码错误」对调用方不可区分，防止用户名枚举
	ErrInvalidCredentials = errors.New("用户名、账号或密码错误")

	// ErrAuthenticationRequired 无会话或会话无效
	ErrAuthenticationRequired = errors.New("需要登录")

	// ErrForbidden 会话有效但角色无权执行该操作
	ErrForbidden = errors.New("无权执行该操作")

	// 付款生命周期前置条件错误
	ErrNotVerified      = errors.New("付款未审核，不能提交")
	ErrAlreadySubmitted = errors.New("付款已提交，记录已冻结")
	ErrIncompleteRecord = errors.New("收款账号或 SWIFT BIC 为空，不能审核")
)

// ValidationError 字段级校验错误，key 为字段名
// 只暴露可供调用方修正输入的信息，不含内部细节
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("参数校验失败: %v", keys)
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

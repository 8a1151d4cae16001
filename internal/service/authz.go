package service

import (
	"swiftpay/internal/model"
)

// Operation 授权网关识别的操作
type Operation string

const (
	OpRegister      Operation = "account.register"
	OpCreateStaff   Operation = "account.create_staff"
	OpCreatePayment Operation = "payment.create"
	OpListOwn       Operation = "payment.list_own"
	OpListForReview Operation = "payment.list_review"
	OpVerifyPayment Operation = "payment.verify"
	OpSubmitPayment Operation = "payment.submit"
)

// 策略表：操作 -> 允许的角色集合
// 角色是穷举的变体（客户/员工），新增操作必须在这里登记，
// 而不是在各调用点散落 if 判断
var operationPolicy = map[Operation]map[model.Role]bool{
	OpCreatePayment: {model.RoleCustomer: true, model.RoleStaff: true},
	OpListOwn:       {model.RoleCustomer: true, model.RoleStaff: true},
	OpListForReview: {model.RoleStaff: true},
	OpVerifyPayment: {model.RoleStaff: true},
	OpSubmitPayment: {model.RoleStaff: true},
	OpCreateStaff:   {model.RoleStaff: true},
	// OpRegister 只允许匿名调用，见 Authorize
}

// Authorize 授权网关
//
// 无会话 -> ErrAuthenticationRequired；有会话但角色不符 -> ErrForbidden。
// 除这个二元信号外不向未授权调用方泄露任何资源信息。
func Authorize(account *model.Account, op Operation) error {
	if op == OpRegister {
		// 自助注册是匿名操作，已登录账户应走员工开户通道
		if account != nil {
			return ErrForbidden
		}
		return nil
	}

	if account == nil {
		return ErrAuthenticationRequired
	}

	allowed, known := operationPolicy[op]
	if !known || !allowed[account.Role()] {
		return ErrForbidden
	}
	return nil
}

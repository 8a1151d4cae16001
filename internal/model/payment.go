package model

import (
	"time"
)

const (
	PaymentStatusPending   = "PENDING_VERIFICATION"
	PaymentStatusVerified  = "VERIFIED"
	PaymentStatusSubmitted = "SUBMITTED_TO_SWIFT"

	// PaymentStatusLegacyPending 历史数据中的旧状态值，
	// 查询待审核列表时与 PENDING_VERIFICATION 等价（写入时一律使用新值）
	PaymentStatusLegacyPending = "PENDING"
)

// ValidStatusTransitions 付款状态机：严格线性推进，不允许回退或跳级
//
//	PENDING_VERIFICATION -> VERIFIED -> SUBMITTED_TO_SWIFT
//
// VERIFIED -> VERIFIED 允许重复审核（结果不变），SUBMITTED_TO_SWIFT 为终态
var ValidStatusTransitions = map[string][]string{
	PaymentStatusPending:       {PaymentStatusVerified},
	PaymentStatusLegacyPending: {PaymentStatusVerified},
	PaymentStatusVerified:      {PaymentStatusVerified, PaymentStatusSubmitted},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Payment 跨境付款请求表
//
// 【不变量】
// 1. submitted_to_swift=1 蕴含 is_verified=1
// 2. verified_by 非空 当且仅当 is_verified=1
// 3. 提交后整行冻结，任何字段不再变更
// 4. 金额只存整数最小货币单位（分），绝不使用浮点
type Payment struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"-"`
	PaymentNo        string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_no"` // 对外付款单号
	RequestID        string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"` // 幂等键，客户端生成
	OwnerID          int64      `gorm:"index;not null" json:"owner_id"`                          // 发起客户账户ID
	AmountCents      int64      `gorm:"not null" json:"amount_cents"`                            // 金额（最小货币单位）
	Currency         string     `gorm:"type:varchar(3);not null" json:"currency"`
	PayeeAccount     string     `gorm:"type:varchar(32);not null" json:"payee_account"` // 收款账号
	SwiftBic         string     `gorm:"type:varchar(11);not null" json:"swift_bic"`     // ISO 9362
	Status           string     `gorm:"type:varchar(32);index;not null" json:"status"`
	IsVerified       bool       `gorm:"not null;default:false" json:"is_verified"`
	VerifiedBy       *int64     `json:"verified_by"` // 审核员工账户ID，设置一次
	VerifiedAt       *time.Time `json:"verified_at"`
	SubmittedToSwift bool       `gorm:"column:submitted_to_swift;not null;default:false" json:"submitted_to_swift"`
	SubmittedAt      *time.Time `json:"submitted_at"`
	RemindedAt       *time.Time `json:"-"` // 审核超时提醒已发出的时间
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"-"`
}

func (Payment) TableName() string {
	return "payment"
}

// EffectiveStatus 读取侧的状态兜底：历史行的 NULL/空串按旧版 PENDING 处理
// 状态机判断一律走这里，不直接读 Status 字段
func (p *Payment) EffectiveStatus() string {
	if p.Status == "" {
		return PaymentStatusLegacyPending
	}
	return p.Status
}

// PaymentWithOwner 员工审核列表行：付款记录附带客户姓名
type PaymentWithOwner struct {
	Payment
	OwnerName string `json:"owner_name"`
}

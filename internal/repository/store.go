package repository

import (
	"context"
	"time"

	"swiftpay/internal/model"

	"gorm.io/gorm"
)

// 存储接口
// service 层只依赖接口，单元测试用桩实现替换，
// 生产环境由下面的 gorm/MySQL 实现提供

type AccountStore interface {
	// Create 创建账户，用户名冲突返回 ErrUsernameTaken
	Create(ctx context.Context, tx *gorm.DB, account *model.Account) error
	GetByID(ctx context.Context, id int64) (*model.Account, error)
	// GetByUsernameAndAccountNumber 用户名与银行账号必须命中同一条记录，
	// 未命中返回 (nil, nil)
	GetByUsernameAndAccountNumber(ctx context.Context, username, accountNumber string) (*model.Account, error)
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type PaymentStore interface {
	// Create 创建付款，幂等键冲突返回 ErrDuplicateRequest
	Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error
	GetByPaymentNo(ctx context.Context, paymentNo string) (*model.Payment, error)
	// GetByRequestID 按幂等键查询，未命中返回 (nil, nil)
	GetByRequestID(ctx context.Context, requestID string) (*model.Payment, error)
	// MarkVerified CAS 更新：仅当未提交时生效，否则返回 ErrStateConflict
	MarkVerified(ctx context.Context, tx *gorm.DB, paymentNo string, verifiedBy int64, verifiedAt time.Time) error
	// MarkSubmitted CAS 更新：仅当已审核且未提交时生效，否则返回 ErrStateConflict
	MarkSubmitted(ctx context.Context, tx *gorm.DB, paymentNo string, submittedAt time.Time) error
	// ListByOwner 客户自己的付款，按创建时间倒序
	ListByOwner(ctx context.Context, ownerID int64) ([]*model.Payment, error)
	// ListByStatus 员工审核列表，按创建时间正序并带客户姓名；
	// status 为空串时返回全部
	ListByStatus(ctx context.Context, status string) ([]*model.PaymentWithOwner, error)
	// GetPendingForReminder 超过 before 仍未审核且未提醒过的付款
	GetPendingForReminder(ctx context.Context, before time.Time, limit int) ([]*model.Payment, error)
	MarkReminded(ctx context.Context, tx *gorm.DB, paymentNo string, remindedAt time.Time) error
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type OutboxStore interface {
	Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}

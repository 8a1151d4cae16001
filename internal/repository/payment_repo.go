package repository

import (
	"context"
	"errors"
	"time"

	"swiftpay/internal/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrPaymentNotFound  = errors.New("付款单不存在")
	ErrDuplicateRequest = errors.New("重复的幂等键")
	ErrStateConflict    = errors.New("付款状态不满足更新条件")
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(payment).Error
	if err != nil {
		// request_id 唯一索引冲突：并发重复提交，由胜者的记录兜底
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return ErrDuplicateRequest
		}
		return err
	}
	return nil
}

func (r *PaymentRepository) GetByPaymentNo(ctx context.Context, paymentNo string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("payment_no = ?", paymentNo).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) GetByRequestID(ctx context.Context, requestID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// MarkVerified 审核通过
//
// 【关键点】WHERE 条件带 submitted_to_swift = 0，
// 与并发提交竞争时只有一方生效，RowsAffected = 0 说明已被提交冻结
func (r *PaymentRepository) MarkVerified(ctx context.Context, tx *gorm.DB, paymentNo string, verifiedBy int64, verifiedAt time.Time) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("payment_no = ? AND submitted_to_swift = ?", paymentNo, false).
		Updates(map[string]interface{}{
			"status":      model.PaymentStatusVerified,
			"is_verified": true,
			"verified_by": verifiedBy,
			"verified_at": verifiedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// MarkSubmitted 提交 SWIFT（本地终态翻转）
// WHERE 条件同时校验已审核与未提交，重复提交不会二次生效
func (r *PaymentRepository) MarkSubmitted(ctx context.Context, tx *gorm.DB, paymentNo string, submittedAt time.Time) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("payment_no = ? AND status = ? AND submitted_to_swift = ?",
			paymentNo, model.PaymentStatusVerified, false).
		Updates(map[string]interface{}{
			"status":             model.PaymentStatusSubmitted,
			"submitted_to_swift": true,
			"submitted_at":       submittedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

func (r *PaymentRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

// ListByStatus 员工审核列表：最早创建的排在最前，附带客户姓名
//
// 待审核状态兼容历史数据：旧值 PENDING、NULL、空串都视为待审核
// （写入侧统一使用 PENDING_VERIFICATION，这里只是读取侧的兜底）
func (r *PaymentRepository) ListByStatus(ctx context.Context, status string) ([]*model.PaymentWithOwner, error) {
	var rows []*model.PaymentWithOwner

	query := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Select("payment.*, account.full_name AS owner_name").
		Joins("JOIN account ON account.id = payment.owner_id")

	switch status {
	case "":
		// 全部
	case model.PaymentStatusPending:
		query = query.Where(
			"payment.status IN (?, ?) OR payment.status IS NULL OR payment.status = ''",
			model.PaymentStatusPending, model.PaymentStatusLegacyPending,
		)
	default:
		query = query.Where("payment.status = ?", status)
	}

	err := query.Order("payment.created_at ASC").Find(&rows).Error
	return rows, err
}

func (r *PaymentRepository) GetPendingForReminder(ctx context.Context, before time.Time, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("(status IN (?, ?) OR status IS NULL OR status = '') AND created_at < ? AND reminded_at IS NULL",
			model.PaymentStatusPending, model.PaymentStatusLegacyPending, before).
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) MarkReminded(ctx context.Context, tx *gorm.DB, paymentNo string, remindedAt time.Time) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("payment_no = ? AND reminded_at IS NULL", paymentNo).
		Update("reminded_at", remindedAt).Error
}

func (r *PaymentRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

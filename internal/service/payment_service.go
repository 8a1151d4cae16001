package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"swiftpay/internal/config"
	"swiftpay/internal/infrastructure/lock"
	"swiftpay/internal/model"
	"swiftpay/internal/repository"
	"swiftpay/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Lock 付款创建锁（生产实现见 infrastructure/lock）
type Lock interface {
	Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error
	Unlock(ctx context.Context) error
}

type PaymentService struct {
	payments repository.PaymentStore
	outbox   repository.OutboxStore
	cfg      *config.Config
	newLock  func(ownerID int64, requestID string) Lock
}

func NewPaymentService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *PaymentService {
	factory := lock.NewFactory(redisClient)
	return &PaymentService{
		payments: repository.NewPaymentRepository(db),
		outbox:   repository.NewOutboxRepository(db),
		cfg:      cfg,
		newLock: func(ownerID int64, requestID string) Lock {
			return factory.NewCreateLock(ownerID, requestID)
		},
	}
}

type CreatePaymentRequest struct {
	RequestID    string `json:"request_id" binding:"required"`    // 幂等键，客户端生成
	Amount       string `json:"amount" binding:"required"`        // 十进制字符串，如 "100.00"
	Currency     string `json:"currency" binding:"required"`      // 允许列表见配置
	PayeeAccount string `json:"payee_account" binding:"required"` // 收款账号
	SwiftBic     string `json:"swift_bic" binding:"required"`
}

func (s *PaymentService) validateCreate(req *CreatePaymentRequest) (int64, string, *ValidationError) {
	fields := map[string]string{}

	if strings.TrimSpace(req.RequestID) == "" {
		// 幂等键是强制的，不是可选的缓存优化
		fields["request_id"] = "幂等键不能为空"
	} else if len(req.RequestID) > 64 {
		fields["request_id"] = "幂等键不能超过64字符"
	}

	cents, err := ParseAmountCents(req.Amount)
	if err != nil {
		fields["amount"] = "金额须为正数且最多两位小数"
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	currencyOK := false
	for _, c := range s.cfg.Business.Currencies {
		if currency == c {
			currencyOK = true
			break
		}
	}
	if !currencyOK {
		fields["currency"] = fmt.Sprintf("币种须为 %s 之一", strings.Join(s.cfg.Business.Currencies, "/"))
	}

	if !payeeAccountRe.MatchString(req.PayeeAccount) {
		fields["payee_account"] = "收款账号须为6-20位数字"
	}

	bic := strings.ToUpper(strings.TrimSpace(req.SwiftBic))
	if !swiftBicRe.MatchString(bic) {
		fields["swift_bic"] = "SWIFT BIC 格式不合法"
	}

	if len(fields) > 0 {
		return 0, "", &ValidationError{Fields: fields}
	}
	return cents, currency, nil
}

// claimByRequestID 按幂等键取已存在的付款
//
// 幂等键只对创建它的账户有效：别的账户重放同一个键拿不到
// 原单的任何字段（金额、收款账号、BIC 都不能跨账户泄露），
// 只会得到一个键冲突的字段错误。
func (s *PaymentService) claimByRequestID(ctx context.Context, ownerID int64, requestID string) (*model.Payment, error) {
	existing, err := s.payments.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("查询付款失败: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	if existing.OwnerID != ownerID {
		return nil, newValidationError("request_id", "幂等键已被占用")
	}
	return existing, nil
}

// Create 创建付款（幂等）
//
// 【关键点】
//  1. 幂等性：相同 request_id 无论提交多少次都只落一行，
//     后续调用原样返回首次创建的结果
//  2. 并发安全：锁收窄「查询-插入」窗口，唯一索引兜底，
//     撞索引的败者读取胜者的记录返回
//  3. 审计：payment.created 事件与插入同事务写入 outbox
func (s *PaymentService) Create(ctx context.Context, ownerID int64, req *CreatePaymentRequest) (*model.Payment, error) {
	cents, currency, vErr := s.validateCreate(req)
	if vErr != nil {
		return nil, vErr
	}

	// 幂等校验
	existing, err := s.claimByRequestID(ctx, ownerID, req.RequestID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	createLock := s.newLock(ownerID, req.RequestID)
	if err := createLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer createLock.Unlock(ctx)

	// 获取锁后再次检查幂等
	existing, err = s.claimByRequestID(ctx, ownerID, req.RequestID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	payment := &model.Payment{
		PaymentNo:    idgen.GeneratePaymentNo(),
		RequestID:    req.RequestID,
		OwnerID:      ownerID,
		AmountCents:  cents,
		Currency:     currency,
		PayeeAccount: req.PayeeAccount,
		SwiftBic:     strings.ToUpper(strings.TrimSpace(req.SwiftBic)),
		Status:       model.PaymentStatusPending,
	}

	err = s.payments.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.payments.Create(ctx, tx, payment); err != nil {
			return err
		}
		return s.writeEvent(ctx, tx, payment.PaymentNo, map[string]interface{}{
			"event":        model.EventPaymentCreated,
			"payment_no":   payment.PaymentNo,
			"owner_id":     payment.OwnerID,
			"amount_cents": payment.AmountCents,
			"currency":     payment.Currency,
			"status":       payment.Status,
		})
	})
	if err != nil {
		// 唯一索引冲突：并发的另一个请求赢了，返回它的结果
		if errors.Is(err, repository.ErrDuplicateRequest) {
			winner, getErr := s.claimByRequestID(ctx, ownerID, req.RequestID)
			if getErr != nil {
				return nil, getErr
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, err
	}

	log.Printf("付款已创建: paymentNo=%s, ownerID=%d, amountCents=%d %s",
		payment.PaymentNo, ownerID, cents, currency)
	return payment, nil
}

// Verify 员工审核付款
//
// 已提交的记录冻结，返回 ErrAlreadySubmitted；
// 收款信息不完整拒绝审核；
// 重复审核已审核未提交的付款允许，重放得到同样的终局状态。
func (s *PaymentService) Verify(ctx context.Context, paymentNo string, actingAccountID int64) (*model.Payment, error) {
	payment, err := s.payments.GetByPaymentNo(ctx, paymentNo)
	if err != nil {
		return nil, err
	}

	// 状态机前置判断：只有待审核/已审核未提交的付款能进入审核
	if payment.SubmittedToSwift ||
		!model.CanTransitionTo(payment.EffectiveStatus(), model.PaymentStatusVerified) {
		return nil, ErrAlreadySubmitted
	}
	if payment.PayeeAccount == "" || payment.SwiftBic == "" {
		return nil, ErrIncompleteRecord
	}

	verifiedAt := time.Now()
	err = s.payments.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.payments.MarkVerified(ctx, tx, paymentNo, actingAccountID, verifiedAt); err != nil {
			return err
		}
		return s.writeEvent(ctx, tx, paymentNo, map[string]interface{}{
			"event":       model.EventPaymentVerified,
			"payment_no":  paymentNo,
			"verified_by": actingAccountID,
			"verified_at": verifiedAt.Format(time.RFC3339),
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			// CAS 没有命中：审核期间被并发提交了
			return nil, ErrAlreadySubmitted
		}
		return nil, err
	}

	log.Printf("付款已审核: paymentNo=%s, verifiedBy=%d", paymentNo, actingAccountID)
	return s.payments.GetByPaymentNo(ctx, paymentNo)
}

// Submit 员工提交付款（本地终态，不做真实 SWIFT 网络调用）
//
// 前置条件：已审核且未提交。重试已成功的提交不会二次生效，
// CAS 败者按当前行状态得到 ErrAlreadySubmitted 或 ErrNotVerified。
func (s *PaymentService) Submit(ctx context.Context, paymentNo string, actingAccountID int64) (*model.Payment, error) {
	payment, err := s.payments.GetByPaymentNo(ctx, paymentNo)
	if err != nil {
		return nil, err
	}

	if payment.SubmittedToSwift {
		return nil, ErrAlreadySubmitted
	}
	// is_verified 标志与状态列必须都指向 VERIFIED，
	// 行数据不一致时以状态机为准，拒绝提交
	if !payment.IsVerified ||
		!model.CanTransitionTo(payment.EffectiveStatus(), model.PaymentStatusSubmitted) {
		return nil, ErrNotVerified
	}

	submittedAt := time.Now()
	err = s.payments.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.payments.MarkSubmitted(ctx, tx, paymentNo, submittedAt); err != nil {
			return err
		}
		return s.writeEvent(ctx, tx, paymentNo, map[string]interface{}{
			"event":        model.EventPaymentSubmitted,
			"payment_no":   paymentNo,
			"submitted_by": actingAccountID,
			"submitted_at": submittedAt.Format(time.RFC3339),
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			current, getErr := s.payments.GetByPaymentNo(ctx, paymentNo)
			if getErr != nil {
				return nil, getErr
			}
			if current.SubmittedToSwift {
				return nil, ErrAlreadySubmitted
			}
			return nil, ErrNotVerified
		}
		return nil, err
	}

	log.Printf("付款已提交 SWIFT: paymentNo=%s, submittedBy=%d", paymentNo, actingAccountID)
	return s.payments.GetByPaymentNo(ctx, paymentNo)
}

// ListOwn 客户查询自己的付款，最新的在前
// 归属校验在仓储查询条件里完成，跨账户读取不可能发生
func (s *PaymentService) ListOwn(ctx context.Context, ownerID int64) ([]*model.Payment, error) {
	return s.payments.ListByOwner(ctx, ownerID)
}

// 员工审核列表可用的状态筛选值
const StatusFilterAll = "All"

// ListForReview 员工按状态查询付款，最早创建的在前
// status 必须是三个真实状态或 "All"，其余值一律报参数错误
func (s *PaymentService) ListForReview(ctx context.Context, status string) ([]*model.PaymentWithOwner, error) {
	switch status {
	case StatusFilterAll:
		return s.payments.ListByStatus(ctx, "")
	case model.PaymentStatusPending, model.PaymentStatusVerified, model.PaymentStatusSubmitted:
		return s.payments.ListByStatus(ctx, status)
	default:
		return nil, newValidationError("status", "状态须为 PENDING_VERIFICATION/VERIFIED/SUBMITTED_TO_SWIFT/All 之一")
	}
}

func (s *PaymentService) writeEvent(ctx context.Context, tx *gorm.DB, key string, payload map[string]interface{}) error {
	body, _ := json.Marshal(payload)
	return s.outbox.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: key,
		Topic:      s.cfg.Kafka.Topic.PaymentEvents,
		Payload:    string(body),
		Status:     model.OutboxStatusPending,
	})
}

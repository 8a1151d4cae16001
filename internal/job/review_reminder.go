package job

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"swiftpay/internal/config"
	"swiftpay/internal/model"
	"swiftpay/internal/repository"

	"gorm.io/gorm"
)

// ReviewReminderJob 审核超时提醒任务
// 付款停留在待审核状态超过阈值时写一条提醒事件进 outbox，
// 只提醒一次，不改变付款状态
type ReviewReminderJob struct {
	db          *gorm.DB
	paymentRepo *repository.PaymentRepository
	outboxRepo  *repository.OutboxRepository
	cfg         *config.Config
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
}

func NewReviewReminderJob(db *gorm.DB, cfg *config.Config) *ReviewReminderJob {
	return &ReviewReminderJob{
		db:          db,
		paymentRepo: repository.NewPaymentRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		interval:    time.Minute,
		batchSize:   100,
	}
}

func (j *ReviewReminderJob) Start(ctx context.Context) {
	log.Println("[ReviewReminder] 审核超时提醒任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ReviewReminder] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[ReviewReminder] 任务停止")
			return
		case <-ticker.C:
			j.remindStalePayments(ctx)
		}
	}
}

func (j *ReviewReminderJob) Stop() {
	close(j.stopCh)
}

func (j *ReviewReminderJob) remindStalePayments(ctx context.Context) {
	before := time.Now().Add(-time.Duration(j.cfg.Business.ReviewReminderHours) * time.Hour)

	payments, err := j.paymentRepo.GetPendingForReminder(ctx, before, j.batchSize)
	if err != nil {
		log.Printf("[ReviewReminder] 查询超时付款失败: %v", err)
		return
	}

	if len(payments) == 0 {
		return
	}

	log.Printf("[ReviewReminder] 发现 %d 笔超时未审核付款", len(payments))

	for _, payment := range payments {
		j.remind(ctx, payment)
	}
}

func (j *ReviewReminderJob) remind(ctx context.Context, payment *model.Payment) {
	now := time.Now()
	payload, _ := json.Marshal(map[string]interface{}{
		"event":        model.EventPaymentReviewReminder,
		"payment_no":   payment.PaymentNo,
		"owner_id":     payment.OwnerID,
		"amount_cents": payment.AmountCents,
		"currency":     payment.Currency,
		"created_at":   payment.CreatedAt.Format(time.RFC3339),
	})

	// 提醒标记与事件同事务，保证不重复提醒
	err := j.paymentRepo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := j.paymentRepo.MarkReminded(ctx, tx, payment.PaymentNo, now); err != nil {
			return err
		}
		return j.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
			MessageKey: payment.PaymentNo,
			Topic:      j.cfg.Kafka.Topic.PaymentEvents,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		})
	})
	if err != nil {
		log.Printf("[ReviewReminder] 写提醒事件失败: paymentNo=%s, err=%v", payment.PaymentNo, err)
		return
	}

	log.Printf("[ReviewReminder] 已发出审核提醒: paymentNo=%s", payment.PaymentNo)
}

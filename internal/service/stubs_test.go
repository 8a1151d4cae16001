package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"swiftpay/internal/config"
	"swiftpay/internal/model"
	"swiftpay/internal/repository"
	"swiftpay/internal/session"

	"gorm.io/gorm"
)

// 本文件是 service 层单元测试共用的内存桩实现，
// 接口签名与 repository / session 的生产实现一致

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Kafka.Topic.PaymentEvents = "test.payment.events"
	cfg.Kafka.Topic.AccountEvents = "test.account.events"
	cfg.Security.BcryptCost = 4 // MinCost，测试里不为安全性买单
	cfg.Business.Currencies = []string{"ZAR", "USD", "EUR", "GBP"}
	return cfg
}

// ---- session.Store ----

type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	csrf     map[string]string
}

func newMemorySessions() *memorySessions {
	return &memorySessions{
		sessions: map[string]*session.Session{},
		csrf:     map[string]string{},
	}
}

func (m *memorySessions) Save(ctx context.Context, token string, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = s
	return nil
}

func (m *memorySessions) Get(ctx context.Context, token string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[token], nil
}

func (m *memorySessions) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *memorySessions) SaveCSRF(ctx context.Context, bindingID, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.csrf[bindingID] = secret
	return nil
}

func (m *memorySessions) GetCSRF(ctx context.Context, bindingID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.csrf[bindingID], nil
}

func (m *memorySessions) DeleteCSRF(ctx context.Context, bindingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.csrf, bindingID)
	return nil
}

// ---- repository.AccountStore ----

type accountStoreStub struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[string]*model.Account // username -> account
}

func newAccountStoreStub() *accountStoreStub {
	return &accountStoreStub{nextID: 1, accounts: map[string]*model.Account{}}
}

func (s *accountStoreStub) Create(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.Username]; exists {
		return repository.ErrUsernameTaken
	}
	account.ID = s.nextID
	s.nextID++
	clone := *account
	s.accounts[account.Username] = &clone
	return nil
}

func (s *accountStoreStub) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			clone := *a
			return &clone, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (s *accountStoreStub) GetByUsernameAndAccountNumber(ctx context.Context, username, accountNumber string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok || a.AccountNumber != accountNumber {
		return nil, nil
	}
	clone := *a
	return &clone, nil
}

func (s *accountStoreStub) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

// ---- repository.OutboxStore ----

type outboxStoreStub struct {
	mu       sync.Mutex
	messages []*model.OutboxMessage
}

func (s *outboxStoreStub) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *outboxStoreStub) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	return nil, nil
}

func (s *outboxStoreStub) UpdateStatus(ctx context.Context, id int64, status string) error {
	return nil
}

func (s *outboxStoreStub) IncrementRetryCount(ctx context.Context, id int64) error {
	return nil
}

func (s *outboxStoreStub) MarkAsFailed(ctx context.Context, id int64) error {
	return nil
}

// ---- repository.PaymentStore ----

// paymentStoreStub 底层是切片而不是 map，
// 列表查询按 created_at 排序，与生产仓储的 ORDER BY 语义一致
type paymentStoreStub struct {
	mu       sync.Mutex
	payments []*model.Payment
}

func newPaymentStoreStub() *paymentStoreStub {
	return &paymentStoreStub{}
}

// seed 直接注入一条已有记录（模拟历史数据），绕过服务层校验
func (s *paymentStoreStub) seed(payment *model.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *payment
	s.payments = append(s.payments, &clone)
}

func (s *paymentStoreStub) find(paymentNo string) *model.Payment {
	for _, p := range s.payments {
		if p.PaymentNo == paymentNo {
			return p
		}
	}
	return nil
}

func (s *paymentStoreStub) Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.RequestID == payment.RequestID {
			return repository.ErrDuplicateRequest
		}
	}
	clone := *payment
	clone.CreatedAt = time.Now()
	s.payments = append(s.payments, &clone)
	return nil
}

func (s *paymentStoreStub) GetByPaymentNo(ctx context.Context, paymentNo string) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.find(paymentNo)
	if p == nil {
		return nil, repository.ErrPaymentNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *paymentStoreStub) GetByRequestID(ctx context.Context, requestID string) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.RequestID == requestID {
			clone := *p
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *paymentStoreStub) MarkVerified(ctx context.Context, tx *gorm.DB, paymentNo string, verifiedBy int64, verifiedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.find(paymentNo)
	if p == nil || p.SubmittedToSwift {
		return repository.ErrStateConflict
	}
	p.Status = model.PaymentStatusVerified
	p.IsVerified = true
	p.VerifiedBy = &verifiedBy
	p.VerifiedAt = &verifiedAt
	return nil
}

func (s *paymentStoreStub) MarkSubmitted(ctx context.Context, tx *gorm.DB, paymentNo string, submittedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.find(paymentNo)
	if p == nil || p.Status != model.PaymentStatusVerified || p.SubmittedToSwift {
		return repository.ErrStateConflict
	}
	p.Status = model.PaymentStatusSubmitted
	p.SubmittedToSwift = true
	p.SubmittedAt = &submittedAt
	return nil
}

func (s *paymentStoreStub) ListByOwner(ctx context.Context, ownerID int64) ([]*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Payment
	for _, p := range s.payments {
		if p.OwnerID == ownerID {
			clone := *p
			out = append(out, &clone)
		}
	}
	// 最新的在前
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *paymentStoreStub) ListByStatus(ctx context.Context, status string) ([]*model.PaymentWithOwner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.PaymentWithOwner
	for _, p := range s.payments {
		if status == "" || p.Status == status ||
			(status == model.PaymentStatusPending && (p.Status == model.PaymentStatusLegacyPending || p.Status == "")) {
			out = append(out, &model.PaymentWithOwner{Payment: *p})
		}
	}
	// 最早创建的在前
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *paymentStoreStub) GetPendingForReminder(ctx context.Context, before time.Time, limit int) ([]*model.Payment, error) {
	return nil, nil
}

func (s *paymentStoreStub) MarkReminded(ctx context.Context, tx *gorm.DB, paymentNo string, remindedAt time.Time) error {
	return nil
}

func (s *paymentStoreStub) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

// ---- 付款创建锁 ----

type noopLock struct{}

func (noopLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	return nil
}

func (noopLock) Unlock(ctx context.Context) error {
	return nil
}

func newTestPaymentService(payments repository.PaymentStore, outbox repository.OutboxStore) *PaymentService {
	return &PaymentService{
		payments: payments,
		outbox:   outbox,
		cfg:      testConfig(),
		newLock: func(ownerID int64, requestID string) Lock {
			return noopLock{}
		},
	}
}

func newTestAuthService(accounts repository.AccountStore, sessions session.Store) (*AuthService, *outboxStoreStub) {
	outbox := &outboxStoreStub{}
	s := &AuthService{
		accounts: accounts,
		outbox:   outbox,
		sessions: sessions,
		cfg:      testConfig(),
	}
	s.dummyDigest = newDummyDigest(s.bcryptCost())
	return s, outbox
}

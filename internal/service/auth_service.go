package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"swiftpay/internal/config"
	"swiftpay/internal/model"
	"swiftpay/internal/repository"
	"swiftpay/internal/session"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	accounts repository.AccountStore
	outbox   repository.OutboxStore
	sessions session.Store
	cfg      *config.Config

	// dummyDigest 登录时账户不存在也要跑一次 bcrypt，
	// 避免通过响应时间区分「用户不存在」和「密码错误」。
	// 代价因子必须与真实账户的摘要一致，否则耗时差本身就是信号
	dummyDigest []byte
}

func NewAuthService(db *gorm.DB, sessions session.Store, cfg *config.Config) *AuthService {
	s := &AuthService{
		accounts: repository.NewAccountRepository(db),
		outbox:   repository.NewOutboxRepository(db),
		sessions: sessions,
		cfg:      cfg,
	}
	s.dummyDigest = newDummyDigest(s.bcryptCost())
	return s
}

func newDummyDigest(cost int) []byte {
	digest, err := bcrypt.GenerateFromPassword([]byte("swiftpay-timing-pad"), cost)
	if err != nil {
		log.Fatalf("生成占位摘要失败: %v", err)
	}
	return digest
}

func (s *AuthService) bcryptCost() int {
	cost := s.cfg.Security.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return cost
}

type RegisterRequest struct {
	Username      string `json:"username" binding:"required"`
	FullName      string `json:"full_name" binding:"required"`
	NationalID    string `json:"national_id" binding:"required"`
	AccountNumber string `json:"account_number" binding:"required"`
	Password      string `json:"password" binding:"required"`
}

// Register 客户自助注册
// 用户名唯一性由数据库唯一索引兜底，并发注册只会成功一个
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*model.Account, error) {
	return s.createAccount(ctx, req, false)
}

// CreateStaff 员工开户（调用方必须先过授权网关）
func (s *AuthService) CreateStaff(ctx context.Context, req *RegisterRequest) (*model.Account, error) {
	return s.createAccount(ctx, req, true)
}

func (s *AuthService) createAccount(ctx context.Context, req *RegisterRequest, isStaff bool) (*model.Account, error) {
	if fields := validateAccountFields(req.Username, req.FullName, req.NationalID, req.AccountNumber, req.Password); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost())
	if err != nil {
		return nil, fmt.Errorf("计算密码摘要失败: %w", err)
	}

	account := &model.Account{
		Username:      req.Username,
		FullName:      req.FullName,
		NationalID:    req.NationalID,
		AccountNumber: req.AccountNumber,
		PasswordHash:  string(digest),
		IsStaff:       isStaff,
	}

	err = s.accounts.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.accounts.Create(ctx, tx, account); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"event":      model.EventAccountCreated,
			"account_id": account.ID,
			"username":   account.Username,
			"is_staff":   account.IsStaff,
			"created_at": time.Now().Format(time.RFC3339),
		})
		return s.outbox.Create(ctx, tx, &model.OutboxMessage{
			MessageKey: strconv.FormatInt(account.ID, 10),
			Topic:      s.cfg.Kafka.Topic.AccountEvents,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		})
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// Login 登录
//
// 用户名与银行账号必须命中同一条记录（账号充当轻量第二因子）。
// 任何一步失败都返回同一个 ErrInvalidCredentials，响应形状完全一致。
func (s *AuthService) Login(ctx context.Context, username, accountNumber, password string) (string, *model.Account, error) {
	account, err := s.accounts.GetByUsernameAndAccountNumber(ctx, username, accountNumber)
	if err != nil {
		return "", nil, fmt.Errorf("查询账户失败: %w", err)
	}

	if account == nil {
		// 账户不存在也做一次摘要比较，耗时与正常路径一致
		_ = bcrypt.CompareHashAndPassword(s.dummyDigest, []byte(password))
		return "", nil, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := session.NewToken()
	if err != nil {
		return "", nil, err
	}

	if err := s.sessions.Save(ctx, token, &session.Session{
		AccountID: account.ID,
		IssuedAt:  time.Now(),
	}); err != nil {
		return "", nil, fmt.Errorf("保存会话失败: %w", err)
	}

	return token, account, nil
}

// Resolve 按令牌解析账户，纯查询
// 失败关闭：令牌缺失、畸形、过期一律返回 (nil, nil)
func (s *AuthService) Resolve(ctx context.Context, token string) (*model.Account, error) {
	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	if sess == nil {
		return nil, nil
	}

	account, err := s.accounts.GetByID(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// Logout 销毁会话，幂等
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

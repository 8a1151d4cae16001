package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Session 会话：服务端保存的不透明令牌到账户的绑定
// 一个令牌对应且仅对应一个会话，一个账户可以同时持有多个会话
type Session struct {
	AccountID int64     `json:"account_id"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Store 会话与 CSRF 密钥存储
// 生产实现基于 Redis（TTL 即过期），测试用内存桩替换
type Store interface {
	Save(ctx context.Context, token string, s *Session) error
	// Get 未命中（不存在/已过期/令牌畸形）一律返回 (nil, nil)，失败关闭
	Get(ctx context.Context, token string) (*Session, error)
	// Delete 幂等：删除不存在的会话不算错误
	Delete(ctx context.Context, token string) error

	SaveCSRF(ctx context.Context, bindingID, secret string) error
	// GetCSRF 未命中返回空串
	GetCSRF(ctx context.Context, bindingID string) (string, error)
	DeleteCSRF(ctx context.Context, bindingID string) error
}

const tokenBytes = 32

// NewToken 生成不可猜测的不透明令牌（64 位十六进制）
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成随机令牌失败: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// RedisStore 基于 Redis 的会话存储
type RedisStore struct {
	client     *redis.Client
	sessionTTL time.Duration
	csrfTTL    time.Duration
}

func NewRedisStore(client *redis.Client, sessionTTL, csrfTTL time.Duration) *RedisStore {
	return &RedisStore{
		client:     client,
		sessionTTL: sessionTTL,
		csrfTTL:    csrfTTL,
	}
}

func sessionKey(token string) string {
	return "session:" + token
}

func csrfKey(bindingID string) string {
	return "csrf:" + bindingID
}

func (s *RedisStore) Save(ctx context.Context, token string, sess *Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(token), payload, s.sessionTTL).Err()
}

func (s *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" || len(token) != tokenBytes*2 {
		return nil, nil
	}

	payload, err := s.client.Get(ctx, sessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		// 损坏的会话数据按不存在处理
		return nil, nil
	}
	return &sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.client.Del(ctx, sessionKey(token)).Err()
}

func (s *RedisStore) SaveCSRF(ctx context.Context, bindingID, secret string) error {
	return s.client.Set(ctx, csrfKey(bindingID), secret, s.csrfTTL).Err()
}

func (s *RedisStore) GetCSRF(ctx context.Context, bindingID string) (string, error) {
	if bindingID == "" {
		return "", nil
	}
	secret, err := s.client.Get(ctx, csrfKey(bindingID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return secret, nil
}

func (s *RedisStore) DeleteCSRF(ctx context.Context, bindingID string) error {
	if bindingID == "" {
		return nil
	}
	return s.client.Del(ctx, csrfKey(bindingID)).Err()
}

package session

import (
	"context"
	"crypto/subtle"
)

// ============================================================
// 双提交 CSRF 防护
// ============================================================
//
// 【原理】
// 浏览器会自动携带会话 Cookie，攻击页面因此能冒用会话发起请求，
// 但它读不到本站的 Cookie，也就拿不到与绑定 ID 对应的公开令牌。
// 服务端只接受「绑定 Cookie + 请求头令牌」两者匹配的变更请求。
//
// 绑定 ID 放在 HttpOnly Cookie，密钥存 Redis；
// 公开令牌（与密钥同值）放在前端可读的 Cookie，由前端回填到
// X-CSRF-Token 请求头。登录成功时轮换绑定，登出时删除绑定，
// 令牌因此不会跨会话存活。

// CsrfGuard CSRF 校验器
type CsrfGuard struct {
	store Store
}

func NewCsrfGuard(store Store) *CsrfGuard {
	return &CsrfGuard{store: store}
}

// Issue 签发新的绑定：返回绑定 ID 与公开令牌
func (g *CsrfGuard) Issue(ctx context.Context) (bindingID, token string, err error) {
	bindingID, err = NewToken()
	if err != nil {
		return "", "", err
	}
	token, err = NewToken()
	if err != nil {
		return "", "", err
	}
	if err = g.store.SaveCSRF(ctx, bindingID, token); err != nil {
		return "", "", err
	}
	return bindingID, token, nil
}

// Validate 校验请求携带的令牌是否与绑定密钥一致
// 恒定时间比较，绑定不存在时直接拒绝
func (g *CsrfGuard) Validate(ctx context.Context, bindingID, supplied string) (bool, error) {
	if bindingID == "" || supplied == "" {
		return false, nil
	}

	secret, err := g.store.GetCSRF(ctx, bindingID)
	if err != nil {
		return false, err
	}
	if secret == "" {
		return false, nil
	}

	return subtle.ConstantTimeCompare([]byte(secret), []byte(supplied)) == 1, nil
}

// Rotate 废弃旧绑定并签发新绑定
// 登录成功后调用，避免登录前的令牌延续到登录后的身份
func (g *CsrfGuard) Rotate(ctx context.Context, oldBindingID string) (bindingID, token string, err error) {
	if oldBindingID != "" {
		if err := g.store.DeleteCSRF(ctx, oldBindingID); err != nil {
			return "", "", err
		}
	}
	return g.Issue(ctx)
}

// Drop 删除绑定（登出时调用），幂等
func (g *CsrfGuard) Drop(ctx context.Context, bindingID string) error {
	return g.store.DeleteCSRF(ctx, bindingID)
}

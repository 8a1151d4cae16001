package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"swiftpay/internal/config"
	"swiftpay/internal/model"
	"swiftpay/internal/repository"
	"swiftpay/internal/service"
	"swiftpay/internal/session"
	"swiftpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Cookie 约定：
//   - 会话令牌与 CSRF 绑定 ID 都是 HttpOnly，前端脚本读不到
//   - CSRF 公开令牌可读，前端回填到 X-CSRF-Token 请求头
const (
	cookieSession   = "swiftpay_session"
	cookieCsrfID    = "csrf_binding"
	cookieCsrfToken = "csrf_token"
	headerCsrfToken = "X-CSRF-Token"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	authService    *service.AuthService
	paymentService *service.PaymentService
	guard          *session.CsrfGuard
	cfg            *config.Config
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	store := session.NewRedisStore(rdb,
		time.Duration(cfg.Security.SessionTTLMinutes)*time.Minute,
		time.Duration(cfg.Security.CsrfTTLMinutes)*time.Minute,
	)
	return &Handler{
		authService:    service.NewAuthService(db, store, cfg),
		paymentService: service.NewPaymentService(db, rdb, cfg),
		guard:          session.NewCsrfGuard(store),
		cfg:            cfg,
	}
}

func (h *Handler) sessionMaxAge() int {
	return h.cfg.Security.SessionTTLMinutes * 60
}

func (h *Handler) csrfMaxAge() int {
	return h.cfg.Security.CsrfTTLMinutes * 60
}

func (h *Handler) setCsrfCookies(c *gin.Context, bindingID, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieCsrfID, bindingID, h.csrfMaxAge(), "/", "", false, true)
	// 公开令牌：前端代码需要读它，不能 HttpOnly
	c.SetCookie(cookieCsrfToken, token, h.csrfMaxAge(), "/", "", false, false)
}

// ============================================================
// CSRF 相关接口
// ============================================================

// IssueCsrf 签发 CSRF 令牌对
// GET /api/v1/csrf
func (h *Handler) IssueCsrf(c *gin.Context) {
	bindingID, token, err := h.guard.Issue(c.Request.Context())
	if err != nil {
		log.Printf("[CSRF] 签发失败: %v", err)
		response.ServerError(c)
		return
	}

	h.setCsrfCookies(c, bindingID, token)
	response.Success(c, gin.H{"csrf_token": token})
}

// ============================================================
// 会话相关接口
// ============================================================

type loginRequest struct {
	Username      string `json:"username" binding:"required"`
	AccountNumber string `json:"account_number" binding:"required"`
	Password      string `json:"password" binding:"required"`
}

// Login 登录
// POST /api/v1/session
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: 用户名、银行账号和密码均不能为空")
		return
	}

	token, account, err := h.authService.Login(c.Request.Context(), req.Username, req.AccountNumber, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			// 不区分「用户不存在」和「密码错误」
			response.Unauthorized(c, response.CodeInvalidCredentials, service.ErrInvalidCredentials.Error())
			return
		}
		log.Printf("[Auth] 登录失败: %v", err)
		response.ServerError(c)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieSession, token, h.sessionMaxAge(), "/", "", false, true)

	// 登录成功轮换 CSRF 绑定，登录前的令牌不延续到新身份
	oldBinding, _ := c.Cookie(cookieCsrfID)
	bindingID, csrfToken, err := h.guard.Rotate(c.Request.Context(), oldBinding)
	if err != nil {
		log.Printf("[CSRF] 轮换失败: %v", err)
		response.ServerError(c)
		return
	}
	h.setCsrfCookies(c, bindingID, csrfToken)

	response.Success(c, gin.H{
		"account_id": account.ID,
		"username":   account.Username,
		"role":       account.Role(),
	})
}

// Logout 登出（幂等）
// DELETE /api/v1/session
func (h *Handler) Logout(c *gin.Context) {
	token, _ := c.Cookie(cookieSession)
	if err := h.authService.Logout(c.Request.Context(), token); err != nil {
		log.Printf("[Auth] 登出失败: %v", err)
		response.ServerError(c)
		return
	}

	// 会话销毁后 CSRF 绑定一并作废
	if binding, err := c.Cookie(cookieCsrfID); err == nil {
		if err := h.guard.Drop(c.Request.Context(), binding); err != nil {
			log.Printf("[CSRF] 删除绑定失败: %v", err)
		}
	}

	c.SetCookie(cookieSession, "", -1, "/", "", false, true)
	c.SetCookie(cookieCsrfID, "", -1, "/", "", false, true)
	c.SetCookie(cookieCsrfToken, "", -1, "/", "", false, false)

	response.Success(c, gin.H{"message": "已登出"})
}

// GetSession 查询当前会话
// GET /api/v1/session
func (h *Handler) GetSession(c *gin.Context) {
	account := currentAccount(c)
	response.Success(c, gin.H{
		"account_id": account.ID,
		"username":   account.Username,
		"role":       account.Role(),
		"is_staff":   account.IsStaff,
	})
}

// ============================================================
// 账户相关接口
// ============================================================

// Register 客户自助注册（匿名）
// POST /api/v1/accounts
func (h *Handler) Register(c *gin.Context) {
	// 注册只对匿名开放，已登录账户走员工开户通道
	if err := service.Authorize(currentAccount(c), service.OpRegister); err != nil {
		h.writeAuthzError(c, err)
		return
	}

	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		h.writeAccountError(c, err)
		return
	}

	response.Created(c, gin.H{
		"account_id": account.ID,
		"username":   account.Username,
	})
}

// CreateStaff 员工开户（仅员工）
// POST /api/v1/staff-accounts
func (h *Handler) CreateStaff(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.authService.CreateStaff(c.Request.Context(), &req)
	if err != nil {
		h.writeAccountError(c, err)
		return
	}

	response.Created(c, gin.H{
		"account_id": account.ID,
		"username":   account.Username,
		"is_staff":   true,
	})
}

func (h *Handler) writeAccountError(c *gin.Context, err error) {
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		response.FieldErrors(c, vErr.Fields)
		return
	}
	if errors.Is(err, repository.ErrUsernameTaken) {
		response.Conflict(c, response.CodeUsernameTaken, repository.ErrUsernameTaken.Error())
		return
	}
	log.Printf("[Account] 创建账户失败: %v", err)
	response.ServerError(c)
}

// ============================================================
// 付款相关接口
// ============================================================

// CreatePayment 创建付款（幂等）
// POST /api/v1/payments
func (h *Handler) CreatePayment(c *gin.Context) {
	var req service.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account := currentAccount(c)
	payment, err := h.paymentService.Create(c.Request.Context(), account.ID, &req)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			response.FieldErrors(c, vErr.Fields)
			return
		}
		log.Printf("[Payment] 创建付款失败: %v", err)
		response.ServerError(c)
		return
	}

	response.Success(c, payment)
}

// ListPayments 付款列表
// GET /api/v1/payments                        客户查自己的付款
// GET /api/v1/payments?role=staff&status=xxx  员工审核列表
func (h *Handler) ListPayments(c *gin.Context) {
	account := currentAccount(c)

	if c.Query("role") == "staff" {
		if err := service.Authorize(account, service.OpListForReview); err != nil {
			h.writeAuthzError(c, err)
			return
		}

		rows, err := h.paymentService.ListForReview(c.Request.Context(), c.DefaultQuery("status", service.StatusFilterAll))
		if err != nil {
			var vErr *service.ValidationError
			if errors.As(err, &vErr) {
				response.FieldErrors(c, vErr.Fields)
				return
			}
			log.Printf("[Payment] 查询审核列表失败: %v", err)
			response.ServerError(c)
			return
		}
		response.Success(c, gin.H{"list": rows})
		return
	}

	payments, err := h.paymentService.ListOwn(c.Request.Context(), account.ID)
	if err != nil {
		log.Printf("[Payment] 查询付款列表失败: %v", err)
		response.ServerError(c)
		return
	}
	response.Success(c, gin.H{"list": payments})
}

// VerifyPayment 审核付款（仅员工）
// POST /api/v1/payments/:payment_no/verify
func (h *Handler) VerifyPayment(c *gin.Context) {
	account := currentAccount(c)
	payment, err := h.paymentService.Verify(c.Request.Context(), c.Param("payment_no"), account.ID)
	if err != nil {
		h.writeLifecycleError(c, err)
		return
	}
	response.Success(c, payment)
}

// SubmitPayment 提交付款（仅员工，终态）
// POST /api/v1/payments/:payment_no/submit
func (h *Handler) SubmitPayment(c *gin.Context) {
	account := currentAccount(c)
	payment, err := h.paymentService.Submit(c.Request.Context(), c.Param("payment_no"), account.ID)
	if err != nil {
		h.writeLifecycleError(c, err)
		return
	}
	response.Success(c, payment)
}

func (h *Handler) writeLifecycleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrPaymentNotFound):
		response.Error(c, http.StatusNotFound, response.CodePaymentNotFound, repository.ErrPaymentNotFound.Error())
	case errors.Is(err, service.ErrAlreadySubmitted):
		response.BusinessError(c, response.CodeAlreadySubmitted, service.ErrAlreadySubmitted.Error())
	case errors.Is(err, service.ErrNotVerified):
		response.BusinessError(c, response.CodeNotVerified, service.ErrNotVerified.Error())
	case errors.Is(err, service.ErrIncompleteRecord):
		response.BusinessError(c, response.CodeIncompleteRecord, service.ErrIncompleteRecord.Error())
	default:
		log.Printf("[Payment] 操作失败: %v", err)
		response.ServerError(c)
	}
}

func (h *Handler) writeAuthzError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrAuthenticationRequired) {
		response.Unauthorized(c, response.CodeUnauthorized, service.ErrAuthenticationRequired.Error())
		return
	}
	response.Forbidden(c, response.CodeForbidden, service.ErrForbidden.Error())
}

// currentAccount 取 Identify 中间件解析出的账户，可能为 nil（匿名）
func currentAccount(c *gin.Context) *model.Account {
	value, exists := c.Get(ctxAccountKey)
	if !exists {
		return nil
	}
	account, _ := value.(*model.Account)
	return account
}

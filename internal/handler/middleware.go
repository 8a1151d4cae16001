package handler

import (
	"log"
	"time"

	"swiftpay/internal/service"
	"swiftpay/internal/session"
	"swiftpay/pkg/response"

	"github.com/gin-gonic/gin"
)

const ctxAccountKey = "account"

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// 处理请求
		c.Next()

		// 记录日志
		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
// 带 Cookie 凭证时不能使用通配 Origin，按请求 Origin 回显
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, X-CSRF-Token, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// IdentifyMiddleware 解析会话 Cookie，把账户放进请求上下文
// 不中断请求：匿名请求的账户为 nil，由授权网关决定放行与否
func IdentifyMiddleware(h *Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cookieSession)
		if err != nil || token == "" {
			c.Next()
			return
		}

		// 失败关闭：解析不出来就当匿名
		account, err := h.authService.Resolve(c.Request.Context(), token)
		if err != nil {
			log.Printf("[Auth] 解析会话失败: %v", err)
			response.ServerError(c)
			c.Abort()
			return
		}
		if account != nil {
			c.Set(ctxAccountKey, account)
		}
		c.Next()
	}
}

// RequireAuth 要求已登录，不关心角色
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentAccount(c) == nil {
			response.Unauthorized(c, response.CodeUnauthorized, service.ErrAuthenticationRequired.Error())
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireOperation 授权网关中间件
// 无会话 -> 401；有会话但角色不符 -> 403
func RequireOperation(op service.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := service.Authorize(currentAccount(c), op); err != nil {
			if err == service.ErrAuthenticationRequired {
				response.Unauthorized(c, response.CodeUnauthorized, err.Error())
			} else {
				response.Forbidden(c, response.CodeForbidden, err.Error())
			}
			c.Abort()
			return
		}
		c.Next()
	}
}

// CSRFMiddleware 双提交 CSRF 校验，挂在所有变更型路由上
// 会话 Cookie 正确但令牌缺失/不匹配的请求一律拒绝
func CSRFMiddleware(guard *session.CsrfGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		bindingID, _ := c.Cookie(cookieCsrfID)
		supplied := c.GetHeader(headerCsrfToken)

		ok, err := guard.Validate(c.Request.Context(), bindingID, supplied)
		if err != nil {
			log.Printf("[CSRF] 校验失败: %v", err)
			response.ServerError(c)
			c.Abort()
			return
		}
		if !ok {
			response.Forbidden(c, response.CodeCsrfRejected, "CSRF 校验未通过")
			c.Abort()
			return
		}
		c.Next()
	}
}

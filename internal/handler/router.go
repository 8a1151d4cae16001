package handler

import (
	"swiftpay/internal/config"
	"swiftpay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
//
// 变更型请求的处理链：会话解析 -> CSRF 校验 -> 授权网关 -> 业务逻辑，
// 任何一环不通过都不会触达后面的环节
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	csrf := CSRFMiddleware(h.guard)

	// API 路由组
	api := r.Group("/api/v1")
	api.Use(IdentifyMiddleware(h))
	{
		// CSRF 令牌签发（只读，豁免校验）
		api.GET("/csrf", h.IssueCsrf)

		// 会话（登出幂等，不要求会话仍然有效）
		api.POST("/session", csrf, h.Login)
		api.DELETE("/session", csrf, h.Logout)
		api.GET("/session", RequireAuth(), h.GetSession)

		// 账户
		api.POST("/accounts", csrf, h.Register)
		api.POST("/staff-accounts", csrf, RequireOperation(service.OpCreateStaff), h.CreateStaff)

		// 付款
		payments := api.Group("/payments")
		{
			payments.POST("", csrf, RequireOperation(service.OpCreatePayment), h.CreatePayment)
			payments.GET("", RequireOperation(service.OpListOwn), h.ListPayments)
			payments.POST("/:payment_no/verify", csrf, RequireOperation(service.OpVerifyPayment), h.VerifyPayment)
			payments.POST("/:payment_no/submit", csrf, RequireOperation(service.OpSubmitPayment), h.SubmitPayment)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess      = 0
	CodeParamError   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeServerError  = 500
)

// 业务错误码
const (
	CodeInvalidCredentials = 1001 // 登录失败（不区分用户不存在/密码错误）
	CodeUsernameTaken      = 1002 // 用户名冲突
	CodeCsrfRejected       = 1003 // CSRF 校验失败
	CodePaymentNotFound    = 1004
	CodeNotVerified        = 1005 // 未审核不能提交
	CodeAlreadySubmitted   = 1006 // 已提交，记录冻结
	CodeIncompleteRecord   = 1007 // 收款信息不完整，拒绝审核
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Fields  interface{} `json:"fields,omitempty"` // 字段级校验错误
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeParamError, message)
}

// FieldErrors 字段级校验错误，key 为字段名
func FieldErrors(c *gin.Context, fields map[string]string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    CodeParamError,
		Message: "参数校验失败",
		Fields:  fields,
	})
}

func Unauthorized(c *gin.Context, code int, message string) {
	Error(c, http.StatusUnauthorized, code, message)
}

func Forbidden(c *gin.Context, code int, message string) {
	Error(c, http.StatusForbidden, code, message)
}

func Conflict(c *gin.Context, code int, message string) {
	Error(c, http.StatusConflict, code, message)
}

// ServerError 内部错误：对外只给统一提示，细节由服务端日志记录
func ServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, CodeServerError, "服务器内部错误")
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, http.StatusUnprocessableEntity, code, message)
}

package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/mpesa_anal_server/internal/pkg/errs"
)

// 错误码定义
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodeResourceNotFound = 1003
	CodeDuplicateAction  = 1005
	CodeFileTooLarge     = 1006
	CodeRateLimited      = 1007
	CodeAnalysisFailed   = 2001
	CodeServerError      = 5000
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "invalid parameters",
	CodeAuthFailed:       "authentication failed",
	CodeResourceNotFound: "resource not found",
	CodeDuplicateAction:  "duplicate action",
	CodeFileTooLarge:     "file too large",
	CodeRateLimited:      "too many requests",
	CodeAnalysisFailed:   "analysis failed",
	CodeServerError:      "internal server error",
}

// 业务错误类型对应的错误码
var kindCodes = map[errs.Kind]int{
	errs.KindMissingFile:     CodeParamError,
	errs.KindUnsupportedType: CodeParamError,
	errs.KindFileTooLarge:    CodeFileTooLarge,
	errs.KindAnalysisFailed:  CodeAnalysisFailed,
	errs.KindBusy:            CodeDuplicateAction,
	errs.KindNotFound:        CodeResourceNotFound,
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// ListData 列表数据结构
type ListData struct {
	Total int         `json:"total"`
	Items interface{} `json:"items"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// SuccessList 列表成功响应
func SuccessList(c *gin.Context, total int, items interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data: ListData{
			Total: total,
			Items: items,
		},
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// FromError 按业务错误类型选择错误码，消息使用错误自带的用户消息
func FromError(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	code, ok := kindCodes[kind]
	if !ok {
		ServerError(c, "")
		return
	}
	Error(c, code, errs.UserMessage(err))
}

// CodeFor 业务错误类型对应的错误码
func CodeFor(kind errs.Kind) int {
	if code, ok := kindCodes[kind]; ok {
		return code
	}
	return CodeServerError
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

// AuthError 认证失败
func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

// NotFoundError 资源不存在
func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

// DuplicateError 重复操作
func DuplicateError(c *gin.Context, message string) {
	Error(c, CodeDuplicateAction, message)
}

// RateLimitError 请求过于频繁，使用 429 状态码
func RateLimitError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodeRateLimited]
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, Response{
		Code:    CodeRateLimited,
		Message: message,
		Data:    nil,
	})
}

// ServerError 服务器错误
func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

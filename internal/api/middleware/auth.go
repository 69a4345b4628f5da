package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/mpesa_anal_server/internal/pkg/jwt"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/response"
	"github.com/qs3c/mpesa_anal_server/internal/service"
)

const (
	SessionIDKey = "sessionID"
)

// Session 会话中间件。没有令牌时使用默认会话；带了令牌但无效时拒绝
func Session(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, present := bearerToken(c)
		if !present {
			c.Set(SessionIDKey, service.DefaultSessionID)
			c.Next()
			return
		}

		if tokenString == "" {
			response.AuthError(c, "malformed authorization header")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.AuthError(c, "session token invalid or expired")
			c.Abort()
			return
		}

		c.Set(SessionIDKey, claims.SessionID)
		c.Next()
	}
}

// bearerToken 读取 Authorization 头。头存在但格式不对时返回 ("", true)
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return "", true
	}
	return strings.TrimSpace(tokenString), true
}

// GetSessionID 从上下文获取会话 ID，未设置时返回默认会话
func GetSessionID(c *gin.Context) string {
	v, exists := c.Get(SessionIDKey)
	if !exists {
		return service.DefaultSessionID
	}
	id, ok := v.(string)
	if !ok || id == "" {
		return service.DefaultSessionID
	}
	return id
}

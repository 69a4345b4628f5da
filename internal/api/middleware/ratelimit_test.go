package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/qs3c/mpesa_anal_server/config"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/jwt"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/response"
)

func rateLimitRouter(cfg config.RateLimitConfig) *gin.Engine {
	router := gin.New()
	router.Use(Session(testJWTSecret))
	router.Use(RateLimit(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func doRequest(router *gin.Engine, token, remoteAddr string) int {
	req := httptest.NewRequest("GET", "/test", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_Burst(t *testing.T) {
	// 速率很低，只有突发额度可用
	router := rateLimitRouter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 3})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(router, "", "10.0.0.1:1234"), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, "", "10.0.0.1:1234"))

	// 其他 IP 不受影响
	assert.Equal(t, http.StatusOK, doRequest(router, "", "10.0.0.2:1234"))
}

func TestRateLimit_PerSession(t *testing.T) {
	router := rateLimitRouter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})

	tokenA, _ := jwt.GenerateToken("session-a", testJWTSecret, 1)
	tokenB, _ := jwt.GenerateToken("session-b", testJWTSecret, 1)

	assert.Equal(t, http.StatusOK, doRequest(router, tokenA, "10.0.0.1:1"))
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, tokenA, "10.0.0.1:1"))
	// 同一 IP 的其他会话有自己的额度
	assert.Equal(t, http.StatusOK, doRequest(router, tokenB, "10.0.0.1:1"))
}

func TestRateLimit_Disabled(t *testing.T) {
	router := rateLimitRouter(config.RateLimitConfig{})

	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, doRequest(router, "", ""))
	}
}

func TestRateLimit_ResponseBody(t *testing.T) {
	router := rateLimitRouter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	doRequest(router, "", "10.0.0.9:1")

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.0.0.9:1"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeRateLimited, resp.Code)
}

func TestLogger_PassesThrough(t *testing.T) {
	router := gin.New()
	router.Use(Logger())
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusTeapot)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
}

package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/qs3c/mpesa_anal_server/config"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/response"
	"github.com/qs3c/mpesa_anal_server/internal/service"
)

// 闲置超过这个时间的限流器会被回收
const limiterIdleTTL = 10 * time.Minute

// RateLimit 按会话限流（令牌桶），会话为默认会话时按客户端 IP。
// requests_per_second <= 0 时不限流
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	limiters := cache.New(limiterIdleTTL, limiterIdleTTL)

	return func(c *gin.Context) {
		key := rateLimitKey(c)

		var limiter *rate.Limiter
		if v, ok := limiters.Get(key); ok {
			limiter = v.(*rate.Limiter)
		} else {
			limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
			// 并发创建时以先写入的为准
			if err := limiters.Add(key, limiter, cache.DefaultExpiration); err != nil {
				if v, ok := limiters.Get(key); ok {
					limiter = v.(*rate.Limiter)
				}
			}
		}
		// 刷新过期时间
		limiters.Set(key, limiter, cache.DefaultExpiration)

		if !limiter.Allow() {
			response.RateLimitError(c, "")
			return
		}
		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	if v, ok := c.Get(SessionIDKey); ok {
		if id, ok := v.(string); ok && id != "" && id != service.DefaultSessionID {
			return "session:" + id
		}
	}
	return "ip:" + c.ClientIP()
}

package middleware

import (
	"sync"
	"time"

	"roomcast-http-service/internal/error/code"
	"roomcast-http-service/internal/error/response"

	"github.com/gin-gonic/gin"
)

// TokenBucket 简单的令牌桶限流器
type TokenBucket struct {
	rate       float64 // 每秒填充的令牌数
	capacity   int
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket 创建新的令牌桶限流器
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return &TokenBucket{
		rate:       rate,
		capacity:   capacity,
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
}

// Allow 尝试获取令牌
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now

	tb.tokens += elapsed * tb.rate
	if tb.tokens > float64(tb.capacity) {
		tb.tokens = float64(tb.capacity)
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// limiterEntry 带最后访问时间的限流器，便于清理长期不活跃的键
type limiterEntry struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

var (
	limiters   = make(map[string]*limiterEntry)
	limitersMu sync.Mutex
)

// getLimiter 获取或创建指定键的限流器
func getLimiter(key string, rate float64, burst int) *TokenBucket {
	limitersMu.Lock()
	defer limitersMu.Unlock()

	entry, exists := limiters[key]
	if !exists {
		entry = &limiterEntry{bucket: NewTokenBucket(rate, burst)}
		limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.bucket
}

// rateLimit 按键限流的通用中间件
func rateLimit(rate float64, burst int, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !getLimiter(keyFunc(c), rate, burst).Allow() {
			response.Fail(c, code.ErrTooManyRequests, nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// IPRateLimiter 按客户端IP限流
func IPRateLimiter(rate float64, burst int) gin.HandlerFunc {
	return rateLimit(rate, burst, func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	})
}

// DeviceRateLimiter 按设备UUID限流。
// 未携带设备头的请求退化为按IP限流，保证未注册客户端也受限。
func DeviceRateLimiter(rate float64, burst int) gin.HandlerFunc {
	return rateLimit(rate, burst, func(c *gin.Context) string {
		if uuid := c.GetHeader("X-Device-UUID"); uuid != "" {
			return "device:" + uuid
		}
		return "ip:" + c.ClientIP()
	})
}

// 定期清理长期不活跃的限流器
func init() {
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			cutoff := time.Now().Add(-1 * time.Hour)
			limitersMu.Lock()
			for key, entry := range limiters {
				if entry.lastSeen.Before(cutoff) {
					delete(limiters, key)
				}
			}
			limitersMu.Unlock()
		}
	}()
}

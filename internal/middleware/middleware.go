// Package middleware carries the gin middleware stack: auth guards,
// per-endpoint request quotas, CORS, recovery, and request ids.
package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"codejudge/internal/logging"
)

// Quota is a keyed token-bucket limiter: one bucket per caller (user id when
// authenticated, client IP otherwise), refilled at perHour requests per hour.
type Quota struct {
	mu       sync.Mutex
	buckets  map[string]*quotaEntry
	perHour  int
	lastSeen time.Duration
}

type quotaEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewQuota builds a limiter allowing perHour requests per caller per hour.
func NewQuota(perHour int) *Quota {
	q := &Quota{
		buckets:  make(map[string]*quotaEntry),
		perHour:  perHour,
		lastSeen: 2 * time.Hour,
	}
	go q.cleanupLoop()
	return q
}

func (q *Quota) allow(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.buckets[key]
	if !ok {
		entry = &quotaEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(q.perHour)/3600.0), q.perHour),
		}
		q.buckets[key] = entry
	}
	entry.seen = time.Now()
	return entry.limiter.Allow()
}

func (q *Quota) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-q.lastSeen)
		q.mu.Lock()
		for key, entry := range q.buckets {
			if entry.seen.Before(cutoff) {
				delete(q.buckets, key)
			}
		}
		q.mu.Unlock()
	}
}

// Middleware enforces the quota, answering 429 when a caller's bucket is dry.
func (q *Quota) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if id, ok := GetUserID(c); ok {
			key = fmt.Sprintf("user:%d", id)
		}
		if !q.allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, try again later",
			})
			return
		}
		c.Next()
	}
}

// CORS answers preflights and sets allow headers for the configured origins.
// allowedOrigins is the comma-separated ALLOWED_ORIGINS value; "*" allows all.
func CORS(allowedOrigins string) gin.HandlerFunc {
	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	allowAll := len(origins) == 1 && origins[0] == "*"

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := allowAll
		if !allowed {
			for _, o := range origins {
				if o == origin {
					allowed = true
					break
				}
			}
		}
		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
		} else if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-CSRF-Token")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestID tags every request with an id, honoring one supplied upstream.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Security sets the standard hardening headers on every response.
func Security() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// Recovery turns panics into 500s and logs them with the request id.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L().Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString("request_id")))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

// AccessLog writes one structured line per request.
func AccessLog() gin.HandlerFunc {
	log := logging.L().Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")))
	}
}

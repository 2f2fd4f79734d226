package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiterConfig struct {
	RequestsPerSecond int
	Burst             int
	CleanupInterval   time.Duration
	TTL               time.Duration
}

type memoryLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      int
	burst    int
}

func (m *memoryLimiter) allow(ip string) bool {
	m.mu.Lock()

	v, exists := m.visitors[ip]
	if !exists {
		v = &visitor{rate.NewLimiter(rate.Limit(m.rps), m.burst), time.Now()}
		m.visitors[ip] = v
	}
	v.lastSeen = time.Now()

	m.mu.Unlock()
	return v.limiter.Allow()
}

func (m *memoryLimiter) cleanup(ttl, interval time.Duration) {
	for {
		time.Sleep(interval)
		m.mu.Lock()
		for ip, v := range m.visitors {
			if time.Since(v.lastSeen) > ttl {
				delete(m.visitors, ip)
			}
		}
		m.mu.Unlock()
	}
}

// redisAllow keeps fixed one-minute windows in redis so the counters survive
// restarts and are shared between instances. Counters are best-effort abuse
// deterrence, a request is never blocked because redis is down.
func redisAllow(rdb *redis.Client, limit int64) func(ip string) bool {
	return func(ip string) bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		window := time.Now().Unix() / 60
		key := fmt.Sprintf("ratelimit:%s:%d", ip, window)

		n, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			zap.L().Warn("Rate limit counter unavailable, allowing request", zap.Error(err))
			return true
		}

		if n == 1 {
			rdb.Expire(ctx, key, time.Minute)
		}

		return n <= limit
	}
}

// RateLimiterMiddleware bounds abuse per source IP. With redis.addr
// configured the counters are shared, otherwise an in-memory token bucket
// per visitor is used as a single-instance fallback.
func RateLimiterMiddleware(config RateLimiterConfig) gin.HandlerFunc {
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Minute
	}
	if config.TTL == 0 {
		config.TTL = 3 * time.Minute
	}

	var allow func(ip string) bool

	if addr := viper.GetString("redis.addr"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		allow = redisAllow(rdb, int64(config.RequestsPerSecond)*60)
	} else {
		m := &memoryLimiter{
			visitors: make(map[string]*visitor),
			rps:      config.RequestsPerSecond,
			burst:    config.Burst,
		}
		go m.cleanup(config.TTL, config.CleanupInterval)

		allow = m.allow
	}

	return func(c *gin.Context) {
		if !allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
			})
			return
		}

		c.Next()
	}
}

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/foxzi/outreach/internal/metrics"
)

// Limits caps requests per fixed clock minute and hour; zero means no cap
type Limits struct {
	PerMinute int
	PerHour   int
}

func (l Limits) exceeded(minute, hour int64) bool {
	return (l.PerMinute > 0 && minute > int64(l.PerMinute)) ||
		(l.PerHour > 0 && hour > int64(l.PerHour))
}

// Limiter counts a request for key and reports whether it may proceed.
// Rejected requests are counted as well.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Stop()
}

// MemoryLimiter keeps the windows in process
type MemoryLimiter struct {
	limits Limits
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*windowCount

	stop     chan struct{}
	stopOnce sync.Once
}

type windowCount struct {
	minute, hour           int64
	minuteCount, hourCount int64
}

func NewMemoryLimiter(limits Limits) *MemoryLimiter {
	l := &MemoryLimiter{
		limits:  limits,
		now:     time.Now,
		windows: make(map[string]*windowCount),
		stop:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now().Unix()
	minute, hour := now/60, now/3600

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &windowCount{minute: minute, hour: hour}
		l.windows[key] = w
	}
	if w.minute != minute {
		w.minute, w.minuteCount = minute, 0
	}
	if w.hour != hour {
		w.hour, w.hourCount = hour, 0
	}
	w.minuteCount++
	w.hourCount++

	return !l.limits.exceeded(w.minuteCount, w.hourCount), nil
}

func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// sweep drops keys whose hour window has passed
func (l *MemoryLimiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			hour := l.now().Unix() / 3600
			l.mu.Lock()
			for key, w := range l.windows {
				if w.hour != hour {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// RedisLimiter shares the windows between console instances
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limits Limits
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, prefix string, limits Limits) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix + "ratelimit:", limits: limits, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now().Unix()
	minuteKey := fmt.Sprintf("%sm:%s:%d", l.prefix, key, now/60)
	hourKey := fmt.Sprintf("%sh:%s:%d", l.prefix, key, now/3600)

	var minute, hour *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		minute = p.Incr(ctx, minuteKey)
		p.Expire(ctx, minuteKey, 2*time.Minute)
		hour = p.Incr(ctx, hourKey)
		p.Expire(ctx, hourKey, 2*time.Hour)
		return nil
	})
	if err != nil {
		return false, err
	}
	return !l.limits.exceeded(minute.Val(), hour.Val()), nil
}

func (l *RedisLimiter) Stop() {}

// RateLimit limits requests per client IP. A limiter that fails lets the
// request through.
func RateLimit(l Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			ok, err := l.Allow(r.Context(), ip)
			if err != nil {
				logger.Warn("rate limiter unavailable", "error", err)
				ok = true
			}
			if !ok {
				metrics.IncRateLimitExceeded("ip")
				logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				sendAPIError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

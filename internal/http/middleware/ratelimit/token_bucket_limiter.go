package ratelimit

import (
	"math"
	"sync"
	"time"

	"laundry-dispatch/internal/clock"
)

// Config stores TokenBucketLimiter settings.
type Config struct {
	Rate       float64       // tokens per second
	Burst      int           // bucket capacity
	TTL        time.Duration // idle buckets older than TTL are evicted, 0 keeps them forever
	MaxBuckets int           // 0 means unbounded
}

// TokenBucketLimiter keeps one token bucket per key.
type TokenBucketLimiter struct {
	cfg   Config
	clock clock.Clock

	mu        sync.Mutex
	buckets   map[string]bucket
	nextSweep time.Time
}

type bucket struct {
	tokens float64
	at     time.Time
}

// NewTokenBucketLimiter returns a limiter reading time from clk.
func NewTokenBucketLimiter(clk clock.Clock, cfg Config) *TokenBucketLimiter {
	if clk == nil {
		clk = clock.NewReal()
	}
	cfg.Rate = math.Max(cfg.Rate, 0.001)
	cfg.Burst = max(cfg.Burst, 1)
	cfg.MaxBuckets = max(cfg.MaxBuckets, 0)
	return &TokenBucketLimiter{
		cfg:     cfg,
		clock:   clk,
		buckets: make(map[string]bucket),
	}
}

// Take spends one token of key's bucket.
func (l *TokenBucketLimiter) Take(key string) Decision {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now, false)

	b, ok := l.buckets[key]
	if !ok {
		if l.full() {
			// под давлением новых ключей сначала выбрасываем простаивающие
			l.sweep(now, true)
		}
		if l.full() {
			return Decision{RetryAfter: l.interval()}
		}
		b = bucket{tokens: float64(l.cfg.Burst), at: now}
	}
	b = l.refill(b, now)

	if b.tokens < 1 {
		l.buckets[key] = b
		wait := time.Duration((1 - b.tokens) / l.cfg.Rate * float64(time.Second))
		return Decision{RetryAfter: wait}
	}
	b.tokens--
	l.buckets[key] = b
	return Decision{Allowed: true}
}

// Len returns the number of live buckets.
func (l *TokenBucketLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *TokenBucketLimiter) refill(b bucket, now time.Time) bucket {
	if dt := now.Sub(b.at); dt > 0 {
		b.tokens = math.Min(float64(l.cfg.Burst), b.tokens+dt.Seconds()*l.cfg.Rate)
		b.at = now
	}
	return b
}

func (l *TokenBucketLimiter) full() bool {
	return l.cfg.MaxBuckets > 0 && len(l.buckets) >= l.cfg.MaxBuckets
}

// interval is the time one token takes to accrue.
func (l *TokenBucketLimiter) interval() time.Duration {
	return time.Duration(float64(time.Second) / l.cfg.Rate)
}

// sweep evicts buckets idle longer than TTL, at most once per TTL/2 unless forced.
func (l *TokenBucketLimiter) sweep(now time.Time, force bool) {
	if l.cfg.TTL <= 0 || (!force && now.Before(l.nextSweep)) {
		return
	}
	l.nextSweep = now.Add(l.cfg.TTL / 2)
	for k, b := range l.buckets {
		if now.Sub(b.at) > l.cfg.TTL {
			delete(l.buckets, k)
		}
	}
}

package ratelimit

import (
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"laundry-dispatch/internal/logx"
)

// Middleware rejects requests whose bucket is empty with 429.
type Middleware struct {
	logger  logx.Logger        // логгер
	counter prometheus.Counter // счетчик отказов
	limiter Limiter            // лимитер
	key     KeyFunc
}

// Option configures a Middleware.
type Option func(*Middleware)

// WithKey charges requests to the bucket returned by fn instead of the client ip.
func WithKey(fn KeyFunc) Option {
	return func(m *Middleware) {
		if fn != nil {
			m.key = fn
		}
	}
}

// New returns a Middleware keyed by client ip unless WithKey says otherwise.
func New(logger logx.Logger, counter prometheus.Counter, limiter Limiter, opts ...Option) *Middleware {
	if limiter == nil {
		limiter = NopLimiter{}
	}
	if logger == nil {
		logger = logx.Nop()
	}
	m := &Middleware{
		logger:  logger,
		counter: counter,
		limiter: limiter,
		key:     ClientIP,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler returns chi-style middleware.
func (m *Middleware) Handler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := m.key(r)

			d := m.limiter.Take(key)
			if !d.Allowed {
				if m.counter != nil {
					m.counter.Inc()
				}
				m.logger.Warn("rate limit exceeded",
					logx.String("key", key),
					logx.String("method", r.Method),
					logx.String("path", r.URL.Path),
					logx.Duration("retry_after", d.RetryAfter),
				)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", retryAfter(d.RetryAfter))
				w.WriteHeader(http.StatusTooManyRequests)
				if _, err := io.WriteString(w, `{"error":"too many requests"}`); err != nil {
					m.logger.Debug("rate limit response write failed",
						logx.String("key", key),
						logx.Err(err),
					)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter renders d in whole seconds, at least one.
func retryAfter(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	return strconv.FormatInt(max(secs, 1), 10)
}

// ClientIP keys requests by the remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// CourierKey keys requests by the courier id in the named URL parameter,
// so a burst from one courier never starves another behind the same NAT.
func CourierKey(param string) KeyFunc {
	return func(r *http.Request) string {
		if id := strings.TrimSpace(chi.URLParam(r, param)); id != "" {
			return "courier:" + id
		}
		return ClientIP(r)
	}
}

package ratelimit

import (
	"net/http"
	"time"
)

// Decision is the outcome of charging one request to a bucket.
type Decision struct {
	Allowed bool
	// RetryAfter is how long until the next token, zero when allowed.
	RetryAfter time.Duration
}

// Limiter charges requests to per-key buckets.
type Limiter interface {
	Take(key string) Decision
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

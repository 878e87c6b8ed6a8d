package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// ErrLimitExceeded is matched by every LimitExceededError
var ErrLimitExceeded = errors.New("rate limit exceeded")

// LimitExceededError indicates the bucket had no token for an operation
type LimitExceededError struct {
	RetryAfter time.Duration
}

func (e LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// Is reports whether target is ErrLimitExceeded
func (e LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// Limiter is a token bucket shared by every request in the process. The bucket
// starts full and refills continuously at rate tokens per second up to burst.
type Limiter struct {
	bucket *rate.Limiter
	rate   float64
	now    func() time.Time
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter. A rate of zero or less disables limiting; a burst
// below one is raised to one.
func New(perSecond float64, burst int, opts ...Option) *Limiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	l := &Limiter{
		bucket: rate.NewLimiter(limit, burst),
		rate:   perSecond,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enabled reports whether the limiter ever rejects
func (l *Limiter) Enabled() bool {
	return l != nil && l.rate > 0
}

// Allow consumes one token and reports whether the operation is admitted
func (l *Limiter) Allow() bool {
	_, ok := l.take()
	return ok
}

// Acquire consumes one token or returns a LimitExceededError carrying the
// time until the next token is available.
func (l *Limiter) Acquire() error {
	if wait, ok := l.take(); !ok {
		return LimitExceededError{RetryAfter: wait}
	}
	return nil
}

// Tokens returns the number of tokens currently available
func (l *Limiter) Tokens() float64 {
	if !l.Enabled() {
		return math.Inf(1)
	}
	return l.bucket.TokensAt(l.now())
}

// take never leaves a reservation behind on rejection, so rejected requests
// do not push the next token further out.
func (l *Limiter) take() (time.Duration, bool) {
	if !l.Enabled() {
		return 0, true
	}

	now := l.now()
	if l.bucket.AllowN(now, 1) {
		return 0, true
	}

	missing := 1 - l.bucket.TokensAt(now)
	if missing <= 0 {
		return 0, false
	}
	return time.Duration(math.Ceil(missing / l.rate * float64(time.Second))), false
}

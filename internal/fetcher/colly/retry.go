package collyfetcher

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"slices"
	"time"
)

// DefaultRetryStatusCodes are the responses treated as transient.
var DefaultRetryStatusCodes = []int{429, 500, 502, 503, 504}

// ExponentialRetryPolicy decides which failed attempts are retried and how long
// to wait in between, with jittered exponential backoff.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	statusCodes []int
}

// NewExponentialRetryPolicy builds a policy allowing maxRetries retries after the
// first attempt. Zero durations and an empty code list fall back to defaults.
func NewExponentialRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration, statusCodes []int) *ExponentialRetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	if len(statusCodes) == 0 {
		statusCodes = DefaultRetryStatusCodes
	}
	return &ExponentialRetryPolicy{
		maxAttempts: maxRetries + 1,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		statusCodes: slices.Clone(statusCodes),
	}
}

// MaxAttempts is the total attempt budget.
func (p *ExponentialRetryPolicy) MaxAttempts() int { return p.maxAttempts }

// ShouldRetry reports whether a failed attempt (zero-based) should be retried.
// A response status decides on its own; without one only network timeouts retry.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, status, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt+1 >= p.maxAttempts {
		return false
	}
	if status != 0 {
		return slices.Contains(p.statusCodes, status)
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *ExponentialRetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

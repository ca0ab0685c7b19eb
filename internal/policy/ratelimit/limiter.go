// Package ratelimit keeps the crawler polite: each host gets its own token
// bucket, so listing and detail pages on one site share a request budget.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/fightstats-crawler/internal/metrics"
)

// Config sets the request budget of every host.
type Config struct {
	// RequestsPerSecond <= 0 disables limiting.
	RequestsPerSecond float64
	// Burst defaults to 1.
	Burst int
}

// Limiter hands out request slots per host. It is safe for concurrent use.
type Limiter struct {
	every rate.Limit
	burst int

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// New builds a Limiter from cfg.
func New(cfg Config) *Limiter {
	l := &Limiter{
		every: rate.Inf,
		burst: max(cfg.Burst, 1),
		hosts: map[string]*rate.Limiter{},
	}
	if cfg.RequestsPerSecond > 0 {
		l.every = rate.Limit(cfg.RequestsPerSecond)
	}
	return l
}

// Wait blocks until rawURL's host may be requested again or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if l.every == rate.Inf {
		return nil
	}
	start := time.Now()
	if err := l.bucket(hostKey(rawURL)).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// An immediately available token is not a delay.
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(d)
	}
	return nil
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.hosts[host]
	if !ok {
		b = rate.NewLimiter(l.every, l.burst)
		l.hosts[host] = b
	}
	return b
}

// hostKey folds case so ufcstats.com and UFCSTATS.com share a bucket.
func hostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

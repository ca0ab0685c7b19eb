// Package collyfetcher fetches and parses pages with gocolly, retrying
// transient failures and spacing requests per host.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/fightstats-crawler/internal/metrics"
	"github.com/JakeFAU/fightstats-crawler/internal/policy/ratelimit"
)

// ErrFetchFailed matches every error returned once a fetch gives up.
var ErrFetchFailed = errors.New("fetch failed")

// FetchError describes a fetch that failed for good.
type FetchError struct {
	URL      string
	Attempts int
	// Status is the last HTTP status seen, 0 when no response arrived.
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s failed after %d attempt(s): status %d: %v", e.URL, e.Attempts, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

// Unwrap exposes both ErrFetchFailed and the underlying cause.
func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}

// Config controls collector behavior.
type Config struct {
	UserAgent         string
	Timeout           time.Duration
	MaxRetries        int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	RetryStatusCodes  []int
	RequestsPerSecond float64
}

// Fetcher returns parsed documents using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	retry         *ExponentialRetryPolicy
	limiter       *ratelimit.Limiter
	logger        *zap.Logger
	sleep         func(context.Context, time.Duration) error
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type page struct {
	url    string
	status int
	body   []byte
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	// Retries revisit the same URL.
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		retry:         NewExponentialRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial, cfg.BackoffMax, cfg.RetryStatusCodes),
		limiter:       ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.RequestsPerSecond}),
		logger:        logger.Named("fetcher"),
		sleep:         sleepContext,
	}
}

// Fetch GETs rawURL and parses the body. Transient failures are retried within
// the attempt budget; the final failure is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	for attempt := 0; ; attempt++ {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		start := time.Now()
		p, err := f.fetchOnce(ctx, rawURL)
		metrics.ObserveFetch(rawURL, p.status)
		if err == nil {
			f.logger.Debug("fetched",
				zap.String("url", rawURL),
				zap.Int("status", p.status),
				zap.Duration("duration", time.Since(start)),
			)
			return newDocument(p)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, ctxErr)
		}
		if !f.retry.ShouldRetry(err, p.status, attempt) {
			return nil, &FetchError{URL: rawURL, Attempts: attempt + 1, Status: p.status, Err: err}
		}

		wait := f.retry.Backoff(attempt)
		metrics.ObserveRetry(rawURL)
		f.logger.Warn("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Int("status", p.status),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if err := f.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (page, error) {
	var (
		result   page
		fetchErr error
	)
	collector := f.buildCollector(&result, &fetchErr)
	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		if ctx.Err() != nil {
			// The visit goroutine may still be writing result.
			return page{}, err
		}
		return result, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(result *page, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *page, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = page{
			url:    r.Request.URL.String(),
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.status = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newDocument(p page) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.url, err)
	}
	if u, err := url.Parse(p.url); err == nil {
		doc.Url = u
	}
	return doc, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Package app builds the long-lived services of one crawl session from config
// and runs the session: ledger, ops server, crawl, final save and mirror.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/fightstats-crawler/internal/api"
	"github.com/JakeFAU/fightstats-crawler/internal/clock/system"
	"github.com/JakeFAU/fightstats-crawler/internal/config"
	"github.com/JakeFAU/fightstats-crawler/internal/crawl"
	"github.com/JakeFAU/fightstats-crawler/internal/dataset"
	collyfetcher "github.com/JakeFAU/fightstats-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/fightstats-crawler/internal/hash/sha256"
	idgen "github.com/JakeFAU/fightstats-crawler/internal/id/uuid"
	"github.com/JakeFAU/fightstats-crawler/internal/storage"
	"github.com/JakeFAU/fightstats-crawler/internal/store"
	"github.com/JakeFAU/fightstats-crawler/internal/store/postgres"
	"github.com/JakeFAU/fightstats-crawler/internal/ufcstats"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Deps override the services New would build from config. Zero fields are
// built from config.
type Deps struct {
	Fetcher crawl.Fetcher
	Ledger  store.RunLedger
	Mirror  storage.Provider
	Clock   Clock
}

// App holds the services of one crawl session.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	session    uuid.UUID
	controller *dataset.Controller
	driver     *crawl.Driver
	ledger     store.RunLedger
	mirror     *storage.Mirror
	closers    []func()
	clock      Clock
	scope      string

	mu     sync.Mutex
	status api.RunStatus
}

// New wires every service. It fails fast when a configured backend is
// unreachable, before any page is fetched.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, deps Deps) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, clock: deps.Clock}
	if a.clock == nil {
		a.clock = system.New()
	}

	sessionStr, err := idgen.New().NewID()
	if err != nil {
		return nil, err
	}
	if a.session, err = idgen.Parse(sessionStr); err != nil {
		return nil, err
	}

	skipEvents, skipFights, skipFighters := cfg.Crawl.Scope()
	opts := crawl.Options{
		IgnoreErrors:           cfg.Crawl.IgnoreErrors,
		Prepend:                cfg.Crawl.Prepend,
		SkipEvents:             skipEvents,
		SkipFights:             skipFights,
		SkipFighters:           skipFighters,
		FighterChars:           cfg.Crawl.FighterChars,
		FirstPage:              cfg.Crawl.FirstPage,
		MaxPages:               cfg.Crawl.MaxPages,
		MaxConsecutiveFailures: cfg.Crawl.MaxConsecutiveFailures,
		KeepChildIDs:           cfg.Crawl.KeepChildIDs,
		SkipExistingFighters:   cfg.Crawl.SkipExistingFighters,
	}
	a.scope = scopeOf(opts)

	a.controller, err = dataset.NewController(crawl.Specs(opts), dataset.ControllerOptions{
		Dir:     cfg.Data.Dir,
		Session: sessionStr,
		Update:  cfg.Data.Update,
		Direct:  cfg.Data.Direct,
	}, logger.Named("dataset"))
	if err != nil {
		return nil, fmt.Errorf("open datasets: %w", err)
	}

	site, err := ufcstats.NewSite(cfg.Site.BaseURL)
	if err != nil {
		return nil, err
	}
	fetcher := deps.Fetcher
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:         cfg.HTTP.UserAgent,
			Timeout:           cfg.HTTP.FetchTimeout(),
			MaxRetries:        cfg.HTTP.MaxRetries,
			BackoffInitial:    cfg.HTTP.BackoffInitial(),
			BackoffMax:        cfg.HTTP.BackoffMax(),
			RetryStatusCodes:  cfg.HTTP.RetryStatusCodes,
			RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		}, logger)
	}

	a.driver, err = crawl.New(crawl.Deps{
		Fetcher:  fetcher,
		Site:     site,
		Events:   ufcstats.EventExtractor{},
		Fights:   ufcstats.FightExtractor{},
		Fighters: ufcstats.FighterExtractor{},
		Store:    &trackingStore{Controller: a.controller, app: a},
		Hasher:   sha256.New(),
		Logger:   logger,
	}, opts)
	if err != nil {
		return nil, err
	}

	if err := a.initLedger(ctx, deps.Ledger); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initMirror(ctx, deps.Mirror); err != nil {
		a.Close()
		return nil, err
	}

	a.status = api.RunStatus{Session: sessionStr, Records: a.recordCounts()}
	logger.Info("application services initialized",
		zap.String("session", sessionStr),
		zap.String("scope", a.scope),
		zap.String("data_dir", cfg.Data.Dir),
	)
	return a, nil
}

func (a *App) initLedger(ctx context.Context, ledger store.RunLedger) error {
	switch {
	case ledger != nil:
		a.ledger = ledger
	case a.cfg.DB.DSN != "":
		a.logger.Info("connecting to run ledger", zap.String("table", a.cfg.DB.Table))
		pg, err := postgres.New(ctx, postgres.Config{DSN: a.cfg.DB.DSN, Table: a.cfg.DB.Table, MaxConns: a.cfg.DB.MaxConns})
		if err != nil {
			return fmt.Errorf("init run ledger: %w", err)
		}
		a.ledger = pg
	default:
		a.ledger = store.NoOpLedger{}
	}
	a.closers = append(a.closers, a.ledger.Close)
	return nil
}

func (a *App) initMirror(ctx context.Context, provider storage.Provider) error {
	switch {
	case provider != nil:
	case a.cfg.Storage.GCSBucket != "":
		a.logger.Info("mirroring datasets to GCS", zap.String("bucket", a.cfg.Storage.GCSBucket))
		gcs, err := storage.NewGCSProvider(ctx, a.cfg.Storage.GCSBucket)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := gcs.Close(); err != nil {
				a.logger.Warn("closing GCS client", zap.Error(err))
			}
		})
		provider = gcs
	case a.cfg.Storage.LocalDir != "":
		a.logger.Info("mirroring datasets to local directory", zap.String("dir", a.cfg.Storage.LocalDir))
		local, err := storage.NewLocalProvider(a.cfg.Storage.LocalDir)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		provider = local
	default:
		provider = &storage.NoOpProvider{}
	}
	a.mirror = storage.NewMirror(provider, a.cfg.Storage.Prefix, a.logger)
	return nil
}

// Session is the id suffixing this run's progress files.
func (a *App) Session() string {
	return a.session.String()
}

// Controller exposes the session's datasets.
func (a *App) Controller() *dataset.Controller {
	return a.controller
}

// Run crawls once. A failed or interrupted crawl leaves the canonical files as
// they were and its progress files behind; a successful one promotes the
// progress files and mirrors the results.
func (a *App) Run(ctx context.Context) error {
	started := a.clock.Now()
	a.setStatus(func(s *api.RunStatus) {
		s.State = api.StateRunning
		s.StartedAt = started
	})
	if err := a.ledger.StartRun(ctx, a.session, started, a.scope); err != nil {
		a.logger.Warn("run ledger unavailable", zap.Error(err))
	}

	serverCtx, stopServer := context.WithCancel(ctx)
	var serverDone chan struct{}
	if addr := a.cfg.Server.Addr; addr != "" {
		serverDone = make(chan struct{})
		srv := api.NewServer(a, a.logger)
		go func() {
			defer close(serverDone)
			if err := srv.Serve(serverCtx, addr); err != nil {
				a.logger.Error("ops server stopped", zap.Error(err))
			}
		}()
	}
	defer func() {
		stopServer()
		if serverDone != nil {
			<-serverDone
		}
	}()

	crawlCtx := ctx
	if a.cfg.Crawl.Timeout > 0 {
		var cancel context.CancelFunc
		crawlCtx, cancel = context.WithTimeout(ctx, a.cfg.Crawl.Timeout)
		defer cancel()
	}

	runErr := a.driver.Run(crawlCtx)
	failed := runErr != nil
	if failed {
		a.logger.Error("crawl failed, keeping progress files", zap.Error(runErr))
	}
	saveErr := a.controller.Finalize(failed)
	if saveErr != nil {
		failed = true
	}
	if !failed {
		if err := a.mirror.Upload(ctx, a.Session(), a.canonicalPaths()); err != nil {
			a.logger.Warn("mirror incomplete", zap.Error(err))
		}
	}

	err := errors.Join(runErr, saveErr)
	a.finish(ctx, err)
	return err
}

func (a *App) finish(ctx context.Context, runErr error) {
	finished := a.clock.Now()
	status, state := store.RunSuccess, api.StateSucceeded
	var msg *string
	if runErr != nil {
		status, state = store.RunError, api.StateFailed
		m := runErr.Error()
		msg = &m
	}
	records := a.recordCounts()
	a.setStatus(func(s *api.RunStatus) {
		s.State = state
		s.FinishedAt = &finished
		s.Records = records
		if msg != nil {
			s.Error = *msg
		}
	})

	// The run context may be canceled already; the ledger row should still close.
	ledgerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := a.ledger.FinishRun(ledgerCtx, a.session, finished, status, records, msg); err != nil {
		a.logger.Warn("run ledger not updated", zap.Error(err))
	}
	a.logger.Info("crawl finished",
		zap.String("status", string(status)),
		zap.Duration("elapsed", finished.Sub(a.status.StartedAt)),
		zap.Any("records", records),
	)
}

// RunStatus implements api.StatusSource.
func (a *App) RunStatus() api.RunStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.status
	st.Records = make(map[string]int, len(a.status.Records))
	for k, v := range a.status.Records {
		st.Records[k] = v
	}
	return st
}

func (a *App) setStatus(update func(*api.RunStatus)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	update(&a.status)
}

// recordCounts reads dataset sizes. Call it from the crawl goroutine only.
func (a *App) recordCounts() map[string]int {
	counts := map[string]int{}
	for _, name := range a.controller.Names() {
		ds, err := a.controller.Dataset(name)
		if err != nil || ds.Disabled() {
			continue
		}
		counts[name] = ds.Len()
	}
	return counts
}

func (a *App) canonicalPaths() []string {
	var paths []string
	for _, name := range a.controller.Names() {
		ds, err := a.controller.Dataset(name)
		if err != nil || ds.Disabled() {
			continue
		}
		paths = append(paths, ds.Path())
	}
	return paths
}

// Close shuts down services in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}

func scopeOf(opts crawl.Options) string {
	var parts []string
	if !opts.SkipEvents {
		parts = append(parts, ufcstats.Events)
	}
	if !opts.SkipFights {
		parts = append(parts, ufcstats.Fights)
	}
	if !opts.SkipFighters {
		parts = append(parts, ufcstats.Fighters)
	}
	return strings.Join(parts, ",")
}

// trackingStore publishes dataset sizes to the run status after each mutation.
type trackingStore struct {
	*dataset.Controller
	app *App
}

func (s *trackingStore) Insert(name string, prepend bool, recs ...dataset.Record) error {
	err := s.Controller.Insert(name, prepend, recs...)
	s.publish()
	return err
}

func (s *trackingStore) Drop(name string, cols ...string) error {
	err := s.Controller.Drop(name, cols...)
	s.publish()
	return err
}

func (s *trackingStore) publish() {
	counts := s.app.recordCounts()
	s.app.setStatus(func(st *api.RunStatus) { st.Records = counts })
}

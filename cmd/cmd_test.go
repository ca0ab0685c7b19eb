package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/fightstats-crawler/internal/config"
	"github.com/JakeFAU/fightstats-crawler/internal/store"
)

type fakeRunner struct {
	err    error
	ran    bool
	closed bool
}

func (f *fakeRunner) Run(context.Context) error { f.ran = true; return f.err }
func (f *fakeRunner) Session() string           { return "sess" }
func (f *fakeRunner) Close()                    { f.closed = true }

// stubApp swaps the package factories for the duration of a test.
func stubApp(t *testing.T, runner *fakeRunner) *config.Config {
	t.Helper()
	var got config.Config
	prevRunner, prevLogger := newRunner, newLogger
	newRunner = func(_ context.Context, cfg config.Config, _ *zap.Logger) (Runner, error) {
		got = cfg
		return runner, nil
	}
	newLogger = func(config.LoggingConfig) (*zap.Logger, error) { return zap.NewNop(), nil }
	t.Cleanup(func() { newRunner, newLogger = prevRunner, prevLogger })
	return &got
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	code := execute(context.Background(), root, args, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCrawlFlagsReachConfig(t *testing.T) {
	runner := &fakeRunner{}
	cfg := stubApp(t, runner)
	dir := t.TempDir()

	code, _, stderr := run("crawl",
		"--data-dir", dir,
		"--ignore-errors",
		"--update",
		"--scrape", "fighters",
		"--max-pages", "4",
		"--timeout", "90s",
	)
	require.Equal(t, 0, code, stderr)

	assert.True(t, runner.ran)
	assert.True(t, runner.closed)
	assert.Equal(t, dir, cfg.Data.Dir)
	assert.True(t, cfg.Crawl.IgnoreErrors)
	assert.True(t, cfg.Data.Update)
	assert.False(t, cfg.Data.Direct)
	assert.Equal(t, 4, cfg.Crawl.MaxPages)
	assert.Equal(t, 90*time.Second, cfg.Crawl.Timeout)

	skipEvents, skipFights, skipFighters := cfg.Crawl.Scope()
	assert.True(t, skipEvents)
	assert.True(t, skipFights)
	assert.False(t, skipFighters)
}

func TestCrawlFailureExitsNonZero(t *testing.T) {
	runner := &fakeRunner{err: errors.New("fetch exploded")}
	stubApp(t, runner)

	code, _, stderr := run("crawl", "--data-dir", t.TempDir())
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "fetch exploded")
	assert.True(t, runner.closed)
}

func TestCrawlRejectsBadScrape(t *testing.T) {
	runner := &fakeRunner{}
	stubApp(t, runner)

	code, _, stderr := run("crawl", "--scrape", "fights")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "crawl.scrape")
	assert.False(t, runner.ran)
}

func TestCrawlRejectsArgs(t *testing.T) {
	stubApp(t, &fakeRunner{})

	code, _, _ := run("crawl", "extra")
	assert.Equal(t, 1, code)
}

type fakeLedger struct {
	store.NoOpLedger
	run store.Run
	err error
}

func (f fakeLedger) LastRun(context.Context) (store.Run, error) { return f.run, f.err }

func stubLedger(t *testing.T, l store.RunLedger) {
	t.Helper()
	prev := openLedger
	openLedger = func(*cobra.Command, config.DBConfig) (store.RunLedger, error) { return l, nil }
	t.Cleanup(func() { openLedger = prev })
}

func TestLastRunPrintsRun(t *testing.T) {
	started := time.Date(2024, 4, 13, 22, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Minute)
	msg := "fetch failed"
	stubLedger(t, fakeLedger{run: store.Run{
		ID:           uuid.MustParse("01900000-0000-7000-8000-000000000001"),
		StartedAt:    started,
		FinishedAt:   &finished,
		Status:       store.RunError,
		Scope:        "events,fights",
		Records:      map[string]int{"events": 3, "fights": 30},
		ErrorMessage: &msg,
	}})

	code, stdout, stderr := run("last-run")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "01900000-0000-7000-8000-000000000001")
	assert.Contains(t, stdout, "status:   error")
	assert.Contains(t, stdout, "2m0s")
	assert.Contains(t, stdout, "fights:")
	assert.Contains(t, stdout, "error:    fetch failed")
}

func TestLastRunEmptyLedger(t *testing.T) {
	stubLedger(t, fakeLedger{err: store.ErrNotFound})

	code, stdout, _ := run("last-run")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "no runs recorded")
}

func TestLastRunNeedsDSN(t *testing.T) {
	code, _, stderr := run("last-run")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "db.dsn")
}

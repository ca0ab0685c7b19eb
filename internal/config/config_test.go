package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.Data.Dir)
	assert.False(t, cfg.Data.Direct)
	assert.Equal(t, ScrapeAll, cfg.Crawl.Scrape)
	assert.Equal(t, 1, cfg.Crawl.FirstPage)
	assert.Equal(t, 5, cfg.Crawl.MaxConsecutiveFailures)
	assert.True(t, cfg.Crawl.SkipExistingFighters)
	assert.Equal(t, "http://ufcstats.com/", cfg.Site.BaseURL)
	assert.Equal(t, []int{429, 500, 502, 503, 504}, cfg.HTTP.RetryStatusCodes)
	assert.Equal(t, 15*time.Second, cfg.HTTP.FetchTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.HTTP.BackoffInitial())
	assert.Equal(t, 10*time.Second, cfg.HTTP.BackoffMax())
	assert.Equal(t, "crawl_runs", cfg.DB.Table)
	assert.Empty(t, cfg.Server.Addr)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
data:
  dir: /var/lib/fightstats
  update: true
crawl:
  scrape: events
  ignore_errors: true
  fighter_chars: [a, b]
  max_pages: 3
  timeout: 30m
http:
  user_agent: test-agent
  max_retries: 1
  retry_status_codes: [503]
  requests_per_second: 0.5
storage:
  gcs_bucket: stats-bucket
db:
  dsn: postgres://localhost/fightstats
logging:
  development: false
  file: scraper.log
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/fightstats", cfg.Data.Dir)
	assert.True(t, cfg.Data.Update)
	assert.True(t, cfg.Crawl.IgnoreErrors)
	assert.Equal(t, []string{"a", "b"}, cfg.Crawl.FighterChars)
	assert.Equal(t, 3, cfg.Crawl.MaxPages)
	assert.Equal(t, 30*time.Minute, cfg.Crawl.Timeout)
	assert.Equal(t, "test-agent", cfg.HTTP.UserAgent)
	assert.Equal(t, []int{503}, cfg.HTTP.RetryStatusCodes)
	assert.InDelta(t, 0.5, cfg.HTTP.RequestsPerSecond, 1e-9)
	assert.Equal(t, "stats-bucket", cfg.Storage.GCSBucket)
	assert.Equal(t, "postgres://localhost/fightstats", cfg.DB.DSN)
	assert.Equal(t, "scraper.log", cfg.Logging.File)

	skipEvents, skipFights, skipFighters := cfg.Crawl.Scope()
	assert.False(t, skipEvents)
	assert.False(t, skipFights)
	assert.True(t, skipFighters)
}

func TestLoadFlagsWin(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data:\n  dir: from-file\n"), 0o600))

	flags := pflag.NewFlagSet("crawl", pflag.ContinueOnError)
	flags.String("data-dir", "", "")
	flags.Bool("direct", false, "")
	flags.String("scrape", ScrapeAll, "")
	flags.Bool("unrelated", false, "")
	require.NoError(t, flags.Parse([]string{"--data-dir", "from-flag", "--direct", "--scrape", "fighters"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Data.Dir)
	assert.True(t, cfg.Data.Direct)

	skipEvents, skipFights, skipFighters := cfg.Crawl.Scope()
	assert.True(t, skipEvents)
	assert.True(t, skipFights)
	assert.False(t, skipFighters)
}

func TestLoadUnsetFlagKeepsFileValue(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data:\n  dir: from-file\n"), 0o600))

	flags := pflag.NewFlagSet("crawl", pflag.ContinueOnError)
	flags.String("data-dir", "data", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Data.Dir)
}

func TestValidateBoundedIgnoreErrors(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", nil)
	require.NoError(t, err)
	cfg.Crawl.IgnoreErrors = true
	require.NoError(t, cfg.Validate(), "default failure cap bounds the run")

	cfg.Crawl.MaxConsecutiveFailures = 0
	cfg.Crawl.MaxPages = 10
	require.NoError(t, cfg.Validate(), "page cap bounds the run")
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("", nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty dir", func(c *Config) { c.Data.Dir = " " }, "data.dir"},
		{"bad scrape", func(c *Config) { c.Crawl.Scrape = "fights" }, "crawl.scrape"},
		{"first page", func(c *Config) { c.Crawl.FirstPage = 0 }, "crawl.first_page"},
		{"max pages", func(c *Config) { c.Crawl.MaxPages = -1 }, "crawl.max_pages"},
		{"failures", func(c *Config) { c.Crawl.MaxConsecutiveFailures = -1 }, "crawl.max_consecutive_failures"},
		{"unbounded ignore errors", func(c *Config) {
			c.Crawl.IgnoreErrors = true
			c.Crawl.MaxConsecutiveFailures = 0
			c.Crawl.MaxPages = 0
		}, "crawl.max_consecutive_failures must be > 0"},
		{"timeout", func(c *Config) { c.Crawl.Timeout = -time.Second }, "crawl.timeout"},
		{"chars", func(c *Config) { c.Crawl.FighterChars = []string{"ab"} }, "crawl.fighter_chars"},
		{"base url", func(c *Config) { c.Site.BaseURL = "" }, "site.base_url"},
		{"http timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"retries", func(c *Config) { c.HTTP.MaxRetries = -1 }, "http.max_retries"},
		{"backoff", func(c *Config) { c.HTTP.BackoffMaxMs = 1 }, "http.backoff_max_ms"},
		{"rps", func(c *Config) { c.HTTP.RequestsPerSecond = -1 }, "http.requests_per_second"},
		{"codes", func(c *Config) { c.HTTP.RetryStatusCodes = []int{42} }, "http.retry_status_codes"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Crawl.FighterChars = nil
			cfg.HTTP.RetryStatusCodes = nil
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

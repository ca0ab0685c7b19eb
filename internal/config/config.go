// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Scrape targets accepted by crawl.scrape.
const (
	ScrapeAll      = "all"
	ScrapeEvents   = "events"
	ScrapeFighters = "fighters"
)

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Data    DataConfig    `mapstructure:"data"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Site    SiteConfig    `mapstructure:"site"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// DataConfig locates the datasets and picks the save mode.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
	// Direct writes canonical files on every save instead of progress files.
	Direct bool `mapstructure:"direct"`
	// Update re-fetches stored entities and overwrites them.
	Update bool `mapstructure:"update"`
}

// CrawlConfig governs the crawl driver.
type CrawlConfig struct {
	Scrape                 string        `mapstructure:"scrape"`
	IgnoreErrors           bool          `mapstructure:"ignore_errors"`
	Prepend                bool          `mapstructure:"prepend"`
	SkipEvents             bool          `mapstructure:"skip_events"`
	SkipFights             bool          `mapstructure:"skip_fights"`
	SkipFighters           bool          `mapstructure:"skip_fighters"`
	FighterChars           []string      `mapstructure:"fighter_chars"`
	FirstPage              int           `mapstructure:"first_page"`
	MaxPages               int           `mapstructure:"max_pages"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	KeepChildIDs           bool          `mapstructure:"keep_child_ids"`
	SkipExistingFighters   bool          `mapstructure:"skip_existing_fighters"`
	Timeout                time.Duration `mapstructure:"timeout"`
}

// SiteConfig points the extractor at the stats site.
type SiteConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// HTTPConfig configures fetch timeouts, retries and politeness.
type HTTPConfig struct {
	UserAgent         string  `mapstructure:"user_agent"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxRetries        int     `mapstructure:"max_retries"`
	BackoffInitialMs  int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int     `mapstructure:"backoff_max_ms"`
	RetryStatusCodes  []int   `mapstructure:"retry_status_codes"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// ServerConfig controls the ops HTTP server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StorageConfig enables mirroring canonical datasets after a successful run.
// GCSBucket wins over LocalDir; with neither set nothing is mirrored.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig enables the Postgres run ledger.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	Level       string `mapstructure:"level"`
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"data-dir":      "data.dir",
	"direct":        "data.direct",
	"update":        "data.update",
	"scrape":        "crawl.scrape",
	"ignore-errors": "crawl.ignore_errors",
	"prepend":       "crawl.prepend",
	"skip-events":   "crawl.skip_events",
	"skip-fights":   "crawl.skip_fights",
	"skip-fighters": "crawl.skip_fighters",
	"max-pages":     "crawl.max_pages",
	"timeout":       "crawl.timeout",
	"metrics-addr":  "server.addr",
	"log-file":      "logging.file",
	"log-level":     "logging.level",
	"dev":           "logging.development",
}

// Load builds a Config from the optional file at path, FIGHTSTATS_* environment
// variables and any flags in flags that were set. Flags win over the
// environment, which wins over the file.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FIGHTSTATS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.direct", false)
	v.SetDefault("data.update", false)
	v.SetDefault("crawl.scrape", ScrapeAll)
	v.SetDefault("crawl.ignore_errors", false)
	v.SetDefault("crawl.prepend", false)
	v.SetDefault("crawl.skip_events", false)
	v.SetDefault("crawl.skip_fights", false)
	v.SetDefault("crawl.skip_fighters", false)
	v.SetDefault("crawl.fighter_chars", []string{})
	v.SetDefault("crawl.first_page", 1)
	v.SetDefault("crawl.max_pages", 0)
	v.SetDefault("crawl.max_consecutive_failures", 5)
	v.SetDefault("crawl.keep_child_ids", false)
	v.SetDefault("crawl.skip_existing_fighters", true)
	v.SetDefault("crawl.timeout", time.Duration(0))
	v.SetDefault("site.base_url", "http://ufcstats.com/")
	v.SetDefault("http.user_agent", "fightstats-crawler/0.1")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 10000)
	v.SetDefault("http.retry_status_codes", []int{429, 500, 502, 503, 504})
	v.SetDefault("http.requests_per_second", 2.0)
	v.SetDefault("server.addr", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("storage.prefix", "fightstats")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "crawl_runs")
	v.SetDefault("db.max_conns", 2)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Data.Dir) == "" {
		return fmt.Errorf("data.dir must be set")
	}
	switch c.Crawl.Scrape {
	case ScrapeAll, ScrapeEvents, ScrapeFighters:
	default:
		return fmt.Errorf("crawl.scrape must be one of %s, %s, %s", ScrapeAll, ScrapeEvents, ScrapeFighters)
	}
	if c.Crawl.FirstPage < 1 {
		return fmt.Errorf("crawl.first_page must be >= 1")
	}
	if c.Crawl.MaxPages < 0 {
		return fmt.Errorf("crawl.max_pages must be >= 0")
	}
	if c.Crawl.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("crawl.max_consecutive_failures must be >= 0")
	}
	// A listing that keeps failing would otherwise be retried page after page forever.
	if c.Crawl.IgnoreErrors && c.Crawl.MaxConsecutiveFailures == 0 && c.Crawl.MaxPages == 0 {
		return fmt.Errorf("crawl.max_consecutive_failures must be > 0 when crawl.ignore_errors is set without crawl.max_pages")
	}
	if c.Crawl.Timeout < 0 {
		return fmt.Errorf("crawl.timeout must be >= 0")
	}
	for _, ch := range c.Crawl.FighterChars {
		if len(ch) != 1 || ch[0] < 'a' || ch[0] > 'z' {
			return fmt.Errorf("crawl.fighter_chars must be single letters a-z, got %q", ch)
		}
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url must be set")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.BackoffMaxMs < c.HTTP.BackoffInitialMs {
		return fmt.Errorf("http.backoff_max_ms must be >= http.backoff_initial_ms")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	for _, code := range c.HTTP.RetryStatusCodes {
		if code < 100 || code > 599 {
			return fmt.Errorf("http.retry_status_codes must be HTTP status codes, got %d", code)
		}
	}
	return nil
}

// Scope resolves crawl.scrape and the skip flags. Scraping only fighters skips
// events and fights; scraping only events skips fighters.
func (c CrawlConfig) Scope() (skipEvents, skipFights, skipFighters bool) {
	skipEvents = c.SkipEvents || c.Scrape == ScrapeFighters
	skipFights = c.SkipFights || c.Scrape == ScrapeFighters
	skipFighters = c.SkipFighters || c.Scrape == ScrapeEvents
	return skipEvents, skipFights, skipFighters
}

// FetchTimeout is the per-request HTTP timeout.
func (c HTTPConfig) FetchTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffInitial is the first retry delay.
func (c HTTPConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps the retry delay.
func (c HTTPConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
	Search     SearchConfig     `mapstructure:"search"`
	Session    SessionConfig    `mapstructure:"session"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Images     ImagesConfig     `mapstructure:"images"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServerConfig controls the status/metrics HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SearchConfig governs the partitioner and extractor.
type SearchConfig struct {
	Keywords        []string `mapstructure:"keywords"`
	StartDate       string   `mapstructure:"start_date"`
	EndDate         string   `mapstructure:"end_date"`
	Threshold       int      `mapstructure:"threshold"`
	LimitPerKeyword int      `mapstructure:"limit_per_keyword"`
	MaxPages        int      `mapstructure:"max_pages"`
	Regions         []string `mapstructure:"regions"`
	TypeFilter      string   `mapstructure:"type_filter"`
	ContainFilter   string   `mapstructure:"contain_filter"`
}

// SessionConfig holds the identifying headers carried on every fetch.
type SessionConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	Cookie         string `mapstructure:"cookie"`
	AcceptLanguage string `mapstructure:"accept_language"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StorageConfig sets paths for the ledger and the CSV sink.
type StorageConfig struct {
	LedgerPath string `mapstructure:"ledger_path"`
	CSVPath    string `mapstructure:"csv_path"`
}

// ImagesConfig controls the download pool and staging area.
type ImagesConfig struct {
	StagingDir     string `mapstructure:"staging_dir"`
	Workers        int    `mapstructure:"workers"`
	QueueDepth     int    `mapstructure:"queue_depth"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Referer        string `mapstructure:"referer"`
}

// OCRConfig controls the recognition gate.
type OCRConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	Keyword          string   `mapstructure:"keyword"`
	Languages        []string `mapstructure:"languages"`
	MaxEdge          int      `mapstructure:"max_edge"`
	PollIntervalMs   int      `mapstructure:"poll_interval_ms"`
	ErrorBackoffSecs int      `mapstructure:"error_backoff_seconds"`
}

// NotifyConfig configures the outbound webhook.
type NotifyConfig struct {
	WebhookURL     string `mapstructure:"webhook_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SupervisorConfig controls the outer crawl cycle.
type SupervisorConfig struct {
	CycleDelaySeconds   int `mapstructure:"cycle_delay_seconds"`
	CycleJitterSeconds  int `mapstructure:"cycle_jitter_seconds"`
	ErrorBackoffSeconds int `mapstructure:"error_backoff_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FEEDSENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
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
	today := time.Now().Format(dateLayout)

	v.SetDefault("logging.development", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("search.start_date", today)
	v.SetDefault("search.end_date", today)
	v.SetDefault("search.threshold", 46)
	v.SetDefault("search.limit_per_keyword", 0)
	v.SetDefault("search.max_pages", 50)
	v.SetDefault("session.user_agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.114 Safari/537.36")
	v.SetDefault("session.accept_language", "zh-CN,zh;q=0.9,en;q=0.8")
	v.SetDefault("session.timeout_seconds", 15)
	v.SetDefault("storage.ledger_path", "results/processed_ids.txt")
	v.SetDefault("storage.csv_path", "results/all_results.csv")
	v.SetDefault("images.staging_dir", "results/images")
	v.SetDefault("images.workers", 10)
	v.SetDefault("images.queue_depth", 256)
	v.SetDefault("images.timeout_seconds", 30)
	v.SetDefault("images.referer", "https://weibo.com/")
	v.SetDefault("ocr.enabled", true)
	v.SetDefault("ocr.keyword", "扫码")
	v.SetDefault("ocr.languages", []string{"chi_sim", "eng"})
	v.SetDefault("ocr.max_edge", 800)
	v.SetDefault("ocr.poll_interval_ms", 500)
	v.SetDefault("ocr.error_backoff_seconds", 2)
	v.SetDefault("notify.timeout_seconds", 10)
	v.SetDefault("supervisor.cycle_delay_seconds", 2)
	v.SetDefault("supervisor.cycle_jitter_seconds", 3)
	v.SetDefault("supervisor.error_backoff_seconds", 5)
}

const dateLayout = "2006-01-02"

// Validate enforces required values before any network activity happens.
func (c Config) Validate() error {
	if len(c.Search.Keywords) == 0 {
		return fmt.Errorf("search.keywords must not be empty")
	}
	start, end, err := c.DateWindow()
	if err != nil {
		return err
	}
	if start.After(end) {
		return fmt.Errorf("search.start_date %s must not be later than search.end_date %s",
			c.Search.StartDate, c.Search.EndDate)
	}
	if c.Search.Threshold <= 0 {
		return fmt.Errorf("search.threshold must be > 0")
	}
	if c.Images.Workers <= 0 {
		return fmt.Errorf("images.workers must be > 0")
	}
	if c.OCR.Enabled && c.OCR.Keyword == "" {
		return fmt.Errorf("ocr.keyword must be set when ocr is enabled")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// DateWindow parses the configured date bounds.
func (c Config) DateWindow() (start, end time.Time, err error) {
	start, err = time.ParseInLocation(dateLayout, c.Search.StartDate, time.Local)
	if err != nil {
		return start, end, fmt.Errorf("parse search.start_date: %w", err)
	}
	end, err = time.ParseInLocation(dateLayout, c.Search.EndDate, time.Local)
	if err != nil {
		return start, end, fmt.Errorf("parse search.end_date: %w", err)
	}
	return start, end, nil
}

// SessionTimeout converts the session timeout into a duration.
func (c Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutSeconds) * time.Second
}

// Package config loads and validates noticewatch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/noticewatch/internal/adapter/htmllist"
	"github.com/JakeFAU/noticewatch/internal/ingest"
	"github.com/JakeFAU/noticewatch/internal/logging"
	"github.com/JakeFAU/noticewatch/internal/novelty"
)

// History backends.
const (
	BackendFile     = "file"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
)

// Notifier backends.
const (
	NotifyLog    = "log"
	NotifyMemory = "memory"
	NotifyPubSub = "pubsub"
)

// Source kinds.
const (
	KindRSS  = "rss"
	KindHTML = "html"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging    logging.Config   `mapstructure:"logging"`
	History    HistoryConfig    `mapstructure:"history"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Run        RunConfig        `mapstructure:"run"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Serve      ServeConfig      `mapstructure:"serve"`
	Sources    []SourceConfig   `mapstructure:"sources"`
}

// HistoryConfig selects where the history store lives.
type HistoryConfig struct {
	Backend  string         `mapstructure:"backend"`
	Path     string         `mapstructure:"path"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// GCSConfig names the object holding the history document.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Object string `mapstructure:"object"`
}

// PostgresConfig controls the relational history backend.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// FetchConfig configures the plain HTTP fetcher.
type FetchConfig struct {
	UserAgent string            `mapstructure:"user_agent"`
	Timeout   time.Duration     `mapstructure:"timeout"`
	Headers   map[string]string `mapstructure:"headers"`
}

// BrowserConfig configures the scripted browser fetcher.
type BrowserConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	ExecPath          string        `mapstructure:"exec_path"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
}

// PolitenessConfig bounds the random pause between consecutive fetches.
type PolitenessConfig struct {
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

// RunConfig bounds a single run.
type RunConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// NotifyConfig selects the delta consumer.
type NotifyConfig struct {
	Backend string       `mapstructure:"backend"`
	PubSub  PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig holds the topic deltas are published to.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the Pushgateway used by one-shot runs.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// TracingConfig controls span sampling.
type TracingConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// ServeConfig controls the long-running mode.
type ServeConfig struct {
	Port     int           `mapstructure:"port"`
	Interval time.Duration `mapstructure:"interval"`
}

// SourceConfig describes one upstream.
type SourceConfig struct {
	Label                string             `mapstructure:"label"`
	Kind                 string             `mapstructure:"kind"`
	Mode                 string             `mapstructure:"mode"`
	Policy               string             `mapstructure:"policy"`
	ReadySelector        string             `mapstructure:"ready_selector"`
	NotYetAvailableOn404 bool               `mapstructure:"not_yet_available_on_404"`
	Limit                int                `mapstructure:"limit"`
	Headers              map[string]string  `mapstructure:"headers"`
	Selectors            htmllist.Selectors `mapstructure:"selectors"`
	Categories           []CategoryConfig   `mapstructure:"categories"`
}

// CategoryConfig maps a category name to its URL. The URL may contain
// {month}, {day} and {year} placeholders.
type CategoryConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NOTICEWATCH")
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
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("history.backend", BackendFile)
	v.SetDefault("history.path", "./data/notices.json")
	v.SetDefault("history.gcs.object", "noticewatch/notices.json")
	v.SetDefault("history.postgres.table", "notices")
	v.SetDefault("history.postgres.max_conns", 4)
	v.SetDefault("history.postgres.max_conn_lifetime", time.Hour)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.max_attempts", 3)
	v.SetDefault("browser.initial_backoff", 5*time.Second)
	v.SetDefault("browser.ready_timeout", 15*time.Second)
	v.SetDefault("browser.navigation_timeout", 45*time.Second)
	v.SetDefault("politeness.min_delay", 3*time.Second)
	v.SetDefault("politeness.max_delay", 6*time.Second)
	v.SetDefault("run.timeout", 30*time.Minute)
	v.SetDefault("notify.backend", NotifyLog)
	v.SetDefault("metrics.job", "noticewatch")
	v.SetDefault("tracing.service_name", "noticewatch")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("serve.port", 8080)
	v.SetDefault("serve.interval", time.Hour)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.History.validate(); err != nil {
		return err
	}
	if c.Fetch.Timeout <= 0 {
		return errors.New("fetch.timeout must be > 0")
	}
	if c.Browser.Enabled {
		if c.Browser.MaxAttempts <= 0 {
			return errors.New("browser.max_attempts must be > 0")
		}
		if c.Browser.InitialBackoff < 0 {
			return errors.New("browser.initial_backoff must be >= 0")
		}
		if c.Browser.ReadyTimeout <= 0 {
			return errors.New("browser.ready_timeout must be > 0")
		}
	}
	if c.Politeness.MinDelay < 0 {
		return errors.New("politeness.min_delay must be >= 0")
	}
	if c.Politeness.MaxDelay < c.Politeness.MinDelay {
		return errors.New("politeness.max_delay must be >= politeness.min_delay")
	}
	if c.Run.Timeout < 0 {
		return errors.New("run.timeout must be >= 0")
	}
	switch c.Notify.Backend {
	case NotifyLog, NotifyMemory:
	case NotifyPubSub:
		if c.Notify.PubSub.ProjectID == "" || c.Notify.PubSub.Topic == "" {
			return errors.New("notify.pubsub.project_id and notify.pubsub.topic must be set when notify.backend is pubsub")
		}
	default:
		return fmt.Errorf("notify.backend %q is not one of log, memory, pubsub", c.Notify.Backend)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return errors.New("tracing.sample_ratio must be within [0, 1]")
	}
	if c.Serve.Port <= 0 {
		return errors.New("serve.port must be > 0")
	}
	if c.Serve.Interval <= 0 {
		return errors.New("serve.interval must be > 0")
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		if err := src.validate(i, c.Browser.Enabled); err != nil {
			return err
		}
		if _, dup := seen[src.Label]; dup {
			return fmt.Errorf("sources[%d].label %q is duplicated", i, src.Label)
		}
		seen[src.Label] = struct{}{}
	}
	return nil
}

func (h HistoryConfig) validate() error {
	switch h.Backend {
	case BackendFile:
		if h.Path == "" {
			return errors.New("history.path must be set when history.backend is file")
		}
	case BackendGCS:
		if h.GCS.Bucket == "" || h.GCS.Object == "" {
			return errors.New("history.gcs.bucket and history.gcs.object must be set when history.backend is gcs")
		}
	case BackendPostgres:
		if h.Postgres.DSN == "" {
			return errors.New("history.postgres.dsn must be set when history.backend is postgres")
		}
	default:
		return fmt.Errorf("history.backend %q is not one of file, gcs, postgres", h.Backend)
	}
	return nil
}

func (s SourceConfig) validate(i int, browserEnabled bool) error {
	key := fmt.Sprintf("sources[%d]", i)
	if strings.TrimSpace(s.Label) == "" {
		return fmt.Errorf("%s.label must be set", key)
	}
	switch s.Kind {
	case KindRSS:
	case KindHTML:
		if err := s.Selectors.Validate(); err != nil {
			return fmt.Errorf("%s.selectors: %w", key, err)
		}
	default:
		return fmt.Errorf("%s.kind %q is not one of rss, html", key, s.Kind)
	}
	switch ingest.FetchMode(s.Mode) {
	case "", ingest.ModePlain:
	case ingest.ModeBrowser:
		if !browserEnabled {
			return fmt.Errorf("%s.mode is browser but browser.enabled is false", key)
		}
	default:
		return fmt.Errorf("%s.mode %q is not one of plain, browser", key, s.Mode)
	}
	if _, err := novelty.ParsePolicy(s.Policy); err != nil {
		return fmt.Errorf("%s.policy: %w", key, err)
	}
	if s.Limit < 0 {
		return fmt.Errorf("%s.limit must be >= 0", key)
	}
	if len(s.Categories) == 0 {
		return fmt.Errorf("%s.categories must not be empty", key)
	}
	for j, cat := range s.Categories {
		if cat.Name == "" || cat.URL == "" {
			return fmt.Errorf("%s.categories[%d] needs name and url", key, j)
		}
	}
	return nil
}

// FetchMode returns the source's fetch mode, defaulting to plain.
func (s SourceConfig) FetchMode() ingest.FetchMode {
	if s.Mode == "" {
		return ingest.ModePlain
	}
	return ingest.FetchMode(s.Mode)
}

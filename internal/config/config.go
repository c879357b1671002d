package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for barsync.
type Config struct {
	Storage Storage `yaml:"storage"`
	Alpaca  Alpaca  `yaml:"alpaca"`
	Polygon Polygon `yaml:"polygon"`
	Sync    Sync    `yaml:"sync"`
	Logging Logging `yaml:"logging"`
	Metrics Metrics `yaml:"metrics"`
	Archive Archive `yaml:"archive"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir     string `yaml:"data_dir"`
	Market      string `yaml:"market"`
	LedgerPath  string `yaml:"ledger_path"`
	ErrorReport string `yaml:"error_report"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Polygon holds credentials for the Polygon REST API.
type Polygon struct {
	APIKey string `yaml:"api_key"`
}

// Sync controls the incremental synchronisation run.
type Sync struct {
	Provider             string        `yaml:"provider"`
	Universe             string        `yaml:"universe"`
	UniverseCSV          string        `yaml:"universe_csv"`
	StartDate            string        `yaml:"start_date"`
	Adjustment           string        `yaml:"adjustment"`
	Period               string        `yaml:"period"`
	MaxWorkers           int           `yaml:"max_workers"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	CalendarLookbackDays int           `yaml:"calendar_lookback_days"`
	UpstreamRetries      int           `yaml:"upstream_retries"`
	RateLimitPerMin      int           `yaml:"rate_limit_per_min"`
	BreakerFailures      int           `yaml:"breaker_failures"`
	BreakerCooldown      time.Duration `yaml:"breaker_cooldown"`
	Progress             string        `yaml:"progress"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Metrics configures the Prometheus endpoint. An empty Addr disables it.
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Archive configures uploading the error report to S3-compatible storage.
// An empty Endpoint disables it.
type Archive struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Prefix    string `yaml:"prefix"`
}

// Defaults used when a field is left empty.
const (
	DefaultStartDate      = "1990-12-19"
	DefaultAdjustment     = "all"
	DefaultPeriod         = "daily"
	DefaultMaxWorkers     = 200
	DefaultRequestTimeout = 15 * time.Second
	DefaultLookbackDays   = 30
	DefaultRetries        = 3
	DefaultCooldown       = 30 * time.Second
)

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("LEDGER_PATH"); v != "" {
		cfg.Storage.LedgerPath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		cfg.Polygon.APIKey = v
	}

	if v := os.Getenv("SYNC_PROVIDER"); v != "" {
		cfg.Sync.Provider = v
	}
	if v := os.Getenv("SYNC_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.MaxWorkers = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}

	// Standard Alpaca SDK env vars take precedence.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Market == "" {
		cfg.Storage.Market = "us"
	}
	if cfg.Storage.ErrorReport == "" && cfg.Storage.DataDir != "" {
		cfg.Storage.ErrorReport = filepath.Join(cfg.Storage.DataDir, "sync_errors.csv")
	}

	s := &cfg.Sync
	if s.Provider == "" {
		s.Provider = "alpaca"
	}
	if s.Universe == "" {
		s.Universe = "alpaca"
	}
	if s.StartDate == "" {
		s.StartDate = DefaultStartDate
	}
	if s.Adjustment == "" {
		s.Adjustment = DefaultAdjustment
	}
	if s.Period == "" {
		s.Period = DefaultPeriod
	}
	if s.MaxWorkers <= 0 {
		s.MaxWorkers = DefaultMaxWorkers
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	if s.CalendarLookbackDays <= 0 {
		s.CalendarLookbackDays = DefaultLookbackDays
	}
	if s.UpstreamRetries <= 0 {
		s.UpstreamRetries = DefaultRetries
	}
	if s.BreakerCooldown <= 0 {
		s.BreakerCooldown = DefaultCooldown
	}
	if s.Progress == "" {
		s.Progress = "terminal"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate reports configuration errors that would make a run meaningless.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if _, err := time.Parse("2006-01-02", c.Sync.StartDate); err != nil {
		return fmt.Errorf("sync.start_date %q: %w", c.Sync.StartDate, err)
	}

	switch c.Sync.Provider {
	case "alpaca", "polygon":
	default:
		return fmt.Errorf("sync.provider %q: want alpaca or polygon", c.Sync.Provider)
	}
	switch c.Sync.Universe {
	case "alpaca":
	case "csv":
		if c.Sync.UniverseCSV == "" {
			return fmt.Errorf("sync.universe_csv is required when sync.universe is csv")
		}
	default:
		return fmt.Errorf("sync.universe %q: want alpaca or csv", c.Sync.Universe)
	}
	switch c.Sync.Progress {
	case "terminal", "log", "none":
	default:
		return fmt.Errorf("sync.progress %q: want terminal, log or none", c.Sync.Progress)
	}
	if c.Archive.Endpoint != "" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive.endpoint is set")
	}
	return nil
}

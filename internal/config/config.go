// Package config loads service configuration from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // scheduler time zones must load on hosts without zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tse-market-sync/internal/batch"
	"tse-market-sync/internal/jobs"
	"tse-market-sync/internal/search"
	"tse-market-sync/internal/tsetmc"
)

// Environment overrides.
const (
	EnvPostgresDSN     = "TSESYNC_POSTGRES_DSN"
	EnvClickhouseDSN   = "TSESYNC_CLICKHOUSE_DSN"
	EnvProviderBaseURL = "TSESYNC_PROVIDER_BASE_URL"
	EnvLogLevel        = "TSESYNC_LOG_LEVEL"
)

// Time-series backends.
const (
	BackendPostgres   = "postgres"
	BackendClickhouse = "clickhouse"
)

// Config holds all configuration for the sync service.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Storage  StorageConfig  `yaml:"storage"`
	Sync     SyncConfig     `yaml:"sync"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ProviderConfig configures the market data provider client.
type ProviderConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	RateLimit  int           `yaml:"rate_limit"`
	MaxRetries int           `yaml:"max_retries"`
}

// StorageConfig selects and configures the stores.
type StorageConfig struct {
	PostgresDSN       string `yaml:"postgres_dsn"`
	ClickhouseDSN     string `yaml:"clickhouse_dsn"`
	TimeseriesBackend string `yaml:"timeseries_backend"`
	UseMemory         bool   `yaml:"use_memory"`
}

// SyncConfig holds the batching and search knobs.
type SyncConfig struct {
	ChunkSize   int           `yaml:"chunk_size"`
	SearchCap   int           `yaml:"search_cap"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// JobConfig schedules one job kind. RunAt is a daily wall-clock time "HH:MM"
// in JobsConfig.Timezone; an empty RunAt leaves the job unscheduled.
type JobConfig[P any] struct {
	Enabled bool   `yaml:"enabled"`
	RunAt   string `yaml:"run_at"`
	Params  P      `yaml:"params"`
}

// JobsConfig holds the schedule of every job kind.
type JobsConfig struct {
	Timezone           string                                   `yaml:"timezone"`
	InstrumentsUpdater JobConfig[jobs.InstrumentsUpdaterParams] `yaml:"instruments_updater"`
	InstrumentSearcher JobConfig[jobs.InstrumentSearcherParams] `yaml:"instrument_searcher"`
	IdentityCatcher    JobConfig[jobs.IdentityCatcherParams]    `yaml:"identity_catcher"`
	DailyHistorical    JobConfig[jobs.DailyHistoricalParams]    `yaml:"daily_historical"`
	IndexHistorical    JobConfig[jobs.IndexHistoricalParams]    `yaml:"index_historical"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig configures the /metrics listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL:    tsetmc.DefaultBaseURL,
			Timeout:    tsetmc.DefaultTimeout,
			RateLimit:  tsetmc.DefaultRateLimit,
			MaxRetries: tsetmc.DefaultMaxRetries,
		},
		Storage: StorageConfig{
			TimeseriesBackend: BackendPostgres,
		},
		Sync: SyncConfig{
			ChunkSize:   batch.DefaultChunkSize,
			SearchCap:   search.DefaultCap,
			CallTimeout: jobs.DefaultCallTimeout,
		},
		Jobs: JobsConfig{
			Timezone:           "Asia/Tehran",
			InstrumentsUpdater: JobConfig[jobs.InstrumentsUpdaterParams]{Enabled: true, RunAt: "18:00"},
			InstrumentSearcher: JobConfig[jobs.InstrumentSearcherParams]{Enabled: true, RunAt: "18:30"},
			DailyHistorical: JobConfig[jobs.DailyHistoricalParams]{
				Enabled: true,
				RunAt:   "19:00",
				Params:  jobs.DailyHistoricalParams{Trade: true, ClientType: true},
			},
			IndexHistorical: JobConfig[jobs.IndexHistoricalParams]{Enabled: true, RunAt: "19:30"},
		},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{Addr: ":9102"},
	}
}

// Load reads .env (if present) and the YAML file at path over the defaults,
// applies environment overrides, then overrides (command-line flags), and
// validates the result. An empty path skips the file.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	cfg.applyEnv()
	for _, override := range overrides {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv(EnvClickhouseDSN); v != "" {
		c.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv(EnvProviderBaseURL); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate reports configuration that would violate runtime contracts.
func (c *Config) Validate() error {
	var errs []error

	if c.Sync.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("sync.chunk_size must be positive, got %d", c.Sync.ChunkSize))
	}
	if c.Sync.SearchCap <= 0 {
		errs = append(errs, fmt.Errorf("sync.search_cap must be positive, got %d", c.Sync.SearchCap))
	}
	if c.Sync.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sync.call_timeout must be positive, got %s", c.Sync.CallTimeout))
	}
	if c.Provider.BaseURL == "" {
		errs = append(errs, errors.New("provider.base_url is required"))
	}

	switch c.Storage.TimeseriesBackend {
	case BackendPostgres:
	case BackendClickhouse:
		if !c.Storage.UseMemory && c.Storage.ClickhouseDSN == "" {
			errs = append(errs, errors.New("storage.clickhouse_dsn is required for the clickhouse backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.timeseries_backend %q", c.Storage.TimeseriesBackend))
	}
	if !c.Storage.UseMemory && c.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required unless storage.use_memory is set"))
	}

	if _, err := time.LoadLocation(c.Jobs.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("jobs.timezone: %w", err))
	}
	for name, runAt := range c.Jobs.runTimes() {
		if runAt == "" {
			continue
		}
		if _, _, err := ParseRunAt(runAt); err != nil {
			errs = append(errs, fmt.Errorf("jobs.%s.run_at: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

func (j JobsConfig) runTimes() map[string]string {
	return map[string]string{
		jobs.InstrumentsUpdaterName: j.InstrumentsUpdater.RunAt,
		jobs.InstrumentSearcherName: j.InstrumentSearcher.RunAt,
		jobs.IdentityCatcherName:    j.IdentityCatcher.RunAt,
		jobs.DailyHistoricalName:    j.DailyHistorical.RunAt,
		jobs.IndexHistoricalName:    j.IndexHistorical.RunAt,
	}
}

// Location returns the scheduler time zone. Validate guarantees it loads.
func (j JobsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(j.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseRunAt parses a daily "HH:MM" run time.
func ParseRunAt(s string) (hour, minute int, err error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("invalid run time %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(s[:2])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in run time %q", s)
	}
	minute, err = strconv.Atoi(s[3:])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in run time %q", s)
	}
	return hour, minute, nil
}

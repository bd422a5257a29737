// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() builds a Config with defaults; Load layers file and env on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"runtime"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Resolve strategies.
const (
	StrategyFirstMatch = "first_match"
	StrategyBestScore  = "best_score"
)

// SSIM window modes.
const (
	WindowUniform  = "uniform"
	WindowGaussian = "gaussian"
)

// Collection describes one tracked reference image set.
type Collection struct {
	// Name identifies the collection in decisions and metrics.
	Name string `koanf:"name"`
	// Dir holds the reference images.
	Dir string `koanf:"dir"`
	// Threshold is the LIKELY cut-off for this collection, in (0,1).
	Threshold float64 `koanf:"threshold"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory observation queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of pipeline workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the observation id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// ShardCount scales the number of per-key lock stripes in the tracker.
	ShardCount int `koanf:"shard_count"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// Similarity tiers.
	ExactThreshold         float64 `koanf:"exact_threshold"`
	NearDuplicateThreshold float64 `koanf:"near_duplicate_threshold"`
	SSIMWindow             string  `koanf:"ssim_window"`

	// Membership resolution.
	SampleSize         int          `koanf:"sample_size"`
	SampleSeed         int64        `koanf:"sample_seed"`
	ResolveStrategy    string       `koanf:"resolve_strategy"`
	ResolveConcurrency int          `koanf:"resolve_concurrency"`
	Collections        []Collection `koanf:"collections"`

	// Tracked-entity store.
	DBDriver           string `koanf:"db_driver"`
	DBDSN              string `koanf:"db_dsn"`
	DBTable            string `koanf:"db_table"`
	StoreRetryAttempts int    `koanf:"store_retry_attempts"`
	StoreRetryDelayMS  int    `koanf:"store_retry_delay_ms"`

	// Profile image fetching.
	FetchTimeoutMS     int    `koanf:"fetch_timeout_ms"`
	FetchCacheDir      string `koanf:"fetch_cache_dir"`
	FetchCacheTTLS     int    `koanf:"fetch_cache_ttl_s"`
	FetchRetryAttempts int    `koanf:"fetch_retry_attempts"`
	BreakerFailures    int    `koanf:"breaker_failures"`
	BreakerTimeoutS    int    `koanf:"breaker_timeout_s"`

	// Prometheus naming and gauge refresh.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	MetricsRefreshS  int    `koanf:"metrics_refresh_s"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		QueueSize:              10_000,
		WorkerCount:            runtime.NumCPU() * 2,
		DedupeSize:             500_000,
		ShardCount:             8,
		MaxLeaderboardLimit:    100,
		ExactThreshold:         0.925,
		NearDuplicateThreshold: 0.90,
		SSIMWindow:             WindowUniform,
		SampleSize:             5,
		SampleSeed:             1,
		ResolveStrategy:        StrategyFirstMatch,
		ResolveConcurrency:     1,
		Collections: []Collection{
			{Name: "y00ts", Dir: "outputs/y00ts_imgs", Threshold: 0.50},
			{Name: "degods", Dir: "outputs/degods_imgs", Threshold: 0.45},
		},
		DBDriver:           DriverMemory,
		DBTable:            "leaderboard",
		StoreRetryAttempts: 3,
		StoreRetryDelayMS:  50,
		FetchTimeoutMS:     5_000,
		FetchCacheTTLS:     3_600,
		FetchRetryAttempts: 2,
		BreakerFailures:    5,
		BreakerTimeoutS:    30,
		MetricsNamespace:   "pfpboard",
		MetricsSubsystem:   "leaderboard",
		MetricsRefreshS:    10,
	}
}

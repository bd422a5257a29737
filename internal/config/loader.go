package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names.
const (
	EnvPrefix     = "PFPBOARD_"
	EnvConfigFile = "PFPBOARD_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if PFPBOARD_CONFIG is set
//  3. env (prefix PFPBOARD_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// PFPBOARD_QUEUE_SIZE -> queue_size. Keys stay flat so underscores match the koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	// A configured list replaces the defaults; decoding onto them would
	// fill missing fields from the default entry at the same index.
	if k.Exists("collections") {
		cfg.Collections = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.QueueSize < 1:
		return invalid("queue_size must be positive")
	case c.WorkerCount < 1:
		return invalid("worker_count must be positive")
	case c.ShardCount < 1:
		return invalid("shard_count must be positive")
	case c.MaxLeaderboardLimit < 1:
		return invalid("max_leaderboard_limit must be positive")
	case c.SampleSize < 1:
		return invalid("sample_size must be positive")
	case !inUnit(c.ExactThreshold) || !inUnit(c.NearDuplicateThreshold):
		return invalid("exact_threshold and near_duplicate_threshold must be in (0,1)")
	case c.NearDuplicateThreshold > c.ExactThreshold:
		return invalid("near_duplicate_threshold must not exceed exact_threshold")
	case c.MetricsNamespace == "":
		return invalid("metrics_namespace must not be empty")
	case c.MetricsRefreshS < 1:
		return invalid("metrics_refresh_s must be positive")
	}

	switch c.SSIMWindow {
	case WindowUniform, WindowGaussian:
	default:
		return invalid("unknown ssim_window %q", c.SSIMWindow)
	}

	switch c.ResolveStrategy {
	case StrategyFirstMatch, StrategyBestScore:
	default:
		return invalid("unknown resolve_strategy %q", c.ResolveStrategy)
	}

	switch c.DBDriver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.DBDSN == "" {
			return invalid("db_dsn is required for driver %q", c.DBDriver)
		}
	default:
		return invalid("unknown db_driver %q", c.DBDriver)
	}

	if len(c.Collections) == 0 {
		return invalid("at least one collection is required")
	}
	seen := make(map[string]struct{}, len(c.Collections))
	for i, col := range c.Collections {
		if strings.TrimSpace(col.Name) == "" || col.Dir == "" {
			return invalid("collections[%d] needs name and dir", i)
		}
		if !inUnit(col.Threshold) {
			return invalid("collections[%d] threshold must be in (0,1)", i)
		}
		if _, dup := seen[col.Name]; dup {
			return invalid("duplicate collection %q", col.Name)
		}
		seen[col.Name] = struct{}{}
	}
	return nil
}

func inUnit(v float64) bool { return v > 0 && v < 1 }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

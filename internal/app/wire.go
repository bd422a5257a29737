package service

import (
	"context"
	"fmt"
	"time"

	"github.com/axelofwar/be-community-gamification/internal/adapters/imagefetch"
	"github.com/axelofwar/be-community-gamification/internal/adapters/refset"
	"github.com/axelofwar/be-community-gamification/internal/adapters/repository"
	"github.com/axelofwar/be-community-gamification/internal/config"
	"github.com/axelofwar/be-community-gamification/internal/domain/membership"
	"github.com/axelofwar/be-community-gamification/internal/domain/similarity"
	"github.com/axelofwar/be-community-gamification/internal/domain/tracking"
	"github.com/axelofwar/be-community-gamification/pkg/logger"
)

// FromConfig builds every pipeline component described by cfg: reference
// collections, classifier, resolver, image fetcher and store. The returned
// service is not started.
func FromConfig(ctx context.Context, cfg *config.Config, log logger.Logger) (*Service, error) {
	cols, err := refset.Load(ctx, cfg.Collections, refset.WithLogger(log.Named("refset")))
	if err != nil {
		return nil, fmt.Errorf("load collections: %w", err)
	}

	classifierOpts := []similarity.Option{
		similarity.WithExactThreshold(cfg.ExactThreshold),
		similarity.WithNearDuplicateThreshold(cfg.NearDuplicateThreshold),
	}
	if cfg.SSIMWindow == config.WindowGaussian {
		classifierOpts = append(classifierOpts, similarity.WithGaussianWindow())
	}
	classifier, err := similarity.NewClassifier(classifierOpts...)
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	strategy, err := membership.ParseStrategy(cfg.ResolveStrategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	resolver := membership.NewResolver(classifier,
		membership.WithSampleSize(cfg.SampleSize),
		membership.WithSeed(cfg.SampleSeed),
		membership.WithStrategy(strategy),
		membership.WithConcurrency(cfg.ResolveConcurrency),
		membership.WithLogger(log.Named("membership")),
	)

	fetcher, err := imagefetch.New(
		imagefetch.WithTimeout(time.Duration(cfg.FetchTimeoutMS)*time.Millisecond),
		imagefetch.WithCacheDir(cfg.FetchCacheDir),
		imagefetch.WithCacheTTL(time.Duration(cfg.FetchCacheTTLS)*time.Second),
		imagefetch.WithRetryAttempts(cfg.FetchRetryAttempts),
		imagefetch.WithBreaker(cfg.BreakerFailures, time.Duration(cfg.BreakerTimeoutS)*time.Second),
		imagefetch.WithLogger(log.Named("imagefetch")),
	)
	if err != nil {
		return nil, fmt.Errorf("build image fetcher: %w", err)
	}

	store, err := repository.Open(ctx, cfg.DBDriver, cfg.DBDSN, cfg.DBTable)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info(ctx, "store opened",
		logger.String("driver", cfg.DBDriver),
		logger.String("table", cfg.DBTable))

	return New(
		WithLogger(log),
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithCollections(cols),
		WithFetcher(fetcher),
		WithResolver(resolver),
		WithStore(store),
		WithTrackerOptions(
			tracking.WithShardCount(cfg.ShardCount),
			tracking.WithRetryAttempts(cfg.StoreRetryAttempts),
			tracking.WithRetryDelay(time.Duration(cfg.StoreRetryDelayMS)*time.Millisecond),
		),
	), nil
}

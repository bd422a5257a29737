package service

import (
	"github.com/axelofwar/be-community-gamification/internal/adapters/mq/worker"
	"github.com/axelofwar/be-community-gamification/internal/adapters/repository"
	"github.com/axelofwar/be-community-gamification/internal/domain/membership"
	"github.com/axelofwar/be-community-gamification/internal/domain/tracking"
	"github.com/axelofwar/be-community-gamification/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the observation queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the observation id window.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the tracked-entity store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithCollections sets the reference collections in evaluation order.
func WithCollections(cols []membership.Collection) Option {
	return func(s *Service) { s.collections = cols }
}

// WithFetcher sets the profile image fetcher.
func WithFetcher(f worker.Fetcher) Option {
	return func(s *Service) { s.fetcher = f }
}

// WithResolver sets the membership resolver.
func WithResolver(r worker.Resolver) Option {
	return func(s *Service) { s.resolver = r }
}

// WithTrackerOptions passes options to the tracker built on Start.
func WithTrackerOptions(opts ...tracking.Option) Option {
	return func(s *Service) { s.trackerOptions = append(s.trackerOptions, opts...) }
}

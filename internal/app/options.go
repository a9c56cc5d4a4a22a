package service

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/okian/skillpulse/internal/adapters/repository"
	"github.com/okian/skillpulse/internal/domain/catalog"
	"github.com/okian/skillpulse/internal/domain/consolidation"
	"github.com/okian/skillpulse/internal/domain/level"
	"github.com/okian/skillpulse/internal/domain/model"
	"github.com/okian/skillpulse/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of recompute workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the recompute queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the assessment id cache. 0 is unbounded.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
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

// WithStore injects a ready store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithStoreDriver selects the store opened by Start when none is injected.
func WithStoreDriver(driver, path string) Option {
	return func(s *Service) {
		s.storeDriver = driver
		s.storePath = path
	}
}

// WithCatalog sets the skill catalog submissions are checked against.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithPolicy sets the consolidation policy.
func WithPolicy(p consolidation.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithLevels sets the thresholds results are banded with.
func WithLevels(m level.Mapper) Option {
	return func(s *Service) {
		s.levels = m
	}
}

// WithMaxHistory caps the stored results per student skill of the store
// opened by Start, and how many replayed results a recompute writes.
// n <= 0 keeps everything.
func WithMaxHistory(n int) Option {
	return func(s *Service) {
		s.maxHistory = n
	}
}

// WithTrendMethod sets the method used for stored trends.
func WithTrendMethod(m model.Method) Option {
	return func(s *Service) {
		if m != "" {
			s.trendMethod = m
		}
	}
}

// WithHistoryCount sets the MOVING_AVERAGE window.
func WithHistoryCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyCount = n
		}
	}
}

// WithTracerProvider sets the provider evaluation spans come from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithStatusConcurrency bounds the per-skill fan-out of Statuses.
func WithStatusConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.statusConcurrency = n
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for the queue to drain.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

package services

import (
	"context"
	"time"

	"github.com/merchforge/apiserver/internal/metrics"
	"github.com/merchforge/apiserver/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const statisticsWindow = 7 * 24 * time.Hour

// StatisticsRepository runs the dashboard aggregate queries.
type StatisticsRepository interface {
	Totals(ctx context.Context) (types.Statistics, error)
	Daily(ctx context.Context, since time.Time) ([]types.DailyOrder, error)
}

// StatisticsCache stores computed statistics between requests.
type StatisticsCache interface {
	Get(ctx context.Context) (*types.Statistics, error)
	Set(ctx context.Context, stats types.Statistics) error
}

// StatisticsService computes the admin dashboard summary.
type StatisticsService struct {
	repo    StatisticsRepository
	cache   StatisticsCache
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewStatisticsService returns a service reading through cache when it is
// non-nil.
func NewStatisticsService(repo StatisticsRepository, cache StatisticsCache, mt *metrics.Metrics, logger *zap.Logger) *StatisticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatisticsService{repo: repo, cache: cache, metrics: mt, logger: logger, now: time.Now}
}

// Get returns the all-time counters together with the per-day breakdown of
// the last seven days. Cache failures are logged and fall back to the
// database.
func (s *StatisticsService) Get(ctx context.Context) (types.Statistics, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Warn("statistics cache read failed", zap.Error(err))
		}
		s.metrics.ObserveStatsCache(cached != nil)
		if cached != nil {
			return *cached, nil
		}
	}

	var (
		stats types.Statistics
		daily []types.DailyOrder
	)
	since := s.now().UTC().Add(-statisticsWindow)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = s.repo.Totals(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		daily, err = s.repo.Daily(gctx, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return types.Statistics{}, err
	}
	if daily == nil {
		daily = []types.DailyOrder{}
	}
	stats.DailyOrders = daily

	if s.cache != nil {
		if err := s.cache.Set(ctx, stats); err != nil {
			s.logger.Warn("statistics cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

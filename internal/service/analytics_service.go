package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/camatch/camatch-api/internal/models"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
)

const analyticsCachePrefix = "analytics:"

// analyticsStore describes the persistence layer required by
// AnalyticsService.
type analyticsStore interface {
	OverviewCounts(ctx context.Context) (*models.AnalyticsOverviewCounts, error)
	TrackFillRates(ctx context.Context) ([]models.TrackFillRate, error)
}

// AnalyticsService serves the admin overview with cache integration.
type AnalyticsService struct {
	repo    analyticsStore
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	ttl     time.Duration
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo analyticsStore, cache *CacheService, metrics *MetricsService, logger *zap.Logger, ttl time.Duration) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &AnalyticsService{repo: repo, cache: cache, metrics: metrics, logger: logger, ttl: ttl}
}

// Overview returns platform totals and per-track fill rates. The boolean
// reports whether the payload came from cache.
func (s *AnalyticsService) Overview(ctx context.Context) (*models.AnalyticsOverview, bool, error) {
	cacheKey := analyticsCachePrefix + "overview"
	if s.cache.Enabled() {
		var cached models.AnalyticsOverview
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	start := time.Now()
	counts, err := s.repo.OverviewCounts(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overview counts")
	}
	rates, err := s.repo.TrackFillRates(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load track fill rates")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_overview", time.Since(start))
	}

	// The vacancies column is the live remaining counter, so total
	// capacity per track is remaining + assigned.
	for i := range rates {
		capacity := rates[i].Vacancies + rates[i].Assigned
		if capacity > 0 {
			rates[i].FillRate = float64(rates[i].Assigned) / float64(capacity)
		}
	}

	overview := &models.AnalyticsOverview{
		Students:             counts.Students,
		Courses:              counts.Courses,
		Preferences:          counts.Preferences,
		PendingAssignments:   counts.PendingAssignments,
		ConfirmedAssignments: counts.ConfirmedAssignments,
		TrackFillRates:       rates,
		GeneratedAt:          time.Now().UTC(),
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, overview, s.ttl); err != nil {
			s.logger.Warn("cache overview", zap.Error(err))
		}
	}
	return overview, false, nil
}

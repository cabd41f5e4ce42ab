package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/camatch/camatch-api/internal/models"
)

// AnalyticsRepository exposes read-optimised queries for analytics endpoints.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// OverviewCounts returns the platform-wide entity totals in one round trip.
func (r *AnalyticsRepository) OverviewCounts(ctx context.Context) (*models.AnalyticsOverviewCounts, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM student_profiles) AS students,
        (SELECT COUNT(*) FROM courses) AS courses,
        (SELECT COUNT(*) FROM preferences) AS preferences,
        (SELECT COUNT(*) FROM assignments WHERE status = 'pending') AS pending_assignments,
        (SELECT COUNT(*) FROM assignments WHERE status = 'confirmed') AS confirmed_assignments`
	var counts models.AnalyticsOverviewCounts
	if err := r.db.GetContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("query overview counts: %w", err)
	}
	return &counts, nil
}

// TrackFillRates aggregates vacancy usage per track. Courses without a
// track are excluded.
func (r *AnalyticsRepository) TrackFillRates(ctx context.Context) ([]models.TrackFillRate, error) {
	const query = `SELECT c.track,
        COUNT(DISTINCT c.id) AS course_count,
        COALESCE(SUM(c.vacancies), 0) AS vacancies,
        COALESCE((SELECT COUNT(*) FROM assignments a JOIN courses ca ON ca.id = a.course_id WHERE ca.track = c.track), 0) AS assigned
        FROM courses c
        WHERE c.track IS NOT NULL
        GROUP BY c.track
        ORDER BY c.track ASC`
	var rates []models.TrackFillRate
	if err := r.db.SelectContext(ctx, &rates, query); err != nil {
		return nil, fmt.Errorf("query track fill rates: %w", err)
	}
	return rates, nil
}

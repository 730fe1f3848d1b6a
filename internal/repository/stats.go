package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
)

// StatsRepository persists the append-only anomaly-detection training data.
type StatsRepository struct {
	db  *sql.DB
	log logger.Logger
}

// NewStatsRepository creates a stats repository.
func NewStatsRepository(db *sql.DB, log logger.Logger) *StatsRepository {
	return &StatsRepository{db: db, log: log}
}

// Insert appends one training sample. Today's outlier deliberately becomes
// tomorrow's baseline input; there is no outlier exclusion.
func (r *StatsRepository) Insert(ctx context.Context, s *domain.CouponStats) error {
	query := `
		INSERT INTO coupon_stats
			(source_url, run_id, count, surge_threshold, plunge_threshold, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		s.SourceURL, s.RunID, s.Count, s.SurgeThreshold, s.PlungeThreshold, s.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert coupon stats for %s: %w", s.SourceURL, err)
	}
	return nil
}

// CountsSince returns the historical result counts recorded for a source
// page after the given instant, oldest first.
func (r *StatsRepository) CountsSince(ctx context.Context, sourceURL string, since time.Time) ([]int, error) {
	query := `
		SELECT count
		FROM coupon_stats
		WHERE source_url = $1
		  AND recorded_at >= $2
		ORDER BY recorded_at ASC`

	rows, err := r.db.QueryContext(ctx, query, sourceURL, since)
	if err != nil {
		return nil, fmt.Errorf("query stats for %s: %w", sourceURL, err)
	}
	defer rows.Close()

	var counts []int
	for rows.Next() {
		var count int
		if scanErr := rows.Scan(&count); scanErr != nil {
			return nil, fmt.Errorf("scan stats count: %w", scanErr)
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return counts, nil
}

// DailyCounts aggregates recorded counts per source per day for the
// dashboard's source-statistics endpoint.
func (r *StatsRepository) DailyCounts(ctx context.Context, from, to time.Time) ([]domain.SourceDailyCount, error) {
	query := `
		SELECT source_url, date_trunc('day', recorded_at) AS day, SUM(count)
		FROM coupon_stats
		WHERE recorded_at >= $1 AND recorded_at <= $2
		GROUP BY source_url, day
		ORDER BY day DESC, source_url ASC`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer rows.Close()

	result := make([]domain.SourceDailyCount, 0)
	for rows.Next() {
		var dc domain.SourceDailyCount
		if scanErr := rows.Scan(&dc.SourceURL, &dc.Day, &dc.Count); scanErr != nil {
			return nil, fmt.Errorf("scan daily count: %w", scanErr)
		}
		result = append(result, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily counts: %w", err)
	}
	return result, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
)

// PageRepository reads target-page configuration owned by the crawl
// scheduler. Ingestion only consumes the locale mapping and stamps crawl
// and disable times.
type PageRepository struct {
	db  *sql.DB
	log logger.Logger
}

// NewPageRepository creates a page repository.
func NewPageRepository(db *sql.DB, log logger.Logger) *PageRepository {
	return &PageRepository{db: db, log: log}
}

// LocaleForURL resolves the configured locale of a target page URL.
// Returns ErrNotFound when the page is unknown.
func (r *PageRepository) LocaleForURL(ctx context.Context, url string) (string, error) {
	var locale string
	err := r.db.QueryRowContext(ctx,
		`SELECT locale FROM target_pages WHERE url = $1`, url).Scan(&locale)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query locale for %s: %w", url, err)
	}
	return locale, nil
}

// TouchLastRun stamps last_apify_run_at for every page crawled in this run.
func (r *PageRepository) TouchLastRun(ctx context.Context, urls []string, now time.Time) error {
	if len(urls) == 0 {
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE target_pages SET last_apify_run_at = $1 WHERE url = ANY($2)`,
		now, pq.Array(urls),
	)
	if err != nil {
		return fmt.Errorf("touch target pages: %w", err)
	}
	return nil
}

// Disable marks a target page as a non-listing page so the scheduler stops
// crawling it.
func (r *PageRepository) Disable(ctx context.Context, url string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE target_pages SET disabled_at = $1 WHERE url = $2 AND disabled_at IS NULL`,
		now, url,
	)
	if err != nil {
		return fmt.Errorf("disable target page %s: %w", url, err)
	}
	return nil
}

// Package repository implements PostgreSQL persistence for the ingestion
// pipeline's aggregates.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// CouponRepository persists coupons.
type CouponRepository struct {
	db  *sql.DB
	log logger.Logger
}

// NewCouponRepository creates a coupon repository.
func NewCouponRepository(db *sql.DB, log logger.Logger) *CouponRepository {
	return &CouponRepository{db: db, log: log}
}

const couponColumns = `
	id, actor_id, source_url, merchant_name, domain, locale, title,
	description, terms_and_conditions, code, start_date_at, expiry_date_at,
	is_exclusive, is_shown, is_expired, should_be_fake,
	archived_at, archived_reason, first_seen_at, last_seen_at, last_crawled_at`

// GetByID fetches one coupon. Returns (nil, nil) when no row exists so the
// caller can distinguish "new coupon" from a query failure.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*domain.Coupon, error) {
	query := `SELECT` + couponColumns + ` FROM coupons WHERE id = $1`

	c, err := scanCoupon(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query coupon %s: %w", id, err)
	}
	return c, nil
}

// Upsert atomically creates or refreshes a coupon keyed by its content hash.
// On conflict only the mutable field set is overwritten; merchant linkage,
// locale and first_seen_at stay untouched (see domain.CouponPatch).
func (r *CouponRepository) Upsert(ctx context.Context, c *domain.Coupon) error {
	query := `
		INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (id) DO UPDATE SET
			source_url           = EXCLUDED.source_url,
			domain               = EXCLUDED.domain,
			title                = EXCLUDED.title,
			description          = EXCLUDED.description,
			terms_and_conditions = EXCLUDED.terms_and_conditions,
			code                 = EXCLUDED.code,
			start_date_at        = EXCLUDED.start_date_at,
			expiry_date_at       = EXCLUDED.expiry_date_at,
			is_exclusive         = EXCLUDED.is_exclusive,
			is_shown             = EXCLUDED.is_shown,
			is_expired           = EXCLUDED.is_expired,
			should_be_fake       = EXCLUDED.should_be_fake,
			archived_at          = EXCLUDED.archived_at,
			archived_reason      = EXCLUDED.archived_reason,
			last_seen_at         = EXCLUDED.last_seen_at,
			last_crawled_at      = EXCLUDED.last_crawled_at`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.ActorID, c.SourceURL, c.MerchantName, c.Domain, c.Locale, c.Title,
		c.Description, c.TermsAndConditions, c.Code, c.StartDateAt, c.ExpiryDateAt,
		c.IsExclusive, c.IsShown, c.IsExpired, c.ShouldBeFake,
		c.ArchivedAt, archivedReasonValue(c.ArchivedReason), c.FirstSeenAt, c.LastSeenAt, c.LastCrawledAt,
	)
	if err != nil {
		return fmt.Errorf("upsert coupon %s: %w", c.ID, err)
	}
	return nil
}

// ArchiveNotSeen archives every non-archived coupon tied to one of the given
// source pages whose id was not successfully processed in this run. This is
// the soft-delete path for coupons that disappeared from a page between
// crawls. Returns the number of coupons archived.
func (r *CouponRepository) ArchiveNotSeen(
	ctx context.Context,
	sourceURLs []string,
	seenIDs []string,
	now time.Time,
) (int64, error) {
	if len(sourceURLs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE coupons
		SET archived_at = $1,
		    archived_reason = $2,
		    is_expired = TRUE,
		    is_shown = FALSE
		WHERE source_url = ANY($3)
		  AND archived_at IS NULL
		  AND NOT (id = ANY($4))`

	res, err := r.db.ExecContext(ctx, query,
		now, string(domain.ArchiveReasonRemoved), pq.Array(sourceURLs), pq.Array(seenIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("archive missing coupons: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive missing coupons: rows affected: %w", err)
	}
	return count, nil
}

// HideStale hides coupons on the given crawled URLs whose last sighting
// predates the run start. Coarser than ArchiveNotSeen: it only clears
// is_shown, leaving archival state alone.
func (r *CouponRepository) HideStale(ctx context.Context, sourceURLs []string, before time.Time) (int64, error) {
	if len(sourceURLs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE coupons
		SET is_shown = FALSE
		WHERE source_url = ANY($1)
		  AND last_seen_at < $2
		  AND is_shown = TRUE`

	res, err := r.db.ExecContext(ctx, query, pq.Array(sourceURLs), before)
	if err != nil {
		return 0, fmt.Errorf("hide stale coupons: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("hide stale coupons: rows affected: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoupon(row rowScanner) (*domain.Coupon, error) {
	var (
		c      domain.Coupon
		reason sql.NullString
	)

	err := row.Scan(
		&c.ID, &c.ActorID, &c.SourceURL, &c.MerchantName, &c.Domain, &c.Locale, &c.Title,
		&c.Description, &c.TermsAndConditions, &c.Code, &c.StartDateAt, &c.ExpiryDateAt,
		&c.IsExclusive, &c.IsShown, &c.IsExpired, &c.ShouldBeFake,
		&c.ArchivedAt, &reason, &c.FirstSeenAt, &c.LastSeenAt, &c.LastCrawledAt,
	)
	if err != nil {
		return nil, err
	}

	if reason.Valid {
		archiveReason := domain.ArchiveReason(reason.String)
		c.ArchivedReason = &archiveReason
	}
	return &c, nil
}

func archivedReasonValue(reason *domain.ArchiveReason) any {
	if reason == nil {
		return nil
	}
	return string(*reason)
}

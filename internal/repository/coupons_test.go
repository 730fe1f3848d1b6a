package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/repository"
)

var couponCols = []string{
	"id", "actor_id", "source_url", "merchant_name", "domain", "locale", "title",
	"description", "terms_and_conditions", "code", "start_date_at", "expiry_date_at",
	"is_exclusive", "is_shown", "is_expired", "should_be_fake",
	"archived_at", "archived_reason", "first_seen_at", "last_seen_at", "last_crawled_at",
}

func testCoupon(id string) *domain.Coupon {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Coupon{
		ID:            id,
		ActorID:       "actor-1",
		SourceURL:     "https://coupons.example.com/amazon",
		MerchantName:  "Amazon",
		Domain:        "amazon.com",
		Locale:        "en_US",
		Title:         "20% off",
		IsShown:       true,
		FirstSeenAt:   now,
		LastSeenAt:    now,
		LastCrawledAt: now,
	}
}

func TestCouponRepository_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT(.|\n)+FROM coupons WHERE id").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows(couponCols))

	repo := repository.NewCouponRepository(db, logger.NewNop())

	c, getErr := repo.GetByID(context.Background(), "id-1")
	require.NoError(t, getErr, "absent coupon is not an error")
	assert.Nil(t, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponRepository_GetByID_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(couponCols).AddRow(
		"id-1", "actor-1", "https://coupons.example.com/amazon", "Amazon", "amazon.com",
		"en_US", "20% off", nil, nil, nil, nil, nil,
		false, true, false, false,
		nil, nil, now, now, now,
	)
	mock.ExpectQuery("SELECT(.|\n)+FROM coupons WHERE id").
		WithArgs("id-1").
		WillReturnRows(rows)

	repo := repository.NewCouponRepository(db, logger.NewNop())

	c, getErr := repo.GetByID(context.Background(), "id-1")
	require.NoError(t, getErr)
	require.NotNil(t, c)
	assert.Equal(t, "Amazon", c.MerchantName)
	assert.False(t, c.IsArchived())
	assert.Nil(t, c.ArchivedReason)
}

func TestCouponRepository_GetByID_ArchivedReason(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(couponCols).AddRow(
		"id-1", "actor-1", "https://coupons.example.com/amazon", "Amazon", "amazon.com",
		"en_US", "20% off", nil, nil, nil, nil, nil,
		false, false, true, false,
		now, "expired", now, now, now,
	)
	mock.ExpectQuery("SELECT(.|\n)+FROM coupons WHERE id").
		WithArgs("id-1").
		WillReturnRows(rows)

	repo := repository.NewCouponRepository(db, logger.NewNop())

	c, getErr := repo.GetByID(context.Background(), "id-1")
	require.NoError(t, getErr)
	require.NotNil(t, c.ArchivedReason)
	assert.Equal(t, domain.ArchiveReasonExpired, *c.ArchivedReason)
	assert.True(t, c.IsArchived())
}

func TestCouponRepository_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO coupons(.|\n)+ON CONFLICT \\(id\\) DO UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := repository.NewCouponRepository(db, logger.NewNop())

	require.NoError(t, repo.Upsert(context.Background(), testCoupon("id-1")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponRepository_ArchiveNotSeen(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE coupons(.|\n)+archived_reason").
		WillReturnResult(sqlmock.NewResult(0, 3))

	repo := repository.NewCouponRepository(db, logger.NewNop())

	count, archiveErr := repo.ArchiveNotSeen(
		context.Background(),
		[]string{"https://coupons.example.com/amazon"},
		[]string{"id-1", "id-2"},
		time.Now(),
	)
	require.NoError(t, archiveErr)
	assert.Equal(t, int64(3), count)
}

func TestCouponRepository_ArchiveNotSeen_NoSources(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := repository.NewCouponRepository(db, logger.NewNop())

	// No source URLs means no query at all.
	count, archiveErr := repo.ArchiveNotSeen(context.Background(), nil, nil, time.Now())
	require.NoError(t, archiveErr)
	assert.Zero(t, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponRepository_HideStale(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE coupons(.|\n)+SET is_shown = FALSE").
		WillReturnResult(sqlmock.NewResult(0, 2))

	repo := repository.NewCouponRepository(db, logger.NewNop())

	count, hideErr := repo.HideStale(
		context.Background(),
		[]string{"https://coupons.example.com/amazon"},
		time.Now(),
	)
	require.NoError(t, hideErr)
	assert.Equal(t, int64(2), count)
}

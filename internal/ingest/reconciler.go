package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/alert"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
)

// CouponSweeper is the bulk-archival surface of the reconciler.
type CouponSweeper interface {
	ArchiveNotSeen(ctx context.Context, sourceURLs, seenIDs []string, now time.Time) (int64, error)
	HideStale(ctx context.Context, sourceURLs []string, before time.Time) (int64, error)
}

// RequestLister retrieves the URLs an actor run actually crawled.
type RequestLister interface {
	RunRequestURLs(ctx context.Context, runID string) ([]string, error)
}

// Reconciler runs the end-of-run staleness sweeps: coupons that vanished
// from their source page are archived as removed, and coupons on crawled
// pages whose last sighting predates the run are hidden. Each sweep failure
// is alerted individually and never blocks run finalization.
type Reconciler struct {
	coupons  CouponSweeper
	requests RequestLister
	alerts   alert.Alerter
	log      logger.Logger
	now      func() time.Time
}

// NewReconciler creates a run reconciler.
func NewReconciler(coupons CouponSweeper, requests RequestLister, alerts alert.Alerter, log logger.Logger) *Reconciler {
	return &Reconciler{
		coupons:  coupons,
		requests: requests,
		alerts:   alerts,
		log:      log,
		now:      time.Now,
	}
}

// Reconcile archives coupons missing from this run's source pages and hides
// coupons the crawl should have refreshed but did not. Returns the number of
// coupons archived as removed.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	runID string,
	runStartedAt time.Time,
	sourceURLs []string,
	seenIDs []string,
) int64 {
	archived := r.archiveMissing(ctx, runID, sourceURLs, seenIDs)
	r.hideStale(ctx, runID, runStartedAt)
	return archived
}

func (r *Reconciler) archiveMissing(ctx context.Context, runID string, sourceURLs, seenIDs []string) int64 {
	if len(sourceURLs) == 0 {
		return 0
	}

	archived, err := r.coupons.ArchiveNotSeen(ctx, sourceURLs, seenIDs, r.now())
	if err != nil {
		r.log.Error("Removal sweep failed", logger.String("run_id", runID), logger.Error(err))
		r.alerts.Notify(ctx, alert.SeverityCritical,
			"Removal sweep failed",
			fmt.Sprintf("run %s: %v", runID, err),
		)
		return 0
	}

	if archived > 0 {
		r.log.Info("Archived removed coupons",
			logger.String("run_id", runID),
			logger.Int64("archived", archived),
			logger.Int("source_pages", len(sourceURLs)),
		)
	}
	return archived
}

// hideStale is the coarser second sweep, driven by the crawl's own request
// log rather than the processed item set.
func (r *Reconciler) hideStale(ctx context.Context, runID string, runStartedAt time.Time) {
	crawled, err := r.requests.RunRequestURLs(ctx, runID)
	if err != nil {
		r.log.Error("Could not list crawled requests", logger.String("run_id", runID), logger.Error(err))
		r.alerts.Notify(ctx, alert.SeverityWarning,
			"Staleness sweep skipped",
			fmt.Sprintf("run %s: request log unavailable: %v", runID, err),
		)
		return
	}
	if len(crawled) == 0 {
		return
	}

	hidden, err := r.coupons.HideStale(ctx, crawled, runStartedAt)
	if err != nil {
		r.log.Error("Staleness sweep failed", logger.String("run_id", runID), logger.Error(err))
		r.alerts.Notify(ctx, alert.SeverityCritical,
			"Staleness sweep failed",
			fmt.Sprintf("run %s: %v", runID, err),
		)
		return
	}

	if hidden > 0 {
		r.log.Info("Hid stale coupons",
			logger.String("run_id", runID),
			logger.Int64("hidden", hidden),
		)
	}
}

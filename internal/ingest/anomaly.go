package ingest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/alert"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/config"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
)

// StatsStore is the training-data surface of the anomaly detector.
type StatsStore interface {
	Insert(ctx context.Context, s *domain.CouponStats) error
	CountsSince(ctx context.Context, sourceURL string, since time.Time) ([]int, error)
}

// Classification is the anomaly verdict for one source page in one run.
type Classification string

const (
	ClassificationNone   Classification = ""
	ClassificationSurge  Classification = "surge"
	ClassificationPlunge Classification = "plunge"
)

// Detector flags statistically significant swings in a source page's result
// count against its rolling historical baseline. Advisory only: it records
// and alerts, never blocks ingestion.
type Detector struct {
	stats  StatsStore
	alerts alert.Alerter
	cfg    config.AnomalyConfig
	log    logger.Logger
	now    func() time.Time
}

// NewDetector creates an anomaly detector with the given tuning.
func NewDetector(stats StatsStore, alerts alert.Alerter, cfg config.AnomalyConfig, log logger.Logger) *Detector {
	return &Detector{
		stats:  stats,
		alerts: alerts,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Check classifies the observed count for one source page, appends it to the
// training history (today's outlier becomes tomorrow's baseline input), and
// raises a non-blocking alert when flagged. A page with no history is never
// flagged.
func (d *Detector) Check(ctx context.Context, runID, sourceURL string, count int) (Classification, error) {
	now := d.now()

	history, err := d.stats.CountsSince(ctx, sourceURL, now.Add(-d.cfg.Window()))
	if err != nil {
		return ClassificationNone, fmt.Errorf("load stats history: %w", err)
	}

	baseline := float64(count)
	if len(history) > 0 {
		baseline = mean(history)
	}

	tolerance := d.toleranceFor(baseline)
	surgeThreshold := baseline * (1 + tolerance)
	plungeThreshold := math.Max(1, baseline*(1-tolerance))

	sample := &domain.CouponStats{
		SourceURL:       sourceURL,
		RunID:           runID,
		Count:           count,
		SurgeThreshold:  surgeThreshold,
		PlungeThreshold: plungeThreshold,
		RecordedAt:      now,
	}
	if insertErr := d.stats.Insert(ctx, sample); insertErr != nil {
		d.log.Error("Failed to record coupon stats",
			logger.String("source_url", sourceURL),
			logger.Error(insertErr),
		)
	}

	if len(history) == 0 {
		return ClassificationNone, nil
	}

	classification := classifyCount(float64(count), surgeThreshold, plungeThreshold)
	if classification != ClassificationNone {
		d.alerts.Notify(ctx, alert.SeverityWarning,
			fmt.Sprintf("Result count %s for %s", classification, sourceURL),
			fmt.Sprintf("count=%d baseline=%.1f tolerance=%.0f%% window=%dd",
				count, baseline, tolerance*100, d.cfg.WindowDays),
		)
		d.log.Warn("Result count anomaly",
			logger.String("source_url", sourceURL),
			logger.String("classification", string(classification)),
			logger.Int("count", count),
			logger.Float64("baseline", baseline),
		)
	}

	return classification, nil
}

// classifyCount applies at most one classification, surge first.
func classifyCount(count, surgeThreshold, plungeThreshold float64) Classification {
	switch {
	case count > surgeThreshold:
		return ClassificationSurge
	case count < plungeThreshold:
		return ClassificationPlunge
	default:
		return ClassificationNone
	}
}

// toleranceFor picks the tolerance multiplier for a baseline from the
// configured bands.
func (d *Detector) toleranceFor(baseline float64) float64 {
	for _, band := range d.cfg.Bands {
		if baseline < band.MaxBaseline {
			return band.Tolerance
		}
	}
	return d.cfg.DefaultTolerance
}

func mean(counts []int) float64 {
	sum := 0
	for _, c := range counts {
		sum += c
	}
	return float64(sum) / float64(len(counts))
}

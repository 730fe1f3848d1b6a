package domain

import "time"

// CouponStats is one append-only training sample for anomaly detection: the
// result count observed for a source page in one run, with the thresholds
// that were in effect when it was recorded.
type CouponStats struct {
	ID              int64     `json:"id" db:"id"`
	SourceURL       string    `json:"source_url" db:"source_url"`
	RunID           string    `json:"run_id" db:"run_id"`
	Count           int       `json:"count" db:"count"`
	SurgeThreshold  float64   `json:"surge_threshold" db:"surge_threshold"`
	PlungeThreshold float64   `json:"plunge_threshold" db:"plunge_threshold"`
	RecordedAt      time.Time `json:"recorded_at" db:"recorded_at"`
}

// SourceDailyCount is a per-source, per-day aggregate for dashboard reads.
type SourceDailyCount struct {
	SourceURL string    `json:"source_url" db:"source_url"`
	Day       time.Time `json:"day" db:"day"`
	Count     int       `json:"count" db:"count"`
}

// TargetPage is the crawl-target configuration row owned by the scheduling
// subsystem. Ingestion only reads its locale mapping and stamps crawl and
// disable times.
type TargetPage struct {
	ID             string     `json:"id" db:"id"`
	URL            string     `json:"url" db:"url"`
	Locale         string     `json:"locale" db:"locale"`
	LastApifyRunAt *time.Time `json:"last_apify_run_at,omitempty" db:"last_apify_run_at"`
	DisabledAt     *time.Time `json:"disabled_at,omitempty" db:"disabled_at"`
}

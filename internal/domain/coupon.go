// Package domain holds the core entities of the coupon ingestion pipeline.
package domain

import "time"

// ArchiveReason explains why a coupon was archived or restored.
type ArchiveReason string

const (
	// ArchiveReasonExpired marks coupons the scraper reported as expired.
	ArchiveReasonExpired ArchiveReason = "expired"
	// ArchiveReasonRemoved marks coupons absent from a fresh page crawl.
	ArchiveReasonRemoved ArchiveReason = "removed"
	// ArchiveReasonUnexpired marks previously archived coupons that came back.
	ArchiveReasonUnexpired ArchiveReason = "unexpired"
	// ArchiveReasonManual marks coupons archived by an operator.
	ArchiveReasonManual ArchiveReason = "manual"
)

// Coupon is one merchant discount offer observed on a source page. Its ID is
// the content hash of the (merchant, idInSite-or-title, domain) fingerprint,
// which is the sole identity key across crawl runs.
type Coupon struct {
	ID                 string         `json:"id" db:"id"`
	ActorID            string         `json:"actor_id" db:"actor_id"`
	SourceURL          string         `json:"source_url" db:"source_url"`
	MerchantName       string         `json:"merchant_name" db:"merchant_name"`
	Domain             string         `json:"domain" db:"domain"`
	Locale             string         `json:"locale" db:"locale"`
	Title              string         `json:"title" db:"title"`
	Description        *string        `json:"description,omitempty" db:"description"`
	TermsAndConditions *string        `json:"terms_and_conditions,omitempty" db:"terms_and_conditions"`
	Code               *string        `json:"code,omitempty" db:"code"`
	StartDateAt        *time.Time     `json:"start_date_at,omitempty" db:"start_date_at"`
	ExpiryDateAt       *time.Time     `json:"expiry_date_at,omitempty" db:"expiry_date_at"`
	IsExclusive        bool           `json:"is_exclusive" db:"is_exclusive"`
	IsShown            bool           `json:"is_shown" db:"is_shown"`
	IsExpired          bool           `json:"is_expired" db:"is_expired"`
	ShouldBeFake       bool           `json:"should_be_fake" db:"should_be_fake"`
	ArchivedAt         *time.Time     `json:"archived_at,omitempty" db:"archived_at"`
	ArchivedReason     *ArchiveReason `json:"archived_reason,omitempty" db:"archived_reason"`
	FirstSeenAt        time.Time      `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt         time.Time      `json:"last_seen_at" db:"last_seen_at"`
	LastCrawledAt      time.Time      `json:"last_crawled_at" db:"last_crawled_at"`
}

// IsArchived reports whether the coupon carries an archive stamp.
func (c *Coupon) IsArchived() bool {
	return c.ArchivedAt != nil
}

// CouponPatch enumerates exactly the fields the ingestion pipeline is allowed
// to overwrite on an existing coupon. Fields owned by other subsystems
// (merchant linkage, locale, first_seen_at) are deliberately absent so a
// partial scrape payload can never clobber them.
type CouponPatch struct {
	Domain             string
	Title              string
	Description        *string
	TermsAndConditions *string
	Code               *string
	StartDateAt        *time.Time
	ExpiryDateAt       *time.Time
	IsExclusive        bool
	IsShown            bool
	IsExpired          bool
	ShouldBeFake       bool
	ArchivedAt         *time.Time
	ArchivedReason     *ArchiveReason
	LastSeenAt         time.Time
	LastCrawledAt      time.Time
}

// Patch projects the coupon onto its mutable field set.
func (c *Coupon) Patch() CouponPatch {
	return CouponPatch{
		Domain:             c.Domain,
		Title:              c.Title,
		Description:        c.Description,
		TermsAndConditions: c.TermsAndConditions,
		Code:               c.Code,
		StartDateAt:        c.StartDateAt,
		ExpiryDateAt:       c.ExpiryDateAt,
		IsExclusive:        c.IsExclusive,
		IsShown:            c.IsShown,
		IsExpired:          c.IsExpired,
		ShouldBeFake:       c.ShouldBeFake,
		ArchivedAt:         c.ArchivedAt,
		ArchivedReason:     c.ArchivedReason,
		LastSeenAt:         c.LastSeenAt,
		LastCrawledAt:      c.LastCrawledAt,
	}
}

package ingest

import (
	"context"
	"time"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
)

// CouponStore is the coupon persistence surface the upsert engine needs.
type CouponStore interface {
	GetByID(ctx context.Context, id string) (*domain.Coupon, error)
	Upsert(ctx context.Context, c *domain.Coupon) error
}

// LocaleResolver maps a target page URL to its configured locale.
type LocaleResolver interface {
	LocaleForURL(ctx context.Context, url string) (string, error)
}

// Outcome is the statistics bucket of one upsert. Buckets are mutually
// exclusive and exhaustive.
type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeUpdated    Outcome = "updated"
	OutcomeArchived   Outcome = "archived"
	OutcomeUnarchived Outcome = "unarchived"
)

// Result reports one successful upsert.
type Result struct {
	ID      string
	Outcome Outcome
}

// Engine applies one scraped item to the coupon store: derives the identity
// hash, merges the allow-listed fields over any existing row, computes
// expiry transitions, and classifies the write for run statistics.
type Engine struct {
	coupons CouponStore
	locales LocaleResolver
	log     logger.Logger
	now     func() time.Time
}

// NewEngine creates an upsert engine.
func NewEngine(coupons CouponStore, locales LocaleResolver, log logger.Logger) *Engine {
	return &Engine{
		coupons: coupons,
		locales: locales,
		log:     log,
		now:     time.Now,
	}
}

// ProcessItem upserts one item. The returned error covers identity
// derivation and store failures; the caller records it against the run and
// moves on to the next item.
func (e *Engine) ProcessItem(
	ctx context.Context,
	actorID string,
	localeHint string,
	item domain.ScrapedItem,
) (Result, error) {
	id, err := domain.CouponID(item.MerchantName, item.IDInSite, item.Title, item.SourceURL)
	if err != nil {
		return Result{}, err
	}

	prior, err := e.coupons.GetByID(ctx, id)
	if err != nil {
		return Result{}, err
	}

	now := e.now()
	patch := buildPatch(item, now)
	applyTransitions(&patch, prior, item, now)

	coupon := e.buildCoupon(ctx, id, actorID, localeHint, item, prior, now)
	applyPatch(coupon, patch)

	if err := e.coupons.Upsert(ctx, coupon); err != nil {
		return Result{}, err
	}

	return Result{ID: id, Outcome: classify(prior, coupon)}, nil
}

// buildPatch maps the item onto the allow-listed mutable field set. Fields
// not named here can never be overwritten by a scrape payload.
func buildPatch(item domain.ScrapedItem, now time.Time) domain.CouponPatch {
	shown := true
	if item.IsShown != nil {
		shown = *item.IsShown
	}

	return domain.CouponPatch{
		Domain:             item.Domain,
		Title:              item.Title,
		Description:        optional(item.Description),
		TermsAndConditions: optional(item.TermsAndConditions),
		Code:               optional(item.Code),
		StartDateAt:        item.StartDateAt,
		ExpiryDateAt:       item.ExpiryDateAt,
		IsExclusive:        item.IsExclusive,
		IsShown:            shown,
		IsExpired:          item.IsExpired,
		ShouldBeFake:       item.CodeLooksFake(),
		LastSeenAt:         now,
		LastCrawledAt:      now,
	}
}

// applyTransitions computes the archival state transition for this sighting:
// active→expired when the payload flags expiry, expired→active when a
// previously archived coupon comes back (not-expired payload or a meaningful
// title change), otherwise the prior archival state is carried forward.
func applyTransitions(patch *domain.CouponPatch, prior *domain.Coupon, item domain.ScrapedItem, now time.Time) {
	wasArchived := prior != nil && prior.IsArchived()
	comeback := wasArchived && (!item.IsExpired || titleChanged(prior.Title, item.Title))

	switch {
	case comeback:
		reason := domain.ArchiveReasonUnexpired
		patch.ArchivedAt = nil
		patch.ArchivedReason = &reason
		patch.IsShown = true
		patch.IsExpired = false

	case item.IsExpired:
		if wasArchived {
			// Already archived and still expired: keep the original stamp.
			patch.ArchivedAt = prior.ArchivedAt
			patch.ArchivedReason = prior.ArchivedReason
		} else {
			archivedAt := now
			reason := domain.ArchiveReasonExpired
			patch.ArchivedAt = &archivedAt
			patch.ArchivedReason = &reason
		}
		patch.IsShown = false
		patch.IsExpired = true
	}
}

// titleChanged compares titles under the same normalization as the identity
// hash, so casing and whitespace churn does not count as a change.
func titleChanged(oldTitle, newTitle string) bool {
	if newTitle == "" {
		return false
	}
	return domain.Normalize(oldTitle) != domain.Normalize(newTitle)
}

func (e *Engine) buildCoupon(
	ctx context.Context,
	id, actorID, localeHint string,
	item domain.ScrapedItem,
	prior *domain.Coupon,
	now time.Time,
) *domain.Coupon {
	coupon := &domain.Coupon{
		ID:           id,
		ActorID:      actorID,
		SourceURL:    item.SourceURL,
		MerchantName: item.MerchantName,
		FirstSeenAt:  now,
	}

	if prior != nil {
		// Protected fields: merchant linkage and locale are owned elsewhere
		// once set, and first_seen_at never moves.
		coupon.MerchantName = prior.MerchantName
		coupon.Locale = prior.Locale
		coupon.FirstSeenAt = prior.FirstSeenAt
		return coupon
	}

	coupon.Locale = e.resolveLocale(ctx, localeHint, item)
	return coupon
}

// resolveLocale prefers the explicit hint carried with the run, then the
// item's own metadata, then the target-page mapping. A missing locale is a
// reportable anomaly, not a failure.
func (e *Engine) resolveLocale(ctx context.Context, localeHint string, item domain.ScrapedItem) string {
	if localeHint != "" {
		return localeHint
	}
	if item.Metadata.VerifyLocale != "" {
		return item.Metadata.VerifyLocale
	}

	pageURL := item.Metadata.TargetPageURL
	if pageURL == "" {
		pageURL = item.SourceURL
	}

	locale, err := e.locales.LocaleForURL(ctx, pageURL)
	if err != nil {
		e.log.Warn("Could not resolve locale",
			logger.String("source_url", item.SourceURL),
			logger.Error(err),
		)
		return ""
	}
	return locale
}

func classify(prior, current *domain.Coupon) Outcome {
	switch {
	case prior == nil:
		return OutcomeCreated
	case !prior.IsArchived() && current.IsArchived():
		return OutcomeArchived
	case prior.IsArchived() && !current.IsArchived():
		return OutcomeUnarchived
	default:
		return OutcomeUpdated
	}
}

func applyPatch(c *domain.Coupon, p domain.CouponPatch) {
	c.Domain = p.Domain
	c.Title = p.Title
	c.Description = p.Description
	c.TermsAndConditions = p.TermsAndConditions
	c.Code = p.Code
	c.StartDateAt = p.StartDateAt
	c.ExpiryDateAt = p.ExpiryDateAt
	c.IsExclusive = p.IsExclusive
	c.IsShown = p.IsShown
	c.IsExpired = p.IsExpired
	c.ShouldBeFake = p.ShouldBeFake
	c.ArchivedAt = p.ArchivedAt
	c.ArchivedReason = p.ArchivedReason
	c.LastSeenAt = p.LastSeenAt
	c.LastCrawledAt = p.LastCrawledAt
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

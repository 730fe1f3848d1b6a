package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/alert"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
)

// fakeCouponStore is an in-memory CouponStore and CouponSweeper.
type fakeCouponStore struct {
	coupons   map[string]*domain.Coupon
	upserts   int
	getErr    error
	upsertErr error

	archiveCalls [][]string // seenIDs per ArchiveNotSeen call
	archiveURLs  [][]string
	archiveErr   error
	hideCalls    [][]string
	hideErr      error
}

func newFakeCouponStore() *fakeCouponStore {
	return &fakeCouponStore{coupons: make(map[string]*domain.Coupon)}
}

func (s *fakeCouponStore) GetByID(_ context.Context, id string) (*domain.Coupon, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	c, ok := s.coupons[id]
	if !ok {
		return nil, nil
	}
	clone := *c
	return &clone, nil
}

func (s *fakeCouponStore) Upsert(_ context.Context, c *domain.Coupon) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	clone := *c
	s.coupons[c.ID] = &clone
	s.upserts++
	return nil
}

func (s *fakeCouponStore) ArchiveNotSeen(_ context.Context, sourceURLs, seenIDs []string, now time.Time) (int64, error) {
	if s.archiveErr != nil {
		return 0, s.archiveErr
	}
	s.archiveURLs = append(s.archiveURLs, sourceURLs)
	s.archiveCalls = append(s.archiveCalls, seenIDs)

	urls := make(map[string]struct{}, len(sourceURLs))
	for _, u := range sourceURLs {
		urls[u] = struct{}{}
	}
	seen := make(map[string]struct{}, len(seenIDs))
	for _, id := range seenIDs {
		seen[id] = struct{}{}
	}

	var archived int64
	for id, c := range s.coupons {
		if _, onPage := urls[c.SourceURL]; !onPage {
			continue
		}
		if c.IsArchived() {
			continue
		}
		if _, wasSeen := seen[id]; wasSeen {
			continue
		}
		stamp := now
		reason := domain.ArchiveReasonRemoved
		c.ArchivedAt = &stamp
		c.ArchivedReason = &reason
		c.IsExpired = true
		c.IsShown = false
		archived++
	}
	return archived, nil
}

func (s *fakeCouponStore) HideStale(_ context.Context, sourceURLs []string, before time.Time) (int64, error) {
	if s.hideErr != nil {
		return 0, s.hideErr
	}
	s.hideCalls = append(s.hideCalls, sourceURLs)

	urls := make(map[string]struct{}, len(sourceURLs))
	for _, u := range sourceURLs {
		urls[u] = struct{}{}
	}

	var hidden int64
	for _, c := range s.coupons {
		if _, onPage := urls[c.SourceURL]; !onPage {
			continue
		}
		if c.IsShown && c.LastSeenAt.Before(before) {
			c.IsShown = false
			hidden++
		}
	}
	return hidden, nil
}

// fakeLocaleResolver maps URLs to locales.
type fakeLocaleResolver struct {
	locales map[string]string
}

func (r *fakeLocaleResolver) LocaleForURL(_ context.Context, url string) (string, error) {
	if locale, ok := r.locales[url]; ok {
		return locale, nil
	}
	return "", fmt.Errorf("page %s: not found", url)
}

// fakeStatsStore records inserts and serves canned history.
type fakeStatsStore struct {
	history   map[string][]int
	inserted  []domain.CouponStats
	countsErr error
	insertErr error
}

func newFakeStatsStore() *fakeStatsStore {
	return &fakeStatsStore{history: make(map[string][]int)}
}

func (s *fakeStatsStore) Insert(_ context.Context, sample *domain.CouponStats) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, *sample)
	return nil
}

func (s *fakeStatsStore) CountsSince(_ context.Context, sourceURL string, _ time.Time) ([]int, error) {
	if s.countsErr != nil {
		return nil, s.countsErr
	}
	return s.history[sourceURL], nil
}

// fakeAlerter records notifications.
type fakeAlerter struct {
	notifications []string
}

func (a *fakeAlerter) Notify(_ context.Context, severity alert.Severity, title, message string) {
	a.notifications = append(a.notifications, fmt.Sprintf("%s: %s: %s", severity, title, message))
}

// fakeRequestLister serves a canned crawled-URL list.
type fakeRequestLister struct {
	urls []string
	err  error
}

func (l *fakeRequestLister) RunRequestURLs(_ context.Context, _ string) ([]string, error) {
	return l.urls, l.err
}

// fakeRunStore records Finalize calls.
type fakeRunStore struct {
	finalized   bool
	counts      domain.RunCounts
	errs        domain.RunErrorList
	finalizeErr error
}

func (s *fakeRunStore) Finalize(_ context.Context, _ string, counts domain.RunCounts, errs domain.RunErrorList, _ time.Time) error {
	if s.finalizeErr != nil {
		return s.finalizeErr
	}
	s.finalized = true
	s.counts = counts
	s.errs = errs
	return nil
}

// fakePageStore records page writes.
type fakePageStore struct {
	touched  []string
	disabled []string
}

func (s *fakePageStore) TouchLastRun(_ context.Context, urls []string, _ time.Time) error {
	s.touched = append(s.touched, urls...)
	return nil
}

func (s *fakePageStore) Disable(_ context.Context, url string, _ time.Time) error {
	s.disabled = append(s.disabled, url)
	return nil
}

// fakeDatasetClient serves canned dataset items.
type fakeDatasetClient struct {
	items []json.RawMessage
	err   error
}

func (c *fakeDatasetClient) DatasetItems(_ context.Context, _ string) ([]json.RawMessage, error) {
	return c.items, c.err
}

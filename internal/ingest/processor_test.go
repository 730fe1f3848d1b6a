package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/metrics"
)

type processorFixture struct {
	processor *Processor
	store     *fakeCouponStore
	stats     *fakeStatsStore
	runs      *fakeRunStore
	pages     *fakePageStore
	alerts    *fakeAlerter
	client    *fakeDatasetClient
	now       time.Time
}

func newProcessorFixture(items ...json.RawMessage) *processorFixture {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeCouponStore()
	stats := newFakeStatsStore()
	runs := &fakeRunStore{}
	pages := &fakePageStore{}
	alerts := &fakeAlerter{}
	client := &fakeDatasetClient{items: items}
	log := logger.NewNop()

	engine := NewEngine(store, &fakeLocaleResolver{}, log)
	engine.now = func() time.Time { return now }
	detector := NewDetector(stats, alerts, testAnomalyConfig(), log)
	detector.now = func() time.Time { return now }
	reconciler := NewReconciler(store, &fakeRequestLister{}, alerts, log)
	reconciler.now = func() time.Time { return now }

	p := NewProcessor(
		NewFetcher(client, log), engine, detector, reconciler,
		runs, pages, alerts, metrics.NewNop(), log,
	)
	p.now = func() time.Time { return now }

	return &processorFixture{
		processor: p,
		store:     store,
		stats:     stats,
		runs:      runs,
		pages:     pages,
		alerts:    alerts,
		client:    client,
		now:       now,
	}
}

func testRun(status domain.RunStatus) *domain.ProcessedRun {
	payload, _ := json.Marshal(domain.WebhookPayload{
		EventData: domain.WebhookEventData{ActorID: "actor-1", ActorRunID: "run-1"},
		Resource: domain.WebhookResource{
			DefaultDatasetID: "ds-1",
			Status:           string(status),
		},
		LocaleID: "en_US",
	})
	return &domain.ProcessedRun{
		ID:        "11111111-1111-1111-1111-111111111111",
		ActorID:   "actor-1",
		RunID:     "run-1",
		Status:    status,
		StartedAt: time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC),
		Payload:   payload,
	}
}

func itemJSON(merchant, idInSite, sourceURL, title string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"merchantName": merchant,
		"idInSite":     idInSite,
		"sourceUrl":    sourceURL,
		"title":        title,
	})
	return raw
}

func TestProcessorHappyPath(t *testing.T) {
	f := newProcessorFixture(
		itemJSON("Amazon", "deal-1", "https://x.com/a", "10% off"),
		itemJSON("Amazon", "deal-2", "https://x.com/a", "20% off"),
	)

	f.processor.ProcessRun(context.Background(), testRun(domain.RunStatusSucceeded))

	require.True(t, f.runs.finalized)
	assert.Equal(t, 2, f.runs.counts.Result)
	assert.Equal(t, 2, f.runs.counts.Created)
	assert.Zero(t, f.runs.counts.Errors)
	assert.Len(t, f.store.coupons, 2)
	assert.Equal(t, []string{"https://x.com/a"}, f.pages.touched)
	assert.Len(t, f.stats.inserted, 1, "one anomaly sample per source page")
	assert.Empty(t, f.alerts.notifications)
}

func TestProcessorIsolatesMalformedRecord(t *testing.T) {
	broken := json.RawMessage(`{"idInSite":"deal-x","sourceUrl":"https://x.com/a","title":"no merchant"}`)
	f := newProcessorFixture(
		itemJSON("Amazon", "deal-1", "https://x.com/a", "10% off"),
		broken,
		itemJSON("Amazon", "deal-2", "https://x.com/a", "20% off"),
	)

	f.processor.ProcessRun(context.Background(), testRun(domain.RunStatusSucceeded))

	require.True(t, f.runs.finalized)
	assert.Equal(t, 3, f.runs.counts.Result)
	assert.Equal(t, 2, f.runs.counts.Created)
	assert.Equal(t, 1, f.runs.counts.Errors)

	require.Len(t, f.runs.errs, 1)
	assert.Equal(t, 1, f.runs.errs[0].Index, "error keeps its original batch position")
	assert.JSONEq(t, string(broken), string(f.runs.errs[0].Payload))

	require.NotEmpty(t, f.alerts.notifications)
	assert.Contains(t, f.alerts.notifications[0], "record errors")
}

func TestProcessorSkipsNonSucceededRun(t *testing.T) {
	f := newProcessorFixture(itemJSON("Amazon", "deal-1", "https://x.com/a", "10% off"))

	f.processor.ProcessRun(context.Background(), testRun(domain.RunStatusFailed))

	require.True(t, f.runs.finalized)
	assert.Zero(t, f.runs.counts.Result)
	assert.Empty(t, f.store.coupons, "failed runs must not touch coupons")
	require.NotEmpty(t, f.alerts.notifications)
	assert.Contains(t, f.alerts.notifications[0], "did not succeed")
}

func TestProcessorFetchFailure(t *testing.T) {
	f := newProcessorFixture()
	f.client.err = errors.New("timeout awaiting response")

	f.processor.ProcessRun(context.Background(), testRun(domain.RunStatusSucceeded))

	require.True(t, f.runs.finalized, "a failed fetch still closes the run row")
	assert.Empty(t, f.store.coupons)
	require.NotEmpty(t, f.alerts.notifications)
	assert.Contains(t, f.alerts.notifications[0], "Dataset fetch failed")
}

func TestProcessorZeroResultsAlert(t *testing.T) {
	f := newProcessorFixture()

	f.processor.ProcessRun(context.Background(), testRun(domain.RunStatusSucceeded))

	require.True(t, f.runs.finalized)
	require.NotEmpty(t, f.alerts.notifications)
	assert.Contains(t, f.alerts.notifications[0], "Zero results")
}

func TestProcessorDisablesNonIndexPage(t *testing.T) {
	nonIndex, _ := json.Marshal(map[string]any{
		"merchantName": "Amazon",
		"idInSite":     "deal-1",
		"sourceUrl":    "https://x.com/landing",
		"title":        "10% off",
		"metadata":     map[string]any{"__isNotIndexPage": true},
	})
	f := newProcessorFixture(
		json.RawMessage(nonIndex),
		itemJSON("Amazon", "deal-2", "https://x.com/a", "20% off"),
	)

	f.processor.ProcessRun(context.Background(), testRun(domain.RunStatusSucceeded))

	assert.Equal(t, []string{"https://x.com/landing"}, f.pages.disabled)
	assert.Len(t, f.store.coupons, 1, "items from non-index pages are not ingested")
	assert.Equal(t, 1, f.runs.counts.Created)
	assert.Zero(t, f.runs.counts.Errors)

	var found bool
	for _, n := range f.alerts.notifications {
		if strings.Contains(n, "Non-index page") {
			found = true
			break
		}
	}
	assert.True(t, found, "operator is told about the disabled page")
}

func TestProcessorSweepAbsorbsRemovals(t *testing.T) {
	f := newProcessorFixture(itemJSON("Amazon", "deal-1", "https://x.com/a", "10% off"))
	seedCoupon(f.store, "vanished", "https://x.com/a", f.now.Add(-24*time.Hour))

	f.processor.ProcessRun(context.Background(), testRun(domain.RunStatusSucceeded))

	require.True(t, f.runs.finalized)
	assert.Equal(t, 1, f.runs.counts.Created)
	assert.Equal(t, 1, f.runs.counts.Archived, "sweep removals count into the run's archived bucket")
	require.NotNil(t, f.store.coupons["vanished"].ArchivedReason)
	assert.Equal(t, domain.ArchiveReasonRemoved, *f.store.coupons["vanished"].ArchivedReason)
}

func TestProcessorFinalizeFailureIsAlerted(t *testing.T) {
	f := newProcessorFixture(itemJSON("Amazon", "deal-1", "https://x.com/a", "10% off"))
	f.runs.finalizeErr = errors.New("row vanished")

	f.processor.ProcessRun(context.Background(), testRun(domain.RunStatusSucceeded))

	require.NotEmpty(t, f.alerts.notifications)
	assert.Contains(t, f.alerts.notifications[0], "Run finalization failed")
}

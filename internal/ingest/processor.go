package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/alert"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/metrics"
)

// RunFinalizer stamps the final state of a ProcessedRun row.
type RunFinalizer interface {
	Finalize(ctx context.Context, id string, counts domain.RunCounts, errors domain.RunErrorList, endedAt time.Time) error
}

// PageStore is the target-page surface the processor writes to.
type PageStore interface {
	TouchLastRun(ctx context.Context, urls []string, now time.Time) error
	Disable(ctx context.Context, url string, now time.Time) error
}

// Processor executes the full post-webhook pipeline for one run. It runs in
// a background worker after the webhook response has been sent: nothing it
// does may propagate an error upward; every failure terminates in a log,
// an alert, and an honest ProcessedRun row.
type Processor struct {
	fetcher    *Fetcher
	engine     *Engine
	detector   *Detector
	reconciler *Reconciler
	runs       RunFinalizer
	pages      PageStore
	alerts     alert.Alerter
	metrics    *metrics.Metrics
	log        logger.Logger
	now        func() time.Time
}

// NewProcessor wires the pipeline stages together.
func NewProcessor(
	fetcher *Fetcher,
	engine *Engine,
	detector *Detector,
	reconciler *Reconciler,
	runs RunFinalizer,
	pages PageStore,
	alerts alert.Alerter,
	m *metrics.Metrics,
	log logger.Logger,
) *Processor {
	return &Processor{
		fetcher:    fetcher,
		engine:     engine,
		detector:   detector,
		reconciler: reconciler,
		runs:       runs,
		pages:      pages,
		alerts:     alerts,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

// batchState accumulates per-run statistics across the item loop.
type batchState struct {
	counts       domain.RunCounts
	errors       domain.RunErrorList
	seenIDs      []string
	sourceCounts map[string]int
	nonIndex     map[string]struct{}
	skipped      int
	// upserted is the number of items that made it through the upsert
	// engine, kept apart from counts.Archived which also absorbs the
	// reconciler's sweep.
	upserted int
}

// ProcessRun drives one run end to end. It never returns an error; the
// ProcessedRun row and the alert channel carry the outcome.
func (p *Processor) ProcessRun(ctx context.Context, run *domain.ProcessedRun) {
	started := p.now()
	log := p.log.With(
		logger.String("run_id", run.RunID),
		logger.String("actor_id", run.ActorID),
	)

	payload, err := decodePayload(run.Payload)
	if err != nil {
		log.Error("Run payload is unusable", logger.Error(err))
		p.finish(ctx, run, batchState{}, "payload_invalid")
		return
	}

	if run.Status != domain.RunStatusSucceeded {
		log.Warn("Run did not succeed, skipping ingestion", logger.String("status", string(run.Status)))
		p.alerts.Notify(ctx, alert.SeverityWarning,
			"Scrape run did not succeed",
			fmt.Sprintf("run %s finished as %s", run.RunID, run.Status),
		)
		p.finish(ctx, run, batchState{}, "not_succeeded")
		return
	}

	items, err := p.fetcher.Fetch(ctx, payload.Resource.DefaultDatasetID)
	if err != nil {
		// Transport failure: record a zero-result run and leave the replay
		// to the periodic sweep.
		log.Error("Dataset fetch failed", logger.Error(err))
		p.alerts.Notify(ctx, alert.SeverityCritical,
			"Dataset fetch failed",
			fmt.Sprintf("run %s dataset %s: %v", run.RunID, payload.Resource.DefaultDatasetID, err),
		)
		p.finish(ctx, run, batchState{}, "fetch_failed")
		return
	}

	state := p.processItems(ctx, run, payload, items)

	p.detectAnomalies(ctx, run.RunID, state.sourceCounts)
	p.updatePages(ctx, state)
	state.counts.Archived += int(p.reconciler.Reconcile(
		ctx, run.RunID, run.StartedAt, sortedKeys(state.sourceCounts), state.seenIDs,
	))

	p.finish(ctx, run, state, "processed")

	log.Info("Run processed",
		logger.Int("results", state.counts.Result),
		logger.Int("created", state.counts.Created),
		logger.Int("updated", state.counts.Updated),
		logger.Int("archived", state.counts.Archived),
		logger.Int("unarchived", state.counts.Unarchived),
		logger.Int("errors", state.counts.Errors),
		logger.Duration("elapsed", p.now().Sub(started)),
	)
	p.metrics.RunDuration.Observe(p.now().Sub(started).Seconds())
}

// processItems runs the sequential per-item upsert loop. A single bad record
// is recorded with its index and payload and never aborts the batch.
func (p *Processor) processItems(
	ctx context.Context,
	run *domain.ProcessedRun,
	payload domain.WebhookPayload,
	items []json.RawMessage,
) batchState {
	state := batchState{
		counts:       domain.RunCounts{Result: len(items)},
		sourceCounts: make(map[string]int),
		nonIndex:     make(map[string]struct{}),
	}

	for i, raw := range items {
		item, parseErr := domain.ParseItem(raw)
		if parseErr != nil {
			p.recordItemError(&state, i, raw, parseErr)
			continue
		}

		if item.Metadata.IsNotIndexPage {
			pageURL := item.Metadata.TargetPageURL
			if pageURL == "" {
				pageURL = item.SourceURL
			}
			state.nonIndex[pageURL] = struct{}{}
			state.skipped++
			continue
		}

		result, upsertErr := p.engine.ProcessItem(ctx, run.ActorID, payload.LocaleID, item)
		if upsertErr != nil {
			p.recordItemError(&state, i, raw, upsertErr)
			continue
		}

		state.seenIDs = append(state.seenIDs, result.ID)
		state.sourceCounts[item.SourceURL]++
		state.upserted++
		p.metrics.ItemOutcomes.WithLabelValues(string(result.Outcome)).Inc()

		switch result.Outcome {
		case OutcomeCreated:
			state.counts.Created++
		case OutcomeUpdated:
			state.counts.Updated++
		case OutcomeArchived:
			state.counts.Archived++
		case OutcomeUnarchived:
			state.counts.Unarchived++
		}
	}

	return state
}

func (p *Processor) recordItemError(state *batchState, index int, raw json.RawMessage, err error) {
	state.counts.Errors++
	state.errors = append(state.errors, domain.RunError{
		Index:   index,
		Message: err.Error(),
		Payload: raw,
	})
	p.metrics.ItemErrors.Inc()
}

// detectAnomalies runs the per-source check after the whole batch. Failures
// are advisory and only logged.
func (p *Processor) detectAnomalies(ctx context.Context, runID string, sourceCounts map[string]int) {
	for _, sourceURL := range sortedKeys(sourceCounts) {
		classification, err := p.detector.Check(ctx, runID, sourceURL, sourceCounts[sourceURL])
		if err != nil {
			p.log.Error("Anomaly check failed",
				logger.String("source_url", sourceURL),
				logger.Error(err),
			)
			continue
		}
		if classification != ClassificationNone {
			p.metrics.Anomalies.WithLabelValues(string(classification)).Inc()
		}
	}
}

// updatePages stamps crawl times and disables pages flagged as non-listing.
func (p *Processor) updatePages(ctx context.Context, state batchState) {
	now := p.now()

	if urls := sortedKeys(state.sourceCounts); len(urls) > 0 {
		if err := p.pages.TouchLastRun(ctx, urls, now); err != nil {
			p.log.Error("Failed to stamp target pages", logger.Error(err))
		}
	}

	for pageURL := range state.nonIndex {
		if err := p.pages.Disable(ctx, pageURL, now); err != nil {
			p.log.Error("Failed to disable non-index page",
				logger.String("url", pageURL),
				logger.Error(err),
			)
			continue
		}
		p.alerts.Notify(ctx, alert.SeverityWarning,
			"Non-index page detected",
			fmt.Sprintf("page %s is not a coupon listing and was disabled", pageURL),
		)
	}
}

// finish finalizes the ProcessedRun row and fires the run-level alerts. It
// must succeed at degraded quality rather than fail: a finalize error is
// itself only alerted.
func (p *Processor) finish(ctx context.Context, run *domain.ProcessedRun, state batchState, result string) {
	if err := p.runs.Finalize(ctx, run.ID, state.counts, state.errors, p.now()); err != nil {
		p.log.Error("Failed to finalize run", logger.String("run_id", run.RunID), logger.Error(err))
		p.alerts.Notify(ctx, alert.SeverityCritical,
			"Run finalization failed",
			fmt.Sprintf("run %s: %v", run.RunID, err),
		)
	}
	p.metrics.RunsProcessed.WithLabelValues(result).Inc()

	if result != "processed" {
		return
	}

	counts := state.counts
	if counts.Result == 0 {
		p.alerts.Notify(ctx, alert.SeverityWarning,
			"Zero results processed",
			fmt.Sprintf("run %s produced no items", run.RunID),
		)
	}

	accounted := state.upserted + counts.Errors + state.skipped
	if counts.Result != accounted {
		p.alerts.Notify(ctx, alert.SeverityWarning,
			"Run counts do not reconcile",
			fmt.Sprintf("run %s: results=%d accounted=%d", run.RunID, counts.Result, accounted),
		)
	}

	if counts.Errors > 0 {
		p.alerts.Notify(ctx, alert.SeverityWarning,
			"Run finished with record errors",
			fmt.Sprintf("run %s: %d records failed", run.RunID, counts.Errors),
		)
	}
}

func decodePayload(raw json.RawMessage) (domain.WebhookPayload, error) {
	var payload domain.WebhookPayload
	if len(raw) == 0 {
		return payload, fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package ingest implements the webhook-driven coupon reconciliation
// pipeline: dataset fetching, per-item upserts, anomaly detection, and the
// end-of-run removal sweep.
package ingest

import (
	"context"
	"encoding/json"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
)

// DatasetClient retrieves the raw item list of a completed scrape run.
type DatasetClient interface {
	DatasetItems(ctx context.Context, datasetID string) ([]json.RawMessage, error)
}

// Fetcher pulls a run's dataset and collapses upstream duplicates before
// anything reaches the upsert engine.
type Fetcher struct {
	client DatasetClient
	log    logger.Logger
}

// NewFetcher creates a dataset fetcher.
func NewFetcher(client DatasetClient, log logger.Logger) *Fetcher {
	return &Fetcher{client: client, log: log}
}

// signatureFields is a lenient view of an item, used only to build the
// dedup signature. Records that fail even this decode pass through so the
// upsert engine can count them as malformed at their original position.
type signatureFields struct {
	MerchantName string `json:"merchantName"`
	IDInSite     string `json:"idInSite"`
	SourceURL    string `json:"sourceUrl"`
	Title        string `json:"title"`
	Domain       string `json:"domain"`
}

// Fetch retrieves all items of a dataset and drops repeated records: items
// identical in (title, idInSite, sourceUrl, merchantName, domain) collapse
// to their first occurrence. This guards against upstream scraper bugs that
// enqueue the same item twice within one run.
func (f *Fetcher) Fetch(ctx context.Context, datasetID string) ([]json.RawMessage, error) {
	items, err := f.client.DatasetItems(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(items))
	deduped := make([]json.RawMessage, 0, len(items))
	dropped := 0

	for _, raw := range items {
		var fields signatureFields
		if decodeErr := json.Unmarshal(raw, &fields); decodeErr != nil {
			deduped = append(deduped, raw)
			continue
		}

		sig := domain.ItemSignature(
			fields.Title, fields.IDInSite, fields.SourceURL,
			fields.MerchantName, fields.Domain,
		)
		if _, dup := seen[sig]; dup {
			dropped++
			continue
		}
		seen[sig] = struct{}{}
		deduped = append(deduped, raw)
	}

	if dropped > 0 {
		f.log.Warn("Dropped duplicate dataset items",
			logger.String("dataset_id", datasetID),
			logger.Int("dropped", dropped),
		)
	}

	return deduped, nil
}

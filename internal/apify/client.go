// Package apify is a minimal client for the Apify API surface the ingestion
// pipeline depends on: dataset item listing and actor-run request logs.
package apify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/config"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
)

const (
	retryCount    = 2
	retryWaitTime = 500 * time.Millisecond
)

// Client calls the Apify REST API. Both calls it makes are idempotent reads.
type Client struct {
	http     *resty.Client
	pageSize int
	log      logger.Logger
}

// NewClient creates an Apify API client from configuration.
func NewClient(cfg config.ApifyConfig, log logger.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.Token).
		SetTimeout(cfg.Timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(retryWaitTime)

	return &Client{
		http:     httpClient,
		pageSize: cfg.PageSize,
		log:      log,
	}
}

// DatasetItems retrieves the full item list of a dataset. The store gives no
// pagination guarantee, so pages are fetched until a short page is returned.
func (c *Client) DatasetItems(ctx context.Context, datasetID string) ([]json.RawMessage, error) {
	var items []json.RawMessage

	for offset := 0; ; offset += c.pageSize {
		page, err := c.datasetPage(ctx, datasetID, offset)
		if err != nil {
			return nil, err
		}

		items = append(items, page...)
		if len(page) < c.pageSize {
			break
		}
	}

	c.log.Debug("Fetched dataset items",
		logger.String("dataset_id", datasetID),
		logger.Int("count", len(items)),
	)

	return items, nil
}

func (c *Client) datasetPage(ctx context.Context, datasetID string, offset int) ([]json.RawMessage, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("datasetId", datasetID).
		SetQueryParams(map[string]string{
			"clean":  "true",
			"format": "json",
			"offset": fmt.Sprintf("%d", offset),
			"limit":  fmt.Sprintf("%d", c.pageSize),
		}).
		Get("/v2/datasets/{datasetId}/items")
	if err != nil {
		return nil, fmt.Errorf("fetch dataset %s at offset %d: %w", datasetID, offset, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch dataset %s: unexpected status %d", datasetID, resp.StatusCode())
	}

	var page []json.RawMessage
	if err := json.Unmarshal(resp.Body(), &page); err != nil {
		return nil, fmt.Errorf("decode dataset %s page: %w", datasetID, err)
	}
	return page, nil
}

// runRequest is one entry of an actor run's request queue.
type runRequest struct {
	URL string `json:"url"`
}

type runRequestsResponse struct {
	Data struct {
		Items []runRequest `json:"items"`
	} `json:"data"`
}

// RunRequestURLs lists the URLs an actor run actually enqueued for crawling.
// The reconciler uses this as the coarse staleness sweep input.
func (c *Client) RunRequestURLs(ctx context.Context, runID string) ([]string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("runId", runID).
		Get("/v2/actor-runs/{runId}/request-queue/requests")
	if err != nil {
		return nil, fmt.Errorf("fetch request log for run %s: %w", runID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch request log for run %s: unexpected status %d", runID, resp.StatusCode())
	}

	var body runRequestsResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decode request log for run %s: %w", runID, err)
	}

	urls := make([]string, 0, len(body.Data.Items))
	for _, req := range body.Data.Items {
		if req.URL != "" {
			urls = append(urls, req.URL)
		}
	}
	return urls, nil
}

// Package handler contains the gin HTTP handlers: the ingestion webhook and
// the read-only dashboard endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/metrics"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/repository"
)

// RunCreator persists the bookkeeping row for an accepted webhook.
type RunCreator interface {
	Create(ctx context.Context, run *domain.ProcessedRun) error
}

// Enqueuer hands an accepted run to the background worker.
type Enqueuer interface {
	Enqueue(run *domain.ProcessedRun) bool
}

// WebhookHandler accepts scrape-completion callbacks. The response is sent
// before any ingestion work happens; the caller only ever sees validation
// failures.
type WebhookHandler struct {
	runs    RunCreator
	queue   Enqueuer
	metrics *metrics.Metrics
	log     logger.Logger
	now     func() time.Time
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(runs RunCreator, queue Enqueuer, m *metrics.Metrics, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		runs:    runs,
		queue:   queue,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// HandleCoupons is POST /webhooks/coupons.
func (h *WebhookHandler) HandleCoupons(c *gin.Context) {
	var payload domain.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.reject(c, "malformed payload: "+err.Error())
		return
	}
	if err := payload.Validate(); err != nil {
		h.reject(c, err.Error())
		return
	}

	status, err := domain.ParseRunStatus(payload.Resource.Status)
	if err != nil {
		h.reject(c, err.Error())
		return
	}

	run, err := h.buildRun(payload, status)
	if err != nil {
		h.reject(c, err.Error())
		return
	}

	if err := h.runs.Create(c.Request.Context(), run); err != nil {
		if errors.Is(err, repository.ErrDuplicateRun) {
			// Idempotency guard: a redelivered webhook is acknowledged
			// without touching any coupon.
			h.metrics.WebhooksReceived.WithLabelValues("duplicate").Inc()
			c.JSON(http.StatusOK, gin.H{
				"status":        "SUCCESS",
				"statusMessage": "run " + run.RunID + " already received",
			})
			return
		}
		h.log.Error("Could not persist run", logger.String("run_id", run.RunID), logger.Error(err))
		h.metrics.WebhooksReceived.WithLabelValues("error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":        "ERROR",
			"statusMessage": "could not persist run",
		})
		return
	}

	if !h.queue.Enqueue(run) {
		// The run row exists, so the stale-run sweep will replay it once
		// it ages past the first threshold.
		h.log.Warn("Worker queue full, processing deferred", logger.String("run_id", run.RunID))
		h.metrics.WebhooksReceived.WithLabelValues("deferred").Inc()
		c.JSON(http.StatusOK, gin.H{
			"status":        "SUCCESS",
			"statusMessage": "run accepted, processing deferred",
			"data":          gin.H{"id": run.ID},
		})
		return
	}

	h.metrics.WebhooksReceived.WithLabelValues("accepted").Inc()
	c.JSON(http.StatusOK, gin.H{
		"status":        "SUCCESS",
		"statusMessage": "run accepted",
		"data":          gin.H{"id": run.ID},
	})
}

func (h *WebhookHandler) buildRun(payload domain.WebhookPayload, status domain.RunStatus) (*domain.ProcessedRun, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	startedAt := payload.Resource.StartedAt
	if startedAt.IsZero() {
		startedAt = h.now()
	}

	return &domain.ProcessedRun{
		ActorID:    payload.EventData.ActorID,
		RunID:      payload.EventData.ActorRunID,
		Status:     status,
		StartedAt:  startedAt,
		CostUSD:    payload.Resource.UsageTotalUSD,
		Payload:    raw,
		RetryCount: payload.EventData.RetriesCount,
	}, nil
}

func (h *WebhookHandler) reject(c *gin.Context, message string) {
	h.metrics.WebhooksReceived.WithLabelValues("rejected").Inc()
	c.JSON(http.StatusBadRequest, gin.H{
		"status":        "ERROR",
		"statusMessage": message,
	})
}

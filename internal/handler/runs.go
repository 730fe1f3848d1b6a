package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/repository"
)

// defaultStatsRange is the lookback used when /stats/sources gets no range.
const defaultStatsRange = 14 * 24 * time.Hour

// RunReader serves the dashboard's run queries.
type RunReader interface {
	List(ctx context.Context, filter repository.ListFilter) ([]domain.ProcessedRun, error)
	GetByRunID(ctx context.Context, runID string) (*domain.ProcessedRun, error)
}

// StatsReader serves the dashboard's per-source aggregates.
type StatsReader interface {
	DailyCounts(ctx context.Context, from, to time.Time) ([]domain.SourceDailyCount, error)
}

// RunsHandler exposes the read-only run and stats endpoints.
type RunsHandler struct {
	runs  RunReader
	stats StatsReader
}

// NewRunsHandler creates a RunsHandler.
func NewRunsHandler(runs RunReader, stats StatsReader) *RunsHandler {
	return &RunsHandler{runs: runs, stats: stats}
}

// ListRuns is GET /runs.
func (h *RunsHandler) ListRuns(c *gin.Context) {
	filter := repository.ListFilter{
		From:   parseTimeQuery(c, "from"),
		To:     parseTimeQuery(c, "to"),
		Limit:  parseIntQuery(c, "limit"),
		Offset: parseIntQuery(c, "offset"),
	}

	runs, err := h.runs.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// GetRun is GET /runs/:id, keyed by the external run identifier.
func (h *RunsHandler) GetRun(c *gin.Context) {
	run, err := h.runs.GetByRunID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load run"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// SourceStats is GET /stats/sources?from=&to=.
func (h *RunsHandler) SourceStats(c *gin.Context) {
	to := time.Now()
	if parsed := parseTimeQuery(c, "to"); parsed != nil {
		to = *parsed
	}
	from := to.Add(-defaultStatsRange)
	if parsed := parseTimeQuery(c, "from"); parsed != nil {
		from = *parsed
	}

	counts, err := h.stats.DailyCounts(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"from":    from.UTC().Format(time.RFC3339),
		"to":      to.UTC().Format(time.RFC3339),
		"sources": counts,
	})
}

func parseTimeQuery(c *gin.Context, name string) *time.Time {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseIntQuery(c *gin.Context, name string) int {
	value, err := strconv.Atoi(c.Query(name))
	if err != nil || value < 0 {
		return 0
	}
	return value
}

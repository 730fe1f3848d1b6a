package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/repository"
)

type fakeRunReader struct {
	runs   []domain.ProcessedRun
	filter repository.ListFilter
	byID   map[string]*domain.ProcessedRun
}

func (f *fakeRunReader) List(_ context.Context, filter repository.ListFilter) ([]domain.ProcessedRun, error) {
	f.filter = filter
	return f.runs, nil
}

func (f *fakeRunReader) GetByRunID(_ context.Context, runID string) (*domain.ProcessedRun, error) {
	if run, ok := f.byID[runID]; ok {
		return run, nil
	}
	return nil, repository.ErrNotFound
}

type fakeStatsReader struct {
	counts   []domain.SourceDailyCount
	from, to time.Time
}

func (f *fakeStatsReader) DailyCounts(_ context.Context, from, to time.Time) ([]domain.SourceDailyCount, error) {
	f.from, f.to = from, to
	return f.counts, nil
}

func newRunsRouter(runs *fakeRunReader, stats *fakeStatsReader) *gin.Engine {
	h := NewRunsHandler(runs, stats)
	router := gin.New()
	router.GET("/runs", h.ListRuns)
	router.GET("/runs/:id", h.GetRun)
	router.GET("/stats/sources", h.SourceStats)
	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListRunsPassesRangeFilter(t *testing.T) {
	runs := &fakeRunReader{runs: []domain.ProcessedRun{{RunID: "run-1"}}}
	router := newRunsRouter(runs, &fakeStatsReader{})

	rec := get(router, "/runs?from=2026-08-01T00:00:00Z&limit=10")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "run-1")
	require.NotNil(t, runs.filter.From)
	assert.Equal(t, 2026, runs.filter.From.Year())
	assert.Equal(t, 10, runs.filter.Limit)
	assert.Nil(t, runs.filter.To)
}

func TestGetRunByExternalID(t *testing.T) {
	runs := &fakeRunReader{byID: map[string]*domain.ProcessedRun{
		"run-1": {RunID: "run-1", Status: domain.RunStatusSucceeded},
	}}
	router := newRunsRouter(runs, &fakeStatsReader{})

	rec := get(router, "/runs/run-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SUCCEEDED")

	rec = get(router, "/runs/run-unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSourceStatsDefaultsToTrailingWindow(t *testing.T) {
	stats := &fakeStatsReader{counts: []domain.SourceDailyCount{
		{SourceURL: "https://x.com/a", Count: 40},
	}}
	router := newRunsRouter(&fakeRunReader{}, stats)

	rec := get(router, "/stats/sources")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://x.com/a")
	assert.InDelta(t, defaultStatsRange.Hours(), stats.to.Sub(stats.from).Hours(), 1)
}

func TestSourceStatsHonorsExplicitRange(t *testing.T) {
	stats := &fakeStatsReader{}
	router := newRunsRouter(&fakeRunReader{}, stats)

	rec := get(router, "/stats/sources?from=2026-07-01T00:00:00Z&to=2026-07-08T00:00:00Z")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), stats.from.UTC())
	assert.Equal(t, time.Date(2026, 7, 8, 0, 0, 0, 0, time.UTC), stats.to.UTC())
}

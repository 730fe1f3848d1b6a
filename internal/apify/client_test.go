package apify_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/apify"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/config"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
)

func newTestClient(t *testing.T, handler http.Handler, pageSize int) (*apify.Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := apify.NewClient(config.ApifyConfig{
		BaseURL:  srv.URL,
		Token:    "test-token",
		Timeout:  5 * time.Second,
		PageSize: pageSize,
	}, logger.NewNop())

	return client, srv
}

func TestDatasetItems_Paginates(t *testing.T) {
	const pageSize = 2
	total := 5

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/datasets/ds1/items", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("clean"))

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		require.Equal(t, pageSize, limit)

		var page []json.RawMessage
		for i := offset; i < total && i < offset+limit; i++ {
			page = append(page, json.RawMessage(fmt.Sprintf(`{"idInSite":"item-%d"}`, i)))
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(page))
	})

	client, _ := newTestClient(t, handler, pageSize)

	items, err := client.DatasetItems(context.Background(), "ds1")
	require.NoError(t, err)
	assert.Len(t, items, total)
}

func TestDatasetItems_EmptyDataset(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	})

	client, _ := newTestClient(t, handler, 100)

	items, err := client.DatasetItems(context.Background(), "ds1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDatasetItems_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	client, _ := newTestClient(t, handler, 100)

	_, err := client.DatasetItems(context.Background(), "ds1")
	assert.Error(t, err)
}

func TestRunRequestURLs(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/actor-runs/run1/request-queue/requests", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"items":[
			{"url":"https://coupons.example.com/amazon"},
			{"url":""},
			{"url":"https://coupons.example.com/ebay"}
		]}}`))
	})

	client, _ := newTestClient(t, handler, 100)

	urls, err := client.RunRequestURLs(context.Background(), "run1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://coupons.example.com/amazon",
		"https://coupons.example.com/ebay",
	}, urls)
}

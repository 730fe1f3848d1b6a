package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
)

// ErrDuplicateRun is returned when a ProcessedRun with the same external run
// id already exists. The webhook handler treats it as a successful no-op.
var ErrDuplicateRun = errors.New("run already processed")

// uniqueViolation is the PostgreSQL error code for unique constraint breaks.
const uniqueViolation = "23505"

// RunRepository persists ProcessedRun bookkeeping rows.
type RunRepository struct {
	db  *sql.DB
	log logger.Logger
}

// NewRunRepository creates a run repository.
func NewRunRepository(db *sql.DB, log logger.Logger) *RunRepository {
	return &RunRepository{db: db, log: log}
}

const runColumns = `
	id, actor_id, run_id, status, started_at, ended_at,
	result_count, created_count, updated_count, archived_count,
	unarchived_count, error_count, cost_usd, payload, errors, retry_count`

// Create inserts the bookkeeping row for a webhook delivery. The unique
// constraint on run_id is the pipeline's sole idempotency guard: a duplicate
// delivery surfaces as ErrDuplicateRun before any coupon is touched.
func (r *RunRepository) Create(ctx context.Context, run *domain.ProcessedRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	query := `
		INSERT INTO processed_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.ActorID, run.RunID, string(run.Status), run.StartedAt, run.EndedAt,
		run.ResultCount, run.CreatedCount, run.UpdatedCount, run.ArchivedCount,
		run.UnarchivedCount, run.ErrorCount, run.CostUSD, payloadValue(run.Payload),
		run.Errors, run.RetryCount,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateRun
	}
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}
	return nil
}

// GetByID fetches a run by its row id.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.ProcessedRun, error) {
	query := `SELECT` + runColumns + ` FROM processed_runs WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByRunID fetches a run by the external run identifier.
func (r *RunRepository) GetByRunID(ctx context.Context, runID string) (*domain.ProcessedRun, error) {
	query := `SELECT` + runColumns + ` FROM processed_runs WHERE run_id = $1`
	return r.getOne(ctx, query, runID)
}

func (r *RunRepository) getOne(ctx context.Context, query string, arg any) (*domain.ProcessedRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return run, nil
}

// Finalize stamps the run's end time and final counters. Called exactly once
// per processing attempt, even when the attempt produced nothing.
func (r *RunRepository) Finalize(
	ctx context.Context,
	id string,
	counts domain.RunCounts,
	runErrors domain.RunErrorList,
	endedAt time.Time,
) error {
	query := `
		UPDATE processed_runs
		SET ended_at = $1,
		    result_count = $2,
		    created_count = $3,
		    updated_count = $4,
		    archived_count = $5,
		    unarchived_count = $6,
		    error_count = $7,
		    errors = $8
		WHERE id = $9`

	_, err := r.db.ExecContext(ctx, query,
		endedAt, counts.Result, counts.Created, counts.Updated,
		counts.Archived, counts.Unarchived, counts.Errors, runErrors, id,
	)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", id, err)
	}
	return nil
}

// retryAgeThresholds escalate how long a run must sit unfinished before the
// sweep replays it, indexed by retry count: 1h, then 12h, then 24h.
var retryAgeThresholds = []time.Duration{
	1 * time.Hour,
	12 * time.Hour,
	24 * time.Hour,
}

// FindStale returns runs whose processing never finished (ended_at NULL),
// aged past the escalating threshold for their retry count and still under
// the replay cap.
func (r *RunRepository) FindStale(ctx context.Context, now time.Time, maxRetries int) ([]domain.ProcessedRun, error) {
	query := `
		SELECT` + runColumns + `
		FROM processed_runs
		WHERE ended_at IS NULL
		  AND retry_count < $1
		ORDER BY started_at ASC`

	rows, err := r.db.QueryContext(ctx, query, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("query stale runs: %w", err)
	}
	defer rows.Close()

	var stale []domain.ProcessedRun
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan stale run: %w", scanErr)
		}
		if now.Sub(run.StartedAt) >= staleThreshold(run.RetryCount) {
			stale = append(stale, *run)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale runs: %w", err)
	}
	return stale, nil
}

func staleThreshold(retryCount int) time.Duration {
	if retryCount >= len(retryAgeThresholds) {
		return retryAgeThresholds[len(retryAgeThresholds)-1]
	}
	return retryAgeThresholds[retryCount]
}

// IncrementRetry bumps the retry counter before a replay attempt.
func (r *RunRepository) IncrementRetry(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE processed_runs SET retry_count = retry_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment retry for run %s: %w", id, err)
	}
	return nil
}

// ListFilter holds pagination and date-range parameters for List.
type ListFilter struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// List returns runs ordered by start time, newest first.
func (r *RunRepository) List(ctx context.Context, filter ListFilter) ([]domain.ProcessedRun, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
		SELECT` + runColumns + `
		FROM processed_runs
		WHERE ($1::timestamptz IS NULL OR started_at >= $1)
		  AND ($2::timestamptz IS NULL OR started_at <= $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.QueryContext(ctx, query, filter.From, filter.To, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.ProcessedRun, 0)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan run: %w", scanErr)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row rowScanner) (*domain.ProcessedRun, error) {
	var (
		run     domain.ProcessedRun
		status  string
		payload []byte
	)

	err := row.Scan(
		&run.ID, &run.ActorID, &run.RunID, &status, &run.StartedAt, &run.EndedAt,
		&run.ResultCount, &run.CreatedCount, &run.UpdatedCount, &run.ArchivedCount,
		&run.UnarchivedCount, &run.ErrorCount, &run.CostUSD, &payload, &run.Errors,
		&run.RetryCount,
	)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	run.Payload = payload
	return &run, nil
}

func payloadValue(payload []byte) any {
	if len(payload) == 0 {
		return nil
	}
	return string(payload)
}

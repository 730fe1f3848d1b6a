package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RunStatus mirrors the lifecycle states reported by the Apify job runner.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "QUEUED"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusTimedOut  RunStatus = "TIMED-OUT"
	RunStatusAborted   RunStatus = "ABORTED"
)

// ParseRunStatus maps an Apify status string to the internal enum.
func ParseRunStatus(s string) (RunStatus, error) {
	switch RunStatus(s) {
	case RunStatusQueued, RunStatusRunning, RunStatusSucceeded,
		RunStatusFailed, RunStatusTimedOut, RunStatusAborted:
		return RunStatus(s), nil
	case "READY":
		return RunStatusQueued, nil
	default:
		return "", fmt.Errorf("unknown run status %q", s)
	}
}

// Terminal reports whether the status is a final job state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusTimedOut, RunStatusAborted:
		return true
	default:
		return false
	}
}

// RunError records a single failed record within a run: its position in the
// dataset, the failure, and the payload that was being processed, kept so a
// replay can inspect what went wrong.
type RunError struct {
	Index   int             `json:"index"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RunErrorList is a JSONB-backed slice of per-record errors.
type RunErrorList []RunError

// ErrInvalidErrorList is returned when scanning a non-JSON column value.
var ErrInvalidErrorList = errors.New("run error list: unsupported column type")

// Value implements driver.Valuer for JSONB storage.
func (l RunErrorList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal run errors: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSONB retrieval.
func (l *RunErrorList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return ErrInvalidErrorList
	}
}

// ProcessedRun is the bookkeeping row for one webhook invocation. The unique
// constraint on RunID is the idempotency guard against duplicate deliveries,
// and a NULL EndedAt past a timeout makes the run eligible for replay.
type ProcessedRun struct {
	ID              string          `json:"id" db:"id"`
	ActorID         string          `json:"actor_id" db:"actor_id"`
	RunID           string          `json:"run_id" db:"run_id"`
	Status          RunStatus       `json:"status" db:"status"`
	StartedAt       time.Time       `json:"started_at" db:"started_at"`
	EndedAt         *time.Time      `json:"ended_at,omitempty" db:"ended_at"`
	ResultCount     int             `json:"result_count" db:"result_count"`
	CreatedCount    int             `json:"created_count" db:"created_count"`
	UpdatedCount    int             `json:"updated_count" db:"updated_count"`
	ArchivedCount   int             `json:"archived_count" db:"archived_count"`
	UnarchivedCount int             `json:"unarchived_count" db:"unarchived_count"`
	ErrorCount      int             `json:"error_count" db:"error_count"`
	CostUSD         float64         `json:"cost_usd" db:"cost_usd"`
	Payload         json.RawMessage `json:"payload,omitempty" db:"payload"`
	Errors          RunErrorList    `json:"errors,omitempty" db:"errors"`
	RetryCount      int             `json:"retry_count" db:"retry_count"`
}

// RunCounts aggregates the per-run statistics accumulated during ingestion.
type RunCounts struct {
	Result     int
	Created    int
	Updated    int
	Archived   int
	Unarchived int
	Errors     int
}

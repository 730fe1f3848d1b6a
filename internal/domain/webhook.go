package domain

import (
	"errors"
	"time"
)

// Validation errors for the synchronous part of the webhook request. These
// are the only failures a webhook caller ever sees.
var (
	ErrMissingActorID   = errors.New("eventData.actorId is required")
	ErrMissingRunID     = errors.New("eventData.actorRunId is required")
	ErrMissingDatasetID = errors.New("resource.defaultDatasetId is required")
	ErrMissingStatus    = errors.New("resource.status is required")
)

// WebhookEventData identifies the actor run that completed.
type WebhookEventData struct {
	ActorID      string `json:"actorId"`
	ActorRunID   string `json:"actorRunId"`
	RetriesCount int    `json:"retriesCount,omitempty"`
}

// WebhookResource carries the run's outcome as reported by the job runner.
type WebhookResource struct {
	DefaultDatasetID string    `json:"defaultDatasetId"`
	Status           string    `json:"status"`
	UsageTotalUSD    float64   `json:"usageTotalUsd"`
	StartedAt        time.Time `json:"startedAt"`
}

// WebhookPayload is the scrape-completion callback body. The raw payload is
// persisted on the ProcessedRun row so a failed run can be replayed.
type WebhookPayload struct {
	EventData WebhookEventData `json:"eventData"`
	Resource  WebhookResource  `json:"resource"`
	LocaleID  string           `json:"localeId,omitempty"`
}

// Validate checks the required top-level fields.
func (p *WebhookPayload) Validate() error {
	if p.EventData.ActorID == "" {
		return ErrMissingActorID
	}
	if p.EventData.ActorRunID == "" {
		return ErrMissingRunID
	}
	if p.Resource.DefaultDatasetID == "" {
		return ErrMissingDatasetID
	}
	if p.Resource.Status == "" {
		return ErrMissingStatus
	}
	return nil
}

// Package alert delivers advisory notifications for ingestion incidents.
// Alerts are fire-and-forget: a delivery failure is logged, never returned
// into the pipeline.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alerter receives alert-worthy conditions from the pipeline.
type Alerter interface {
	Notify(ctx context.Context, severity Severity, title, message string)
}

// slackTimeout bounds the Slack webhook call so alerting can never stall
// run finalization.
const slackTimeout = 10 * time.Second

// SlackAlerter posts alerts to a Slack incoming webhook.
type SlackAlerter struct {
	http *resty.Client
	log  logger.Logger
}

// NewSlack creates an alerter posting to the given Slack webhook URL.
func NewSlack(webhookURL string, log logger.Logger) *SlackAlerter {
	httpClient := resty.New().
		SetBaseURL(webhookURL).
		SetTimeout(slackTimeout)

	return &SlackAlerter{http: httpClient, log: log}
}

// Notify posts the alert. Failures are logged and swallowed.
func (a *SlackAlerter) Notify(ctx context.Context, severity Severity, title, message string) {
	text := fmt.Sprintf("[%s] %s\n%s", severity, title, message)

	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": text}).
		Post("")
	if err != nil {
		a.log.Error("Failed to deliver alert", logger.Error(err), logger.String("title", title))
		return
	}
	if resp.IsError() {
		a.log.Error("Alert webhook rejected",
			logger.Int("status", resp.StatusCode()),
			logger.String("title", title),
		)
	}
}

// LogAlerter writes alerts to the service log. Used when no webhook URL is
// configured, and in tests.
type LogAlerter struct {
	log logger.Logger
}

// NewLog creates a log-only alerter.
func NewLog(log logger.Logger) *LogAlerter {
	return &LogAlerter{log: log}
}

// Notify logs the alert.
func (a *LogAlerter) Notify(_ context.Context, severity Severity, title, message string) {
	field := logger.String("message", message)
	if severity == SeverityCritical {
		a.log.Error("ALERT: "+title, field)
		return
	}
	a.log.Warn("ALERT: "+title, field)
}

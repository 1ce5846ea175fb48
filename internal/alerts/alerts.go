// Package alerts delivers operational notifications. The watchdog is the
// only producer today; delivery goes to a webhook when one is configured and
// to the log otherwise.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Severity levels
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is one operational notification
type Alert struct {
	Component     string                 `json:"component"`
	ComponentName string                 `json:"component_name"`
	Severity      string                 `json:"severity"`
	Status        string                 `json:"status"`
	Message       string                 `json:"message"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// Sink delivers alerts somewhere a human will see them
type Sink interface {
	Send(ctx context.Context, alert Alert) error
}

// HTTPSink posts alerts as JSON to a webhook
type HTTPSink struct {
	client     *resty.Client
	webhookURL string
	log        zerolog.Logger
}

// NewHTTPSink creates a webhook-backed sink
func NewHTTPSink(webhookURL string, log zerolog.Logger) *HTTPSink {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second)

	return &HTTPSink{
		client:     client,
		webhookURL: webhookURL,
		log:        log.With().Str("component", "alerts").Logger(),
	}
}

// Send posts the alert to the webhook. Any non-2xx response is an error.
func (s *HTTPSink) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(alert).
		Post(s.webhookURL)
	if err != nil {
		return fmt.Errorf("failed to post alert webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode())
	}

	s.log.Debug().Str("severity", alert.Severity).Str("message", alert.Message).Msg("Alert delivered")
	return nil
}

// LogSink writes alerts to the log. Used when no webhook is configured so
// alerting never silently disappears.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a log-backed sink
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "alerts").Logger()}
}

// Send writes the alert at a level matching its severity
func (s *LogSink) Send(ctx context.Context, alert Alert) error {
	event := s.log.Warn()
	switch alert.Severity {
	case SeverityCritical:
		event = s.log.Error()
	case SeverityInfo:
		event = s.log.Info()
	}

	event.
		Str("component_name", alert.ComponentName).
		Str("status", alert.Status).
		Interface("details", alert.Details).
		Msg(alert.Message)

	return nil
}

// NewSink returns an HTTP sink when a webhook URL is configured, otherwise
// a log sink.
func NewSink(webhookURL string, log zerolog.Logger) Sink {
	if webhookURL != "" {
		return NewHTTPSink(webhookURL, log)
	}
	return NewLogSink(log)
}

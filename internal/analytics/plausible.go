// Package analytics emits best-effort custom events to Plausible.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/incierge/incierge-intake/pkg/logging"
)

const (
	DefaultEventURL = "https://plausible.io/api/event"

	// EventContactSubmitted is recorded once per accepted lead.
	EventContactSubmitted = "Contact Submitted"
)

// Event is one Plausible custom event.
type Event struct {
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Domain    string            `json:"domain"`
	Referrer  string            `json:"referrer,omitempty"`
	Props     map[string]string `json:"props,omitempty"`
	UserAgent string            `json:"-"`
	ClientIP  string            `json:"-"`
}

// FailureObserver is notified when an event could not be delivered.
type FailureObserver interface {
	ObserveAnalyticsFailure()
}

// Emitter posts events to the Plausible events API.
type Emitter interface {
	Emit(ctx context.Context, evt Event)
}

// PlausibleEmitter sends events over HTTP and swallows every failure.
type PlausibleEmitter struct {
	eventURL   string
	domain     string
	httpClient *http.Client
	observer   FailureObserver
	logger     *logging.Logger
}

// NewPlausibleEmitter returns nil when no site domain is configured.
func NewPlausibleEmitter(eventURL, domain string, observer FailureObserver, logger *logging.Logger) *PlausibleEmitter {
	if domain == "" {
		return nil
	}
	if eventURL == "" {
		eventURL = DefaultEventURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PlausibleEmitter{
		eventURL:   eventURL,
		domain:     domain,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		observer:   observer,
		logger:     logger,
	}
}

// Emit sends evt. Errors are logged at warn and counted, never returned.
func (e *PlausibleEmitter) Emit(ctx context.Context, evt Event) {
	if err := e.send(ctx, evt); err != nil {
		e.logger.Warn("analytics event not delivered", "event", evt.Name, "error", err)
		if e.observer != nil {
			e.observer.ObserveAnalyticsFailure()
		}
	}
}

func (e *PlausibleEmitter) send(ctx context.Context, evt Event) error {
	if evt.Domain == "" {
		evt.Domain = e.domain
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("analytics: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.eventURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("analytics: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if evt.UserAgent != "" {
		req.Header.Set("User-Agent", evt.UserAgent)
	}
	if evt.ClientIP != "" {
		req.Header.Set("X-Forwarded-For", evt.ClientIP)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("analytics: post event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("analytics: plausible returned status %d", resp.StatusCode)
	}
	return nil
}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) {}

var (
	_ Emitter = (*PlausibleEmitter)(nil)
	_ Emitter = NopEmitter{}
)

// Package notify pushes suggestion lifecycle events to external channels.
// The chat front-end that rendered the original request learns through these
// events that a proposal is ready, applied, rejected, or failed.
package notify

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType defines the type of notification event.
type EventType string

const (
	// EventSuggestionReady is sent when the generator produced a proposal
	EventSuggestionReady EventType = "suggestion.ready"

	// EventSuggestionApplied is sent when a proposal was written to the file
	EventSuggestionApplied EventType = "suggestion.applied"

	// EventSuggestionRejected is sent when a proposal was discarded
	EventSuggestionRejected EventType = "suggestion.rejected"

	// EventSuggestionFailed is sent when generation failed
	EventSuggestionFailed EventType = "suggestion.failed"
)

// Event is a notification event.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	SessionID    string    `json:"session_id"`
	SuggestionID string    `json:"suggestion_id,omitempty"`
	RepoName     string    `json:"repo_name,omitempty"`
	FilePath     string    `json:"file_path,omitempty"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// JSON returns the event encoded as JSON.
func (e *Event) JSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// NewEventID returns a sortable unique event id.
func NewEventID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Publisher publishes notification events to a message bus.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// Adapter sends notifications to a specific channel (Telegram, etc).
type Adapter interface {
	// Name returns the adapter name
	Name() string

	// Send sends a notification
	Send(ctx context.Context, event *Event) error

	// Close closes the adapter
	Close() error
}

// Manager fans events out to a publisher and all configured adapters.
type Manager struct {
	adapters  []Adapter
	publisher Publisher
}

// NewManager creates a notification manager.
func NewManager(publisher Publisher, adapters ...Adapter) *Manager {
	return &Manager{
		adapters:  adapters,
		publisher: publisher,
	}
}

// Notify sends a notification via the publisher and all adapters. Adapter
// failures do not stop the fan-out; the last error is returned.
func (m *Manager) Notify(ctx context.Context, event *Event) error {
	if m == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var lastErr error
	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, event); err != nil {
			lastErr = fmt.Errorf("publish event: %w", err)
		}
	}
	for _, adapter := range m.adapters {
		if err := adapter.Send(ctx, event); err != nil {
			lastErr = fmt.Errorf("%s: %w", adapter.Name(), err)
		}
	}
	return lastErr
}

// Close closes the publisher and all adapters.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	var lastErr error
	if m.publisher != nil {
		if err := m.publisher.Close(); err != nil {
			lastErr = err
		}
	}
	for _, adapter := range m.adapters {
		if err := adapter.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

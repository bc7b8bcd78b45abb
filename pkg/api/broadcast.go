package api

import (
	"context"
	"fmt"
	"time"

	"github.com/odvcencio/helmsman/pkg/notify"
	"github.com/odvcencio/helmsman/pkg/suggest"
)

// lifecycleBroadcaster pushes suggestion lifecycle transitions to WebSocket
// subscribers and to the configured notification adapters.
type lifecycleBroadcaster struct {
	hub      *Hub
	notifier *notify.Manager
}

func (b *lifecycleBroadcaster) SuggestionReady(record suggest.Suggestion) {
	b.hub.Broadcast(StreamEvent{
		Type:         string(notify.EventSuggestionReady),
		SessionID:    record.SessionID,
		SuggestionID: record.ID,
		RepoName:     record.RepoName,
		FilePath:     record.FilePath,
		Message:      fmt.Sprintf("proposal for %s is ready", record.FilePath),
	})
	b.notify(&notify.Event{
		Type:         notify.EventSuggestionReady,
		SessionID:    record.SessionID,
		SuggestionID: record.ID,
		RepoName:     record.RepoName,
		FilePath:     record.FilePath,
		Title:        "Suggestion ready",
		Message:      fmt.Sprintf("proposal for %s is ready for review", record.FilePath),
	})
}

func (b *lifecycleBroadcaster) SuggestionFailed(sessionID, filePath string, err error) {
	message := "suggestion generation failed"
	if err != nil {
		message = err.Error()
	}
	b.hub.Broadcast(StreamEvent{
		Type:      string(notify.EventSuggestionFailed),
		SessionID: sessionID,
		FilePath:  filePath,
		Message:   message,
	})
	b.notify(&notify.Event{
		Type:      notify.EventSuggestionFailed,
		SessionID: sessionID,
		FilePath:  filePath,
		Title:     "Suggestion failed",
		Message:   message,
	})
}

// announceResolution reports an apply or reject outcome.
func (b *lifecycleBroadcaster) announceResolution(eventType notify.EventType, sessionID, suggestionID, filePath string) {
	b.hub.Broadcast(StreamEvent{
		Type:         string(eventType),
		SessionID:    sessionID,
		SuggestionID: suggestionID,
		FilePath:     filePath,
	})
	b.notify(&notify.Event{
		Type:         eventType,
		SessionID:    sessionID,
		SuggestionID: suggestionID,
		FilePath:     filePath,
		Message:      fmt.Sprintf("suggestion #%s resolved as %s", suggestionID, eventType),
	})
}

func (b *lifecycleBroadcaster) notify(event *notify.Event) {
	if b.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = b.notifier.Notify(ctx, event)
}

var _ suggest.Broadcaster = (*lifecycleBroadcaster)(nil)

// Package suggest tracks proposed file edits through their lifecycle and
// produces them by calling an external generator. The ledger performs no file
// I/O: applying a suggestion hands the proposed content back to the caller,
// which owns the write.
package suggest

import (
	"strconv"
	"sync"
	"time"

	apperrors "github.com/odvcencio/helmsman/pkg/errors"
)

// State is the lifecycle state of a suggestion.
type State string

const (
	// StatePending means the suggestion awaits an apply or reject decision.
	StatePending State = "pending"
)

// Suggestion is a proposed replacement for one file's content.
type Suggestion struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	RepoName    string    `json:"repo_name"`
	RepoPath    string    `json:"-"`
	FilePath    string    `json:"file_path"`
	Original    string    `json:"-"`
	Proposed    string    `json:"-"`
	Instruction string    `json:"instruction"`
	Diff        string    `json:"diff,omitempty"`
	State       State     `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ledger holds pending suggestions keyed by a monotonically issued id.
// Applied and rejected are terminal: the record is removed on transition, so
// a second apply or reject of the same id reports SUGGESTION_NOT_FOUND.
type Ledger struct {
	mu      sync.Mutex
	next    uint64
	records map[string]*Suggestion
}

// NewLedger creates an empty ledger. Ids restart at 1 each process lifetime;
// persistence is out of scope.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]*Suggestion)}
}

// Create records a pending suggestion and returns its assigned id. The
// counter increment and map insert are atomic as a unit.
func (l *Ledger) Create(s Suggestion) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	s.ID = strconv.FormatUint(l.next, 10)
	s.State = StatePending
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	l.records[s.ID] = &s
	return s.ID
}

// Get returns a snapshot of a pending suggestion.
func (l *Ledger) Get(id string) (Suggestion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[id]
	if !ok {
		return Suggestion{}, notFound(id)
	}
	return *record, nil
}

// ListBySession returns the pending suggestions for one session, ordered by id.
func (l *Ledger) ListBySession(sessionID string) []Suggestion {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Suggestion, 0)
	for _, record := range l.records {
		if record.SessionID == sessionID {
			out = append(out, *record)
		}
	}
	sortByID(out)
	return out
}

// Apply removes the session's suggestion and returns it so the caller can
// perform the write. The removal is the terminal transition; a failed write
// afterward must be reported, not retried, since the record is gone.
func (l *Ledger) Apply(sessionID, id string) (Suggestion, error) {
	return l.take(sessionID, id)
}

// Reject removes the session's suggestion without any side effect.
func (l *Ledger) Reject(sessionID, id string) (Suggestion, error) {
	return l.take(sessionID, id)
}

// take checks ownership and removes the record under one lock, so a foreign
// session can never race a transition. Ownership failures are reported as not
// found to avoid leaking which ids exist.
func (l *Ledger) take(sessionID, id string) (Suggestion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[id]
	if !ok || record.SessionID != sessionID {
		return Suggestion{}, notFound(id)
	}
	delete(l.records, id)
	return *record, nil
}

// Count returns the number of pending suggestions. Used by metrics.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func notFound(id string) error {
	return apperrors.New(apperrors.ErrCodeSuggestionNotFound, "suggestion not found").
		WithContext("suggestion_id", id)
}

func sortByID(suggestions []Suggestion) {
	// Ids are decimal strings from one counter; numeric order is creation order.
	for i := 1; i < len(suggestions); i++ {
		for j := i; j > 0 && numericLess(suggestions[j].ID, suggestions[j-1].ID); j-- {
			suggestions[j], suggestions[j-1] = suggestions[j-1], suggestions[j]
		}
	}
}

func numericLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

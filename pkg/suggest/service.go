package suggest

import (
	"context"
	"os"

	apperrors "github.com/odvcencio/helmsman/pkg/errors"
	"github.com/odvcencio/helmsman/pkg/logging"
	"github.com/odvcencio/helmsman/pkg/session"
	"github.com/odvcencio/helmsman/pkg/telemetry"
)

// maxSourceBytes mirrors the read ceiling: files too large to display are
// also too large to send to the generator.
const maxSourceBytes = 1_000_000

// Broadcaster receives suggestion lifecycle announcements. Implementations
// fan out to WebSocket clients and notification adapters.
type Broadcaster interface {
	SuggestionReady(s Suggestion)
	SuggestionFailed(sessionID, filePath string, err error)
}

// NopBroadcaster discards all announcements.
type NopBroadcaster struct{}

func (NopBroadcaster) SuggestionReady(Suggestion)             {}
func (NopBroadcaster) SuggestionFailed(string, string, error) {}

// Service validates suggestion requests and runs the generator call in the
// background. No lock is held across the generator call.
type Service struct {
	sessions    *session.Store
	ledger      *Ledger
	generator   Generator
	broadcaster Broadcaster
	logger      *logging.Logger
}

// NewService wires the suggestion pipeline together.
func NewService(sessions *session.Store, ledger *Ledger, generator Generator, broadcaster Broadcaster, logger *logging.Logger) *Service {
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	return &Service{
		sessions:    sessions,
		ledger:      ledger,
		generator:   generator,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Ledger exposes the underlying ledger for handlers.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// Request is a validated suggestion request ready for background processing.
type Request struct {
	SessionID   string
	RepoName    string
	RepoPath    string
	FilePath    string // repository-relative
	AbsPath     string
	Instruction string
}

// Prepare resolves and validates a suggestion request synchronously so the
// caller can reject bad input before acknowledging the request.
func (s *Service) Prepare(sessionID, filePath, instruction string) (Request, error) {
	abs, rel, sess, err := s.sessions.Resolve(sessionID, filePath)
	if err != nil {
		return Request{}, err
	}

	info, statErr := os.Stat(abs)
	if statErr != nil || info.IsDir() {
		return Request{}, apperrors.New(apperrors.ErrCodePathNotFound, "file not found").
			WithContext("file_path", rel)
	}
	if info.Size() > maxSourceBytes {
		return Request{}, apperrors.New(apperrors.ErrCodeFileTooLarge,
			"file exceeds the suggestion size ceiling").
			WithContext("file_path", rel)
	}

	return Request{
		SessionID:   sessionID,
		RepoName:    sess.RepoName,
		RepoPath:    sess.RepoPath,
		FilePath:    rel,
		AbsPath:     abs,
		Instruction: instruction,
	}, nil
}

// Process reads the file, calls the generator, and records the pending
// suggestion. Intended to run in its own goroutine; failures are announced
// through the broadcaster rather than returned.
func (s *Service) Process(ctx context.Context, req Request) {
	ctx, span := telemetry.StartSpan(ctx, "suggest.process")
	defer span.End()
	telemetry.SetAttributes(ctx,
		telemetry.AttrSessionID.String(req.SessionID),
		telemetry.AttrRepoName.String(req.RepoName),
		telemetry.AttrPath.String(req.FilePath),
	)

	data, err := os.ReadFile(req.AbsPath)
	if err != nil {
		telemetry.RecordError(ctx, err)
		s.fail(req, apperrors.Wrap(err, apperrors.ErrCodePathNotFound, "read file"))
		return
	}
	original := string(data)

	proposed, err := s.generator.Generate(ctx, req.FilePath, original, req.Instruction)
	if err != nil {
		telemetry.RecordError(ctx, err)
		s.fail(req, apperrors.Wrap(err, apperrors.ErrCodeAdapterFailure, "generator call failed"))
		return
	}

	diff, err := buildUnifiedDiff(req.FilePath, original, proposed)
	if err != nil {
		diff = "" // preview is best-effort; the suggestion is still usable
	}

	record := Suggestion{
		SessionID:   req.SessionID,
		RepoName:    req.RepoName,
		RepoPath:    req.RepoPath,
		FilePath:    req.FilePath,
		Original:    original,
		Proposed:    proposed,
		Instruction: req.Instruction,
		Diff:        diff,
	}
	record.ID = s.ledger.Create(record)
	record.State = StatePending

	s.logger.Info(logging.CategorySuggest, "suggestion_ready", "generator produced a proposal", map[string]any{
		"suggestion_id": record.ID,
		"session_id":    req.SessionID,
		"file_path":     req.FilePath,
	})
	s.broadcaster.SuggestionReady(record)
}

func (s *Service) fail(req Request, err error) {
	s.logger.Error(logging.CategorySuggest, "suggestion_failed", err.Error(), map[string]any{
		"session_id": req.SessionID,
		"file_path":  req.FilePath,
	})
	s.broadcaster.SuggestionFailed(req.SessionID, req.FilePath, err)
}

// ApplyResult is what the caller needs to perform the write after a terminal
// apply transition.
type ApplyResult struct {
	FilePath string
	AbsPath  string
	Proposed string
	Diff     string
}

// Apply removes the session's suggestion from the ledger and writes the
// proposed content to the file. The ledger transition happens first; if the
// write fails afterward the record stays removed and the error is reported as
// an adapter failure, never retried automatically.
func (s *Service) Apply(sessionID, suggestionID string) (ApplyResult, error) {
	record, err := s.ledger.Apply(sessionID, suggestionID)
	if err != nil {
		return ApplyResult{}, err
	}

	abs, rel, resolveErr := resolveRecordPath(record)
	if resolveErr != nil {
		return ApplyResult{}, resolveErr
	}

	if writeErr := os.WriteFile(abs, []byte(record.Proposed), 0644); writeErr != nil {
		return ApplyResult{}, apperrors.Wrap(writeErr, apperrors.ErrCodeAdapterFailure,
			"suggestion removed from ledger but file write failed").
			WithContext("suggestion_id", suggestionID).
			WithContext("file_path", rel)
	}

	s.logger.Info(logging.CategorySuggest, "suggestion_applied", "proposal written to file", map[string]any{
		"suggestion_id": suggestionID,
		"file_path":     rel,
	})
	return ApplyResult{FilePath: rel, AbsPath: abs, Proposed: record.Proposed, Diff: record.Diff}, nil
}

// Reject removes the session's suggestion without touching the file.
func (s *Service) Reject(sessionID, suggestionID string) (string, error) {
	record, err := s.ledger.Reject(sessionID, suggestionID)
	if err != nil {
		return "", err
	}
	s.logger.Info(logging.CategorySuggest, "suggestion_rejected", "proposal discarded", map[string]any{
		"suggestion_id": suggestionID,
		"file_path":     record.FilePath,
	})
	return record.FilePath, nil
}

// resolveRecordPath re-checks the sandbox boundary before writing. The record
// was created from a sandbox-checked path, but the write is the one place the
// ledger's data touches disk.
func resolveRecordPath(record Suggestion) (string, string, error) {
	return session.ResolveWithinRoot(record.RepoPath, record.FilePath)
}

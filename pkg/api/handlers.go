package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"nhooyr.io/websocket"

	apperrors "github.com/odvcencio/helmsman/pkg/errors"
	"github.com/odvcencio/helmsman/pkg/explorer"
	"github.com/odvcencio/helmsman/pkg/logging"
	"github.com/odvcencio/helmsman/pkg/notify"
	"github.com/odvcencio/helmsman/pkg/session"
	"github.com/odvcencio/helmsman/pkg/vcs"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"service": "helmsman",
		"version": Version,
		"status":  "ok",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleDocs publishes the endpoint catalog. Signing requirements are
// documented here so clients can self-serve.
func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"service": "helmsman",
		"auth": map[string]any{
			"headers":    []string{"X-API-Key", "X-Timestamp", "X-Signature"},
			"signature":  "HMAC-SHA256 over canonical(payload) + timestamp, lowercase hex",
			"payload":    "GET: query parameters; POST: JSON body object",
			"skew_limit": int(s.cfg.Auth.MaxClockSkew().Seconds()),
			"exempt":     []string{"/", "/health", "/docs"},
		},
		"endpoints": []string{
			"GET /repos", "POST /select",
			"GET /ls", "POST /cd", "GET /pwd", "GET /cat", "GET /tree",
			"GET /branch", "POST /checkout", "GET /status", "POST /commit", "POST /push", "POST /pull",
			"POST /suggest", "GET /suggestions", "POST /apply", "POST /reject",
			"GET /events (websocket)", "GET /metrics",
		},
	})
}

// handleListRepos scans the base path for git working copies.
func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.Repos.BasePath)
	if err != nil {
		respondError(w, 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "read repos base path"))
		return
	}

	repos := []string{}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if vcs.IsRepo(filepath.Join(s.cfg.Repos.BasePath, entry.Name())) {
			repos = append(repos, entry.Name())
		}
	}
	sort.Strings(repos)
	s.metrics.RecordRequest("/repos")
	respondJSON(w, map[string]any{"repos": repos})
}

type selectRequest struct {
	SessionID string `json:"session_id"`
	RepoName  string `json:"repo_name"`
}

func (s *Server) handleSelectRepo(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, 0, err)
		return
	}
	if req.SessionID == "" || req.RepoName == "" {
		respondError(w, 0, apperrors.New(apperrors.ErrCodeInvalidInput, "session_id and repo_name are required"))
		return
	}

	sess, err := s.sessions.SelectRepo(req.SessionID, req.RepoName)
	if err != nil {
		respondError(w, 0, err)
		return
	}

	s.logger.Info(logging.CategorySession, "repo_selected", "repository selected", map[string]any{
		"session_id": sess.ID,
		"repo_name":  sess.RepoName,
	})
	s.metrics.RecordRequest("/select")
	respondJSON(w, map[string]any{
		"session_id":   sess.ID,
		"repo_name":    sess.RepoName,
		"current_path": "/",
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, 0, apperrors.New(apperrors.ErrCodeInvalidInput, "session_id is required"))
		return
	}

	listing, err := s.explorer.List(sessionID, r.URL.Query().Get("path"))
	if err != nil {
		respondError(w, 0, err)
		return
	}
	s.metrics.RecordRequest("/ls")
	respondJSON(w, listing)
}

type changeDirRequest struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
}

func (s *Server) handleChangeDir(w http.ResponseWriter, r *http.Request) {
	var req changeDirRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, 0, err)
		return
	}
	if req.SessionID == "" {
		respondError(w, 0, apperrors.New(apperrors.ErrCodeInvalidInput, "session_id is required"))
		return
	}

	current, err := s.sessions.Navigate(req.SessionID, req.Path)
	if err != nil {
		respondError(w, 0, err)
		return
	}
	s.metrics.RecordRequest("/cd")
	respondJSON(w, map[string]any{
		"session_id":   req.SessionID,
		"current_path": displayPath(current),
	})
}

func (s *Server) handleWorkingDir(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	s.metrics.RecordRequest("/pwd")
	respondJSON(w, map[string]any{
		"session_id":   sess.ID,
		"repo_name":    sess.RepoName,
		"current_path": displayPath(sess.CurrentPath),
	})
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	filePath := r.URL.Query().Get("file_path")
	if sessionID == "" || filePath == "" {
		respondError(w, 0, apperrors.New(apperrors.ErrCodeInvalidInput, "session_id and file_path are required"))
		return
	}

	content, err := s.explorer.ReadFile(sessionID, filePath)
	if err != nil {
		respondError(w, 0, err)
		return
	}
	s.metrics.RecordRequest("/cat")
	respondJSON(w, content)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, 0, apperrors.New(apperrors.ErrCodeInvalidInput, "session_id is required"))
		return
	}
	maxDepth := parseIntDefault(r.URL.Query().Get("max_depth"), explorer.DefaultTreeDepth)

	tree, err := s.explorer.Tree(sessionID, maxDepth)
	if err != nil {
		respondError(w, 0, err)
		return
	}
	s.metrics.RecordRequest("/tree")
	respondJSON(w, map[string]any{"tree": tree})
}

func (s *Server) handleBranches(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	branches, err := s.git.Branches(sess.RepoPath)
	if err != nil {
		respondError(w, 0, err)
		return
	}
	s.metrics.RecordRequest("/branch")
	respondJSON(w, map[string]any{
		"current":  branches[0],
		"branches": branches,
	})
}

type checkoutRequest struct {
	SessionID string `json:"session_id"`
	Branch    string `json:"branch"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, 0, err)
		return
	}
	if req.SessionID == "" || req.Branch == "" {
		respondError(w, 0, apperrors.New(apperrors.ErrCodeInvalidInput, "session_id and branch are required"))
		return
	}

	sess, err := s.sessions.Get(req.SessionID)
	if err != nil {
		respondError(w, 0, err)
		return
	}
	if err := s.git.Checkout(sess.RepoPath, req.Branch); err != nil {
		respondError(w, 0, err)
		return
	}

	s.logger.Info(logging.CategoryVCS, "branch_checkout", "branch checked out", map[string]any{
		"session_id": sess.ID,
		"repo_name":  sess.RepoName,
		"branch":     req.Branch,
	})
	s.metrics.RecordRequest("/checkout")
	respondJSON(w, map[string]any{
		"session_id": sess.ID,
		"branch":     req.Branch,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	status, err := s.git.Status(sess.RepoPath)
	if err != nil {
		respondError(w, 0, err)
		return
	}
	s.metrics.RecordRequest("/status")
	respondJSON(w, status)
}

type commitRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, 0, err)
		return
	}
	if req.SessionID == "" || strings.TrimSpace(req.Message) == "" {
		respondError(w, 0, apperrors.New(apperrors.ErrCodeInvalidInput, "session_id and message are required"))
		return
	}

	sess, err := s.sessions.Get(req.SessionID)
	if err != nil {
		respondError(w, 0, err)
		return
	}
	hash, err := s.git.Commit(sess.RepoPath, req.Message)
	if err != nil {
		respondError(w, 0, err)
		return
	}

	s.logger.Info(logging.CategoryVCS, "commit_created", "commit created", map[string]any{
		"session_id": sess.ID,
		"repo_name":  sess.RepoName,
		"commit":     hash,
	})
	s.metrics.RecordRequest("/commit")
	respondJSON(w, map[string]any{
		"session_id": sess.ID,
		"commit":     hash,
	})
}

type sessionOnlyRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req sessionOnlyRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, 0, err)
		return
	}
	sess, err := s.sessions.Get(req.SessionID)
	if err != nil {
		respondError(w, 0, err)
		return
	}
	if err := s.git.Push(r.Context(), sess.RepoPath); err != nil {
		respondError(w, 0, err)
		return
	}
	s.metrics.RecordRequest("/push")
	respondJSON(w, map[string]any{
		"session_id": sess.ID,
		"status":     "pushed",
	})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var req sessionOnlyRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, 0, err)
		return
	}
	sess, err := s.sessions.Get(req.SessionID)
	if err != nil {
		respondError(w, 0, err)
		return
	}
	if err := s.git.Pull(r.Context(), sess.RepoPath); err != nil {
		respondError(w, 0, err)
		return
	}
	s.metrics.RecordRequest("/pull")
	respondJSON(w, map[string]any{
		"session_id": sess.ID,
		"status":     "pulled",
	})
}

type suggestRequest struct {
	SessionID   string `json:"session_id"`
	FilePath    string `json:"file_path"`
	Instruction string `json:"instruction"`
}

// handleSuggest validates the request synchronously and runs generation in the
// background; the proposal arrives over /events and /suggestions.
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, 0, err)
		return
	}
	if req.SessionID == "" || req.FilePath == "" || strings.TrimSpace(req.Instruction) == "" {
		respondError(w, 0, apperrors.New(apperrors.ErrCodeInvalidInput,
			"session_id, file_path and instruction are required"))
		return
	}

	prepared, err := s.suggests.Prepare(req.SessionID, req.FilePath, req.Instruction)
	if err != nil {
		respondError(w, 0, err)
		return
	}

	go s.suggests.Process(context.Background(), prepared)

	s.metrics.RecordRequest("/suggest")
	respondJSONStatus(w, http.StatusAccepted, map[string]any{
		"session_id": prepared.SessionID,
		"file_path":  prepared.FilePath,
		"status":     "processing",
	})
}

func (s *Server) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, 0, apperrors.New(apperrors.ErrCodeInvalidInput, "session_id is required"))
		return
	}
	s.metrics.RecordRequest("/suggestions")
	respondJSON(w, map[string]any{
		"suggestions": s.ledger.ListBySession(sessionID),
	})
}

type resolveRequest struct {
	SessionID    string `json:"session_id"`
	SuggestionID string `json:"suggestion_id"`
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeResolve(w, r)
	if !ok {
		return
	}

	result, err := s.suggests.Apply(req.SessionID, req.SuggestionID)
	if err != nil {
		respondError(w, 0, err)
		return
	}

	s.broadcast.announceResolution(notify.EventSuggestionApplied, req.SessionID, req.SuggestionID, result.FilePath)
	s.logger.Info(logging.CategorySuggest, "suggestion_applied", "suggestion applied", map[string]any{
		"session_id":    req.SessionID,
		"suggestion_id": req.SuggestionID,
		"file_path":     result.FilePath,
	})
	s.metrics.RecordRequest("/apply")
	respondJSON(w, map[string]any{
		"session_id":    req.SessionID,
		"suggestion_id": req.SuggestionID,
		"file_path":     result.FilePath,
		"status":        "applied",
	})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeResolve(w, r)
	if !ok {
		return
	}

	filePath, err := s.suggests.Reject(req.SessionID, req.SuggestionID)
	if err != nil {
		respondError(w, 0, err)
		return
	}

	s.broadcast.announceResolution(notify.EventSuggestionRejected, req.SessionID, req.SuggestionID, filePath)
	s.metrics.RecordRequest("/reject")
	respondJSON(w, map[string]any{
		"session_id":    req.SessionID,
		"suggestion_id": req.SuggestionID,
		"file_path":     filePath,
		"status":        "rejected",
	})
}

// decodeResolve decodes an apply/reject envelope. Ownership is enforced by
// the ledger transition itself, under the same lock as the removal.
func (s *Server) decodeResolve(w http.ResponseWriter, r *http.Request) (resolveRequest, bool) {
	var req resolveRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, 0, err)
		return req, false
	}
	if req.SessionID == "" || req.SuggestionID == "" {
		respondError(w, 0, apperrors.New(apperrors.ErrCodeInvalidInput,
			"session_id and suggestion_id are required"))
		return req, false
	}
	return req, true
}

// handleEvents upgrades to WebSocket and streams lifecycle events. An optional
// session_id query parameter narrows the stream to one session.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // same-origin enforcement happens at the gate
	})
	if err != nil {
		return
	}

	var filter func(StreamEvent) bool
	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		filter = func(event StreamEvent) bool {
			return event.SessionID == "" || event.SessionID == sessionID
		}
	}

	client := s.hub.register(conn, filter)
	defer s.hub.removeClient(client)
	defer client.close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	go func() {
		// Drain reads so pings and the close handshake are processed.
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	_ = client.writeLoop(ctx)
}

func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, 0, apperrors.New(apperrors.ErrCodeInvalidInput, "session_id is required"))
		return session.Session{}, false
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, 0, err)
		return session.Session{}, false
	}
	return sess, true
}

func displayPath(rel string) string {
	if rel == "" {
		return "/"
	}
	return rel
}

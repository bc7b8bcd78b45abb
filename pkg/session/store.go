// Package session tracks per-caller state: which repository a caller has
// selected and where inside it the caller is currently positioned. All paths
// handed out by this package are relative to the selected repository root and
// are guaranteed to stay inside it.
package session

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "github.com/odvcencio/helmsman/pkg/errors"
)

// Session is the state owned by the store for one caller.
type Session struct {
	ID          string
	RepoName    string
	RepoPath    string // absolute root of the working copy
	CurrentPath string // relative, "" means root
}

// RepoValidator reports whether an absolute path is a valid working copy root.
type RepoValidator func(path string) bool

// Store is a concurrency-safe map of session id to session state. Calls for
// different sessions proceed independently; calls for the same session are
// serialized on a per-session lock so racing navigations cannot lose updates.
type Store struct {
	basePath string
	validate RepoValidator

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	session Session
}

// NewStore creates a store rooted at basePath. The validator decides whether
// a directory qualifies as a selectable repository.
func NewStore(basePath string, validate RepoValidator) *Store {
	return &Store{
		basePath: filepath.Clean(basePath),
		validate: validate,
		sessions: make(map[string]*entry),
	}
}

func (s *Store) lockEntry(sessionID string, create bool) (*entry, error) {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		if !create {
			s.mu.Unlock()
			return nil, apperrors.New(apperrors.ErrCodeNoSessionSelected,
				"no repository selected; select one first").
				WithContext("session_id", sessionID)
		}
		e = &entry{session: Session{ID: sessionID}}
		s.sessions[sessionID] = e
	}
	s.mu.Unlock()
	e.mu.Lock()
	return e, nil
}

// SelectRepo binds the session to a repository and resets its position to the
// root. Re-selection overwrites any previous choice.
func (s *Store) SelectRepo(sessionID, repoName string) (Session, error) {
	repoName = strings.TrimSpace(repoName)
	if repoName == "" || repoName != filepath.Base(repoName) || strings.HasPrefix(repoName, ".") {
		return Session{}, apperrors.New(apperrors.ErrCodeInvalidResource, "invalid repository name").
			WithContext("repo_name", repoName)
	}

	repoPath := filepath.Join(s.basePath, repoName)
	info, err := os.Stat(repoPath)
	if err != nil || !info.IsDir() {
		return Session{}, apperrors.New(apperrors.ErrCodeInvalidResource,
			"repository not found").WithContext("repo_name", repoName)
	}
	if s.validate != nil && !s.validate(repoPath) {
		return Session{}, apperrors.New(apperrors.ErrCodeInvalidResource,
			"directory is not a valid working copy").WithContext("repo_name", repoName)
	}

	e, err := s.lockEntry(sessionID, true)
	if err != nil {
		return Session{}, err
	}
	defer e.mu.Unlock()

	e.session.RepoName = repoName
	e.session.RepoPath = repoPath
	e.session.CurrentPath = ""
	return e.session, nil
}

// Get returns a snapshot of the session state.
func (s *Store) Get(sessionID string) (Session, error) {
	e, err := s.lockEntry(sessionID, false)
	if err != nil {
		return Session{}, err
	}
	defer e.mu.Unlock()
	if e.session.RepoPath == "" {
		return Session{}, apperrors.New(apperrors.ErrCodeNoSessionSelected,
			"no repository selected; select one first").
			WithContext("session_id", sessionID)
	}
	return e.session, nil
}

// Navigate moves the session's current path. "/" resets to the root and ".."
// moves up one level, clamped at the root; any other value is resolved
// relative to the current path and must name an existing directory inside
// the repository.
func (s *Store) Navigate(sessionID, path string) (string, error) {
	e, err := s.lockEntry(sessionID, false)
	if err != nil {
		return "", err
	}
	defer e.mu.Unlock()
	if e.session.RepoPath == "" {
		return "", apperrors.New(apperrors.ErrCodeNoSessionSelected,
			"no repository selected; select one first").
			WithContext("session_id", sessionID)
	}

	switch path {
	case "/":
		e.session.CurrentPath = ""
		return "", nil
	case "..":
		parent := filepath.Dir(e.session.CurrentPath)
		if parent == "." || parent == "/" {
			parent = ""
		}
		e.session.CurrentPath = parent
		return parent, nil
	}

	abs, rel, err := resolveWithin(e.session.RepoPath, e.session.CurrentPath, path)
	if err != nil {
		return "", err
	}
	info, statErr := os.Stat(abs)
	if statErr != nil || !info.IsDir() {
		return "", apperrors.New(apperrors.ErrCodePathNotFound,
			"path not found or not a directory").WithContext("path", rel)
	}
	e.session.CurrentPath = rel
	return rel, nil
}

// Resolve resolves a relative path against the session's current position
// without mutating the session. It returns the absolute path, the cleaned
// repository-relative path, and a snapshot of the session.
func (s *Store) Resolve(sessionID, path string) (string, string, Session, error) {
	e, err := s.lockEntry(sessionID, false)
	if err != nil {
		return "", "", Session{}, err
	}
	defer e.mu.Unlock()
	if e.session.RepoPath == "" {
		return "", "", Session{}, apperrors.New(apperrors.ErrCodeNoSessionSelected,
			"no repository selected; select one first").
			WithContext("session_id", sessionID)
	}

	abs, rel, err := resolveWithin(e.session.RepoPath, e.session.CurrentPath, path)
	if err != nil {
		return "", "", Session{}, err
	}
	return abs, rel, e.session, nil
}

// Count returns the number of live sessions. Used by metrics.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

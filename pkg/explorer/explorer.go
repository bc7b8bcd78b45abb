// Package explorer provides read-only views over a session's selected
// repository: directory listings, file contents, and a depth-bounded tree.
// Every path is resolved through the session store's sandbox, so no view can
// reach outside the repository root.
package explorer

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/odvcencio/helmsman/pkg/errors"
	"github.com/odvcencio/helmsman/pkg/session"
)

const (
	// MaxFileBytes is the read ceiling; larger files are rejected, not truncated.
	MaxFileBytes = 1_000_000

	// MaxTreeDepth is the hard ceiling on tree recursion regardless of the
	// caller-requested depth.
	MaxTreeDepth = 4

	// DefaultTreeDepth is used when the caller does not ask for a depth.
	DefaultTreeDepth = 2

	metadataDir = ".git"
)

// Explorer serves read-only views for sessions held in the store.
type Explorer struct {
	sessions *session.Store
}

// New creates an Explorer backed by the session store.
func New(sessions *session.Store) *Explorer {
	return &Explorer{sessions: sessions}
}

// Listing is the content of one directory.
type Listing struct {
	CurrentPath string   `json:"current_path"`
	Directories []string `json:"directories"`
	Files       []string `json:"files"`
}

// List returns the entries of the directory at path, resolved relative to the
// session's current position. Directories carry a trailing slash; the VCS
// metadata directory is excluded.
func (e *Explorer) List(sessionID, path string) (Listing, error) {
	abs, rel, _, err := e.sessions.Resolve(sessionID, path)
	if err != nil {
		return Listing{}, err
	}

	entries, readErr := os.ReadDir(abs)
	if readErr != nil {
		return Listing{}, apperrors.New(apperrors.ErrCodePathNotFound,
			"path not found or not a directory").WithContext("path", rel)
	}

	listing := Listing{
		CurrentPath: displayPath(rel),
		Directories: []string{},
		Files:       []string{},
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if entry.Name() == metadataDir {
				continue
			}
			listing.Directories = append(listing.Directories, entry.Name()+"/")
		} else {
			listing.Files = append(listing.Files, entry.Name())
		}
	}
	sort.Strings(listing.Directories)
	sort.Strings(listing.Files)
	return listing, nil
}

// FileContent is a file body with its size and repository-relative path.
type FileContent struct {
	Path      string `json:"file_path"`
	Type      string `json:"file_type"`
	Content   string `json:"content"`
	SizeBytes int64  `json:"size_bytes"`
}

// ReadFile returns the content of the file at filePath, resolved relative to
// the session's current position. Files over MaxFileBytes are rejected with a
// FILE_TOO_LARGE error.
func (e *Explorer) ReadFile(sessionID, filePath string) (FileContent, error) {
	abs, rel, _, err := e.sessions.Resolve(sessionID, filePath)
	if err != nil {
		return FileContent{}, err
	}

	info, statErr := os.Stat(abs)
	if statErr != nil || info.IsDir() {
		return FileContent{}, apperrors.New(apperrors.ErrCodePathNotFound,
			"file not found").WithContext("file_path", rel)
	}
	if info.Size() > MaxFileBytes {
		return FileContent{}, apperrors.New(apperrors.ErrCodeFileTooLarge,
			"file exceeds the read ceiling").
			WithContext("file_path", rel).
			WithContext("size_bytes", info.Size())
	}

	data, readErr := os.ReadFile(abs)
	if readErr != nil {
		return FileContent{}, apperrors.Wrap(readErr, apperrors.ErrCodePathNotFound, "read file").
			WithContext("file_path", rel)
	}

	fileType := strings.TrimPrefix(filepath.Ext(rel), ".")
	return FileContent{
		Path:      rel,
		Type:      fileType,
		Content:   string(data),
		SizeBytes: info.Size(),
	}, nil
}

// Tree renders a glyph tree of the session's current directory, recursing at
// most maxDepth levels. Depth is clamped to MaxTreeDepth.
func (e *Explorer) Tree(sessionID string, maxDepth int) (string, error) {
	abs, rel, sess, err := e.sessions.Resolve(sessionID, "")
	if err != nil {
		return "", err
	}

	if maxDepth <= 0 {
		maxDepth = DefaultTreeDepth
	}
	if maxDepth > MaxTreeDepth {
		maxDepth = MaxTreeDepth
	}

	header := filepath.Base(abs)
	if rel == "" {
		header = sess.RepoName
	}

	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n")
	if err := writeTree(&sb, abs, "", maxDepth, 1); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodePathNotFound, "walk tree")
	}
	return sb.String(), nil
}

func writeTree(sb *strings.Builder, dir, prefix string, maxDepth, depth int) error {
	if depth > maxDepth {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	isDir := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.Name() == metadataDir {
			continue
		}
		names = append(names, entry.Name())
		isDir[entry.Name()] = entry.IsDir()
	}
	sort.Strings(names)

	for i, name := range names {
		last := i == len(names)-1
		connector, childPrefix := "├── ", prefix+"│   "
		if last {
			connector, childPrefix = "└── ", prefix+"    "
		}
		sb.WriteString(prefix)
		sb.WriteString(connector)
		sb.WriteString(name)
		sb.WriteString("\n")

		if isDir[name] {
			if err := writeTree(sb, filepath.Join(dir, name), childPrefix, maxDepth, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func displayPath(rel string) string {
	if rel == "" {
		return "/"
	}
	return rel
}

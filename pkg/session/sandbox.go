package session

import (
	"path/filepath"
	"strings"

	apperrors "github.com/odvcencio/helmsman/pkg/errors"
)

// resolveWithin joins a relative path onto the current position and resolves
// it against the repository root. The returned relative path is cleaned and
// always a descendant of root; any traversal outside the root is rejected.
func resolveWithin(root, current, raw string) (abs string, rel string, err error) {
	root = filepath.Clean(strings.TrimSpace(root))
	if root == "" {
		return "", "", apperrors.New(apperrors.ErrCodeInvalidResource, "repository root is empty")
	}

	candidate := filepath.Clean(filepath.Join(current, raw))
	if candidate == "." {
		candidate = ""
	}

	abs = filepath.Clean(filepath.Join(root, candidate))
	if !isWithinDir(root, abs) {
		return "", "", apperrors.New(apperrors.ErrCodePathEscape, "path resolves outside repository root").
			WithContext("path", raw)
	}

	// Harden against symlink escapes.
	resolvedRoot := evalSymlinksFallback(root)
	resolvedAbs := evalSymlinksFallback(abs)
	if !isWithinDir(resolvedRoot, resolvedAbs) {
		return "", "", apperrors.New(apperrors.ErrCodePathEscape, "path escapes repository root via symlink").
			WithContext("path", raw)
	}

	return abs, candidate, nil
}

// ResolveWithinRoot resolves a repository-relative path against a root,
// enforcing the sandbox boundary. For callers outside the store that hold a
// root and a relative path rather than a session.
func ResolveWithinRoot(root, rel string) (string, string, error) {
	return resolveWithin(root, "", rel)
}

func isWithinDir(base, target string) bool {
	base = filepath.Clean(strings.TrimSpace(base))
	target = filepath.Clean(strings.TrimSpace(target))
	if base == "" || target == "" {
		return false
	}
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	rel = filepath.Clean(rel)
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func evalSymlinksFallback(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil && strings.TrimSpace(resolved) != "" {
		return filepath.Clean(resolved)
	}
	return filepath.Clean(path)
}

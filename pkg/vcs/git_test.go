package vcs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// initRepo creates a working copy with one committed README.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# demo\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if _, err := wt.Add("README.md"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err = wt.Commit("initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@localhost", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return dir
}

func TestIsRepo(t *testing.T) {
	dir := initRepo(t)
	if !IsRepo(dir) {
		t.Error("IsRepo should accept an initialized working copy")
	}
	if IsRepo(t.TempDir()) {
		t.Error("IsRepo should reject a plain directory")
	}
}

func TestStatus_CleanAndDirty(t *testing.T) {
	dir := initRepo(t)
	adapter := NewAdapter("test", "test@localhost", "origin")

	status, err := adapter.Status(dir)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Clean {
		t.Errorf("fresh commit should be clean, changes = %v", status.Changes)
	}
	if status.Branch != "master" {
		t.Errorf("Branch = %q, want master", status.Branch)
	}

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# changed\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	status, err = adapter.Status(dir)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Clean {
		t.Error("modified tree should not be clean")
	}
	if len(status.Changes) != 1 || status.Changes[0].Path != "README.md" {
		t.Errorf("Changes = %v", status.Changes)
	}
}

func TestCommit(t *testing.T) {
	dir := initRepo(t)
	adapter := NewAdapter("helmsman", "helmsman@localhost", "origin")

	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("content\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	hash, err := adapter.Commit(dir, "add new file")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(hash) != 40 {
		t.Errorf("hash = %q, want 40 hex chars", hash)
	}

	status, err := adapter.Status(dir)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Clean {
		t.Errorf("tree should be clean after commit, changes = %v", status.Changes)
	}
}

func TestBranchesAndCheckout(t *testing.T) {
	dir := initRepo(t)
	adapter := NewAdapter("test", "test@localhost", "origin")

	repo, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatalf("PlainOpen: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	err = wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("feature"),
		Create: true,
	})
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}

	branches, err := adapter.Branches(dir)
	if err != nil {
		t.Fatalf("Branches: %v", err)
	}
	if len(branches) != 2 || branches[0] != "feature" {
		t.Errorf("Branches = %v, want current branch first", branches)
	}

	if err := adapter.Checkout(dir, "master"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	status, err := adapter.Status(dir)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Branch != "master" {
		t.Errorf("Branch = %q after checkout, want master", status.Branch)
	}
}

func TestCheckout_MissingBranch(t *testing.T) {
	dir := initRepo(t)
	adapter := NewAdapter("test", "test@localhost", "origin")
	if err := adapter.Checkout(dir, "does-not-exist"); err == nil {
		t.Error("Checkout should fail for a missing branch")
	}
}

func TestStatus_NotARepo(t *testing.T) {
	adapter := NewAdapter("test", "test@localhost", "origin")
	if _, err := adapter.Status(t.TempDir()); err == nil {
		t.Error("Status should fail outside a working copy")
	}
}

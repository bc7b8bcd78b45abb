// Package vcs adapts go-git for the control plane: status, commit, push,
// pull, and branch operations on a session's selected working copy. Every
// failure from the underlying repository surfaces as an ADAPTER_FAILURE and
// is reported to the caller rather than retried.
package vcs

import (
	"context"
	"fmt"
	"sort"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	apperrors "github.com/odvcencio/helmsman/pkg/errors"
)

// Adapter performs git operations on working copies under the repos base path.
type Adapter struct {
	authorName  string
	authorEmail string
	remote      string
}

// NewAdapter creates a git adapter with the given commit identity.
func NewAdapter(authorName, authorEmail, remote string) *Adapter {
	if authorName == "" {
		authorName = "helmsman"
	}
	if authorEmail == "" {
		authorEmail = "helmsman@localhost"
	}
	if remote == "" {
		remote = "origin"
	}
	return &Adapter{
		authorName:  authorName,
		authorEmail: authorEmail,
		remote:      remote,
	}
}

// IsRepo reports whether path is the root of a git working copy.
func IsRepo(path string) bool {
	_, err := git.PlainOpen(path)
	return err == nil
}

func open(repoPath string) (*git.Repository, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeAdapterFailure, "open repository")
	}
	return repo, nil
}

// FileStatus is one changed path in the working tree.
type FileStatus struct {
	Path     string `json:"path"`
	Staging  string `json:"staging"`
	Worktree string `json:"worktree"`
}

// Status describes the working tree state.
type Status struct {
	Branch  string       `json:"branch"`
	Clean   bool         `json:"clean"`
	Changes []FileStatus `json:"changes"`
}

// Status reports the current branch and any uncommitted changes.
func (a *Adapter) Status(repoPath string) (Status, error) {
	repo, err := open(repoPath)
	if err != nil {
		return Status{}, err
	}

	branch, err := currentBranch(repo)
	if err != nil {
		return Status{}, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return Status{}, apperrors.Wrap(err, apperrors.ErrCodeAdapterFailure, "get worktree")
	}
	status, err := wt.Status()
	if err != nil {
		return Status{}, apperrors.Wrap(err, apperrors.ErrCodeAdapterFailure, "get status")
	}

	result := Status{Branch: branch, Clean: status.IsClean(), Changes: []FileStatus{}}
	for path, st := range status {
		if st.Staging == git.Unmodified && st.Worktree == git.Unmodified {
			continue
		}
		result.Changes = append(result.Changes, FileStatus{
			Path:     path,
			Staging:  string(st.Staging),
			Worktree: string(st.Worktree),
		})
	}
	sort.Slice(result.Changes, func(i, j int) bool {
		return result.Changes[i].Path < result.Changes[j].Path
	})
	return result, nil
}

func currentBranch(repo *git.Repository) (string, error) {
	head, err := repo.Head()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeAdapterFailure, "get HEAD")
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	// Detached HEAD, report the short hash
	return head.Hash().String()[:8], nil
}

// Commit stages all changes and commits them with the configured identity.
func (a *Adapter) Commit(repoPath, message string) (string, error) {
	repo, err := open(repoPath)
	if err != nil {
		return "", err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeAdapterFailure, "get worktree")
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeAdapterFailure, "stage changes")
	}

	commit, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  a.authorName,
			Email: a.authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeAdapterFailure, "commit")
	}
	return commit.String(), nil
}

// Push pushes the current branch to the configured remote.
func (a *Adapter) Push(ctx context.Context, repoPath string) error {
	repo, err := open(repoPath)
	if err != nil {
		return err
	}

	branch, err := currentBranch(repo)
	if err != nil {
		return err
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: a.remote,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return apperrors.Wrap(err, apperrors.ErrCodeAdapterFailure, "push")
	}
	return nil
}

// Pull updates the working copy from the configured remote.
func (a *Adapter) Pull(ctx context.Context, repoPath string) error {
	repo, err := open(repoPath)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeAdapterFailure, "get worktree")
	}
	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: a.remote})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return apperrors.Wrap(err, apperrors.ErrCodeAdapterFailure, "pull")
	}
	return nil
}

// Branches lists local branch names with the current one first.
func (a *Adapter) Branches(repoPath string) ([]string, error) {
	repo, err := open(repoPath)
	if err != nil {
		return nil, err
	}

	current, err := currentBranch(repo)
	if err != nil {
		return nil, err
	}

	iter, err := repo.Branches()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeAdapterFailure, "list branches")
	}
	defer iter.Close()

	var names []string
	_ = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	sort.Strings(names)

	ordered := make([]string, 0, len(names))
	ordered = append(ordered, current)
	for _, name := range names {
		if name != current {
			ordered = append(ordered, name)
		}
	}
	return ordered, nil
}

// Checkout switches the working copy to the named branch.
func (a *Adapter) Checkout(repoPath, branch string) error {
	repo, err := open(repoPath)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeAdapterFailure, "get worktree")
	}
	err = wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeAdapterFailure, "checkout branch").
			WithContext("branch", branch)
	}
	return nil
}

// Package gitlib wraps the libgit2 bindings used to decorate recorded
// trace file names with the traced application's revision, adapted from
// the codefang history analyzer's repository wrapper and trimmed to the
// read-only HEAD/worktree-status queries tracefile needs.
package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// hashHexSize is the size of a hex-encoded SHA-1 hash.
const hashHexSize = 40

// ShortHashSize is the number of leading hex digits tracefile uses for its
// filename component, matching `git rev-parse --short`'s default width.
const ShortHashSize = 7

// Repository wraps a libgit2 repository handle.
type Repository struct {
	repo *git2go.Repository
}

// OpenRepository opens the git repository containing path, discovering it
// the way `git rev-parse`/`git status` do when run from a subdirectory.
func OpenRepository(path string) (*Repository, error) {
	root, err := git2go.Discover(path, false, nil)
	if err != nil {
		return nil, fmt.Errorf("discover repository: %w", err)
	}

	repo, err := git2go.OpenRepository(root)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	return &Repository{repo: repo}, nil
}

// Free releases the repository's native resources.
func (r *Repository) Free() {
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
}

// HeadHex returns the hex-encoded HEAD commit hash.
func (r *Repository) HeadHex() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	defer ref.Free()

	hex := ref.Target().String()
	if len(hex) != hashHexSize {
		return "", fmt.Errorf("unexpected HEAD oid length %d", len(hex))
	}

	return hex, nil
}

// Dirty reports whether the working tree has uncommitted changes,
// mirroring `git status --porcelain` producing any output.
func (r *Repository) Dirty() (bool, error) {
	statusList, err := r.repo.StatusList(&git2go.StatusOptions{
		Show:  git2go.StatusShowIndexAndWorkdir,
		Flags: git2go.StatusOptIncludeUntracked | git2go.StatusOptRenamesHeadToIndex,
	})
	if err != nil {
		return false, fmt.Errorf("list worktree status: %w", err)
	}
	defer statusList.Free()

	count, err := statusList.EntryCount()
	if err != nil {
		return false, fmt.Errorf("count status entries: %w", err)
	}

	return count > 0, nil
}

package iptrace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-git/go-git/v5"
)

// ErrDirNotEmpty means the clone target holds files but is not a repository.
var ErrDirNotEmpty = errors.New("directory not empty and not a repository")

// CloneOutcome says what EnsureCloned found or did.
type CloneOutcome int

const (
	// CloneSkipped means no remote was configured.
	CloneSkipped CloneOutcome = iota
	Cloned
	// AlreadyPresent means dir is already a git repository; it was left untouched.
	AlreadyPresent
	CloneFailed
)

func (o CloneOutcome) String() string {
	switch o {
	case CloneSkipped:
		return "skipped"
	case Cloned:
		return "cloned"
	case AlreadyPresent:
		return "already present"
	case CloneFailed:
		return "failed"
	}
	return fmt.Sprintf("CloneOutcome(%d)", int(o))
}

// EnsureCloned makes sure dir is a checkout of the repository at uri.
// An existing repository at dir is never fetched, pulled or modified,
// and a directory that holds anything else is refused with ErrDirNotEmpty.
// The error is non-nil only with CloneFailed.
// Callers may keep going after a failure if dir is usable without the remote.
func EnsureCloned(ctx context.Context, uri, dir string) (CloneOutcome, error) {
	if uri == "" {
		return CloneSkipped, nil
	}
	if _, err := git.PlainOpen(dir); err == nil {
		return AlreadyPresent, nil
	}
	if err := checkCloneTarget(dir); err != nil {
		return CloneFailed, fmt.Errorf("cloning %s into %s: %w", uri, dir, err)
	}
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: uri})
	switch {
	case err == nil:
		return Cloned, nil
	case errors.Is(err, git.ErrRepositoryAlreadyExists):
		return AlreadyPresent, nil
	}
	return CloneFailed, fmt.Errorf("cloning %s into %s: %w", uri, dir, err)
}

// checkCloneTarget only allows a missing or empty directory.
func checkCloneTarget(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return ErrDirNotEmpty
	}
	return nil
}

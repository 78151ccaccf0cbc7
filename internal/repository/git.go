package repository

import (
	"context"

	"github.com/compozy/mlserver/internal/domain"
)

// GitInspector answers read-only questions about a classifier working tree.
// Every call re-reads the repository; nothing is cached between calls.
type GitInspector interface {
	// CurrentCommit returns the full hash of HEAD.
	CurrentCommit(ctx context.Context) (string, error)
	CurrentBranch(ctx context.Context) (string, error)
	// IsWorkingDirectoryClean returns a *domain.DirtyError when there are
	// staged, unstaged or untracked changes.
	IsWorkingDirectoryClean(ctx context.Context) error
	// TagsMatching returns the classifier's tags, latest first.
	TagsMatching(ctx context.Context, classifier string) ([]string, error)
	// TagCommit returns the full hash of the commit a tag points to.
	TagCommit(ctx context.Context, tag string) (string, error)
	// CommitsSince counts commits between tag and HEAD. The boolean is
	// false when the tag is not part of HEAD's history.
	CommitsSince(ctx context.Context, tag string) (int, bool, error)
	TagExists(ctx context.Context, tag string) (bool, error)
	Snapshot(ctx context.Context) (domain.GitSnapshot, error)
}

// GitRepository adds the tag writes used by the tagging and release flows.
type GitRepository interface {
	GitInspector
	CreateTag(ctx context.Context, tag, msg string) error
	DeleteTag(ctx context.Context, tag string) error
	PushTag(ctx context.Context, remote, tag string) error
}

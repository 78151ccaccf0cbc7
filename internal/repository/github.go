package repository

import (
	"context"
	"errors"
)

// ErrGithubTokenRequired is returned when a GitHub release is requested
// without a configured token and repository.
var ErrGithubTokenRequired = errors.New("github token is required for GitHub operations")

// GithubRepository publishes GitHub releases for pushed classifier tags.
type GithubRepository interface {
	// ReleaseURL returns the URL of the release for tag, or "" when none exists.
	ReleaseURL(ctx context.Context, tag string) (string, error)
	// CreateRelease creates a release for an already pushed tag and returns its URL.
	CreateRelease(ctx context.Context, tag, name, body string) (string, error)
}

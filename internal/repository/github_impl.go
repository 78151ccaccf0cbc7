package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/compozy/mlserver/internal/config"
	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

type githubRepository struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGithubRepository validates the credentials and returns a client bound to owner/repo.
func NewGithubRepository(token, owner, repo string) (GithubRepository, error) {
	if err := config.ValidateGitHubToken(token); err != nil {
		return nil, fmt.Errorf("invalid GitHub token: %w", err)
	}
	if err := config.ValidateGitHubOwnerRepo(owner, repo); err != nil {
		return nil, fmt.Errorf("invalid repository configuration: %w", err)
	}
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: strings.TrimSpace(token)},
	)
	tc := oauth2.NewClient(context.Background(), ts)
	return newGithubRepository(github.NewClient(tc), owner, repo), nil
}

func newGithubRepository(client *github.Client, owner, repo string) *githubRepository {
	return &githubRepository{client: client, owner: owner, repo: repo}
}

// ReleaseURL looks up the release attached to tag.
func (r *githubRepository) ReleaseURL(ctx context.Context, tag string) (string, error) {
	release, _, err := r.client.Repositories.GetReleaseByTag(ctx, r.owner, r.repo, tag)
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get release for %s: %w", tag, err)
	}
	return release.GetHTMLURL(), nil
}

// CreateRelease creates a published release for an existing tag.
func (r *githubRepository) CreateRelease(ctx context.Context, tag, name, body string) (string, error) {
	release, _, err := r.client.Repositories.CreateRelease(ctx, r.owner, r.repo, &github.RepositoryRelease{
		TagName:    github.Ptr(tag),
		Name:       github.Ptr(name),
		Body:       github.Ptr(body),
		Draft:      github.Ptr(false),
		Prerelease: github.Ptr(false),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create release for %s: %w", tag, err)
	}
	return release.GetHTMLURL(), nil
}

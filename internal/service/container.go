package service

import (
	"context"

	"github.com/compozy/mlserver/internal/domain"
)

// BuildRequest describes one classifier image build.
type BuildRequest struct {
	ProjectPath      string
	Dockerfile       string
	Images           ImageParams
	ClassifierCommit string
	ToolCommit       string
	BuildArgs        map[string]string
	NoCache          bool
}

// BuildResult lists the local images a build produced.
type BuildResult struct {
	Images []string
}

// ImageInfo is one local image tag.
type ImageInfo struct {
	Reference string
	ID        string
	Created   string
	Size      string
}

// ContainerService drives the container engine. It only builds, tags,
// pushes and removes images; it makes no release decisions.
type ContainerService interface {
	Available(ctx context.Context) error
	Build(ctx context.Context, req BuildRequest) (BuildResult, error)
	// Push tags the local image as remote and pushes it.
	Push(ctx context.Context, local, remote string) error
	RemoveImages(ctx context.Context, images []string) error
	// ListImages returns the local images under the repository name.
	ListImages(ctx context.Context, repository string) ([]ImageInfo, error)
}

// ToolInfo describes the installed serving tool.
type ToolInfo struct {
	Version      string `json:"version"`
	Commit       string `json:"commit,omitempty"`
	CommitSource string `json:"commit_source,omitempty"`
	InstallType  string `json:"install_type"`
	BuildDate    string `json:"build_date"`
	GoVersion    string `json:"go_version,omitempty"`
}

// ShortCommit returns the tool commit in tag form.
func (t ToolInfo) ShortCommit() string {
	return domain.NormalizeCommit(t.Commit)
}

// ToolInfoService reports the serving tool's own version and commit.
type ToolInfoService interface {
	Info(ctx context.Context) ToolInfo
	// Commit returns domain.ErrToolCommitUnknown when no source knows it.
	Commit(ctx context.Context) (string, error)
}

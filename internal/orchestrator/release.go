package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/compozy/mlserver/internal/project"
	"github.com/compozy/mlserver/internal/repository"
	"github.com/compozy/mlserver/internal/service"
	"github.com/compozy/mlserver/internal/usecase"
	"go.uber.org/zap"
)

// ReleaseConfig contains configuration for the release workflow.
type ReleaseConfig struct {
	Classifier             string
	Bump                   domain.BumpKind
	Message                string
	AllowMissingToolCommit bool
	Remote                 string
	Registry               string
	TagPrefix              string
	Dockerfile             string
	BuildArgs              map[string]string
	NoCache                bool
	GithubRelease          bool // Create a GitHub release for the pushed tag
}

// ReleaseOrchestrator tags, builds and publishes one classifier as a saga.
type ReleaseOrchestrator struct {
	gitRepo   repository.GitRepository
	project   *project.Config
	publish   *PublishOrchestrator
	container service.ContainerService
	toolInfo  service.ToolInfoService
	github    repository.GithubRepository
	store     repository.SessionStore
	logger    *zap.Logger
}

// NewReleaseOrchestrator creates a new release orchestrator. github may be
// nil when no GitHub release is wanted.
func NewReleaseOrchestrator(
	gitRepo repository.GitRepository,
	proj *project.Config,
	publish *PublishOrchestrator,
	container service.ContainerService,
	toolInfo service.ToolInfoService,
	github repository.GithubRepository,
	store repository.SessionStore,
	logger *zap.Logger,
) *ReleaseOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReleaseOrchestrator{
		gitRepo:   gitRepo,
		project:   proj,
		publish:   publish,
		container: container,
		toolInfo:  toolInfo,
		github:    github,
		store:     store,
		logger:    logger,
	}
}

// releaseRun carries values produced by one step to the next.
type releaseRun struct {
	cfg      ReleaseConfig
	tag      domain.HierarchicalTag
	bump     domain.BumpResult
	params   service.ImageParams
	images   []string
	pushed   []string
	commit   string
	toolMiss bool
}

// Execute runs the release workflow and returns the recorded session.
func (o *ReleaseOrchestrator) Execute(ctx context.Context, cfg ReleaseConfig) (*domain.ReleaseSession, error) {
	ctx, cancel := context.WithTimeout(ctx, ReleaseWorkflowTimeout)
	defer cancel()
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}
	if err := ValidatePushTarget(cfg.Registry, cfg.TagPrefix); err != nil {
		return nil, err
	}
	if cfg.GithubRelease && o.github == nil {
		return nil, repository.ErrGithubTokenRequired
	}
	if err := o.container.Available(ctx); err != nil {
		return nil, fmt.Errorf("container engine not available: %w", err)
	}
	run := &releaseRun{cfg: cfg}
	saga := NewSagaExecutor(o.store, cfg.Classifier, o.logger)
	acts := NewCompensatingActions(o.gitRepo, o.container, o.logger)
	saga.AddStep(SagaStep{
		Name:       "Create tag",
		Type:       domain.StepCreateTag,
		Execute:    func(ctx context.Context) (map[string]any, error) { return o.createTag(ctx, run, saga.Session()) },
		Compensate: acts.DeleteTag,
	})
	saga.AddStep(SagaStep{
		Name:    "Push tag",
		Type:    domain.StepPushTag,
		Remote:  true,
		Execute: func(ctx context.Context) (map[string]any, error) { return o.pushTag(ctx, run) },
	})
	saga.AddStep(SagaStep{
		Name:       "Build image",
		Type:       domain.StepBuildImage,
		Execute:    func(ctx context.Context) (map[string]any, error) { return o.buildImage(ctx, run, saga.Session()) },
		Compensate: acts.RemoveImages,
	})
	saga.AddStep(SagaStep{
		Name:    "Push images",
		Type:    domain.StepPushImages,
		Remote:  true,
		Execute: func(ctx context.Context) (map[string]any, error) { return o.pushImages(ctx, run) },
	})
	if cfg.GithubRelease {
		saga.AddStep(SagaStep{
			Name:    "Publish GitHub release",
			Type:    domain.StepPublishRelease,
			Remote:  true,
			Execute: func(ctx context.Context) (map[string]any, error) { return o.publishRelease(ctx, run) },
		})
	}
	err := saga.Execute(ctx)
	return saga.Session(), err
}

func (o *ReleaseOrchestrator) createTag(
	ctx context.Context,
	run *releaseRun,
	session *domain.ReleaseSession,
) (map[string]any, error) {
	uc := &usecase.CreateTagUseCase{GitRepo: o.gitRepo, ToolInfo: o.toolInfo, Logger: o.logger}
	result, err := uc.Execute(ctx, usecase.CreateTagInput{
		Project:                o.project,
		Classifier:             run.cfg.Classifier,
		Bump:                   run.cfg.Bump,
		Message:                run.cfg.Message,
		AllowMissingToolCommit: run.cfg.AllowMissingToolCommit,
	})
	if err != nil {
		return nil, err
	}
	run.tag = result.Tag
	run.bump = result.Bump
	run.toolMiss = result.ToolCommitMissing
	session.Tag = result.Tag.String()
	return map[string]any{dataTag: result.Tag.String(), dataCreatedInSession: true}, nil
}

func (o *ReleaseOrchestrator) pushTag(ctx context.Context, run *releaseRun) (map[string]any, error) {
	if err := o.gitRepo.PushTag(ctx, run.cfg.Remote, run.tag.String()); err != nil {
		return nil, fmt.Errorf("failed to push tag %s: %w", run.tag, err)
	}
	return map[string]any{dataTag: run.tag.String(), "remote": run.cfg.Remote}, nil
}

func (o *ReleaseOrchestrator) buildImage(
	ctx context.Context,
	run *releaseRun,
	session *domain.ReleaseSession,
) (map[string]any, error) {
	commit, err := o.gitRepo.CurrentCommit(ctx)
	if err != nil {
		return nil, err
	}
	run.commit = commit
	tag := run.tag
	run.params = o.publish.ImageParams(&domain.PublishDecision{
		Classifier:  run.cfg.Classifier,
		VersionUsed: run.tag.Version,
		Tag:         tag.String(),
	}, run.cfg.Registry, run.cfg.TagPrefix)
	req := service.BuildRequest{
		ProjectPath:      o.publish.projectPath,
		Dockerfile:       run.cfg.Dockerfile,
		Images:           run.params,
		ClassifierCommit: commit,
		BuildArgs:        run.cfg.BuildArgs,
		NoCache:          run.cfg.NoCache,
	}
	if !run.toolMiss {
		req.ToolCommit = tag.ToolCommit
	}
	result, err := o.container.Build(ctx, req)
	if err != nil {
		return nil, err
	}
	run.images = result.Images
	session.Images = result.Images
	return map[string]any{dataImages: result.Images}, nil
}

func (o *ReleaseOrchestrator) pushImages(ctx context.Context, run *releaseRun) (map[string]any, error) {
	remoteRefs, err := service.RemoteImages(run.params)
	if err != nil {
		return nil, err
	}
	result := o.publish.Push(ctx, run.images, service.RefNames(remoteRefs))
	run.pushed = result.PushedTags
	data := map[string]any{"pushed_tags": result.PushedTags, "failed_tags": result.FailedTags}
	if !result.Success {
		return data, fmt.Errorf("failed to push %d of %d images: %s",
			len(result.FailedTags), len(remoteRefs), strings.Join(result.FailedTags, ", "))
	}
	return data, nil
}

func (o *ReleaseOrchestrator) publishRelease(ctx context.Context, run *releaseRun) (map[string]any, error) {
	tag := run.tag.String()
	url, err := o.github.ReleaseURL(ctx, tag)
	if err != nil {
		return nil, err
	}
	if url == "" {
		name := fmt.Sprintf("%s %s", run.cfg.Classifier, run.tag.Version)
		url, err = o.github.CreateRelease(ctx, tag, name, releaseNotes(run))
		if err != nil {
			return nil, err
		}
	}
	return map[string]any{"url": url}, nil
}

func releaseNotes(run *releaseRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s %s %s\n\n", run.cfg.Classifier, run.tag.Version, run.bump.Describe())
	fmt.Fprintf(&b, "- Classifier commit: `%s`\n", domain.NormalizeCommit(run.commit))
	fmt.Fprintf(&b, "- MLServer commit: `%s`\n", run.tag.ToolCommit)
	if len(run.pushed) > 0 {
		b.WriteString("\n### Images\n\n")
		for _, image := range run.pushed {
			fmt.Fprintf(&b, "- `%s`\n", image)
		}
	}
	return b.String()
}

package orchestrator

import (
	"context"
	"fmt"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/compozy/mlserver/internal/repository"
	"github.com/compozy/mlserver/internal/service"
	"go.uber.org/zap"
)

// BuildOptions configures one image build.
type BuildOptions struct {
	Selector   domain.Selector
	Dockerfile string
	Registry   string
	TagPrefix  string
	BuildArgs  map[string]string
	NoCache    bool
}

// BuildPlan is everything known before the build starts. The caller asks
// for confirmation when RequiresConfirmation is set and the build is not
// forced.
type BuildPlan struct {
	Classifier string
	Version    *domain.Version
	Tag        *domain.HierarchicalTag
	Provenance *domain.ProvenanceCheck
	Warnings   []string
	Request    service.BuildRequest
}

// RequiresConfirmation reports whether building would change provenance.
func (p *BuildPlan) RequiresConfirmation() bool {
	return p.Provenance != nil && p.Provenance.RequiresConfirmation()
}

// BuildOrchestrator builds classifier images from a name or a full tag.
type BuildOrchestrator struct {
	publish   *PublishOrchestrator
	gitRepo   repository.GitInspector
	container service.ContainerService
	toolInfo  service.ToolInfoService
	logger    *zap.Logger
}

// NewBuildOrchestrator creates a new build orchestrator.
func NewBuildOrchestrator(
	publish *PublishOrchestrator,
	gitRepo repository.GitInspector,
	container service.ContainerService,
	toolInfo service.ToolInfoService,
	logger *zap.Logger,
) *BuildOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BuildOrchestrator{
		publish:   publish,
		gitRepo:   gitRepo,
		container: container,
		toolInfo:  toolInfo,
		logger:    logger,
	}
}

// Plan resolves the version and image names for the build and, for a full
// tag, checks provenance. A mismatch becomes a warning on the plan.
func (o *BuildOrchestrator) Plan(ctx context.Context, opts BuildOptions) (*BuildPlan, error) {
	sel := opts.Selector
	if o.publish.project == nil || !o.publish.project.Has(sel.Name) {
		var available []string
		if o.publish.project != nil {
			available = o.publish.project.Classifiers
		}
		return nil, fmt.Errorf("classifier %q not found: available %v", sel.Name, available)
	}
	plan := &BuildPlan{Classifier: sel.Name, Warnings: []string{}}
	if sel.IsFullTag() {
		check, err := o.publish.CheckProvenance(ctx, sel)
		if err != nil {
			return nil, err
		}
		tag := sel.Tag
		plan.Tag = &tag
		plan.Version = tag.Version
		plan.Provenance = check
		if check.ClassifierMismatch {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("classifier commit %s differs from tagged commit %s",
				check.CurrentClassifierCommit, check.TagClassifierCommit))
		}
		if check.ToolMismatch {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("mlserver commit %s differs from tagged commit %s",
				check.CurrentToolCommit, check.TagToolCommit))
		}
	} else {
		// Gate errors do not block a local build; they are reported.
		decision, err := o.publish.ValidateAndResolve(ctx, sel.Name, domain.VersionSourceAuto, false)
		if err != nil {
			return nil, err
		}
		plan.Version = decision.VersionUsed
		if decision.VersionSource == domain.VersionSourceGitTag && decision.Tag != "" {
			if tag, err := domain.ParseTag(decision.Tag); err == nil {
				plan.Tag = &tag
			}
		}
		plan.Warnings = append(plan.Warnings, decision.ValidationErrors...)
		plan.Warnings = append(plan.Warnings, decision.ValidationWarnings...)
	}
	req, err := o.buildRequest(ctx, opts, plan)
	if err != nil {
		return nil, err
	}
	plan.Request = req
	return plan, nil
}

func (o *BuildOrchestrator) buildRequest(ctx context.Context, opts BuildOptions, plan *BuildPlan) (service.BuildRequest, error) {
	head, err := o.gitRepo.CurrentCommit(ctx)
	if err != nil {
		return service.BuildRequest{}, err
	}
	req := service.BuildRequest{
		ProjectPath: o.publish.projectPath,
		Dockerfile:  opts.Dockerfile,
		Images: service.ImageParams{
			Repository: service.RepositoryName(o.publish.projectPath),
			Classifier: plan.Classifier,
			Version:    plan.Version,
			Tag:        plan.Tag,
			Registry:   opts.Registry,
			TagPrefix:  opts.TagPrefix,
		},
		ClassifierCommit: head,
		BuildArgs:        opts.BuildArgs,
		NoCache:          opts.NoCache,
	}
	if o.toolInfo != nil {
		if commit, err := o.toolInfo.Commit(ctx); err == nil {
			req.ToolCommit = commit
		}
	}
	return req, nil
}

// Build runs a planned build.
func (o *BuildOrchestrator) Build(ctx context.Context, plan *BuildPlan) (service.BuildResult, error) {
	if err := o.container.Available(ctx); err != nil {
		return service.BuildResult{}, fmt.Errorf("container engine not available: %w", err)
	}
	o.logger.Info("building classifier image",
		zap.String("classifier", plan.Classifier),
		zap.String("version", plan.Version.Plain()),
		zap.Strings("build_args", sortedKeys(plan.Request.BuildArgs)),
		zap.Bool("no_cache", plan.Request.NoCache))
	result, err := o.container.Build(ctx, plan.Request)
	if err != nil {
		return service.BuildResult{}, fmt.Errorf("failed to build %s: %w", plan.Classifier, err)
	}
	return result, nil
}

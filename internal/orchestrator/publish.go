package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/compozy/mlserver/internal/project"
	"github.com/compozy/mlserver/internal/repository"
	"github.com/compozy/mlserver/internal/service"
	"go.uber.org/zap"
)

// ErrPublishNotAllowed is returned by SafePush when the gate refuses the push.
var ErrPublishNotAllowed = errors.New("publish not allowed")

// PushRequest describes a gated push of one classifier's images.
type PushRequest struct {
	Classifier    string
	Registry      string
	TagPrefix     string
	VersionSource domain.VersionSource
	Force         bool
}

// SafePushResult combines the gate decision with the push outcome.
type SafePushResult struct {
	Decision *domain.PublishDecision
	Push     domain.PushResult
}

// PublishOrchestrator gates image publication on the state of the working
// tree and the classifier's tags.
type PublishOrchestrator struct {
	gitRepo     repository.GitInspector
	project     *project.Config
	container   service.ContainerService
	toolInfo    service.ToolInfoService
	projectPath string
	logger      *zap.Logger
}

// NewPublishOrchestrator creates a new publish orchestrator.
func NewPublishOrchestrator(
	gitRepo repository.GitInspector,
	proj *project.Config,
	container service.ContainerService,
	toolInfo service.ToolInfoService,
	projectPath string,
	logger *zap.Logger,
) *PublishOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishOrchestrator{
		gitRepo:     gitRepo,
		project:     proj,
		container:   container,
		toolInfo:    toolInfo,
		projectPath: projectPath,
		logger:      logger,
	}
}

// tagState is what the gate learns about the classifier's latest tag.
type tagState struct {
	latest   string
	tag      *domain.HierarchicalTag
	onTagged bool
}

// ValidateAndResolve decides whether the classifier may be published and
// with which version. Validation problems are reported in the decision;
// an error is returned only when the repository cannot be read or no
// version can be resolved.
func (o *PublishOrchestrator) ValidateAndResolve(
	ctx context.Context,
	classifier string,
	source domain.VersionSource,
	force bool,
) (*domain.PublishDecision, error) {
	if source == "" {
		source = domain.VersionSourceAuto
	}
	decision := &domain.PublishDecision{
		Classifier:         classifier,
		VersionSource:      source,
		ValidationErrors:   []string{},
		ValidationWarnings: []string{},
	}
	if err := o.gitRepo.IsWorkingDirectoryClean(ctx); err != nil {
		var dirty *domain.DirtyError
		if !errors.As(err, &dirty) {
			return nil, err
		}
		decision.ValidationErrors = append(decision.ValidationErrors, dirty.Error())
	}
	if o.project == nil || !o.project.Has(classifier) {
		decision.ValidationErrors = append(decision.ValidationErrors,
			fmt.Sprintf("classifier %s not found in configuration", classifier))
	}
	state, err := o.inspectTags(ctx, classifier, decision)
	if err != nil {
		return nil, err
	}
	decision.OnTaggedCommit = state.onTagged
	if !state.onTagged {
		decision.ValidationErrors = append(decision.ValidationErrors,
			fmt.Sprintf("HEAD is not on a tagged commit for %s (run mlserver tag <bump> --classifier %s)",
				classifier, classifier))
	}
	if err := o.resolveVersion(classifier, source, state, decision); err != nil {
		return nil, err
	}
	decision.Allowed = force || (decision.OnTaggedCommit && len(decision.ValidationErrors) == 0)
	if force && len(decision.ValidationErrors) > 0 {
		decision.ValidationWarnings = append(decision.ValidationWarnings,
			fmt.Sprintf("forced despite %d validation error(s)", len(decision.ValidationErrors)))
	}
	o.logger.Debug("publish decision",
		zap.String("classifier", classifier),
		zap.Bool("allowed", decision.Allowed),
		zap.String("version", decision.VersionUsed.String()),
		zap.String("source", string(decision.VersionSource)),
		zap.Strings("errors", decision.ValidationErrors))
	return decision, nil
}

func (o *PublishOrchestrator) inspectTags(
	ctx context.Context,
	classifier string,
	decision *domain.PublishDecision,
) (tagState, error) {
	var state tagState
	tags, err := o.gitRepo.TagsMatching(ctx, classifier)
	if err != nil {
		return state, err
	}
	if len(tags) == 0 {
		return state, nil
	}
	state.latest = tags[0]
	tag, err := domain.ParseTag(state.latest)
	if err != nil {
		decision.ValidationErrors = append(decision.ValidationErrors,
			fmt.Sprintf("latest tag format invalid: %v", err))
		return state, nil
	}
	state.tag = &tag
	tagCommit, err := o.gitRepo.TagCommit(ctx, state.latest)
	if err != nil {
		return state, err
	}
	head, err := o.gitRepo.CurrentCommit(ctx)
	if err != nil {
		return state, err
	}
	state.onTagged = domain.CommitsEqual(head, tagCommit)
	return state, nil
}

func (o *PublishOrchestrator) resolveVersion(
	classifier string,
	source domain.VersionSource,
	state tagState,
	decision *domain.PublishDecision,
) error {
	var configured *domain.Version
	if o.project != nil {
		v, ok, err := o.project.DeclaredVersion(classifier)
		if err != nil {
			return err
		}
		if ok {
			configured = v
		}
	}
	useTag := func() {
		decision.VersionUsed = state.tag.Version
		decision.VersionSource = domain.VersionSourceGitTag
		decision.Tag = state.tag.String()
		if configured != nil && !configured.Equal(state.tag.Version) {
			decision.ValidationWarnings = append(decision.ValidationWarnings,
				fmt.Sprintf("configured version %s differs from tag version %s",
					configured.Plain(), state.tag.Version.Plain()))
		}
	}
	useConfig := func() {
		decision.VersionUsed = configured
		decision.VersionSource = domain.VersionSourceConfig
	}
	switch source {
	case domain.VersionSourceGitTag:
		if state.tag == nil {
			return fmt.Errorf("%w: %s has no valid tag", domain.ErrNoVersionAvailable, classifier)
		}
		useTag()
	case domain.VersionSourceConfig:
		if configured == nil {
			return fmt.Errorf("%w: %s declares no version", domain.ErrNoVersionAvailable, classifier)
		}
		useConfig()
	default:
		switch {
		case state.tag != nil && state.onTagged:
			useTag()
		case configured != nil:
			useConfig()
			if state.tag != nil {
				decision.ValidationWarnings = append(decision.ValidationWarnings,
					fmt.Sprintf("not on tag %s, using configured version %s", state.tag, configured.Plain()))
			}
		default:
			return fmt.Errorf("%w: %s is not on a tagged commit and declares no version",
				domain.ErrNoVersionAvailable, classifier)
		}
	}
	return nil
}

// CheckProvenance compares the commits recorded for a full tag with the
// current classifier and tool commits.
func (o *PublishOrchestrator) CheckProvenance(ctx context.Context, sel domain.Selector) (*domain.ProvenanceCheck, error) {
	if !sel.IsFullTag() {
		return nil, fmt.Errorf("provenance can only be checked for a full tag, got %q", sel.Name)
	}
	check := &domain.ProvenanceCheck{Tag: sel.Tag}
	tagCommit, err := o.gitRepo.TagCommit(ctx, sel.Tag.String())
	switch {
	case err == nil:
		check.TagClassifierCommit = domain.NormalizeCommit(tagCommit)
	case errors.Is(err, domain.ErrTagNotFound):
		o.logger.Warn("tag not found locally, classifier commit unknown", zap.String("tag", sel.Tag.String()))
	default:
		return nil, err
	}
	head, err := o.gitRepo.CurrentCommit(ctx)
	if err != nil {
		return nil, err
	}
	check.CurrentClassifierCommit = domain.NormalizeCommit(head)
	if sel.Tag.ToolCommit != domain.PlaceholderCommit {
		check.TagToolCommit = sel.Tag.ToolCommit
	}
	if o.toolInfo != nil {
		if commit, err := o.toolInfo.Commit(ctx); err == nil {
			check.CurrentToolCommit = domain.NormalizeCommit(commit)
		}
	}
	check.ClassifierMismatch = mismatch(check.TagClassifierCommit, check.CurrentClassifierCommit)
	check.ToolMismatch = mismatch(check.TagToolCommit, check.CurrentToolCommit)
	return check, nil
}

// mismatch is true only when both sides are known and differ.
func mismatch(expected, current string) bool {
	return expected != "" && current != "" && !domain.CommitsEqual(expected, current)
}

// ImageParams returns the image parameters for a decision.
func (o *PublishOrchestrator) ImageParams(decision *domain.PublishDecision, registry, tagPrefix string) service.ImageParams {
	params := service.ImageParams{
		Repository: service.RepositoryName(o.projectPath),
		Classifier: decision.Classifier,
		Version:    decision.VersionUsed,
		Registry:   registry,
		TagPrefix:  tagPrefix,
	}
	if decision.Tag != "" {
		if tag, err := domain.ParseTag(decision.Tag); err == nil {
			params.Tag = &tag
		}
	}
	return params
}

// Push pushes each local image to its remote name. Every image is
// attempted; failures are reported alongside the images that made it.
func (o *PublishOrchestrator) Push(ctx context.Context, local, remote []string) domain.PushResult {
	result := domain.PushResult{
		PushedTags: []string{},
		FailedTags: []string{},
		Errors:     map[string]string{},
	}
	for i, target := range remote {
		if i >= len(local) {
			result.FailedTags = append(result.FailedTags, target)
			result.Errors[target] = "no local image to push"
			continue
		}
		if err := o.container.Push(ctx, local[i], target); err != nil {
			o.logger.Warn("failed to push image", zap.String("image", target), zap.Error(err))
			result.FailedTags = append(result.FailedTags, target)
			result.Errors[target] = err.Error()
			continue
		}
		o.logger.Info("pushed image", zap.String("image", target))
		result.PushedTags = append(result.PushedTags, target)
	}
	result.Success = len(result.FailedTags) == 0
	return result
}

// SafePush validates the classifier and pushes its images when allowed.
func (o *PublishOrchestrator) SafePush(ctx context.Context, req PushRequest) (*SafePushResult, error) {
	ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()
	if err := ValidatePushTarget(req.Registry, req.TagPrefix); err != nil {
		return nil, err
	}
	if err := o.container.Available(ctx); err != nil {
		return nil, fmt.Errorf("container engine not available: %w", err)
	}
	decision, err := o.ValidateAndResolve(ctx, req.Classifier, req.VersionSource, req.Force)
	if err != nil {
		return nil, err
	}
	result := &SafePushResult{Decision: decision}
	if !decision.Allowed {
		return result, fmt.Errorf("%w: %d validation error(s) for %s (use --force to override)",
			ErrPublishNotAllowed, len(decision.ValidationErrors), req.Classifier)
	}
	params := o.ImageParams(decision, req.Registry, req.TagPrefix)
	localRefs, err := service.LocalImages(params)
	if err != nil {
		return result, err
	}
	remoteRefs, err := service.RemoteImages(params)
	if err != nil {
		return result, err
	}
	result.Push = o.Push(ctx, service.RefNames(localRefs), service.RefNames(remoteRefs))
	return result, nil
}

package usecase

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

// CreateTagInput holds the operator's tagging request.
type CreateTagInput struct {
	Project                *project.Config
	Classifier             string
	Bump                   domain.BumpKind
	Message                string
	AllowMissingToolCommit bool
}

// CreateTagResult describes the created tag.
type CreateTagResult struct {
	Tag  domain.HierarchicalTag
	Bump domain.BumpResult
	// ToolCommitMissing is set when the placeholder commit was recorded.
	ToolCommitMissing bool
}

// CreateTagUseCase creates the next hierarchical tag for a classifier.
type CreateTagUseCase struct {
	GitRepo  repository.GitRepository
	ToolInfo service.ToolInfoService
	Logger   *zap.Logger
}

// Execute validates the preconditions and tags HEAD. All precondition
// failures are returned as *domain.VersionControlError.
func (uc *CreateTagUseCase) Execute(ctx context.Context, in CreateTagInput) (*CreateTagResult, error) {
	logger := uc.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if in.Project == nil || !in.Project.Has(in.Classifier) {
		var available []string
		if in.Project != nil {
			available = in.Project.Classifiers
		}
		return nil, &domain.VersionControlError{
			Classifier: in.Classifier,
			Msg:        fmt.Sprintf("classifier not found in configuration (available: %v)", available),
		}
	}
	if err := uc.GitRepo.IsWorkingDirectoryClean(ctx); err != nil {
		var dirty *domain.DirtyError
		if errors.As(err, &dirty) {
			return nil, &domain.VersionControlError{
				Classifier: in.Classifier,
				Msg:        "cannot tag: commit or stash your changes first",
				Err:        dirty,
			}
		}
		return nil, err
	}
	toolCommit, missing, err := uc.resolveToolCommit(ctx, in)
	if err != nil {
		return nil, err
	}
	if missing {
		logger.Warn("mlserver commit unknown, tagging with placeholder",
			zap.String("classifier", in.Classifier), zap.String("commit", domain.PlaceholderCommit))
	}
	calc := &CalculateVersionUseCase{GitRepo: uc.GitRepo}
	bump, err := calc.Execute(ctx, in.Classifier, in.Bump)
	if err != nil {
		return nil, err
	}
	tag, err := domain.NewHierarchicalTag(in.Classifier, bump.Version, toolCommit)
	if err != nil {
		return nil, &domain.VersionControlError{Classifier: in.Classifier, Msg: "cannot build tag", Err: err}
	}
	exists, err := uc.GitRepo.TagExists(ctx, tag.String())
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &domain.VersionControlError{
			Classifier: in.Classifier,
			Msg:        fmt.Sprintf("tag %s already exists", tag),
		}
	}
	msg := in.Message
	if msg == "" {
		msg = fmt.Sprintf("Release %s v%s", in.Classifier, bump.Version.Plain())
	}
	if err := uc.GitRepo.CreateTag(ctx, tag.String(), msg); err != nil {
		return nil, err
	}
	logger.Info("created tag",
		zap.String("classifier", in.Classifier),
		zap.String("tag", tag.String()),
		zap.Bool("initial", bump.Initial))
	return &CreateTagResult{Tag: tag, Bump: bump, ToolCommitMissing: missing}, nil
}

func (uc *CreateTagUseCase) resolveToolCommit(ctx context.Context, in CreateTagInput) (string, bool, error) {
	commit, err := uc.ToolInfo.Commit(ctx)
	if err == nil {
		return domain.NormalizeCommit(commit), false, nil
	}
	if !errors.Is(err, domain.ErrToolCommitUnknown) {
		return "", false, err
	}
	if in.AllowMissingToolCommit {
		return domain.PlaceholderCommit, true, nil
	}
	return "", false, &domain.VersionControlError{
		Classifier: in.Classifier,
		Msg:        "cannot tag without the mlserver commit (use --allow-missing-mlserver to override)",
		Err:        err,
	}
}

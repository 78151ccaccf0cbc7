package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/compozy/mlserver/internal/repository"
	"github.com/compozy/mlserver/internal/service"
	"go.uber.org/zap"
)

// MinorBumpThreshold is the commit count from which a minor bump is suggested.
const MinorBumpThreshold = 10

// TagStatusUseCase derives per-classifier tag status from the repository.
type TagStatusUseCase struct {
	GitRepo  repository.GitInspector
	ToolInfo service.ToolInfoService
	Logger   *zap.Logger
}

func (uc *TagStatusUseCase) logger() *zap.Logger {
	if uc.Logger == nil {
		return zap.NewNop()
	}
	return uc.Logger
}

// StatusFor reports the status of a single classifier.
func (uc *TagStatusUseCase) StatusFor(ctx context.Context, classifier string) (domain.ClassifierTagStatus, error) {
	head, err := uc.GitRepo.CurrentCommit(ctx)
	if err != nil {
		return domain.ClassifierTagStatus{Classifier: classifier}, err
	}
	return uc.statusAt(ctx, classifier, head, uc.toolCommit(ctx))
}

// StatusForAll reports every classifier in the given order. A failure for
// one classifier is recorded in its entry as a STALE status with Error set;
// only failing to read HEAD aborts the whole query.
func (uc *TagStatusUseCase) StatusForAll(ctx context.Context, classifiers []string) ([]domain.ClassifierTagStatus, error) {
	head, err := uc.GitRepo.CurrentCommit(ctx)
	if err != nil {
		return nil, err
	}
	tool := uc.toolCommit(ctx)
	statuses := make([]domain.ClassifierTagStatus, 0, len(classifiers))
	for _, classifier := range classifiers {
		st, err := uc.statusAt(ctx, classifier, head, tool)
		if err != nil {
			uc.logger().Warn("failed to determine tag status",
				zap.String("classifier", classifier), zap.Error(err))
			st.Status = domain.StatusStale
			st.OnTaggedCommit = false
			st.Error = err.Error()
			st.Recommendation = "resolve the repository error for this classifier"
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// StatusByName finds a classifier's entry in a StatusForAll result.
func StatusByName(statuses []domain.ClassifierTagStatus, classifier string) (domain.ClassifierTagStatus, bool) {
	for _, st := range statuses {
		if st.Classifier == classifier {
			return st, true
		}
	}
	return domain.ClassifierTagStatus{}, false
}

func (uc *TagStatusUseCase) toolCommit(ctx context.Context) string {
	if uc.ToolInfo == nil {
		return ""
	}
	commit, err := uc.ToolInfo.Commit(ctx)
	if err != nil {
		uc.logger().Debug("mlserver commit unknown, skipping drift detection", zap.Error(err))
		return ""
	}
	return commit
}

func (uc *TagStatusUseCase) statusAt(
	ctx context.Context,
	classifier, head, toolCommit string,
) (domain.ClassifierTagStatus, error) {
	st := domain.ClassifierTagStatus{Classifier: classifier}
	tags, err := uc.GitRepo.TagsMatching(ctx, classifier)
	if err != nil {
		return st, err
	}
	if len(tags) == 0 {
		st.Status = domain.StatusUntagged
		st.Recommendation = "tag an initial release"
		return st, nil
	}
	latest := tags[0]
	st.LatestTag = latest
	tag, err := domain.ParseTag(latest)
	if err != nil {
		st.Status = domain.StatusUntagged
		var parseErr *domain.ParseError
		reason := err.Error()
		if errors.As(err, &parseErr) {
			reason = parseErr.Reason
		}
		st.Recommendation = fmt.Sprintf("latest tag %s is corrupt (%s): tag a new release", latest, reason)
		return st, nil
	}
	st.CurrentVersion = tag.Version
	st.ToolCommit = tag.ToolCommit
	st.ToolDrift = toolCommit != "" && !domain.CommitsEqual(tag.ToolCommit, toolCommit)

	tagCommit, err := uc.GitRepo.TagCommit(ctx, latest)
	if err != nil {
		st.Status = domain.StatusStale
		return st, err
	}
	if domain.CommitsEqual(head, tagCommit) {
		zero := 0
		st.Status = domain.StatusCurrent
		st.OnTaggedCommit = true
		st.CommitsSinceTag = &zero
		return st, nil
	}
	st.Status = domain.StatusStale
	count, ok, err := uc.GitRepo.CommitsSince(ctx, latest)
	if err != nil {
		return st, err
	}
	if !ok {
		st.Recommendation = fmt.Sprintf("HEAD does not contain %s: check out the tagged history or tag a new release", latest)
		return st, nil
	}
	st.CommitsSinceTag = &count
	st.Recommendation = bumpRecommendation(classifier, count)
	return st, nil
}

func bumpRecommendation(classifier string, commits int) string {
	kind := domain.BumpPatch
	if commits >= MinorBumpThreshold {
		kind = domain.BumpMinor
	}
	noun := "commits"
	if commits == 1 {
		noun = "commit"
	}
	return fmt.Sprintf("%d %s since last tag: run mlserver tag %s --classifier %s", commits, noun, kind, classifier)
}

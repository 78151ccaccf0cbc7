package usecase

import (
	"context"
	"fmt"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/compozy/mlserver/internal/repository"
)

// LatestValidTag returns the classifier's highest well-formed tag. found is
// false when the classifier has no parseable tag.
func LatestValidTag(
	ctx context.Context,
	git repository.GitInspector,
	classifier string,
) (domain.HierarchicalTag, bool, error) {
	tags, err := git.TagsMatching(ctx, classifier)
	if err != nil {
		return domain.HierarchicalTag{}, false, err
	}
	for _, name := range tags {
		if tag, err := domain.ParseTag(name); err == nil {
			return tag, true, nil
		}
	}
	return domain.HierarchicalTag{}, false, nil
}

// CalculateVersionUseCase computes a classifier's next version from its tags.
type CalculateVersionUseCase struct {
	GitRepo repository.GitInspector
}

// Execute bumps the latest tagged version, or yields the initial release
// when the classifier has never been tagged.
func (uc *CalculateVersionUseCase) Execute(
	ctx context.Context,
	classifier string,
	kind domain.BumpKind,
) (domain.BumpResult, error) {
	latest, found, err := LatestValidTag(ctx, uc.GitRepo, classifier)
	if err != nil {
		return domain.BumpResult{}, fmt.Errorf("failed to read tags for %s: %w", classifier, err)
	}
	var previous *domain.Version
	if found {
		previous = latest.Version
	}
	return domain.Bump(kind, previous)
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/compozy/mlserver/internal/repository"
	"github.com/compozy/mlserver/internal/service"
	"go.uber.org/zap"
)

// Rollback data keys shared by release steps and their compensations.
const (
	dataTag              = "tag"
	dataCreatedInSession = "created_in_session"
	dataImages           = "images"
)

// CompensatingActions provides idempotent rollback operations for release steps
type CompensatingActions struct {
	gitRepo   repository.GitRepository
	container service.ContainerService
	logger    *zap.Logger
}

// NewCompensatingActions creates a new compensating actions handler
func NewCompensatingActions(
	gitRepo repository.GitRepository,
	container service.ContainerService,
	logger *zap.Logger,
) *CompensatingActions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompensatingActions{gitRepo: gitRepo, container: container, logger: logger}
}

// DeleteTag removes a local tag created by this session. Missing tags are
// treated as already rolled back.
func (ca *CompensatingActions) DeleteTag(ctx context.Context, rollbackData map[string]any) error {
	tag, ok := rollbackData[dataTag].(string)
	if !ok || tag == "" {
		return fmt.Errorf("tag not found in rollback data")
	}
	if created, _ := rollbackData[dataCreatedInSession].(bool); !created {
		ca.logger.Info("tag existed before this session, keeping it", zap.String("tag", tag))
		return nil
	}
	exists, err := ca.gitRepo.TagExists(ctx, tag)
	if err != nil {
		return fmt.Errorf("failed to check tag %s: %w", tag, err)
	}
	if !exists {
		return nil
	}
	if err := ca.gitRepo.DeleteTag(ctx, tag); err != nil && !errors.Is(err, domain.ErrTagNotFound) {
		return fmt.Errorf("failed to delete tag %s: %w", tag, err)
	}
	ca.logger.Info("deleted local tag", zap.String("tag", tag))
	return nil
}

// RemoveImages deletes the local images built by this session.
func (ca *CompensatingActions) RemoveImages(ctx context.Context, rollbackData map[string]any) error {
	images := stringSlice(rollbackData[dataImages])
	if len(images) == 0 {
		return nil
	}
	if err := ca.container.RemoveImages(ctx, images); err != nil {
		return fmt.Errorf("failed to remove images: %w", err)
	}
	ca.logger.Info("removed local images", zap.Strings("images", images))
	return nil
}

// stringSlice accepts both in-memory and JSON-decoded rollback data.
func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

package orchestrator

import (
	"context"
	"fmt"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/compozy/mlserver/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SagaStep represents a single step in the release workflow
type SagaStep struct {
	Name    string
	Type    domain.StepType
	Execute func(ctx context.Context) (rollbackData map[string]any, err error)
	// Compensate undoes a completed local effect. Nil means nothing to undo.
	Compensate func(ctx context.Context, rollbackData map[string]any) error
	// Remote marks steps that publish outside the machine. A completed remote
	// step is never revoked and shields every earlier step from rollback.
	Remote bool
}

// SagaExecutor runs release steps in order and undoes local effects on failure.
// Steps are attempted once: git and docker failures are not retried.
type SagaExecutor struct {
	store   repository.SessionStore
	session *domain.ReleaseSession
	steps   []SagaStep
	logger  *zap.Logger
	persist bool
}

// NewSagaExecutor creates an executor with a fresh session. A nil store
// disables persistence.
func NewSagaExecutor(store repository.SessionStore, classifier string, logger *zap.Logger) *SagaExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SagaExecutor{
		store:   store,
		session: domain.NewReleaseSession(uuid.New().String(), classifier),
		steps:   []SagaStep{},
		logger:  logger,
		persist: store != nil,
	}
}

// AddStep adds a step to the saga
func (s *SagaExecutor) AddStep(step SagaStep) {
	s.steps = append(s.steps, step)
	s.session.AddStep(step.Type)
}

// Session returns the session being recorded.
func (s *SagaExecutor) Session() *domain.ReleaseSession {
	return s.session
}

// Execute runs every step, rolling back local effects when one fails.
func (s *SagaExecutor) Execute(ctx context.Context) error {
	if err := s.save(ctx); err != nil {
		return fmt.Errorf("failed to save initial session: %w", err)
	}
	s.logger.Info("release session started",
		zap.String("session", s.session.SessionID),
		zap.String("classifier", s.session.Classifier))
	for _, step := range s.steps {
		if err := s.executeStep(ctx, step); err != nil {
			s.session.MarkStepFailed(step.Type, err)
			s.saveBestEffort(ctx, "step failed")
			rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RollbackTimeout)
			rollbackErr := s.rollback(rollbackCtx)
			cancel()
			if rollbackErr != nil {
				return fmt.Errorf("step '%s' failed: %w, rollback also failed: %v", step.Name, err, rollbackErr)
			}
			return fmt.Errorf("step '%s' failed: %w", step.Name, err)
		}
	}
	s.session.Status = domain.SessionCompleted
	s.saveBestEffort(ctx, "session completed")
	return nil
}

func (s *SagaExecutor) executeStep(ctx context.Context, step SagaStep) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.session.MarkStepStarted(step.Type)
	s.saveBestEffort(ctx, "step started")
	s.logger.Debug("executing release step", zap.String("step", step.Name))
	data, err := step.Execute(ctx)
	if err != nil {
		return err
	}
	s.session.MarkStepCompleted(step.Type, data)
	s.saveBestEffort(ctx, "step completed")
	return nil
}

// Rollback undoes the completed local steps of the session, most recent
// first, stopping at the first completed remote step.
func (s *SagaExecutor) Rollback(ctx context.Context) error {
	return s.rollback(ctx)
}

func (s *SagaExecutor) rollback(ctx context.Context) error {
	completed := s.session.CompletedSteps()
	if len(completed) == 0 {
		s.logger.Info("no release steps to roll back")
		return nil
	}
	rolledBack := 0
	for _, record := range completed {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("rollback canceled: %w", err)
		}
		step := s.findStepByType(record.Type)
		if step == nil {
			continue
		}
		if step.Remote {
			s.logger.Warn("keeping steps published before a remote step",
				zap.String("step", step.Name))
			break
		}
		if step.Compensate == nil {
			continue
		}
		s.logger.Info("rolling back", zap.String("step", step.Name))
		if err := step.Compensate(ctx, record.RollbackData); err != nil {
			return fmt.Errorf("rollback failed for %s: %w", step.Name, err)
		}
		s.session.MarkStepRolledBack(record.Type)
		rolledBack++
		s.saveBestEffort(ctx, "step rolled back")
	}
	if rolledBack > 0 {
		s.session.Status = domain.SessionRolledBack
	}
	s.saveBestEffort(ctx, "rollback finished")
	return nil
}

func (s *SagaExecutor) findStepByType(stepType domain.StepType) *SagaStep {
	for i := range s.steps {
		if s.steps[i].Type == stepType {
			return &s.steps[i]
		}
	}
	return nil
}

func (s *SagaExecutor) save(ctx context.Context) error {
	if !s.persist {
		return nil
	}
	return s.store.Save(ctx, s.session)
}

func (s *SagaExecutor) saveBestEffort(ctx context.Context, event string) {
	if err := s.save(ctx); err != nil {
		s.logger.Warn("failed to save release session",
			zap.String("event", event),
			zap.String("session", s.session.SessionID),
			zap.Error(err))
	}
}

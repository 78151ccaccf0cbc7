package domain

import (
	"fmt"
	"time"
)

// SessionStatus is the overall state of a release session.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionRunning    SessionStatus = "running"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionRolledBack SessionStatus = "rolled_back"
)

// StepStatus is the state of one step of a release session.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepRunning    StepStatus = "running"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepRolledBack StepStatus = "rolled_back"
)

// StepType identifies a release step.
type StepType string

const (
	StepCreateTag      StepType = "create_tag"
	StepPushTag        StepType = "push_tag"
	StepBuildImage     StepType = "build_image"
	StepPushImages     StepType = "push_images"
	StepPublishRelease StepType = "publish_release"
)

// ReleaseSession records the progress of one release so that local effects
// can be undone after a failure and the outcome inspected later.
type ReleaseSession struct {
	SessionID  string        `json:"session_id"`
	StartedAt  time.Time     `json:"started_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Classifier string        `json:"classifier"`
	Tag        string        `json:"tag,omitempty"`
	Images     []string      `json:"images,omitempty"`
	Steps      []StepRecord  `json:"steps"`
	Status     SessionStatus `json:"status"`
	Error      string        `json:"error,omitempty"`
}

// StepRecord is a single step of a release session.
type StepRecord struct {
	ID           string         `json:"id"`
	Type         StepType       `json:"type"`
	Status       StepStatus     `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	RollbackData map[string]any `json:"rollback_data,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// NewReleaseSession starts an empty session for a classifier.
func NewReleaseSession(sessionID, classifier string) *ReleaseSession {
	now := time.Now()
	return &ReleaseSession{
		SessionID:  sessionID,
		StartedAt:  now,
		UpdatedAt:  now,
		Classifier: classifier,
		Steps:      []StepRecord{},
		Status:     SessionPending,
	}
}

// AddStep appends a pending step.
func (s *ReleaseSession) AddStep(stepType StepType) *StepRecord {
	now := time.Now()
	s.Steps = append(s.Steps, StepRecord{
		ID:        fmt.Sprintf("%s_%d", stepType, len(s.Steps)+1),
		Type:      stepType,
		Status:    StepPending,
		StartedAt: now,
	})
	s.UpdatedAt = now
	return &s.Steps[len(s.Steps)-1]
}

// Step returns the most recent record of the given type.
func (s *ReleaseSession) Step(stepType StepType) *StepRecord {
	for i := len(s.Steps) - 1; i >= 0; i-- {
		if s.Steps[i].Type == stepType {
			return &s.Steps[i]
		}
	}
	return nil
}

// CompletedSteps returns completed steps, most recent first.
func (s *ReleaseSession) CompletedSteps() []StepRecord {
	var completed []StepRecord
	for i := len(s.Steps) - 1; i >= 0; i-- {
		if s.Steps[i].Status == StepCompleted {
			completed = append(completed, s.Steps[i])
		}
	}
	return completed
}

// MarkStepStarted moves the pending step of the given type to running.
func (s *ReleaseSession) MarkStepStarted(stepType StepType) {
	s.transition(stepType, StepPending, func(r *StepRecord, now time.Time) {
		r.Status = StepRunning
		r.StartedAt = now
	})
	s.Status = SessionRunning
}

// MarkStepCompleted records success and the data needed to undo the step.
func (s *ReleaseSession) MarkStepCompleted(stepType StepType, rollbackData map[string]any) {
	s.transition(stepType, StepRunning, func(r *StepRecord, now time.Time) {
		r.Status = StepCompleted
		r.CompletedAt = &now
		r.RollbackData = rollbackData
	})
}

// MarkStepFailed records the failure of a step and of the session.
func (s *ReleaseSession) MarkStepFailed(stepType StepType, err error) {
	s.transition(stepType, StepRunning, func(r *StepRecord, now time.Time) {
		r.Status = StepFailed
		r.CompletedAt = &now
		r.Error = err.Error()
	})
	s.Status = SessionFailed
	s.Error = err.Error()
}

// MarkStepRolledBack records that a completed step was undone.
func (s *ReleaseSession) MarkStepRolledBack(stepType StepType) {
	s.transition(stepType, StepCompleted, func(r *StepRecord, _ time.Time) {
		r.Status = StepRolledBack
	})
}

func (s *ReleaseSession) transition(stepType StepType, from StepStatus, apply func(*StepRecord, time.Time)) {
	now := time.Now()
	for i := range s.Steps {
		if s.Steps[i].Type == stepType && s.Steps[i].Status == from {
			apply(&s.Steps[i], now)
			break
		}
	}
	s.UpdatedAt = now
}

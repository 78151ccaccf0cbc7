package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedTag is wrapped by every ParseError.
	ErrMalformedTag = errors.New("malformed hierarchical tag")
	// ErrNoVersionAvailable is returned when no version source can provide a version.
	ErrNoVersionAvailable = errors.New("no version available")
	// ErrToolCommitUnknown is returned when the serving tool's commit cannot be determined.
	ErrToolCommitUnknown = errors.New("mlserver commit could not be determined")
	// ErrTagNotFound is returned when a tag does not exist in the repository.
	ErrTagNotFound = errors.New("tag not found")
)

// ParseError describes why a tag string is not a valid hierarchical tag.
type ParseError struct {
	Tag    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid tag %q: %s", e.Tag, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrMalformedTag
}

// RepositoryError reports a failing version control operation.
type RepositoryError struct {
	Op   string
	Path string
	Err  error
}

func (e *RepositoryError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("git %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("git %s in %s: %v", e.Op, e.Path, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// DirtyError lists the paths that keep a working tree from being clean.
type DirtyError struct {
	Staged    []string
	Unstaged  []string
	Untracked []string
}

func (e *DirtyError) Error() string {
	var parts []string
	if n := len(e.Staged); n > 0 {
		parts = append(parts, fmt.Sprintf("%d staged", n))
	}
	if n := len(e.Unstaged); n > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", n))
	}
	if n := len(e.Untracked); n > 0 {
		parts = append(parts, fmt.Sprintf("%d untracked", n))
	}
	if len(parts) == 0 {
		return "working directory is not clean"
	}
	return "working directory is not clean: " + strings.Join(parts, ", ")
}

// Paths returns every offending path.
func (e *DirtyError) Paths() []string {
	paths := make([]string, 0, len(e.Staged)+len(e.Unstaged)+len(e.Untracked))
	paths = append(paths, e.Staged...)
	paths = append(paths, e.Unstaged...)
	return append(paths, e.Untracked...)
}

// VersionControlError is a fatal precondition failure of a tagging operation.
type VersionControlError struct {
	Classifier string
	Msg        string
	Err        error
}

func (e *VersionControlError) Error() string {
	msg := e.Msg
	if e.Classifier != "" {
		msg = fmt.Sprintf("%s: %s", e.Classifier, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *VersionControlError) Unwrap() error {
	return e.Err
}

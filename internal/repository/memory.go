package repository

import (
	"context"
	"crypto/sha1" //nolint:gosec // fake object ids only
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/compozy/mlserver/internal/domain"
)

type memoryTag struct {
	commit    string
	createdAt time.Time
	message   string
}

// MemoryRepository is a scripted, linear history used in tests and dry
// runs. It satisfies GitRepository without touching disk.
type MemoryRepository struct {
	mu      sync.Mutex
	commits []string
	seq     int
	head    int
	branch  string
	tags    map[string]memoryTag
	pushed  map[string]bool
	dirty   *domain.DirtyError
	clock   time.Time
	// Err, when set, is returned by every operation as a RepositoryError.
	Err error
	// PushErr, when set, is returned by PushTag.
	PushErr error
}

// NewMemoryRepository creates a history with a single root commit on main.
func NewMemoryRepository() *MemoryRepository {
	r := &MemoryRepository{
		branch: "main",
		tags:   map[string]memoryTag{},
		pushed: map[string]bool{},
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	r.Commit()
	return r
}

// Commit appends a commit after HEAD and moves HEAD to it. Commits after a
// checked out HEAD are dropped from the history.
func (r *MemoryRepository) Commit() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	sum := sha1.Sum([]byte("commit-" + strconv.Itoa(r.seq))) //nolint:gosec
	hash := hex.EncodeToString(sum[:])
	if len(r.commits) > 0 {
		r.commits = r.commits[:r.head+1]
	}
	r.commits = append(r.commits, hash)
	r.head = len(r.commits) - 1
	return hash
}

// Checkout moves HEAD to an earlier commit of the history.
func (r *MemoryRepository) Checkout(commit string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.commits {
		if c == commit {
			r.head = i
			return
		}
	}
}

// Tag points a tag at a commit. An unknown commit simulates a tag whose
// target has left the history.
func (r *MemoryRepository) Tag(name, commit string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = r.clock.Add(time.Minute)
	r.tags[name] = memoryTag{commit: commit, createdAt: r.clock}
}

// SetDirty makes the working tree report the given changes. Nil cleans it.
func (r *MemoryRepository) SetDirty(dirty *domain.DirtyError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirty = dirty
}

// SetBranch changes the reported branch name.
func (r *MemoryRepository) SetBranch(branch string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.branch = branch
}

// Pushed reports whether PushTag succeeded for the tag.
func (r *MemoryRepository) Pushed(tag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushed[tag]
}

// TagMessage returns the annotation of a tag created through CreateTag.
func (r *MemoryRepository) TagMessage(tag string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tags[tag].message
}

func (r *MemoryRepository) fail(op string) error {
	if r.Err == nil {
		return nil
	}
	return &domain.RepositoryError{Op: op, Path: "memory", Err: r.Err}
}

func (r *MemoryRepository) indexOf(commit string) int {
	for i, c := range r.commits {
		if c == commit {
			return i
		}
	}
	return -1
}

// CurrentCommit returns the HEAD commit.
func (r *MemoryRepository) CurrentCommit(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("rev-parse HEAD"); err != nil {
		return "", err
	}
	return r.commits[r.head], nil
}

// CurrentBranch returns the configured branch.
func (r *MemoryRepository) CurrentBranch(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("rev-parse --abbrev-ref HEAD"); err != nil {
		return "", err
	}
	return r.branch, nil
}

// IsWorkingDirectoryClean returns the configured dirty state.
func (r *MemoryRepository) IsWorkingDirectoryClean(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("status"); err != nil {
		return err
	}
	if r.dirty != nil {
		return r.dirty
	}
	return nil
}

// TagsMatching returns the classifier's tags, latest first.
func (r *MemoryRepository) TagsMatching(_ context.Context, classifier string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("tag --list"); err != nil {
		return nil, err
	}
	var refs []domain.TagRef
	for name, tag := range r.tags {
		if domain.MatchesClassifier(name, classifier) {
			refs = append(refs, domain.TagRef{Name: name, CreatedAt: tag.createdAt})
		}
	}
	return domain.SortTagRefs(refs), nil
}

// TagCommit returns the tag target, failing for targets outside the history.
func (r *MemoryRepository) TagCommit(_ context.Context, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("rev-list -n 1 " + name); err != nil {
		return "", err
	}
	tag, ok := r.tags[name]
	if !ok {
		return "", &domain.RepositoryError{Op: "rev-list -n 1 " + name, Path: "memory",
			Err: fmt.Errorf("%w: %s", domain.ErrTagNotFound, name)}
	}
	if r.indexOf(tag.commit) < 0 {
		return "", &domain.RepositoryError{Op: "rev-list -n 1 " + name, Path: "memory",
			Err: fmt.Errorf("object %s not found", tag.commit)}
	}
	return tag.commit, nil
}

// CommitsSince counts commits between the tag and HEAD.
func (r *MemoryRepository) CommitsSince(_ context.Context, name string) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("rev-list"); err != nil {
		return 0, false, err
	}
	tag, ok := r.tags[name]
	if !ok {
		return 0, false, nil
	}
	idx := r.indexOf(tag.commit)
	if idx < 0 || idx > r.head {
		return 0, false, nil
	}
	return r.head - idx, true, nil
}

// TagExists reports whether the tag exists.
func (r *MemoryRepository) TagExists(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("show-ref " + name); err != nil {
		return false, err
	}
	_, ok := r.tags[name]
	return ok, nil
}

// Snapshot returns the scripted repository state.
func (r *MemoryRepository) Snapshot(ctx context.Context) (domain.GitSnapshot, error) {
	commit, err := r.CurrentCommit(ctx)
	if err != nil {
		return domain.GitSnapshot{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := domain.GitSnapshot{Commit: commit, Branch: r.branch, IsDirty: r.dirty != nil}
	for i := r.head; i >= 0; i-- {
		var refs []domain.TagRef
		for name, tag := range r.tags {
			if tag.commit == r.commits[i] {
				refs = append(refs, domain.TagRef{Name: name, CreatedAt: tag.createdAt})
			}
		}
		if len(refs) > 0 {
			distance := r.head - i
			snap.NearestTag = domain.SortTagRefs(refs)[0]
			snap.CommitsSinceTag = &distance
			break
		}
	}
	return snap, nil
}

// CreateTag tags HEAD.
func (r *MemoryRepository) CreateTag(_ context.Context, name, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("tag -a " + name); err != nil {
		return err
	}
	if _, ok := r.tags[name]; ok {
		return &domain.RepositoryError{Op: "tag -a " + name, Path: "memory", Err: fmt.Errorf("tag already exists")}
	}
	r.clock = r.clock.Add(time.Minute)
	r.tags[name] = memoryTag{commit: r.commits[r.head], createdAt: r.clock, message: msg}
	return nil
}

// DeleteTag removes a tag.
func (r *MemoryRepository) DeleteTag(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("tag -d " + name); err != nil {
		return err
	}
	if _, ok := r.tags[name]; !ok {
		return &domain.RepositoryError{Op: "tag -d " + name, Path: "memory",
			Err: fmt.Errorf("%w: %s", domain.ErrTagNotFound, name)}
	}
	delete(r.tags, name)
	return nil
}

// PushTag records the push.
func (r *MemoryRepository) PushTag(_ context.Context, remote, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("push " + remote + " " + name); err != nil {
		return err
	}
	if r.PushErr != nil {
		return &domain.RepositoryError{Op: "push " + remote + " " + name, Path: "memory", Err: r.PushErr}
	}
	if _, ok := r.tags[name]; !ok {
		return &domain.RepositoryError{Op: "push " + remote + " " + name, Path: "memory",
			Err: fmt.Errorf("%w: %s", domain.ErrTagNotFound, name)}
	}
	r.pushed[name] = true
	return nil
}

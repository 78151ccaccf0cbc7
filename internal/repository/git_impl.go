package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

const (
	defaultTaggerName  = "mlserver"
	defaultTaggerEmail = "mlserver@localhost"
)

type gitRepository struct {
	repo  *git.Repository
	path  string
	token string
}

// NewGitRepository opens the repository containing path. The token, when
// set, authenticates tag pushes over HTTPS.
func NewGitRepository(path, token string) (GitRepository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, &domain.RepositoryError{Op: "open", Path: path, Err: err}
	}
	return &gitRepository{repo: repo, path: path, token: token}, nil
}

// GitDir returns the git directory of the repository containing path.
func GitDir(path string) (string, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", &domain.RepositoryError{Op: "open", Path: path, Err: err}
	}
	st, ok := repo.Storer.(*filesystem.Storage)
	if !ok {
		return "", &domain.RepositoryError{Op: "rev-parse --git-dir", Path: path, Err: errors.New("repository is not stored on disk")}
	}
	return st.Filesystem().Root(), nil
}

func (r *gitRepository) wrap(op string, err error) error {
	return &domain.RepositoryError{Op: op, Path: r.path, Err: err}
}

// CurrentCommit returns the full hash of HEAD.
func (r *gitRepository) CurrentCommit(_ context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", r.wrap("rev-parse HEAD", err)
	}
	return head.Hash().String(), nil
}

// CurrentBranch returns the checked out branch, or HEAD when detached.
func (r *gitRepository) CurrentBranch(_ context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", r.wrap("rev-parse --abbrev-ref HEAD", err)
	}
	if !head.Name().IsBranch() {
		return "HEAD", nil
	}
	return head.Name().Short(), nil
}

// IsWorkingDirectoryClean reports staged, unstaged and untracked changes.
func (r *gitRepository) IsWorkingDirectoryClean(_ context.Context) error {
	w, err := r.repo.Worktree()
	if err != nil {
		return r.wrap("worktree", err)
	}
	status, err := w.Status()
	if err != nil {
		return r.wrap("status", err)
	}
	dirty := &domain.DirtyError{}
	for path, fs := range status {
		switch {
		case fs.Worktree == git.Untracked:
			dirty.Untracked = append(dirty.Untracked, path)
		default:
			if fs.Staging != git.Unmodified {
				dirty.Staged = append(dirty.Staged, path)
			}
			if fs.Worktree != git.Unmodified {
				dirty.Unstaged = append(dirty.Unstaged, path)
			}
		}
	}
	if len(dirty.Paths()) == 0 {
		return nil
	}
	sort.Strings(dirty.Staged)
	sort.Strings(dirty.Unstaged)
	sort.Strings(dirty.Untracked)
	return dirty
}

// TagsMatching returns the classifier's tags ordered latest first.
func (r *gitRepository) TagsMatching(_ context.Context, classifier string) ([]string, error) {
	tagRefs, err := r.repo.Tags()
	if err != nil {
		return nil, r.wrap("tag --list", err)
	}
	var refs []domain.TagRef
	if err := tagRefs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if !domain.MatchesClassifier(name, classifier) {
			return nil
		}
		refs = append(refs, domain.TagRef{Name: name, CreatedAt: r.tagTime(ref)})
		return nil
	}); err != nil {
		return nil, r.wrap("tag --list", err)
	}
	return domain.SortTagRefs(refs), nil
}

// tagTime prefers the tagger time of annotated tags and falls back to the
// commit time. Unresolvable tags get the zero time.
func (r *gitRepository) tagTime(ref *plumbing.Reference) time.Time {
	if tagObj, err := r.repo.TagObject(ref.Hash()); err == nil {
		return tagObj.Tagger.When
	}
	if commit, err := r.repo.CommitObject(ref.Hash()); err == nil {
		return commit.Committer.When
	}
	return time.Time{}
}

// resolveTagCommit resolves a tag reference to its commit hash.
func (r *gitRepository) resolveTagCommit(tagRef *plumbing.Reference) (plumbing.Hash, error) {
	if commit, err := r.repo.CommitObject(tagRef.Hash()); err == nil {
		return commit.Hash, nil
	}
	tagObj, err := r.repo.TagObject(tagRef.Hash())
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("tag %s does not point to a commit: %w", tagRef.Name().Short(), err)
	}
	commit, err := tagObj.Commit()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit %s of tag %s: %w", tagObj.Target, tagObj.Name, err)
	}
	return commit.Hash, nil
}

func (r *gitRepository) lookupTag(tag string) (*plumbing.Reference, error) {
	ref, err := r.repo.Tag(tag)
	if errors.Is(err, git.ErrTagNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTagNotFound, tag)
	}
	return ref, err
}

// TagCommit returns the full hash of the commit a tag points to.
func (r *gitRepository) TagCommit(_ context.Context, tag string) (string, error) {
	ref, err := r.lookupTag(tag)
	if err != nil {
		return "", r.wrap("rev-list -n 1 "+tag, err)
	}
	hash, err := r.resolveTagCommit(ref)
	if err != nil {
		return "", r.wrap("rev-list -n 1 "+tag, err)
	}
	return hash.String(), nil
}

// CommitsSince counts the commits reachable from HEAD but not from tag.
func (r *gitRepository) CommitsSince(_ context.Context, tag string) (int, bool, error) {
	ref, err := r.lookupTag(tag)
	if errors.Is(err, domain.ErrTagNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, r.wrap("rev-list", err)
	}
	tagHash, err := r.resolveTagCommit(ref)
	if err != nil {
		return 0, false, r.wrap("rev-list", err)
	}
	head, err := r.repo.Head()
	if err != nil {
		return 0, false, r.wrap("rev-parse HEAD", err)
	}
	count, found, err := r.countCommitsBetween(tagHash, head.Hash())
	if err != nil {
		return 0, false, r.wrap("rev-list "+tag+"..HEAD", err)
	}
	return count, found, nil
}

// countCommitsBetween counts commits reachable from head that are not
// ancestors of base. found is false when base is not reachable from head.
func (r *gitRepository) countCommitsBetween(base, head plumbing.Hash) (int, bool, error) {
	if base == head {
		return 0, true, nil
	}
	excluded := make(map[plumbing.Hash]struct{})
	baseLog, err := r.repo.Log(&git.LogOptions{From: base})
	if err != nil {
		return 0, false, err
	}
	if err := baseLog.ForEach(func(c *object.Commit) error {
		excluded[c.Hash] = struct{}{}
		return nil
	}); err != nil {
		return 0, false, err
	}
	headLog, err := r.repo.Log(&git.LogOptions{From: head})
	if err != nil {
		return 0, false, err
	}
	var count int
	var found bool
	if err := headLog.ForEach(func(c *object.Commit) error {
		if c.Hash == base {
			found = true
		}
		if _, ok := excluded[c.Hash]; !ok {
			count++
		}
		return nil
	}); err != nil {
		return 0, false, err
	}
	if !found {
		return 0, false, nil
	}
	return count, true, nil
}

// TagExists checks if a tag exists.
func (r *gitRepository) TagExists(_ context.Context, tag string) (bool, error) {
	_, err := r.repo.Tag(tag)
	if errors.Is(err, git.ErrTagNotFound) {
		return false, nil
	}
	if err != nil {
		return false, r.wrap("show-ref "+tag, err)
	}
	return true, nil
}

// Snapshot reads HEAD, branch, dirtiness and the nearest tag reachable from HEAD.
func (r *gitRepository) Snapshot(ctx context.Context) (domain.GitSnapshot, error) {
	commit, err := r.CurrentCommit(ctx)
	if err != nil {
		return domain.GitSnapshot{}, err
	}
	branch, err := r.CurrentBranch(ctx)
	if err != nil {
		return domain.GitSnapshot{}, err
	}
	snap := domain.GitSnapshot{Commit: commit, Branch: branch}
	cleanErr := r.IsWorkingDirectoryClean(ctx)
	var dirty *domain.DirtyError
	switch {
	case errors.As(cleanErr, &dirty):
		snap.IsDirty = true
	case cleanErr != nil:
		return domain.GitSnapshot{}, cleanErr
	}
	nearest, distance, err := r.nearestTag(plumbing.NewHash(commit))
	if err != nil {
		return domain.GitSnapshot{}, r.wrap("describe", err)
	}
	if nearest != "" {
		snap.NearestTag = nearest
		snap.CommitsSinceTag = &distance
	}
	return snap, nil
}

// nearestTag walks HEAD's history newest first and returns the first tagged
// commit it meets together with the number of commits walked before it.
func (r *gitRepository) nearestTag(head plumbing.Hash) (string, int, error) {
	byCommit := make(map[plumbing.Hash][]domain.TagRef)
	tagRefs, err := r.repo.Tags()
	if err != nil {
		return "", 0, err
	}
	if err := tagRefs.ForEach(func(ref *plumbing.Reference) error {
		hash, err := r.resolveTagCommit(ref)
		if err != nil {
			return nil
		}
		byCommit[hash] = append(byCommit[hash], domain.TagRef{Name: ref.Name().Short(), CreatedAt: r.tagTime(ref)})
		return nil
	}); err != nil {
		return "", 0, err
	}
	if len(byCommit) == 0 {
		return "", 0, nil
	}
	commits, err := r.repo.Log(&git.LogOptions{From: head, Order: git.LogOrderCommitterTime})
	if err != nil {
		return "", 0, err
	}
	var name string
	var distance int
	err = commits.ForEach(func(c *object.Commit) error {
		if refs, ok := byCommit[c.Hash]; ok {
			name = domain.SortTagRefs(refs)[0]
			return storer.ErrStop
		}
		distance++
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return "", 0, err
	}
	if name == "" {
		return "", 0, nil
	}
	return name, distance, nil
}

// CreateTag creates an annotated tag on HEAD signed with the configured git user.
func (r *gitRepository) CreateTag(_ context.Context, tag, msg string) error {
	head, err := r.repo.Head()
	if err != nil {
		return r.wrap("rev-parse HEAD", err)
	}
	_, err = r.repo.CreateTag(tag, head.Hash(), &git.CreateTagOptions{
		Message: msg,
		Tagger:  r.tagger(),
	})
	if err != nil {
		return r.wrap("tag -a "+tag, err)
	}
	return nil
}

func (r *gitRepository) tagger() *object.Signature {
	sig := &object.Signature{Name: defaultTaggerName, Email: defaultTaggerEmail, When: time.Now()}
	cfg, err := r.repo.ConfigScoped(config.GlobalScope)
	if err != nil {
		return sig
	}
	if cfg.User.Name != "" {
		sig.Name = cfg.User.Name
	}
	if cfg.User.Email != "" {
		sig.Email = cfg.User.Email
	}
	return sig
}

// DeleteTag removes a local tag.
func (r *gitRepository) DeleteTag(_ context.Context, tag string) error {
	if err := r.repo.DeleteTag(tag); err != nil {
		return r.wrap("tag -d "+tag, err)
	}
	return nil
}

// getAuth returns token credentials for HTTP remotes. Other transports use
// their own defaults (ssh agent, local files), so they get no auth method.
func (r *gitRepository) getAuth(remote string) (transport.AuthMethod, error) {
	if r.token == "" {
		return nil, nil
	}
	rem, err := r.repo.Remote(remote)
	if err != nil {
		return nil, err
	}
	urls := rem.Config().URLs
	if len(urls) == 0 {
		return nil, fmt.Errorf("remote %s has no URL", remote)
	}
	ep, err := transport.NewEndpoint(urls[0])
	if err != nil {
		return nil, err
	}
	if ep.Protocol != "http" && ep.Protocol != "https" {
		return nil, nil
	}
	return &http.BasicAuth{
		Username: "x-access-token",
		Password: r.token,
	}, nil
}

// PushTag pushes a single tag to the remote.
func (r *gitRepository) PushTag(ctx context.Context, remote, tag string) error {
	if remote == "" {
		remote = git.DefaultRemoteName
	}
	auth, err := r.getAuth(remote)
	if err != nil {
		return r.wrap("push "+remote+" "+tag, err)
	}
	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("refs/tags/%s:refs/tags/%s", tag, tag))},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return r.wrap("push "+remote+" "+tag, err)
	}
	return nil
}

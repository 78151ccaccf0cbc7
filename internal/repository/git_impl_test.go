package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type testRepo struct {
	t    *testing.T
	dir  string
	repo *git.Repository
	n    int
}

func setupTestRepo(t *testing.T) *testRepo {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	tr := &testRepo{t: t, dir: dir, repo: repo}
	tr.commit("test.txt", "test content")
	return tr
}

func (tr *testRepo) commit(file, content string) plumbing.Hash {
	tr.t.Helper()
	wt, err := tr.repo.Worktree()
	require.NoError(tr.t, err)
	require.NoError(tr.t, os.WriteFile(filepath.Join(tr.dir, file), []byte(content), 0o644))
	_, err = wt.Add(file)
	require.NoError(tr.t, err)
	tr.n++
	hash, err := wt.Commit("commit "+file, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
			When:  testEpoch.Add(time.Duration(tr.n) * time.Minute),
		},
	})
	require.NoError(tr.t, err)
	return hash
}

func (tr *testRepo) annotatedTag(name string, at plumbing.Hash, when time.Time) {
	tr.t.Helper()
	_, err := tr.repo.CreateTag(name, at, &git.CreateTagOptions{
		Message: name,
		Tagger:  &object.Signature{Name: "Test User", Email: "test@example.com", When: when},
	})
	require.NoError(tr.t, err)
}

func (tr *testRepo) open() GitRepository {
	tr.t.Helper()
	r, err := NewGitRepository(tr.dir, "")
	require.NoError(tr.t, err)
	return r
}

func (tr *testRepo) head() plumbing.Hash {
	tr.t.Helper()
	ref, err := tr.repo.Head()
	require.NoError(tr.t, err)
	return ref.Hash()
}

func TestNewGitRepository(t *testing.T) {
	t.Run("Should open an existing repository", func(t *testing.T) {
		tr := setupTestRepo(t)
		r, err := NewGitRepository(tr.dir, "")
		assert.NoError(t, err)
		assert.NotNil(t, r)
	})
	t.Run("Should open a repository from a subdirectory", func(t *testing.T) {
		tr := setupTestRepo(t)
		sub := filepath.Join(tr.dir, "models")
		require.NoError(t, os.MkdirAll(sub, 0o755))
		_, err := NewGitRepository(sub, "")
		assert.NoError(t, err)
	})
	t.Run("Should return a repository error for non-git directory", func(t *testing.T) {
		r, err := NewGitRepository(t.TempDir(), "")
		require.Error(t, err)
		assert.Nil(t, r)
		var repoErr *domain.RepositoryError
		assert.True(t, errors.As(err, &repoErr))
		assert.Equal(t, "open", repoErr.Op)
	})
}

func TestGitRepository_CurrentCommit(t *testing.T) {
	t.Run("Should return the full HEAD hash and branch", func(t *testing.T) {
		tr := setupTestRepo(t)
		r := tr.open()
		commit, err := r.CurrentCommit(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tr.head().String(), commit)
		assert.Len(t, commit, 40)
		ref, err := tr.repo.Head()
		require.NoError(t, err)
		branch, err := r.CurrentBranch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ref.Name().Short(), branch)
	})
}

func TestGitRepository_IsWorkingDirectoryClean(t *testing.T) {
	ctx := context.Background()
	t.Run("Should report a pristine checkout as clean", func(t *testing.T) {
		tr := setupTestRepo(t)
		assert.NoError(t, tr.open().IsWorkingDirectoryClean(ctx))
	})
	t.Run("Should report untracked files as dirty", func(t *testing.T) {
		tr := setupTestRepo(t)
		require.NoError(t, os.WriteFile(filepath.Join(tr.dir, "model.pkl"), []byte("x"), 0o644))
		err := tr.open().IsWorkingDirectoryClean(ctx)
		var dirty *domain.DirtyError
		require.True(t, errors.As(err, &dirty))
		assert.Equal(t, []string{"model.pkl"}, dirty.Untracked)
	})
	t.Run("Should report modified tracked files as dirty", func(t *testing.T) {
		tr := setupTestRepo(t)
		require.NoError(t, os.WriteFile(filepath.Join(tr.dir, "test.txt"), []byte("changed"), 0o644))
		err := tr.open().IsWorkingDirectoryClean(ctx)
		var dirty *domain.DirtyError
		require.True(t, errors.As(err, &dirty))
		assert.Equal(t, []string{"test.txt"}, dirty.Unstaged)
	})
	t.Run("Should report staged files as dirty", func(t *testing.T) {
		tr := setupTestRepo(t)
		require.NoError(t, os.WriteFile(filepath.Join(tr.dir, "new.txt"), []byte("x"), 0o644))
		wt, err := tr.repo.Worktree()
		require.NoError(t, err)
		_, err = wt.Add("new.txt")
		require.NoError(t, err)
		err = tr.open().IsWorkingDirectoryClean(ctx)
		var dirty *domain.DirtyError
		require.True(t, errors.As(err, &dirty))
		assert.Equal(t, []string{"new.txt"}, dirty.Staged)
	})
}

func TestGitRepository_TagsMatching(t *testing.T) {
	ctx := context.Background()
	t.Run("Should return only the classifier tags latest first", func(t *testing.T) {
		tr := setupTestRepo(t)
		first := tr.head()
		second := tr.commit("b.txt", "b")
		tr.annotatedTag("sentiment-v1.2.0-mlserver-aaaaaaa", first, testEpoch)
		tr.annotatedTag("sentiment-v1.10.0-mlserver-bbbbbbb", second, testEpoch.Add(time.Hour))
		tr.annotatedTag("sentiment-v1.0-broken", second, testEpoch)
		tr.annotatedTag("fraud-v9.0.0-mlserver-ccccccc", second, testEpoch)
		_, err := tr.repo.CreateTag("sentiment-v0.1.0-mlserver-ddddddd", first, nil)
		require.NoError(t, err)
		tags, err := tr.open().TagsMatching(ctx, "sentiment")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"sentiment-v1.10.0-mlserver-bbbbbbb",
			"sentiment-v1.2.0-mlserver-aaaaaaa",
			"sentiment-v0.1.0-mlserver-ddddddd",
			"sentiment-v1.0-broken",
		}, tags)
	})
	t.Run("Should return no tags for an untagged classifier", func(t *testing.T) {
		tr := setupTestRepo(t)
		tags, err := tr.open().TagsMatching(ctx, "sentiment")
		require.NoError(t, err)
		assert.Empty(t, tags)
	})
}

func TestGitRepository_TagCommit(t *testing.T) {
	ctx := context.Background()
	t.Run("Should resolve annotated and lightweight tags", func(t *testing.T) {
		tr := setupTestRepo(t)
		first := tr.head()
		tr.annotatedTag("sentiment-v0.1.0-mlserver-aaaaaaa", first, testEpoch)
		_, err := tr.repo.CreateTag("fraud-v0.1.0-mlserver-aaaaaaa", first, nil)
		require.NoError(t, err)
		r := tr.open()
		commit, err := r.TagCommit(ctx, "sentiment-v0.1.0-mlserver-aaaaaaa")
		require.NoError(t, err)
		assert.Equal(t, first.String(), commit)
		commit, err = r.TagCommit(ctx, "fraud-v0.1.0-mlserver-aaaaaaa")
		require.NoError(t, err)
		assert.Equal(t, first.String(), commit)
	})
	t.Run("Should report a missing tag", func(t *testing.T) {
		tr := setupTestRepo(t)
		_, err := tr.open().TagCommit(ctx, "nope-v1.0.0-mlserver-aaaaaaa")
		assert.ErrorIs(t, err, domain.ErrTagNotFound)
	})
}

func TestGitRepository_CommitsSince(t *testing.T) {
	ctx := context.Background()
	t.Run("Should count commits after the tag", func(t *testing.T) {
		tr := setupTestRepo(t)
		tr.annotatedTag("sentiment-v0.1.0-mlserver-aaaaaaa", tr.head(), testEpoch)
		tr.commit("b.txt", "b")
		tr.commit("c.txt", "c")
		count, ok, err := tr.open().CommitsSince(ctx, "sentiment-v0.1.0-mlserver-aaaaaaa")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2, count)
	})
	t.Run("Should return zero on the tagged commit", func(t *testing.T) {
		tr := setupTestRepo(t)
		tr.annotatedTag("sentiment-v0.1.0-mlserver-aaaaaaa", tr.head(), testEpoch)
		count, ok, err := tr.open().CommitsSince(ctx, "sentiment-v0.1.0-mlserver-aaaaaaa")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Zero(t, count)
	})
	t.Run("Should be absent when the tag is not in HEAD history", func(t *testing.T) {
		tr := setupTestRepo(t)
		first := tr.head()
		second := tr.commit("b.txt", "b")
		tr.annotatedTag("sentiment-v0.2.0-mlserver-aaaaaaa", second, testEpoch)
		wt, err := tr.repo.Worktree()
		require.NoError(t, err)
		require.NoError(t, wt.Reset(&git.ResetOptions{Commit: first, Mode: git.HardReset}))
		_, ok, err := tr.open().CommitsSince(ctx, "sentiment-v0.2.0-mlserver-aaaaaaa")
		require.NoError(t, err)
		assert.False(t, ok)
	})
	t.Run("Should be absent for a missing tag", func(t *testing.T) {
		tr := setupTestRepo(t)
		_, ok, err := tr.open().CommitsSince(ctx, "missing-v1.0.0-mlserver-aaaaaaa")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGitRepository_TagLifecycle(t *testing.T) {
	ctx := context.Background()
	t.Run("Should create, detect and delete an annotated tag on HEAD", func(t *testing.T) {
		tr := setupTestRepo(t)
		r := tr.open()
		const tag = "sentiment-v0.1.0-mlserver-abc1234"
		exists, err := r.TagExists(ctx, tag)
		require.NoError(t, err)
		assert.False(t, exists)
		require.NoError(t, r.CreateTag(ctx, tag, "Release sentiment v0.1.0"))
		exists, err = r.TagExists(ctx, tag)
		require.NoError(t, err)
		assert.True(t, exists)
		ref, err := tr.repo.Tag(tag)
		require.NoError(t, err)
		obj, err := tr.repo.TagObject(ref.Hash())
		require.NoError(t, err)
		assert.Equal(t, "Release sentiment v0.1.0", strings.TrimSpace(obj.Message))
		assert.Equal(t, tr.head(), obj.Target)
		require.NoError(t, r.DeleteTag(ctx, tag))
		exists, err = r.TagExists(ctx, tag)
		require.NoError(t, err)
		assert.False(t, exists)
	})
	t.Run("Should fail to create a duplicate tag", func(t *testing.T) {
		tr := setupTestRepo(t)
		r := tr.open()
		require.NoError(t, r.CreateTag(ctx, "x-v1.0.0-mlserver-abc1234", "m"))
		assert.Error(t, r.CreateTag(ctx, "x-v1.0.0-mlserver-abc1234", "m"))
	})
}

func (tr *testRepo) remote(url string) {
	tr.t.Helper()
	_, err := tr.repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{url}})
	require.NoError(tr.t, err)
}

func TestGitRepository_PushTag(t *testing.T) {
	t.Run("Should not send an auth method to an ssh remote without a token", func(t *testing.T) {
		tr := setupTestRepo(t)
		tr.remote("ssh://git@127.0.0.1:1/x.git")
		r := tr.open()
		const tag = "s-v0.1.0-mlserver-abcdef0"
		require.NoError(t, r.CreateTag(context.Background(), tag, "m"))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := r.PushTag(ctx, "origin", tag)
		require.Error(t, err)
		assert.NotErrorIs(t, err, transport.ErrInvalidAuthMethod)
	})
}

func TestGitRepository_getAuth(t *testing.T) {
	t.Run("Should use token credentials for https remotes", func(t *testing.T) {
		tr := setupTestRepo(t)
		tr.remote("https://github.com/acme/models.git")
		r := &gitRepository{repo: tr.repo, path: tr.dir, token: "ghp_token"}
		auth, err := r.getAuth("origin")
		require.NoError(t, err)
		basic, ok := auth.(*http.BasicAuth)
		require.True(t, ok)
		assert.Equal(t, "ghp_token", basic.Password)
	})
	t.Run("Should return no auth method for ssh remotes even with a token", func(t *testing.T) {
		tr := setupTestRepo(t)
		tr.remote("git@github.com:acme/models.git")
		r := &gitRepository{repo: tr.repo, path: tr.dir, token: "ghp_token"}
		auth, err := r.getAuth("origin")
		require.NoError(t, err)
		assert.Nil(t, auth)
	})
	t.Run("Should return no auth method without a token", func(t *testing.T) {
		tr := setupTestRepo(t)
		tr.remote("https://github.com/acme/models.git")
		r := &gitRepository{repo: tr.repo, path: tr.dir}
		auth, err := r.getAuth("origin")
		require.NoError(t, err)
		assert.Nil(t, auth)
	})
}

func TestGitDir(t *testing.T) {
	t.Run("Should locate the git directory from a subdirectory", func(t *testing.T) {
		tr := setupTestRepo(t)
		sub := filepath.Join(tr.dir, "models")
		require.NoError(t, os.MkdirAll(sub, 0o755))
		dir, err := GitDir(sub)
		require.NoError(t, err)
		want, err := filepath.EvalSymlinks(filepath.Join(tr.dir, ".git"))
		require.NoError(t, err)
		got, err := filepath.EvalSymlinks(dir)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
	t.Run("Should fail outside a repository", func(t *testing.T) {
		_, err := GitDir(t.TempDir())
		var repoErr *domain.RepositoryError
		assert.ErrorAs(t, err, &repoErr)
	})
}

func TestGitRepository_Snapshot(t *testing.T) {
	ctx := context.Background()
	t.Run("Should describe the nearest tag and distance", func(t *testing.T) {
		tr := setupTestRepo(t)
		tr.annotatedTag("sentiment-v0.1.0-mlserver-aaaaaaa", tr.head(), testEpoch)
		tr.commit("b.txt", "b")
		snap, err := tr.open().Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, tr.head().String(), snap.Commit)
		assert.Equal(t, "sentiment-v0.1.0-mlserver-aaaaaaa", snap.NearestTag)
		require.NotNil(t, snap.CommitsSinceTag)
		assert.Equal(t, 1, *snap.CommitsSinceTag)
		assert.False(t, snap.IsDirty)
	})
	t.Run("Should report dirty trees without tags", func(t *testing.T) {
		tr := setupTestRepo(t)
		require.NoError(t, os.WriteFile(filepath.Join(tr.dir, "scratch"), []byte("x"), 0o644))
		snap, err := tr.open().Snapshot(ctx)
		require.NoError(t, err)
		assert.True(t, snap.IsDirty)
		assert.Empty(t, snap.NearestTag)
		assert.Nil(t, snap.CommitsSinceTag)
	})
}

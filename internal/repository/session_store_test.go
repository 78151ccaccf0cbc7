package repository

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/go-git/go-git/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) (SessionStore, afero.Fs, string) {
	fs := afero.NewOsFs()
	dir := filepath.Join(t.TempDir(), "releases")
	return NewSessionStore(fs, dir, zaptest.NewLogger(t)), fs, dir
}

func TestSessionDir(t *testing.T) {
	t.Run("Should keep relative state directories inside the git directory", func(t *testing.T) {
		dir := t.TempDir()
		_, err := git.PlainInit(dir, false)
		require.NoError(t, err)
		got, err := SessionDir(dir, "mlserver/releases")
		require.NoError(t, err)
		gitDir, err := GitDir(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(gitDir, "mlserver", "releases"), got)
	})
	t.Run("Should default to the session directory under the git directory", func(t *testing.T) {
		dir := t.TempDir()
		_, err := git.PlainInit(dir, false)
		require.NoError(t, err)
		got, err := SessionDir(dir, "")
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(got, filepath.Join(".git", DefaultSessionDir)))
	})
	t.Run("Should use absolute state directories as given", func(t *testing.T) {
		abs := filepath.Join(t.TempDir(), "sessions")
		got, err := SessionDir(t.TempDir(), abs)
		require.NoError(t, err)
		assert.Equal(t, abs, got)
	})
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	t.Run("Should save and load a session", func(t *testing.T) {
		store, _, _ := newTestStore(t)
		session := domain.NewReleaseSession("s-1", "sentiment")
		session.Tag = "sentiment-v0.1.0-mlserver-abc1234"
		session.AddStep(domain.StepCreateTag)
		require.NoError(t, store.Save(ctx, session))
		loaded, err := store.Load(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, "sentiment", loaded.Classifier)
		assert.Equal(t, session.Tag, loaded.Tag)
		require.Len(t, loaded.Steps, 1)
		assert.Equal(t, domain.StepCreateTag, loaded.Steps[0].Type)
	})
	t.Run("Should load the latest saved session", func(t *testing.T) {
		store, _, _ := newTestStore(t)
		require.NoError(t, store.Save(ctx, domain.NewReleaseSession("s-1", "a")))
		require.NoError(t, store.Save(ctx, domain.NewReleaseSession("s-2", "b")))
		latest, err := store.LoadLatest(ctx)
		require.NoError(t, err)
		assert.Equal(t, "s-2", latest.SessionID)
	})
	t.Run("Should report missing sessions", func(t *testing.T) {
		store, _, _ := newTestStore(t)
		_, err := store.LoadLatest(ctx)
		assert.ErrorIs(t, err, ErrSessionNotFound)
		_, err = store.Load(ctx, "nope")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
	t.Run("Should detect tampered session files", func(t *testing.T) {
		store, fs, dir := newTestStore(t)
		require.NoError(t, store.Save(ctx, domain.NewReleaseSession("s-1", "sentiment")))
		path := filepath.Join(dir, "session-s-1.json")
		data, err := afero.ReadFile(fs, path)
		require.NoError(t, err)
		tampered := strings.Replace(string(data), `"classifier": "sentiment"`, `"classifier": "other"`, 1)
		require.NotEqual(t, string(data), tampered)
		require.NoError(t, afero.WriteFile(fs, path, []byte(tampered), SessionFilePermissions))
		_, err = store.Load(ctx, "s-1")
		assert.ErrorContains(t, err, "checksum mismatch")
	})
	t.Run("Should delete sessions", func(t *testing.T) {
		store, _, _ := newTestStore(t)
		require.NoError(t, store.Save(ctx, domain.NewReleaseSession("s-1", "sentiment")))
		require.NoError(t, store.Delete(ctx, "s-1"))
		_, err := store.Load(ctx, "s-1")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

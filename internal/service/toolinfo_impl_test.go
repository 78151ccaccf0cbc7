package service

import (
	"context"
	"os"
	"path/filepath"
	"runtime/debug"
	"testing"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noBuildInfo() (*debug.BuildInfo, bool) { return nil, false }

func TestToolInfoService_Commit(t *testing.T) {
	ctx := context.Background()
	t.Run("Should prefer the linker provided commit", func(t *testing.T) {
		svc := &toolInfoService{buildCommit: "b5dff2a1234", readBuildInfo: noBuildInfo}
		commit, err := svc.Commit(ctx)
		require.NoError(t, err)
		assert.Equal(t, "b5dff2a1234", commit)
		assert.Equal(t, InstallRelease, svc.Info(ctx).InstallType)
	})
	t.Run("Should fall back to the Go build info", func(t *testing.T) {
		svc := &toolInfoService{
			buildCommit: "unknown",
			readBuildInfo: func() (*debug.BuildInfo, bool) {
				return &debug.BuildInfo{GoVersion: "go1.25.2", Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "0123456789abcdef0123456789abcdef01234567"},
				}}, true
			},
		}
		commit, err := svc.Commit(ctx)
		require.NoError(t, err)
		assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", commit)
		info := svc.Info(ctx)
		assert.Equal(t, InstallGoBuild, info.InstallType)
		assert.Equal(t, "0123456", info.ShortCommit())
		assert.Equal(t, "go1.25.2", info.GoVersion)
	})
	t.Run("Should fall back to the source checkout", func(t *testing.T) {
		dir := t.TempDir()
		repo, err := git.PlainInit(dir, false)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
		wt, err := repo.Worktree()
		require.NoError(t, err)
		_, err = wt.Add("main.go")
		require.NoError(t, err)
		hash, err := wt.Commit("init", &git.CommitOptions{Author: &object.Signature{Name: "t", Email: "t@example.com"}})
		require.NoError(t, err)
		svc := &toolInfoService{buildCommit: "unknown", sourceDir: dir, readBuildInfo: noBuildInfo}
		commit, err := svc.Commit(ctx)
		require.NoError(t, err)
		assert.Equal(t, hash.String(), commit)
		assert.Equal(t, InstallSource, svc.Info(ctx).InstallType)
	})
	t.Run("Should report an unknown commit", func(t *testing.T) {
		svc := &toolInfoService{buildCommit: "unknown", readBuildInfo: noBuildInfo}
		_, err := svc.Commit(ctx)
		assert.ErrorIs(t, err, domain.ErrToolCommitUnknown)
		assert.Equal(t, InstallUnknown, svc.Info(ctx).InstallType)
	})
}

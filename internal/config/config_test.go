package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const classicToken = "0123456789abcdef0123456789abcdef01234567"

func isolateEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{"GITHUB_TOKEN", "MLSERVER_GITHUB_TOKEN", "MLSERVER_REGISTRY", "MLSERVER_LOG_LEVEL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("Should return defaults when no file exists", func(t *testing.T) {
		isolateEnv(t)
		cfg, err := LoadConfig(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "origin", cfg.Remote)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 30*time.Minute, cfg.DockerTimeout)
		assert.Empty(t, cfg.Registry)
	})
	t.Run("Should read the project configuration file", func(t *testing.T) {
		isolateEnv(t)
		dir := t.TempDir()
		content := strings.Join([]string{
			"registry: ghcr.io/acme",
			"tag_prefix: ml",
			"log_level: debug",
			"docker_timeout: 5m",
		}, "\n")
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".mlserver.yaml"), []byte(content), 0o600))
		cfg, err := LoadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, "ghcr.io/acme", cfg.Registry)
		assert.Equal(t, "ml", cfg.TagPrefix)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 5*time.Minute, cfg.DockerTimeout)
	})
	t.Run("Should let environment override the file", func(t *testing.T) {
		isolateEnv(t)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".mlserver.yaml"), []byte("registry: a.io\n"), 0o600))
		t.Setenv("MLSERVER_REGISTRY", "b.io")
		t.Setenv("GITHUB_TOKEN", classicToken)
		cfg, err := LoadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, "b.io", cfg.Registry)
		assert.Equal(t, classicToken, cfg.GithubToken)
	})
	t.Run("Should reject invalid log level", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("MLSERVER_LOG_LEVEL", "loud")
		_, err := LoadConfig(t.TempDir())
		assert.ErrorContains(t, err, "log_level")
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("Should accept defaults", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})
	t.Run("Should keep release state out of the working tree by default", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Equal(t, "mlserver/releases", cfg.StateDir)
	})
	t.Run("Should reject path traversal", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.StateDir = "../elsewhere"
		assert.ErrorContains(t, cfg.Validate(), "path traversal")
	})
	t.Run("Should require owner and repo together", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.GithubOwner = "acme"
		assert.Error(t, cfg.Validate())
		cfg.GithubRepo = "models"
		assert.NoError(t, cfg.Validate())
	})
	t.Run("Should reject malformed tag prefixes", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TagPrefix = "bad prefix"
		assert.Error(t, cfg.Validate())
	})
	t.Run("Should require GitHub settings for GitHub operations", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Error(t, cfg.ValidateForGitHubOperations())
		cfg.GithubToken = classicToken
		cfg.GithubOwner = "acme"
		cfg.GithubRepo = "models"
		assert.NoError(t, cfg.ValidateForGitHubOperations())
	})
}

func TestValidateGitHubToken(t *testing.T) {
	t.Run("Should accept known token formats", func(t *testing.T) {
		assert.NoError(t, ValidateGitHubToken(classicToken))
		assert.NoError(t, ValidateGitHubToken("ghs_"+strings.Repeat("a", 36)))
	})
	t.Run("Should reject short or unknown tokens", func(t *testing.T) {
		assert.Error(t, ValidateGitHubToken("short"))
		assert.Error(t, ValidateGitHubToken(strings.Repeat("z", 45)))
	})
}

package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// FileName is the tool configuration file looked up in the project and home directories.
	FileName = ".mlserver"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "MLSERVER"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Config holds the release tool settings. Project level classifier
// settings live in mlserver.yaml and are read by the project package.
type Config struct {
	Registry      string        `mapstructure:"registry"`
	TagPrefix     string        `mapstructure:"tag_prefix"`
	Remote        string        `mapstructure:"remote"`
	ToolSourceDir string        `mapstructure:"tool_source_dir"`
	StateDir      string        `mapstructure:"state_dir"`
	LogLevel      string        `mapstructure:"log_level"`
	DockerBinary  string        `mapstructure:"docker_binary"`
	DockerTimeout time.Duration `mapstructure:"docker_timeout"`
	GithubToken   string        `mapstructure:"github_token"`
	GithubOwner   string        `mapstructure:"github_owner"`
	GithubRepo    string        `mapstructure:"github_repo"`
}

// DefaultConfig returns a Config with default values. A relative state_dir
// is taken inside the repository's git directory.
func DefaultConfig() *Config {
	return &Config{
		Remote:        "origin",
		StateDir:      "mlserver/releases",
		LogLevel:      "info",
		DockerBinary:  "docker",
		DockerTimeout: 30 * time.Minute,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.GithubToken != "" {
		if err := ValidateGitHubToken(c.GithubToken); err != nil {
			return fmt.Errorf("invalid github_token: %w", err)
		}
	}
	if c.GithubOwner != "" || c.GithubRepo != "" {
		if err := ValidateGitHubOwnerRepo(c.GithubOwner, c.GithubRepo); err != nil {
			return fmt.Errorf("invalid github configuration: %w", err)
		}
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of debug, info, warn, error: got %q", c.LogLevel)
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir cannot be empty")
	}
	for key, path := range map[string]string{"state_dir": c.StateDir, "tool_source_dir": c.ToolSourceDir} {
		if strings.Contains(path, "..") {
			return fmt.Errorf("%s contains invalid path traversal", key)
		}
	}
	if c.DockerTimeout <= 0 {
		return fmt.Errorf("docker_timeout must be positive")
	}
	if strings.ContainsAny(c.TagPrefix, " :@") {
		return fmt.Errorf("tag_prefix %q contains invalid characters", c.TagPrefix)
	}
	return nil
}

// ValidateForGitHubOperations validates that GitHub settings are present for operations that require them
func (c *Config) ValidateForGitHubOperations() error {
	if c.GithubToken == "" {
		return fmt.Errorf("github_token is required for GitHub operations")
	}
	if c.GithubOwner == "" || c.GithubRepo == "" {
		return fmt.Errorf("github_owner and github_repo are required for GitHub operations")
	}
	return c.Validate()
}

// ValidateGitHubToken validates GitHub token format (exported for reuse)
func ValidateGitHubToken(token string) error {
	token = strings.TrimSpace(token)
	if len(token) < 40 {
		return fmt.Errorf("token too short: expected at least 40 characters")
	}
	classicPAT := regexp.MustCompile(`^[a-fA-F0-9]{40}$`)
	fineGrainedPAT := regexp.MustCompile(`^github_pat_[a-zA-Z0-9_]{82}$`)
	appToken := regexp.MustCompile(`^ghs_[a-zA-Z0-9]{36}$`)
	oauthToken := regexp.MustCompile(`^gho_[a-zA-Z0-9]{36}$`)
	if !classicPAT.MatchString(token) &&
		!fineGrainedPAT.MatchString(token) &&
		!appToken.MatchString(token) &&
		!oauthToken.MatchString(token) {
		return fmt.Errorf("invalid token format")
	}
	return nil
}

// ValidateGitHubOwnerRepo validates GitHub owner and repository names (exported for reuse)
func ValidateGitHubOwnerRepo(owner, repo string) error {
	if owner == "" {
		return fmt.Errorf("owner cannot be empty")
	}
	if repo == "" {
		return fmt.Errorf("repository cannot be empty")
	}
	validName := regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-_.]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)
	if !validName.MatchString(owner) {
		return fmt.Errorf("invalid owner format: %s", owner)
	}
	if len(owner) > 39 {
		return fmt.Errorf("owner too long: maximum 39 characters")
	}
	if !validName.MatchString(repo) {
		return fmt.Errorf("invalid repository format: %s", repo)
	}
	if len(repo) > 100 {
		return fmt.Errorf("repository too long: maximum 100 characters")
	}
	return nil
}

// LoadConfig reads .mlserver.yaml from projectPath or the home directory,
// applies MLSERVER_* environment overrides and validates the result. A
// missing file is not an error.
func LoadConfig(projectPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	if projectPath != "" {
		v.AddConfigPath(projectPath)
	}
	v.AddConfigPath("$HOME")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.BindEnv("github_token", "GITHUB_TOKEN", EnvPrefix+"_GITHUB_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind github_token env: %w", err)
	}
	defaults := DefaultConfig()
	v.SetDefault("registry", defaults.Registry)
	v.SetDefault("tag_prefix", defaults.TagPrefix)
	v.SetDefault("remote", defaults.Remote)
	v.SetDefault("tool_source_dir", defaults.ToolSourceDir)
	v.SetDefault("state_dir", defaults.StateDir)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("docker_binary", defaults.DockerBinary)
	v.SetDefault("docker_timeout", defaults.DockerTimeout)
	v.SetDefault("github_owner", defaults.GithubOwner)
	v.SetDefault("github_repo", defaults.GithubRepo)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s: %w", v.ConfigFileUsed(), err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

package cmd

import (
	"fmt"

	"github.com/compozy/mlserver/internal/config"
	"github.com/compozy/mlserver/internal/orchestrator"
	"github.com/compozy/mlserver/internal/project"
	"github.com/compozy/mlserver/internal/repository"
	"github.com/compozy/mlserver/internal/service"
	"github.com/compozy/mlserver/internal/usecase"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// container holds the dependencies of one command invocation. Nothing is
// shared between invocations, so every command reads fresh repository state.
type container struct {
	opts   rootOptions
	cfg    *config.Config
	logger *zap.Logger

	fsRepo   repository.FileSystemRepository
	gitRepo  repository.GitRepository
	ghRepo   repository.GithubRepository
	docker   service.ContainerService
	toolInfo service.ToolInfoService
}

// newContainer creates a new container with all the dependencies.
func newContainer(o rootOptions) (*container, error) {
	cfg, err := config.LoadConfig(o.path)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(o.verbose, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	// GitHub repository is optional - only create if token is provided
	var ghRepo repository.GithubRepository
	if cfg.GithubToken != "" && cfg.GithubOwner != "" && cfg.GithubRepo != "" {
		ghRepo, err = repository.NewGithubRepository(cfg.GithubToken, cfg.GithubOwner, cfg.GithubRepo)
		if err != nil {
			return nil, err
		}
	}
	return &container{
		opts:     o,
		cfg:      cfg,
		logger:   logger,
		fsRepo:   repository.NewOSFileSystem(),
		ghRepo:   ghRepo,
		docker:   service.NewDockerService(cfg.DockerBinary, cfg.DockerTimeout, logger),
		toolInfo: service.NewToolInfoService(cfg.ToolSourceDir),
	}, nil
}

func newLogger(verbose bool, level string) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.DisableStacktrace = true
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}

// close flushes the logger.
func (c *container) close() {
	_ = c.logger.Sync()
}

// git opens the project repository once per invocation.
func (c *container) git() (repository.GitRepository, error) {
	if c.gitRepo != nil {
		return c.gitRepo, nil
	}
	repo, err := repository.NewGitRepository(c.opts.path, c.cfg.GithubToken)
	if err != nil {
		return nil, err
	}
	c.gitRepo = repo
	return repo, nil
}

func (c *container) project() (*project.Config, error) {
	return project.NewLoader(c.fsRepo).Load(c.opts.path, c.opts.configPath)
}

// sessionStore keeps release sessions under the git directory unless
// state_dir is absolute.
func (c *container) sessionStore() (repository.SessionStore, error) {
	dir, err := repository.SessionDir(c.opts.path, c.cfg.StateDir)
	if err != nil {
		return nil, err
	}
	return repository.NewSessionStore(c.fsRepo, dir, c.logger), nil
}

func (c *container) tagStatus() (*usecase.TagStatusUseCase, error) {
	git, err := c.git()
	if err != nil {
		return nil, err
	}
	return &usecase.TagStatusUseCase{GitRepo: git, ToolInfo: c.toolInfo, Logger: c.logger}, nil
}

func (c *container) createTag() (*usecase.CreateTagUseCase, error) {
	git, err := c.git()
	if err != nil {
		return nil, err
	}
	return &usecase.CreateTagUseCase{GitRepo: git, ToolInfo: c.toolInfo, Logger: c.logger}, nil
}

func (c *container) publish(proj *project.Config) (*orchestrator.PublishOrchestrator, error) {
	git, err := c.git()
	if err != nil {
		return nil, err
	}
	return orchestrator.NewPublishOrchestrator(git, proj, c.docker, c.toolInfo, c.opts.path, c.logger), nil
}

func (c *container) build(proj *project.Config) (*orchestrator.BuildOrchestrator, error) {
	publish, err := c.publish(proj)
	if err != nil {
		return nil, err
	}
	return orchestrator.NewBuildOrchestrator(publish, c.gitRepo, c.docker, c.toolInfo, c.logger), nil
}

func (c *container) release(proj *project.Config) (*orchestrator.ReleaseOrchestrator, error) {
	publish, err := c.publish(proj)
	if err != nil {
		return nil, err
	}
	store, err := c.sessionStore()
	if err != nil {
		return nil, err
	}
	return orchestrator.NewReleaseOrchestrator(c.gitRepo, proj, publish, c.docker, c.toolInfo,
		c.ghRepo, store, c.logger), nil
}

// InitCommands registers every command on the root command
func InitCommands() error {
	rootCmd.AddCommand(
		newVersionCmd(),
		newListClassifiersCmd(),
		newTagCmd(),
		newBuildCmd(),
		newPushCmd(),
		newReleaseCmd(),
		newImagesCmd(),
		newCleanCmd(),
	)
	return nil
}

// withContainer builds the container for a command and releases it afterwards.
func withContainer(fn func(c *container) error) error {
	c, err := newContainer(opts)
	if err != nil {
		return err
	}
	defer c.close()
	return fn(c)
}

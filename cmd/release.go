package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/compozy/mlserver/internal/orchestrator"
	"github.com/compozy/mlserver/internal/repository"
	"github.com/spf13/cobra"
)

// newReleaseCmd creates the release command
func newReleaseCmd() *cobra.Command {
	var (
		classifier       string
		message          string
		registry         string
		tagPrefix        string
		dockerfile       string
		buildArgs        []string
		noCache          bool
		allowMissingTool bool
		githubRelease    bool
	)
	cmd := &cobra.Command{
		Use:   "release <major|minor|patch>",
		Short: "Tag, build and publish a classifier release",
		Long: `Run the whole release of one classifier:
- Creates the next hierarchical tag
- Pushes the tag to the remote
- Builds the classifier image
- Pushes the images to the registry
- Optionally publishes a GitHub release

Progress is recorded under the state directory. When a step fails, local
effects made after the last remote publication are undone: the local tag
is deleted and built images are removed. Published tags and images are
never revoked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseBumpKind(args[0])
			if err != nil {
				return err
			}
			bargs, err := orchestrator.ParseBuildArgs(buildArgs)
			if err != nil {
				return err
			}
			return withContainer(func(c *container) error {
				if githubRelease {
					if err := c.cfg.ValidateForGitHubOperations(); err != nil {
						return err
					}
				}
				proj, err := c.project()
				if err != nil {
					return err
				}
				name, err := proj.Resolve(classifier)
				if err != nil {
					return err
				}
				orch, err := c.release(proj)
				if err != nil {
					return err
				}
				session, err := orch.Execute(cmd.Context(), orchestrator.ReleaseConfig{
					Classifier:             name,
					Bump:                   kind,
					Message:                message,
					AllowMissingToolCommit: allowMissingTool,
					Remote:                 c.cfg.Remote,
					Registry:               firstNonEmpty(registry, c.cfg.Registry),
					TagPrefix:              firstNonEmpty(tagPrefix, c.cfg.TagPrefix),
					Dockerfile:             dockerfile,
					BuildArgs:              bargs,
					NoCache:                noCache,
					GithubRelease:          githubRelease,
				})
				if session != nil {
					printSession(cmd.OutOrStdout(), session)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&classifier, "classifier", "c", "", "Classifier to release (required for multi-classifier configs)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Tag message")
	cmd.Flags().StringVarP(&registry, "registry", "r", "", "Container registry URL")
	cmd.Flags().StringVar(&tagPrefix, "tag-prefix", "", "Prefix for image tags")
	cmd.Flags().StringVar(&dockerfile, "dockerfile", "", "Dockerfile path relative to the project")
	cmd.Flags().StringArrayVar(&buildArgs, "build-arg", nil, "Build arguments (KEY=VALUE)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Do not use cache when building")
	cmd.Flags().BoolVar(&allowMissingTool, "allow-missing-mlserver", false,
		"Tag even when the mlserver commit cannot be determined")
	cmd.Flags().BoolVar(&githubRelease, "github-release", false, "Publish a GitHub release for the tag")
	cmd.AddCommand(newReleaseLastCmd())
	return cmd
}

func newReleaseLastCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "last",
		Short: "Show the most recent release session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(func(c *container) error {
				store, err := c.sessionStore()
				if err != nil {
					return err
				}
				session, err := store.LoadLatest(cmd.Context())
				if errors.Is(err, repository.ErrSessionNotFound) {
					printWarning(cmd.OutOrStdout(), "No release sessions recorded")
					return nil
				}
				if err != nil {
					return err
				}
				printSession(cmd.OutOrStdout(), session)
				return nil
			})
		},
	}
}

func printSession(out io.Writer, s *domain.ReleaseSession) {
	fmt.Fprintln(out, titleStyle.Render("Release "+s.Classifier)+" "+mutedStyle.Render(s.SessionID))
	if s.Tag != "" {
		printStep(out, "Tag: %s", s.Tag)
	}
	for _, step := range s.Steps {
		line := fmt.Sprintf("%-16s %s", step.Type, step.Status)
		if step.CompletedAt != nil {
			line += mutedStyle.Render(" " + step.CompletedAt.Sub(step.StartedAt).Round(time.Millisecond).String())
		}
		switch step.Status {
		case domain.StepCompleted:
			printSuccess(out, "%s", line)
		case domain.StepFailed:
			printError(out, "%s: %s", line, step.Error)
		case domain.StepRolledBack:
			printWarning(out, "%s", line)
		default:
			printStep(out, "%s", line)
		}
	}
	for _, image := range s.Images {
		printStep(out, "%s", image)
	}
	switch s.Status {
	case domain.SessionCompleted:
		printSuccess(out, "Release completed")
	case domain.SessionRolledBack:
		printWarning(out, "Release rolled back: %s", s.Error)
	case domain.SessionFailed:
		printError(out, "Release failed: %s", s.Error)
	}
}

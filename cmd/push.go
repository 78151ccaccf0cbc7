package cmd

import (
	"errors"
	"fmt"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/compozy/mlserver/internal/orchestrator"
	"github.com/spf13/cobra"
)

func newPushCmd() *cobra.Command {
	var (
		classifier    string
		registry      string
		tagPrefix     string
		versionSource string
		force         bool
	)
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push classifier images to a registry (requires a tagged commit)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(func(c *container) error {
				out := cmd.OutOrStdout()
				source, err := domain.ParseVersionSource(versionSource)
				if err != nil {
					return err
				}
				proj, err := c.project()
				if err != nil {
					return err
				}
				name, err := proj.Resolve(classifier)
				if err != nil {
					return err
				}
				reg := firstNonEmpty(registry, c.cfg.Registry)
				if reg == "" {
					return fmt.Errorf("registry is required: use --registry or set registry in .mlserver.yaml")
				}
				orch, err := c.publish(proj)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, titleStyle.Render("Validating and pushing "+name+" to "+reg))
				result, err := orch.SafePush(cmd.Context(), orchestrator.PushRequest{
					Classifier:    name,
					Registry:      reg,
					TagPrefix:     firstNonEmpty(tagPrefix, c.cfg.TagPrefix),
					VersionSource: source,
					Force:         force,
				})
				if errors.Is(err, orchestrator.ErrPublishNotAllowed) && result != nil {
					printError(out, "Push refused")
					for _, e := range result.Decision.ValidationErrors {
						printStep(out, "%s", e)
					}
					return err
				}
				if err != nil {
					return err
				}
				return reportPush(cmd, result)
			})
		},
	}
	cmd.Flags().StringVarP(&classifier, "classifier", "c", "", "Classifier to push (required for multi-classifier configs)")
	cmd.Flags().StringVarP(&registry, "registry", "r", "", "Container registry URL")
	cmd.Flags().StringVar(&tagPrefix, "tag-prefix", "", "Prefix for image tags")
	cmd.Flags().StringVar(&versionSource, "version-source", string(domain.VersionSourceAuto),
		"Version source: auto, git-tag, or config")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Push even if validation fails")
	return cmd
}

func reportPush(cmd *cobra.Command, result *orchestrator.SafePushResult) error {
	out := cmd.OutOrStdout()
	d := result.Decision
	push := result.Push
	if len(push.PushedTags) > 0 {
		printSuccess(out, "Pushed %d image(s)", len(push.PushedTags))
	}
	printStep(out, "Version: %s (from %s)", d.VersionUsed.Plain(), d.VersionSource)
	for _, tag := range push.PushedTags {
		printStep(out, "%s", tag)
	}
	if len(d.ValidationWarnings) > 0 {
		fmt.Fprintln(out)
		printWarning(out, "Warnings:")
		for _, w := range d.ValidationWarnings {
			printStep(out, "%s", w)
		}
	}
	if len(push.FailedTags) > 0 {
		fmt.Fprintln(out)
		printWarning(out, "Failed to push %d image(s):", len(push.FailedTags))
		for _, tag := range push.FailedTags {
			printError(out, "%s: %s", tag, push.Errors[tag])
		}
	}
	if !push.Success {
		return fmt.Errorf("push incomplete: %d of %d images failed",
			len(push.FailedTags), len(push.FailedTags)+len(push.PushedTags))
	}
	return nil
}

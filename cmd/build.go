package cmd

import (
	"fmt"
	"strings"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/compozy/mlserver/internal/orchestrator"
	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	var (
		classifier string
		registry   string
		tagPrefix  string
		dockerfile string
		buildArgs  []string
		noCache    bool
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the container image of a classifier",
		Long: `Build the container image of a classifier.

--classifier accepts a simple name (sentiment) or a full hierarchical tag
(sentiment-v1.0.0-mlserver-b5dff2a). With a full tag the current classifier
and mlserver commits are checked against the tag; a mismatch asks for
confirmation unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(func(c *container) error {
				out := cmd.OutOrStdout()
				proj, err := c.project()
				if err != nil {
					return err
				}
				input := classifier
				if input == "" {
					if input, err = proj.Resolve(""); err != nil {
						return err
					}
				}
				sel, err := domain.ParseSelector(input)
				if err != nil {
					return err
				}
				args, err := orchestrator.ParseBuildArgs(buildArgs)
				if err != nil {
					return err
				}
				orch, err := c.build(proj)
				if err != nil {
					return err
				}
				plan, err := orch.Plan(cmd.Context(), orchestrator.BuildOptions{
					Selector:   sel,
					Dockerfile: dockerfile,
					Registry:   firstNonEmpty(registry, c.cfg.Registry),
					TagPrefix:  firstNonEmpty(tagPrefix, c.cfg.TagPrefix),
					BuildArgs:  args,
					NoCache:    noCache,
				})
				if err != nil {
					return err
				}
				if plan.Provenance != nil {
					printProvenance(cmd, plan.Provenance)
					if plan.RequiresConfirmation() && !force &&
						!confirm(cmd.InOrStdin(), out, "Continue with build?") {
						printWarning(out, "Build cancelled")
						return nil
					}
				}
				for _, w := range plan.Warnings {
					printWarning(out, "%s", w)
				}
				fmt.Fprintln(out, titleStyle.Render("Building "+plan.Classifier+" "+plan.Version.String()))
				result, err := orch.Build(cmd.Context(), plan)
				if err != nil {
					return err
				}
				printSuccess(out, "Successfully built container")
				for _, image := range result.Images {
					printStep(out, "%s", image)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&classifier, "classifier", "c", "", "Classifier name or full hierarchical tag")
	cmd.Flags().StringVar(&registry, "registry", "", "Container registry URL")
	cmd.Flags().StringVar(&tagPrefix, "tag-prefix", "", "Prefix for image tags")
	cmd.Flags().StringVar(&dockerfile, "dockerfile", "", "Dockerfile path relative to the project")
	cmd.Flags().StringArrayVar(&buildArgs, "build-arg", nil, "Build arguments (KEY=VALUE)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Do not use cache when building")
	cmd.Flags().BoolVar(&force, "force", false, "Skip provenance confirmation")
	return cmd
}

func printProvenance(cmd *cobra.Command, p *domain.ProvenanceCheck) {
	out := cmd.OutOrStdout()
	printStep(out, "Full tag provided: %s", p.Tag)
	if !p.RequiresConfirmation() {
		printSuccess(out, "Current code matches the tag")
		return
	}
	printWarning(out, "Current code does not match the tag")
	mark := func(mismatch bool) string {
		if mismatch {
			return errorStyle.Render("⚠ MISMATCH")
		}
		return successStyle.Render("✓")
	}
	fmt.Fprintln(out, mutedStyle.Render("Tag specifies:"))
	fmt.Fprintf(out, "  Classifier commit: %s\n", orUnknown(p.TagClassifierCommit))
	fmt.Fprintf(out, "  MLServer commit:   %s\n", orUnknown(p.TagToolCommit))
	fmt.Fprintln(out, mutedStyle.Render("Current working directory:"))
	fmt.Fprintf(out, "  Classifier commit: %s %s\n", orUnknown(p.CurrentClassifierCommit), mark(p.ClassifierMismatch))
	fmt.Fprintf(out, "  MLServer commit:   %s %s\n", orUnknown(p.CurrentToolCommit), mark(p.ToolMismatch))
	fmt.Fprintln(out, warningStyle.Render("Building with CURRENT code.")+" To build the exact tagged version:")
	printStep(out, "git checkout %s", p.Tag)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

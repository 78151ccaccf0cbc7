package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/compozy/mlserver/internal/project"
	"github.com/compozy/mlserver/internal/usecase"
	"github.com/spf13/cobra"
)

type tagOptions struct {
	classifier       string
	message          string
	allowMissingTool bool
	push             bool
}

func newTagCmd() *cobra.Command {
	var o tagOptions
	cmd := &cobra.Command{
		Use:       "tag [major|minor|patch]",
		Short:     "Show classifier tag status or create the next release tag",
		ValidArgs: []string{string(domain.BumpMajor), string(domain.BumpMinor), string(domain.BumpPatch)},
		Args:      cobra.MaximumNArgs(1),
		Long: `Without arguments, show the tag status of every classifier.

With a bump type, create the next hierarchical tag for a classifier on the
current commit. The working tree must be clean.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(c *container) error {
				proj, err := c.project()
				if err != nil {
					return err
				}
				if len(args) == 0 {
					return showTagStatus(cmd.Context(), c, proj, cmd.OutOrStdout())
				}
				kind, err := domain.ParseBumpKind(args[0])
				if err != nil {
					return err
				}
				return createTag(cmd.Context(), c, proj, kind, o, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVarP(&o.classifier, "classifier", "c", "", "Classifier to tag (required for multi-classifier configs)")
	cmd.Flags().StringVarP(&o.message, "message", "m", "", "Tag message")
	cmd.Flags().BoolVar(&o.allowMissingTool, "allow-missing-mlserver", false,
		"Tag even when the mlserver commit cannot be determined")
	cmd.Flags().BoolVar(&o.push, "push", false, "Push the new tag to the remote")
	return cmd
}

func showTagStatus(ctx context.Context, c *container, proj *project.Config, out io.Writer) error {
	uc, err := c.tagStatus()
	if err != nil {
		return err
	}
	statuses, err := uc.StatusForAll(ctx, proj.Classifiers)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, titleStyle.Render("Classifier tags"))
	fmt.Fprintln(out, renderStatusTable(statuses))
	if commit, err := c.toolInfo.Commit(ctx); err == nil {
		fmt.Fprintln(out, mutedStyle.Render("Current mlserver commit: "+domain.NormalizeCommit(commit)))
	} else {
		printWarning(out, "mlserver commit unknown: drift cannot be detected")
	}
	for _, st := range statuses {
		switch {
		case st.Error != "":
			printError(out, "%s: %s", st.Classifier, st.Error)
		case st.Recommendation != "":
			printStep(out, "%s: %s", st.Classifier, st.Recommendation)
		}
	}
	return nil
}

func createTag(
	ctx context.Context,
	c *container,
	proj *project.Config,
	kind domain.BumpKind,
	o tagOptions,
	out io.Writer,
) error {
	classifier, err := proj.Resolve(o.classifier)
	if err != nil {
		return err
	}
	uc, err := c.createTag()
	if err != nil {
		return err
	}
	result, err := uc.Execute(ctx, usecase.CreateTagInput{
		Project:                proj,
		Classifier:             classifier,
		Bump:                   kind,
		Message:                o.message,
		AllowMissingToolCommit: o.allowMissingTool,
	})
	if err != nil {
		return err
	}
	tag := result.Tag.String()
	printSuccess(out, "Created tag %s %s", titleStyle.Render(tag), result.Bump.Describe())
	if result.Bump.Previous != nil {
		printStep(out, "%s → %s", result.Bump.Previous, result.Bump.Version)
	}
	if result.ToolCommitMissing {
		printWarning(out, "mlserver commit unknown, recorded %s", domain.PlaceholderCommit)
	}
	if o.push {
		git, err := c.git()
		if err != nil {
			return err
		}
		if err := git.PushTag(ctx, c.cfg.Remote, tag); err != nil {
			return fmt.Errorf("tag created but push failed: %w", err)
		}
		printSuccess(out, "Pushed %s to %s", tag, c.cfg.Remote)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, mutedStyle.Render("Next steps:"))
	if !o.push {
		printStep(out, "git push %s %s", c.cfg.Remote, tag)
	}
	printStep(out, "mlserver build --classifier %s", tag)
	printStep(out, "mlserver push --classifier %s --registry <registry>", classifier)
	return nil
}

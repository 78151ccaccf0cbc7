package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/compozy/mlserver/internal/service"
	"github.com/spf13/cobra"
)

func newImagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "images",
		Short: "List the local images of the classifier project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(func(c *container) error {
				images, err := c.docker.ListImages(cmd.Context(), service.RepositoryName(c.opts.path))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(images) == 0 {
					printWarning(out, "No images found for this classifier project")
					return nil
				}
				fmt.Fprintln(out, renderImageTable(images))
				return nil
			})
		},
	}
}

func newCleanCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove the local images of the classifier project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(func(c *container) error {
				return cleanImages(cmd.Context(), c.docker, service.RepositoryName(c.opts.path), force,
					cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Remove without confirmation")
	return cmd
}

// cleanImages removes every local image of the repository, asking first
// unless force is set.
func cleanImages(
	ctx context.Context,
	docker service.ContainerService,
	repository string,
	force bool,
	in io.Reader,
	out io.Writer,
) error {
	if err := docker.Available(ctx); err != nil {
		return err
	}
	images, err := docker.ListImages(ctx, repository)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		printWarning(out, "No images to remove")
		return nil
	}
	if !force {
		printWarning(out, "This will remove %d images", len(images))
		if !confirm(in, out, "Are you sure?") {
			printWarning(out, "Cancelled")
			return nil
		}
	}
	refs := make([]string, len(images))
	for i, img := range images {
		refs[i] = img.Reference
	}
	if err := docker.RemoveImages(ctx, refs); err != nil {
		return err
	}
	printSuccess(out, "Removed %d images:", len(refs))
	for _, ref := range refs {
		printStep(out, "%s", ref)
	}
	return nil
}

func renderImageTable(images []service.ImageInfo) string {
	rows := make([][]string, len(images))
	for i, img := range images {
		rows[i] = []string{img.Reference, img.ID, img.Created, img.Size}
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("Tag", "Image ID", "Created", "Size").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

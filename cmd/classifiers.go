package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListClassifiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-classifiers",
		Short: "List the classifiers declared by the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(func(c *container) error {
				proj, err := c.project()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, titleStyle.Render("Classifiers")+" "+mutedStyle.Render(proj.Path))
				for _, name := range proj.Classifiers {
					line := "  " + name
					if v := proj.Versions[name]; v != "" {
						line += " " + mutedStyle.Render("v"+v)
					}
					if name == proj.Default && proj.Multi {
						line += " " + successStyle.Render("(default)")
					}
					if d := proj.Descriptions[name]; d != "" {
						line += " " + mutedStyle.Render("- "+d)
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
}

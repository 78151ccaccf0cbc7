package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/compozy/mlserver/internal/service"
	"github.com/compozy/mlserver/pkg/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type versionReport struct {
	Version   string              `json:"version"`
	Commit    string              `json:"commit"`
	BuildDate string              `json:"build_date"`
	Tool      *service.ToolInfo   `json:"mlserver,omitempty"`
	Project   *domain.GitSnapshot `json:"project,omitempty"`
}

func newVersionCmd() *cobra.Command {
	var detailed, asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(func(c *container) error {
				report := versionReport{
					Version:   safeValue(version.Version, "dev"),
					Commit:    safeValue(version.CommitHash, "unknown"),
					BuildDate: safeValue(version.BuildDate, "unknown"),
				}
				if detailed {
					info := c.toolInfo.Info(cmd.Context())
					report.Tool = &info
				}
				if git, err := c.git(); err == nil {
					snap, err := git.Snapshot(cmd.Context())
					if err != nil {
						return err
					}
					report.Project = &snap
				} else {
					c.logger.Debug("project is not a git repository", zap.Error(err))
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				}
				printVersionReport(cmd, report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&detailed, "detailed", false, "Include mlserver build and commit details")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func printVersionReport(cmd *cobra.Command, r versionReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Version:\t%s\n", r.Version)
	fmt.Fprintf(out, "Commit:\t%s\n", r.Commit)
	fmt.Fprintf(out, "Built:\t%s\n", r.BuildDate)
	if r.Tool != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, titleStyle.Render("MLServer"))
		fmt.Fprintf(out, "Commit:\t%s\n", orUnknown(r.Tool.ShortCommit()))
		fmt.Fprintf(out, "Source:\t%s\n", orUnknown(r.Tool.CommitSource))
		fmt.Fprintf(out, "Install:\t%s\n", r.Tool.InstallType)
		if r.Tool.GoVersion != "" {
			fmt.Fprintf(out, "Go:\t%s\n", r.Tool.GoVersion)
		}
	}
	if r.Project != nil {
		p := r.Project
		fmt.Fprintln(out)
		fmt.Fprintln(out, titleStyle.Render("Project"))
		fmt.Fprintf(out, "Commit:\t%s\n", p.ShortCommit())
		fmt.Fprintf(out, "Branch:\t%s\n", orUnknown(p.Branch))
		if p.NearestTag != "" {
			fmt.Fprintf(out, "Tag:\t%s", p.NearestTag)
			if p.CommitsSinceTag != nil && *p.CommitsSinceTag > 0 {
				fmt.Fprintf(out, " (+%d)", *p.CommitsSinceTag)
			}
			fmt.Fprintln(out)
		}
		if p.IsDirty {
			fmt.Fprintf(out, "State:\t%s\n", warningStyle.Render("dirty"))
		}
	}
}

func safeValue(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

package cmd

import (
	"github.com/compozy/mlserver/pkg/version"
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	path       string
	configPath string
	verbose    bool
}

var opts rootOptions

var rootCmd = &cobra.Command{
	Use:   "mlserver",
	Short: "Version, tag and publish ML classifier images",
	Long: `mlserver manages the release lifecycle of the classifiers in a project.

Releases are marked with hierarchical git tags of the form
<classifier>-v<major>.<minor>.<patch>-mlserver-<commit>, recording both the
classifier version and the mlserver build that produced it. Images are only
pushed from a clean working tree sitting on such a tag.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = version.Summary()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.path, "path", ".", "Path to the classifier project")
	flags.StringVar(&opts.configPath, "config", "", "Project config file (auto-detected if not specified)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")
}

func Execute() error {
	return rootCmd.Execute()
}

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entrypoint"
)

// BuildInfo is stamped at build time via ldflags.
type BuildInfo struct {
	Version string
	Commit  string
}

// NewRootCommand builds the librarian command tree. Running it without a
// subcommand starts the HTTP server.
func NewRootCommand(info BuildInfo, loadConfig func() *config.Config) *cobra.Command {
	if loadConfig == nil {
		loadConfig = config.NewConfig
	}

	serve := func(cmd *cobra.Command, args []string) error {
		entrypoint.Run(loadConfig(), info.Version)
		return nil
	}

	root := &cobra.Command{
		Use:           "librarian",
		Short:         "Library catalog and borrow lifecycle server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server (default if no command given)",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		newMigrateCommand(loadConfig),
		newSweepOverdueCommand(loadConfig),
		newCreatePersonCommand(loadConfig, os.Stdin),
		newVersionCommand(info),
	)
	return root
}

// Execute runs the command tree against os.Args and exits non-zero on error.
func Execute(info BuildInfo) {
	if err := NewRootCommand(info, nil).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout(), info)
		},
	}
}

func printVersion(w io.Writer, info BuildInfo) {
	fmt.Fprintf(w, "librarian %s (commit %s)\n", info.Version, info.Commit)
}

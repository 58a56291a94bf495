package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entrypoint"
)

func newMigrateCommand(loadConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the database migrates it.
			app, err := entrypoint.NewApp(loadConfig())
			if err != nil {
				return err
			}
			defer app.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date")
			return nil
		},
	}
}

// SweepOverdueCommand marks every active borrow past its due date overdue.
type SweepOverdueCommand struct {
	Now string
}

func newSweepOverdueCommand(loadConfig func() *config.Config) *cobra.Command {
	opts := &SweepOverdueCommand{}
	cmd := &cobra.Command{
		Use:   "sweep-overdue",
		Short: "Mark late borrows overdue once and print how many changed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := opts.instant()
			if err != nil {
				return err
			}

			app, err := entrypoint.NewApp(loadConfig())
			if err != nil {
				return err
			}
			defer app.Close()

			marked, err := app.Circulation.MarkOverdueSweep(cmd.Context(), now)
			app.Audit.LogSweep("cli", marked, err)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d borrows overdue\n", marked)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Now, "now", "", "Sweep instant in RFC3339 (default: current time)")
	return cmd
}

// instant returns the zero time when no --now was given, which the
// circulation service replaces with its clock.
func (opts *SweepOverdueCommand) instant() (time.Time, error) {
	if opts.Now == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, opts.Now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now %q: expected RFC3339", opts.Now)
	}
	return t, nil
}

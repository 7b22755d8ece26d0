package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	Yes   bool // confirm destruction
	Force bool // close other sessions holding the database
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every local submission",
		Long: `Delete the local database and recreate it empty.

Pending submissions that were never synced are lost. The command refuses
to run without --yes. If another session holds the database the reset is
blocked; --force closes those sessions first.

Examples:
  fieldsync reset --yes
  fieldsync reset --yes --force`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(opts, cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "confirm deleting all local data")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "reset even if another session holds the database")

	return cmd
}

func runReset(opts *ResetOptions, cmd *cobra.Command) error {
	if !opts.Yes {
		return NewExitError(ExitCommandError, "refusing to delete local data without --yes")
	}

	s, err := openSession(cmd.Context(), opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	stats, err := s.client.Stats(cmd.Context())
	if err != nil {
		_ = s.out.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to read store", err)
	}

	if opts.Force {
		err = s.client.ForceReset(cmd.Context())
	} else {
		err = s.client.ResetStore(cmd.Context())
	}
	if err != nil {
		_ = s.out.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "reset failed", err)
	}

	return s.out.Success(stats, func(w io.Writer) {
		fmt.Fprintf(w, "Deleted %d pending and %d synchronized submission(s).\n",
			stats.Pending, stats.Synchronized)
	})
}

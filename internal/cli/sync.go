package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/engine"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push pending submissions as one batch",
		Long: `Push every pending submission to the endpoint in one batch.

On acceptance exactly the pushed records move to the synchronized
collection. On failure nothing changes locally and the records are
retried by the next sync.

Exit codes:
  0 - Batch accepted, or nothing to sync
  1 - Endpoint unreachable or batch rejected
  2 - Command error (invalid config, store cannot be opened)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
	return cmd
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	s, err := openSession(cmd.Context(), opts, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	res, err := s.client.Sync(cmd.Context())
	if err != nil {
		_ = s.out.Error(errorCode(err), err.Error(), nil)
		if engine.IsRetryable(err) {
			return WrapExitError(ExitFailure, "sync failed, submissions stay pending", err)
		}
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	return s.out.Success(res, func(w io.Writer) {
		if res.Synced == 0 {
			fmt.Fprintln(w, "Nothing to sync.")
			return
		}
		fmt.Fprintf(w, "Synced %d submission(s).\n", res.Synced)
	})
}

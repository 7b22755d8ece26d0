package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/client"
	"github.com/roach88/fieldsync/internal/record"
)

// previewLen bounds the text column of list output.
const previewLen = 40

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	return newListCommand(rootOpts, "pending",
		"List submissions waiting to be synced",
		"List the pending collection in creation order.",
		(*client.Client).ListPending,
	)
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return newListCommand(rootOpts, "history",
		"List synchronized submissions, newest first",
		"List the synchronized collection ordered by sync time, newest first.",
		(*client.Client).ListSynchronized,
	)
}

type listFunc func(*client.Client, context.Context) ([]record.Submission, error)

func newListCommand(rootOpts *RootOptions, use, short, long string, list listFunc) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			subs, err := list(s.client, cmd.Context())
			if err != nil {
				_ = s.out.Error(errorCode(err), err.Error(), nil)
				return WrapExitError(ExitFailure, "failed to list "+use, err)
			}
			return s.out.Success(subs, func(w io.Writer) { writeTable(w, subs) })
		},
	}
}

// writeTable prints one line per submission.
func writeTable(w io.Writer, subs []record.Submission) {
	if len(subs) == 0 {
		fmt.Fprintln(w, "No submissions.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tSYNCED\tTEXT")
	for _, sub := range subs {
		synced := "-"
		if sub.SyncedAt != nil {
			synced = sub.SyncedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			sub.ID, sub.Status, sub.CreatedAt.Format(time.RFC3339), synced, preview(sub.Data))
	}
	tw.Flush()
}

func preview(p record.Payload) string {
	text := strings.Join(strings.Fields(p.Text), " ")
	if len([]rune(text)) > previewLen {
		text = string([]rune(text)[:previewLen-3]) + "..."
	}
	if p.Image != "" {
		if text == "" {
			return "[image]"
		}
		text += " [image]"
	}
	return text
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show collection counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			stats, err := s.client.Stats(cmd.Context())
			if err != nil {
				_ = s.out.Error(errorCode(err), err.Error(), nil)
				return WrapExitError(ExitFailure, "failed to read store", err)
			}
			return s.out.Success(stats, func(w io.Writer) {
				fmt.Fprintf(w, "Store:        %s\n", s.cfg.DBPath())
				fmt.Fprintf(w, "Endpoint:     %s\n", s.cfg.Endpoint)
				fmt.Fprintf(w, "Pending:      %d\n", stats.Pending)
				fmt.Fprintf(w, "Synchronized: %d\n", stats.Synchronized)
			})
		},
	}
}

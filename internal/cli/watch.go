package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/fieldsync/internal/client"
	"github.com/roach88/fieldsync/internal/engine"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Interval time.Duration // overrides config probe_interval when set
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync automatically whenever the endpoint becomes reachable",
		Long: `Probe the endpoint periodically and sync each time it goes from
unreachable to reachable. A reachable endpoint at startup counts as a
reconnection, so leftover pending submissions are pushed right away.

Runs until interrupted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "connectivity probe period (default from config)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	interval := s.cfg.ProbeInterval
	if opts.Interval > 0 {
		interval = opts.Interval
	}

	w := cmd.OutOrStdout()
	watcher := client.NewWatcher(s.client,
		client.WithWatcherLogger(s.logger),
		client.WithObserver(func(res engine.Result, err error) {
			switch {
			case err != nil:
				fmt.Fprintf(w, "Sync failed: %v\n", err)
			case res.Synced > 0:
				fmt.Fprintf(w, "Synced %d submission(s).\n", res.Synced)
			}
		}),
	)

	s.logger.Info("watching endpoint",
		zap.String("endpoint", s.cfg.Endpoint),
		zap.Duration("interval", interval),
	)
	fmt.Fprintf(w, "Watching %s every %s. Press Ctrl-C to stop.\n", s.cfg.Endpoint, interval)

	online := make(chan bool)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Poll(gctx, s.pusher, interval, online)
	})
	g.Go(func() error {
		return watcher.Run(gctx, online)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "watch stopped", err)
	}
	s.logger.Info("watch stopped")
	return nil
}

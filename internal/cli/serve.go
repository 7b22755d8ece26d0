package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/devserver"
	"github.com/roach88/fieldsync/internal/logging"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr       string // overrides config listen_addr
	RejectWith int    // answer every batch with this status
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory development endpoint",
		Long: `Run a development endpoint that accepts sync batches.

Routes:
  POST /api/sync         accept a batch, deduplicating by id
  HEAD /api/sync         reachability probe
  GET  /api/submissions  list received submissions
  GET  /health           liveness

Received data is kept in memory only.

Examples:
  fieldsync serve
  fieldsync serve --addr :8080
  fieldsync serve --reject-with 503`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")
	cmd.Flags().IntVar(&opts.RejectWith, "reject-with", 0, "reject every batch with this HTTP status")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	addr := cfg.ListenAddr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	if opts.RejectWith != 0 && (opts.RejectWith < 300 || opts.RejectWith > 599) {
		return NewExitError(ExitCommandError, "--reject-with must be an HTTP status between 300 and 599")
	}

	logger, err := logging.Server(opts.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build logger", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	srv := devserver.New(devserver.WithLogger(logger))
	if opts.RejectWith != 0 {
		srv.RejectWith(opts.RejectWith)
	}

	if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "server error", err)
	}
	return nil
}

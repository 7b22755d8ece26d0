package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/fieldsync/internal/client"
	"github.com/roach88/fieldsync/internal/config"
	"github.com/roach88/fieldsync/internal/logging"
	"github.com/roach88/fieldsync/internal/remote"
)

// session is what a client command runs against: resolved settings, a
// logger and, once opened, the client.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	out    *OutputFormatter
	pusher *remote.HTTPClient
	client *client.Client
}

// loadConfig resolves settings from the config file, the environment and
// the global flags, in increasing precedence.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = opts.Endpoint
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid settings", err)
	}
	return cfg, nil
}

// newSession loads settings and builds the logger without touching the
// store.
func newSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}
	return &session{
		cfg:    cfg,
		logger: logger,
		out:    &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()},
	}, nil
}

// openSession is newSession plus an open client under cfg.DataDir.
// The caller must call close.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command, extra ...client.Option) (*session, error) {
	s, err := newSession(opts, cmd)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.cfg.DataDir, 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to create data directory %s", s.cfg.DataDir), err)
	}

	s.pusher = remote.NewHTTPClient(s.cfg.Endpoint, remote.WithLogger(s.logger))
	clientOpts := append([]client.Option{
		client.WithLogger(s.logger),
		client.WithSyncTimeout(s.cfg.SyncTimeout),
		client.WithBusyTimeout(s.cfg.BusyTimeout),
	}, extra...)

	s.logger.Debug("opening store", zap.String("path", s.cfg.DBPath()))
	c, err := client.Open(ctx, s.cfg.DBPath(), s.pusher, clientOpts...)
	if err != nil {
		_ = s.out.Error(errorCode(err), err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	s.client = c
	return s, nil
}

func (s *session) close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Error("error closing store", zap.Error(err))
		}
	}
	_ = s.logger.Sync()
}

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/rulegraph/internal/backend"
	"github.com/roach88/rulegraph/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development rule backend",
		Long: `Serve the development rule backend. Rule documents PUT to /rule{index}
are checked, journaled and stored in a SQLite database; /metrics exposes
Prometheus metrics.

Example:
  rulegraph serve --addr 127.0.0.1:8089 --db ./rules.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides backend.addr)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides backend.database)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg := opts.config().Backend
	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	logger := opts.logger()

	logger.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	srv := backend.NewServer(st,
		backend.WithLogger(logger),
		backend.WithAllowedOrigins(cfg.AllowedOrigins...),
		backend.WithMaxBodyBytes(cfg.MaxBodyBytes),
		backend.WithTimeouts(cfg.ReadTimeout, cfg.WriteTimeout),
	)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.ListenAndServe(ctx, cfg.Addr); err != nil {
		return WrapExitError(ExitFailure, "rule backend error", err)
	}
	return nil
}

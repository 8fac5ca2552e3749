// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-core-stack/removebg-relay/pkg/config"
	"github.com/go-core-stack/removebg-relay/pkg/relay"
	"github.com/go-core-stack/removebg-relay/pkg/server"
)

// version is stamped at build time via -ldflags "-X ...cmd.version=...".
var version = "dev"

type rootOptions struct {
	envFile  string
	logLevel string
}

// Execute runs the relay command line.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "removebg-relay",
		Short: "Relay image uploads to remove.bg without exposing the API key",
		Long: `Run an HTTP relay that accepts image uploads on POST /remove-bg and
forwards them to the remove.bg background-removal API.

The API key is read from REMOVE_BG_API_KEY (or a .env file) and attached to
every upstream request, so clients never need to hold it. The processed PNG
is returned to the caller; upstream errors are passed through unchanged.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRelay(cmd, opts)
		},
	}

	root.Flags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default .env when present)")
	root.Flags().StringVar(&opts.logLevel, "log-level", "", "override RELAY_LOG_LEVEL (trace, debug, info, warn, error)")

	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relay version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func runRelay(cmd *cobra.Command, opts *rootOptions) error {
	if err := config.LoadEnvFile(opts.envFile); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	if err := setupLogging(cfg, cmd.ErrOrStderr()); err != nil {
		return err
	}

	handler, err := relay.New(cfg)
	if err != nil {
		return fmt.Errorf("construct relay: %w", err)
	}

	srv := server.New(cfg, server.NewRouter(handler, log.With().Str("component", "http").Logger()))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

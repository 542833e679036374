// Command relay-tools serves relay's builtin tool boxes to MCP clients over
// stdio. All calls of one process share a single state store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/germanamz/relay/pkg/logging"
	"github.com/germanamz/relay/pkg/state"
	"github.com/germanamz/relay/pkg/tools/catalog"
	"github.com/germanamz/relay/pkg/tools/mcpserver"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		cancel()
		os.Exit(1) //nolint:gocritic
	}
}

func newRootCommand() *cobra.Command {
	var (
		toolboxes []string
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:           "relay-tools",
		Short:         "Serve relay's builtin tool boxes over MCP stdio",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries the protocol.
			log, err := logging.New(logging.Config{Level: logLevel}, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = log.Close() }()

			srv, err := newServer(catalog.Default(), toolboxes)
			if err != nil {
				return err
			}

			log.Info().Strs("toolboxes", toolboxes).Int("tools", srv.Len()).Msg("serving tools")
			err = srv.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			log.Info().Err(err).Msg("server stopped")

			return err
		},
	}

	cmd.Flags().StringSliceVarP(&toolboxes, "toolbox", "t", catalog.Default().Names(), "tool boxes to serve")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	return cmd
}

// newServer registers the named catalog tool boxes on a server backed by a
// fresh store.
func newServer(cat *catalog.Catalog, names []string) (*mcpserver.MCPServer, error) {
	if len(names) == 0 {
		return nil, errors.New("no tool boxes selected")
	}

	srv := mcpserver.New("relay-tools", version, state.New(map[string]any{"num_fn_calls": 0}))
	for _, name := range names {
		tb, err := cat.Build(name)
		if err != nil {
			return nil, err
		}
		if err := srv.Register(tb); err != nil {
			return nil, err
		}
	}

	return srv, nil
}

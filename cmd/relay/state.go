package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/germanamz/relay/pkg/state"
	"github.com/germanamz/relay/pkg/state/statedb"
	"github.com/spf13/cobra"
)

func newStateCommand(g *globals) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and move saved state snapshots",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "state database (defaults to state_db from the config)")

	open := func() (*statedb.DB, error) {
		path := dbPath
		if path == "" {
			cfg, err := g.loadConfig()
			if err != nil {
				return nil, err
			}
			path = cfg.StateDB
		}
		if path == "" {
			return nil, errors.New("no state database: set state_db in the config or pass --db")
		}
		return statedb.Open(path)
	}

	cmd.AddCommand(
		newStateShowCommand(open),
		newStateExportCommand(open),
		newStateImportCommand(open),
	)

	return cmd
}

func newStateShowCommand(open func() (*statedb.DB, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "show [name]",
		Short: "List snapshots, or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				data, err := db.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(out, data)
			}

			snaps, err := db.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				fmt.Fprintln(out, dimStyle.Render("no snapshots"))
				return nil
			}
			for _, s := range snaps {
				fmt.Fprintf(out, "%-24s %3d keys  %s\n", s.Name, s.Keys, s.SavedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newStateExportCommand(open func() (*statedb.DB, error)) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Write a snapshot as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			data, err := db.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return writeJSON(cmd.OutOrStdout(), data)
			}

			f, err := os.Create(output) //nolint:gosec
			if err != nil {
				return err
			}
			if err := writeJSON(f, data); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	return cmd
}

func newStateImportCommand(open func() (*statedb.DB, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "import <name> <file>",
		Short: "Save a JSON object as a snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			var data map[string]any
			if err := json.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}

			db, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := db.Save(cmd.Context(), args[0], state.New(data)); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d keys into %s\n", len(data), args[0])
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

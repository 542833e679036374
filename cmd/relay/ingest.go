package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIngestCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <retriever>",
		Short: "Re-read a retriever's documents into its index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, release, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer release()

			n, err := eng.Ingest(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			idx, _ := eng.Index(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d chunks into %s (%d indexed)\n", n, args[0], idx.Count())
			return nil
		},
	}
}

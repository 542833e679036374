package main

import (
	"strings"

	"github.com/spf13/cobra"
)

func newRunCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run <message>",
		Short: "Send one message to the root agent and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, release, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer release()

			p := newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
			msg := strings.Join(args, " ")

			err = traced(eng.Events(), "", p, func() error {
				_, err := eng.Run(cmd.Context(), msg, nil)
				return err
			})
			if g.verbose {
				p.usage(eng.Usage())
			}

			return err
		},
	}
}

package main

import (
	"fmt"
	"strings"

	"github.com/germanamz/relay/pkg/tools/toolbox"
	"github.com/spf13/cobra"
)

func newToolsCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tools [toolbox...]",
		Short: "List the configured tool boxes and their tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, release, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer release()

			names := args
			if len(names) == 0 {
				names = eng.ToolboxNames()
			}

			out := cmd.OutOrStdout()
			for _, name := range names {
				tb, ok := eng.Toolbox(name)
				if !ok {
					return fmt.Errorf("unknown toolbox %q", name)
				}

				fmt.Fprintln(out, answerPrefixStyle.Render(name))
				for _, t := range tb.Tools() {
					fmt.Fprintf(out, "  %s  %s\n", toolNameStyle.Render(signature(t)), dimStyle.Render(flatten(t.Description)))
				}
			}

			return nil
		},
	}
}

// signature renders a tool as name(param, optional?).
func signature(t toolbox.Tool) string {
	params := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		name := p.Name
		if p.Optional || p.Default != nil {
			name += "?"
		}
		params = append(params, name)
	}
	return t.Name + "(" + strings.Join(params, ", ") + ")"
}

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/germanamz/relay/pkg/engine"
	"github.com/spf13/cobra"
)

func newChatCommand(g *globals) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the root agent over several turns sharing one state store",
		Long: `Chat reads one message per line from stdin. The state store survives
between turns and, with state_db configured, between invocations that use
the same --session. Type /state to print the store and /exit to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, release, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer release()

			sess, err := eng.NewSession(cmd.Context(), sessionID)
			if err != nil {
				return err
			}

			return chatLoop(cmd, eng, sess, g.verbose)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id, resumed from state_db when saved before")

	return cmd
}

func chatLoop(cmd *cobra.Command, eng *engine.Engine, sess *engine.Session, verbose bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	p := newPrinter(out, cmd.ErrOrStderr())

	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("session %s (agent %s)", sess.ID(), eng.Workflow().Root())))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, promptStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/state":
			data, err := json.MarshalIndent(sess.State(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			continue
		}

		err := traced(eng.Events(), sess.ID(), p, func() error {
			_, err := sess.Send(ctx, line)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.failure(err)
		}
		if verbose {
			p.usage(eng.Usage())
		}
	}
}

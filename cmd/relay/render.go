package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/germanamz/relay/pkg/agent"
	"github.com/germanamz/relay/pkg/engine"
	"github.com/germanamz/relay/pkg/modeladapter/usage"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

const defaultWidth = 100

var (
	agentStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("5")) // magenta
	planStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Faint(true)
	toolNameStyle     = lipgloss.NewStyle().Bold(true)
	toolResultStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	toolErrorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	answerPrefixStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	promptStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	dimStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	errorBlockStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("1"))
)

// printer renders engine events. Trace lines go to trace, answers to out.
type printer struct {
	out   io.Writer
	trace io.Writer
	width int
	md    *glamour.TermRenderer
	root  string
}

func newPrinter(out, trace io.Writer) *printer {
	p := &printer{out: out, trace: trace, width: defaultWidth}

	if w, ok := terminalWidth(out); ok {
		p.width = w
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(w),
		)
		if err == nil {
			p.md = r
		}
	}

	return p
}

// terminalWidth reports the width of w when it is a terminal.
func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) { //nolint:gosec
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd())) //nolint:gosec
	if err != nil || width <= 0 {
		return defaultWidth, true
	}
	return width, true
}

// event handles one engine event. Failures are left to the caller, which
// receives the same error from the run.
func (p *printer) event(e engine.Event) {
	switch e.Kind {
	case engine.EventRunStart:
		p.root = e.Agent
	case engine.EventStep:
		if e.Step.Kind == agent.StepFinal && e.Step.Agent == p.root {
			return
		}
		fmt.Fprintln(p.trace, traceLine(e.Step, p.width))
	case engine.EventRunEnd:
		if e.Answer != "" {
			p.answer(e.Answer)
		}
	}
}

func (p *printer) answer(text string) {
	fmt.Fprintln(p.out, answerPrefixStyle.Render("Answer:"))
	fmt.Fprintln(p.out, p.markdown(text))
}

func (p *printer) failure(err error) {
	fmt.Fprintln(p.trace, errorBlockStyle.Render(toolErrorStyle.Render(err.Error())))
}

func (p *printer) usage(totals map[string]usage.TokenCount) {
	names := make([]string, 0, len(totals))
	for n := range totals {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		tc := totals[n]
		fmt.Fprintln(p.trace, dimStyle.Render(fmt.Sprintf("%s: %s (%s total)", n, tc, fmtTokens(tc.Total()))))
	}
}

func (p *printer) markdown(text string) string {
	if p.md == nil {
		return text
	}
	out, err := p.md.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// traceLine renders a step as one line no wider than width cells.
func traceLine(s agent.Step, width int) string {
	label := fmt.Sprintf("[%s] %s ", s.Agent, s.Kind)

	avail := width - runewidth.StringWidth(label)
	if avail < 10 {
		avail = 10
	}

	text := s.Text
	if s.Kind == agent.StepAction && s.ToolCall != nil {
		text = s.ToolCall.Name + "(" + s.ToolCall.Arguments + ")"
	}
	text = runewidth.Truncate(flatten(text), avail, "...")

	style := toolResultStyle
	switch {
	case s.IsError:
		style = toolErrorStyle
	case s.Kind == agent.StepAction:
		style = toolNameStyle
	case s.Kind == agent.StepPlan || s.Kind == agent.StepThought:
		style = planStyle
	}

	return agentStyle.Render(label) + style.Render(text)
}

// flatten collapses text onto a single line.
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// fmtTokens formats a token count for display, using k/M suffixes.
func fmtTokens(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// traced runs fn while p prints the events published on bus, limited to
// session when set. It returns once every event of the run has been printed.
func traced(bus *engine.EventBus, session string, p *printer, fn func() error) error {
	var sub *engine.Subscription
	if session == "" {
		sub = bus.Subscribe(256)
	} else {
		sub = bus.SubscribeSession(session, 256)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range sub.C {
			p.event(e)
		}
	}()

	err := fn()
	bus.Unsubscribe(sub)
	<-done

	return err
}

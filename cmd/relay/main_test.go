package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/germanamz/relay/pkg/agent"
	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/germanamz/relay/pkg/modeladapter/usage"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

const calculatorConfig = `
log:
  level: error
providers:
  - name: p1
    kind: scripted
    loop: true
    replies:
      - tool: add
        args: {a: 2, b: 3}
      - text: "5"
agents:
  - name: calculator
    toolboxes: [calculator]
initial_state:
  num_fn_calls: 0
`

type result struct {
	out    string
	errOut string
	err    error
}

func execute(t *testing.T, stdin string, args ...string) result {
	t.Helper()

	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env", ""}, args...))

	err := cmd.ExecuteContext(context.Background())
	return result{out: out.String(), errOut: errOut.String(), err: err}
}

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestRunCommand(t *testing.T) {
	cfg := writeConfig(t, calculatorConfig)

	res := execute(t, "", "--config", cfg, "-v", "run", "What", "is", "2+3?")
	require.NoError(t, res.err)

	assert.Contains(t, res.out, "Answer:")
	assert.Contains(t, res.out, "5")
	assert.Contains(t, res.errOut, "[calculator] action add(")
	assert.Contains(t, res.errOut, "[calculator] observation 5")
	assert.NotContains(t, res.errOut, "[calculator] final")
	assert.Contains(t, res.errOut, "p1:")
}

func TestRunCommand_MissingConfig(t *testing.T) {
	res := execute(t, "", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "run", "hi")
	assert.ErrorContains(t, res.err, "engine: load config")
}

func TestRunCommand_NeedsMessage(t *testing.T) {
	res := execute(t, "", "run")
	assert.Error(t, res.err)
}

func TestChatCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "relay.db")
	cfg := writeConfig(t, calculatorConfig+"state_db: "+dbPath+"\n")

	res := execute(t, "2+3\n\n/state\n/exit\n", "--config", cfg, "chat", "--session", "bob")
	require.NoError(t, res.err)

	assert.Contains(t, res.out, "session bob (agent calculator)")
	assert.Contains(t, res.out, "you> ")
	assert.Contains(t, res.out, "Answer:")
	assert.Contains(t, res.out, `"num_fn_calls": 1`)

	res = execute(t, "", "--config", cfg, "state", "show")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "bob")

	res = execute(t, "", "--config", cfg, "state", "show", "bob")
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"num_fn_calls": 1}`, res.out)
}

func TestChatCommand_EOF(t *testing.T) {
	cfg := writeConfig(t, calculatorConfig)

	res := execute(t, "2+3\n", "--config", cfg, "chat")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "session session-1")
	assert.Equal(t, 2, strings.Count(res.out, "you> "))
}

func TestToolsCommand(t *testing.T) {
	cfg := writeConfig(t, calculatorConfig)

	res := execute(t, "", "--config", cfg, "tools")
	require.NoError(t, res.err)

	assert.Contains(t, res.out, "calculator")
	assert.Contains(t, res.out, "add(a, b)")
	assert.Contains(t, res.out, "calculate_flight_time(origin_coords, destination_coords, cruising_speed_kmh?)")
	assert.Contains(t, res.out, "party")

	res = execute(t, "", "--config", cfg, "tools", "flight")
	require.NoError(t, res.err)
	assert.NotContains(t, res.out, "add(a, b)")

	res = execute(t, "", "--config", cfg, "tools", "shell")
	assert.ErrorContains(t, res.err, `unknown toolbox "shell"`)
}

func TestIngestCommand(t *testing.T) {
	cfg := writeConfig(t, calculatorConfig+`
retrievers:
  - name: notes
    documents:
      - "Gotham Grill has the best rating of all venues."
`)

	res := execute(t, "", "--config", cfg, "ingest", "notes")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "ingested 1 chunks into notes (1 indexed)")

	res = execute(t, "", "--config", cfg, "ingest", "missing")
	assert.ErrorContains(t, res.err, `retriever "missing" not found`)
}

func TestStateImportExport(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "state.db")
	in := filepath.Join(dir, "in.json")
	out := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(in, []byte(`{"num_fn_calls": 4, "theme": "villain masquerade"}`), 0o600))

	res := execute(t, "", "state", "--db", db, "import", "party", in)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "imported 2 keys into party")

	res = execute(t, "", "state", "--db", db, "export", "party", "-o", out)
	require.NoError(t, res.err)
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"num_fn_calls": 4, "theme": "villain masquerade"}`, string(raw))

	res = execute(t, "", "state", "--db", db, "show")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "party")
	assert.Contains(t, res.out, "2 keys")

	res = execute(t, "", "state", "--db", db, "export", "ghost")
	assert.ErrorContains(t, res.err, "snapshot not found")
}

func TestStateCommand_NoDatabase(t *testing.T) {
	cfg := writeConfig(t, calculatorConfig)

	res := execute(t, "", "--config", cfg, "state", "show")
	assert.ErrorContains(t, res.err, "no state database")
}

func TestFlightCommand(t *testing.T) {
	res := execute(t, "", "flight", "--from", "51.47,-0.4543", "--to", "40.6413,-73.7781")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "distance: 5540 km")
	assert.Contains(t, res.out, "flight time: 8.17 hours")

	res = execute(t, "", "flight", "--from", "51.47", "--to", "40.6413,-73.7781")
	assert.ErrorContains(t, res.err, "--from needs lat,lon")

	res = execute(t, "", "flight", "--from", "95,0", "--to", "0,0")
	assert.ErrorContains(t, res.err, "latitude 95 out of range")
}

func TestTraceLine(t *testing.T) {
	action := agent.Step{
		Agent:    "math",
		Kind:     agent.StepAction,
		ToolCall: &content.ToolCall{Name: "add", Arguments: `{"a":1,"b":2}`},
	}
	assert.Contains(t, traceLine(action, 80), `[math] action add({"a":1,"b":2})`)

	long := agent.Step{Agent: "math", Kind: agent.StepObservation, Text: strings.Repeat("x", 200) + "\nmore"}
	line := traceLine(long, 40)
	assert.Contains(t, line, "...")
	assert.NotContains(t, line, "\n")
	assert.NotContains(t, line, "more")

	wide := agent.Step{Agent: "a", Kind: agent.StepObservation, Text: strings.Repeat("界", 50)}
	assert.Contains(t, traceLine(wide, 30), strings.Repeat("界", 5))
	assert.NotContains(t, traceLine(wide, 30), strings.Repeat("界", 15))
}

func TestFlatten(t *testing.T) {
	assert.Equal(t, "a b c", flatten("a\n b\t\tc "))
}

func TestFmtTokens(t *testing.T) {
	tests := []struct {
		input    int
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1200, "1.2k"},
		{3_400_000, "3.4M"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, fmtTokens(tt.input), "fmtTokens(%d)", tt.input)
	}
}

func TestPrinterUsage(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, &buf)
	p.usage(map[string]usage.TokenCount{
		"b": {InputTokens: 1500, OutputTokens: 500},
		"a": {InputTokens: 1, OutputTokens: 2},
	})

	out := buf.String()
	assert.Contains(t, out, "a: 1 in / 2 out (3 total)")
	assert.Contains(t, out, "b: 1500 in / 500 out (2.0k total)")
	assert.Less(t, strings.Index(out, "a:"), strings.Index(out, "b:"))
}

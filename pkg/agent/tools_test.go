package agent

import (
	"context"
	"testing"

	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/germanamz/relay/pkg/providers/scripted"
	"github.com/germanamz/relay/pkg/state"
	"github.com/germanamz/relay/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelegateTool_RunsWorkerWithSharedState(t *testing.T) {
	workerModel := scripted.New(
		scripted.Call("add", map[string]int{"a": 2, "b": 2}),
		scripted.Text("4"),
	)
	worker := New("calculator", "Does arithmetic.", "", workerModel, Options{}, mathToolBox())

	var seen []Step
	tool := DelegateTool(worker, nil, func(s Step) { seen = append(seen, s) })
	assert.Equal(t, "calculator", tool.Name)
	assert.Contains(t, tool.Description, "Does arithmetic.")

	st := state.New(map[string]any{"num_fn_calls": 0})
	res, err := toolbox.MustNew(tool).Call(context.Background(), st, content.ToolCall{
		ID: "d1", Name: "calculator", Arguments: `{"task":"add 2 and 2","context":"the user likes small numbers"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "4", res.Text)

	n, _ := st.Get("num_fn_calls")
	assert.Equal(t, 1, n)

	require.NotEmpty(t, seen)
	assert.Equal(t, "calculator", seen[0].Agent)

	task := workerModel.Chat(0).At(1).TextContent()
	assert.Contains(t, task, "<delegation_context>")
	assert.Contains(t, task, "add 2 and 2")
}

func TestDelegateTool_WorkerStepLimitIsExecutionError(t *testing.T) {
	worker := New("stuck", "", "", scripted.New(scripted.Call("noop", nil)).Loop(), Options{MaxSteps: 1}, mathToolBox())

	_, err := toolbox.MustNew(DelegateTool(worker, nil, nil)).Call(context.Background(), nil, content.ToolCall{
		Name: "stuck", Arguments: `{"task":"loop"}`,
	})

	var ee *toolbox.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.ErrorIs(t, err, ErrStepLimitExceeded)
	assert.False(t, isFatal(err))
}

func TestDelegateTool_RequiresTask(t *testing.T) {
	worker := New("w", "", "", scripted.New(), Options{})

	_, err := toolbox.MustNew(DelegateTool(worker, nil, nil)).Call(context.Background(), nil, content.ToolCall{
		Name: "w", Arguments: `{}`,
	})

	var ie *toolbox.InvalidArgumentError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "task", ie.Field)
}

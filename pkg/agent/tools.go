package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/germanamz/relay/pkg/tools/toolbox"
)

// DelegateTool exposes worker as a tool named after it. Calling the tool
// runs the worker on the task with the caller's store; extra are the
// worker's own per-run boxes (its delegate tools). The worker's final
// answer is the tool's observation.
//
// A worker that hits its step limit or has its answer rejected fails the
// call like any tool; an external service failure inside the worker
// propagates and aborts the caller's run.
func DelegateTool(worker *Agent, extra []*toolbox.ToolBox, onStep func(Step)) toolbox.Tool {
	desc := worker.description
	if desc == "" {
		desc = fmt.Sprintf("Delegates a task to the %s agent.", worker.name)
	}

	return toolbox.Tool{
		Name:        worker.name,
		Description: desc + " Give it a complete, self-contained task.",
		Params: []toolbox.Param{
			{Name: "task", Type: toolbox.TypeString, Description: "The task for the agent, with every detail it needs."},
			{
				Name:        "context",
				Type:        toolbox.TypeString,
				Description: "Background the agent should know: facts found so far, constraints, decisions.",
				Optional:    true,
			},
		},
		OutputType: toolbox.TypeString,
		Handler: func(ctx context.Context, in toolbox.Input) (any, error) {
			task := strings.TrimSpace(in.String("task"))
			if bg := strings.TrimSpace(in.String("context")); bg != "" {
				task = "<delegation_context>\n" + bg + "\n</delegation_context>\n\n" + task
			}

			res, err := worker.Run(ctx, RunInput{
				Message:   task,
				State:     in.State,
				Toolboxes: extra,
				OnStep:    onStep,
			})
			if err != nil {
				return nil, err
			}

			return res.Answer, nil
		},
	}
}

package engine

import (
	"fmt"

	"github.com/germanamz/relay/pkg/agent"
	"github.com/germanamz/relay/pkg/agent/effects"
	"github.com/germanamz/relay/pkg/codeexec"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/rs/zerolog"
)

// agentOptions turns the behaviour settings of ac into agent.Options.
// completers resolves judge providers; fallback judges for agents that do
// not name one.
func agentOptions(
	ac AgentConfig,
	completers map[string]modeladapter.Completer,
	fallback modeladapter.Completer,
	log zerolog.Logger,
) (agent.Options, error) {
	policy, err := agent.ParseValidationPolicy(ac.ValidationPolicy)
	if err != nil {
		return agent.Options{}, err
	}

	validators, err := buildValidators(ac.Validators, completers, fallback)
	if err != nil {
		return agent.Options{}, err
	}

	opts := agent.Options{
		MaxSteps:         ac.MaxSteps,
		PlanningInterval: ac.PlanningInterval,
		Validators:       validators,
		ValidationPolicy: policy,
		Logger:           &log,
	}

	if ac.LoopDetect > 0 {
		opts.Effects = append(opts.Effects, effects.NewLoopDetect(ac.LoopDetect))
	}

	if ac.Kind == KindCode {
		opts.ToolView = codeexec.ToolView(codeexec.Options{})
	}

	opts.Middleware = []agent.Middleware{agent.Recovery(), agent.Logger(log, ac.Name)}
	if d := parseDuration(ac.Timeout); d > 0 {
		opts.Middleware = append(opts.Middleware, agent.Timeout(d))
	}

	return opts, nil
}

// buildValidators constructs the final-answer checks of an agent.
func buildValidators(vcs []ValidatorConfig, completers map[string]modeladapter.Completer, fallback modeladapter.Completer) ([]agent.Validator, error) {
	if len(vcs) == 0 {
		return nil, nil
	}

	vs := make([]agent.Validator, 0, len(vcs))
	for i, vc := range vcs {
		switch vc.Kind {
		case "non_empty":
			vs = append(vs, agent.NonEmpty())
		case "judge":
			judge := fallback
			if vc.Provider != "" {
				c, ok := completers[vc.Provider]
				if !ok {
					return nil, fmt.Errorf("validator[%d]: provider %q not found", i, vc.Provider)
				}
				judge = c
			}
			vs = append(vs, agent.JudgeValidator(judge, vc.Criteria))
		default:
			return nil, fmt.Errorf("validator[%d]: unknown kind %q", i, vc.Kind)
		}
	}

	return vs, nil
}

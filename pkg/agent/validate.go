package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/germanamz/relay/pkg/chats/chat"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/chats/role"
	"github.com/germanamz/relay/pkg/modeladapter"
)

// ErrValidationFailed matches every *ValidationError.
var ErrValidationFailed = errors.New("agent: validation failed")

// Validator checks a candidate final answer. A non-nil error rejects it.
type Validator func(ctx context.Context, answer string, pad *Scratchpad) error

// ValidationPolicy decides what happens to a rejected answer.
type ValidationPolicy int

const (
	// ValidateSurface ends the run with a *ValidationError.
	ValidateSurface ValidationPolicy = iota
	// ValidateRetry feeds the rejection back to the model as an observation
	// and keeps the loop going. Each rejection consumes one step.
	ValidateRetry
)

// ParseValidationPolicy maps "surface" (or "") and "retry" to a policy.
func ParseValidationPolicy(s string) (ValidationPolicy, error) {
	switch strings.ToLower(s) {
	case "", "surface":
		return ValidateSurface, nil
	case "retry":
		return ValidateRetry, nil
	}
	return 0, fmt.Errorf("agent: unknown validation policy %q", s)
}

func (p ValidationPolicy) String() string {
	if p == ValidateRetry {
		return "retry"
	}
	return "surface"
}

// ValidationError reports a rejected final answer.
type ValidationError struct {
	Agent  string
	Answer string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("agent %s: answer rejected: %v", e.Agent, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrValidationFailed) hold.
func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

// NonEmpty rejects blank answers.
func NonEmpty() Validator {
	return func(_ context.Context, answer string, _ *Scratchpad) error {
		if strings.TrimSpace(answer) == "" {
			return errors.New("answer is empty")
		}
		return nil
	}
}

const judgeSystemPrompt = `You review the work of an AI agent. You receive the agent's reasoning trace, its final answer and the criteria the answer must meet.
Reply with PASS or FAIL on the first line, then one short sentence explaining the verdict.`

// JudgeValidator asks c whether the answer meets criteria given the run's
// scratchpad. A verdict whose first line starts with "FAIL" rejects the
// answer. Completer failures are returned as is so the run aborts instead
// of retrying.
func JudgeValidator(c modeladapter.Completer, criteria string) Validator {
	return func(ctx context.Context, answer string, pad *Scratchpad) error {
		var b strings.Builder
		fmt.Fprintf(&b, "Criteria:\n%s\n\n", criteria)
		if pad != nil {
			fmt.Fprintf(&b, "Reasoning trace:\n%s\n", pad.String())
		}
		fmt.Fprintf(&b, "Final answer:\n%s", answer)

		review := chat.New(
			message.NewText("judge", role.System, judgeSystemPrompt),
			message.NewText("judge", role.User, b.String()),
		)

		reply, err := c.Complete(ctx, review, nil)
		if err != nil {
			return err
		}

		verdict := strings.TrimSpace(reply.TextContent())
		first, _, _ := strings.Cut(verdict, "\n")
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(first)), "FAIL") {
			return fmt.Errorf("judge: %s", verdict)
		}
		return nil
	}
}

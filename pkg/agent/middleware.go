package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/germanamz/relay/pkg/agentctx"
	"github.com/rs/zerolog"
)

// Runner executes an agent run.
type Runner interface {
	Run(ctx context.Context, in RunInput) (Result, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, in RunInput) (Result, error)

// Run calls the underlying function.
func (f RunnerFunc) Run(ctx context.Context, in RunInput) (Result, error) {
	return f(ctx, in)
}

// Middleware wraps a Runner, returning a new Runner with added behaviour.
type Middleware func(next Runner) Runner

// --- Timeout middleware ---

// Timeout returns a Middleware that wraps the runner's context with a deadline.
func Timeout(d time.Duration) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context, in RunInput) (Result, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			return next.Run(ctx, in)
		})
	}
}

// --- Recovery middleware ---

// Recovery returns a Middleware that catches panics and converts them to errors.
func Recovery() Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context, in RunInput) (res Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("agent panicked: %v", r)
				}
			}()

			return next.Run(ctx, in)
		})
	}
}

// --- Logger middleware ---

// Logger returns a Middleware that logs run start, duration, step count and error.
func Logger(log zerolog.Logger, name string) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context, in RunInput) (Result, error) {
			l := log.With().Str("agent", name).Logger()
			if id := agentctx.RunIDFromContext(ctx); id != "" {
				l = l.With().Str("run_id", id).Logger()
			}
			// Set when a manager delegates to this agent.
			if caller := agentctx.AgentNameFromContext(ctx); caller != "" && caller != name {
				l = l.With().Str("caller", caller).Logger()
			}

			l.Info().Msg("agent started")

			start := time.Now()

			res, err := next.Run(ctx, in)

			ev := l.Info()
			if err != nil {
				ev = l.Error().Err(err)
			}
			ev.Dur("duration", time.Since(start)).
				Int("steps", res.Steps).
				Msg("agent finished")

			return res, err
		})
	}
}

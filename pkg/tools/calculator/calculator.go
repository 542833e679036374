// Package calculator provides integer arithmetic tools that count their
// invocations in the shared store, plus a free-form expression evaluator.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
	"github.com/germanamz/relay/pkg/tools/toolbox"
)

// CounterKey is the store key incremented by add, subtract and multiply.
const CounterKey = "num_fn_calls"

var constants = map[string]any{
	"pi":    math.Pi,
	"e":     math.E,
	"phi":   math.Phi,
	"sqrt2": math.Sqrt2,
	"ln2":   math.Ln2,
	"ln10":  math.Ln10,
}

var functions = map[string]govaluate.ExpressionFunction{
	"sqrt":  unary(math.Sqrt),
	"abs":   unary(math.Abs),
	"floor": unary(math.Floor),
	"ceil":  unary(math.Ceil),
	"round": unary(math.Round),
	"ln":    unary(math.Log),
	"log10": unary(math.Log10),
	"sin":   unary(math.Sin),
	"cos":   unary(math.Cos),
	"tan":   unary(math.Tan),
	"pow": func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, errors.New("pow takes 2 arguments")
		}
		x, ok1 := args[0].(float64)
		y, ok2 := args[1].(float64)
		if !ok1 || !ok2 {
			return nil, errors.New("pow takes numbers")
		}
		return math.Pow(x, y), nil
	},
}

func unary(fn func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		x, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %T", args[0])
		}
		return fn(x), nil
	}
}

// New returns the add, subtract, multiply and evaluate tools.
func New() *toolbox.ToolBox {
	return toolbox.MustNew(
		binary("add", "Add two integers and return the result.", func(a, b int) int { return a + b }),
		binary("subtract", "Subtract b from a and return the result.", func(a, b int) int { return a - b }),
		binary("multiply", "Multiply two integers and return the result.", func(a, b int) int { return a * b }),
		toolbox.Tool{
			Name: "evaluate",
			Description: "Evaluate a mathematical expression such as '2 * (3 + 4)' or 'sqrt(2) * pi'. " +
				"Supports + - * / % **, comparisons and the functions sqrt, pow, abs, floor, ceil, round, ln, log10, sin, cos, tan.",
			Params: []toolbox.Param{
				{Name: "expression", Type: toolbox.TypeString, Description: "expression to evaluate"},
			},
			OutputType: toolbox.TypeAny,
			Handler:    handleEvaluate,
		},
	)
}

func binary(name, desc string, op func(a, b int) int) toolbox.Tool {
	return toolbox.Tool{
		Name:        name,
		Description: desc,
		Params: []toolbox.Param{
			{Name: "a", Type: toolbox.TypeInteger, Description: "first operand"},
			{Name: "b", Type: toolbox.TypeInteger, Description: "second operand"},
		},
		OutputType: toolbox.TypeInteger,
		Handler: func(_ context.Context, in toolbox.Input) (any, error) {
			if err := count(in.State); err != nil {
				return nil, err
			}
			return op(in.Int("a"), in.Int("b")), nil
		},
	}
}

// count increments CounterKey under the store's lock. Runs without a store
// are not counted.
func count(st toolbox.State) error {
	if st == nil {
		return nil
	}

	_, err := st.Increment(CounterKey, 1)
	return err
}

func handleEvaluate(_ context.Context, in toolbox.Input) (any, error) {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(in.String("expression"), functions)
	if err != nil {
		return nil, fmt.Errorf("parse expression: %w", err)
	}

	v, err := expr.Evaluate(constants)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression: %w", err)
	}
	return v, nil
}

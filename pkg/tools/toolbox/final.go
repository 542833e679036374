package toolbox

import "context"

// FinalAnswerTool lets a model end its run by calling a tool instead of
// replying with plain text.
func FinalAnswerTool() Tool {
	return Tool{
		Name:        "final_answer",
		Description: "Provides a final answer to the given problem.",
		Params: []Param{
			{Name: "answer", Type: TypeAny, Description: "The final answer to the problem"},
		},
		OutputType: TypeAny,
		Handler: func(_ context.Context, in Input) (any, error) {
			return FinalAnswer{Value: in.Args["answer"]}, nil
		},
	}
}

package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/providers/scripted"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rejectAnswer(bad string) Validator {
	return func(_ context.Context, answer string, _ *Scratchpad) error {
		if answer == bad {
			return errors.New("wrong total")
		}
		return nil
	}
}

func TestParseValidationPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ValidationPolicy
		wantErr bool
	}{
		{"", ValidateSurface, false},
		{"surface", ValidateSurface, false},
		{"RETRY", ValidateRetry, false},
		{"ignore", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseValidationPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_ValidationSurface(t *testing.T) {
	model := scripted.New(scripted.Text("   "))
	a := New("calculator", "", "", model, Options{Validators: []Validator{NonEmpty()}}, mathToolBox())

	_, err := a.Run(context.Background(), RunInput{Message: "hi"})

	require.ErrorIs(t, err, ErrValidationFailed)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "calculator", ve.Agent)
	assert.Contains(t, err.Error(), "answer is empty")
}

func TestRun_ValidationRetry(t *testing.T) {
	model := scripted.New(scripted.Text("7"), scripted.Text("8"))
	a := New("calculator", "", "", model, Options{
		Validators:       []Validator{rejectAnswer("7")},
		ValidationPolicy: ValidateRetry,
	}, mathToolBox())

	res, err := a.Run(context.Background(), RunInput{Message: "add 5 and 3"})
	require.NoError(t, err)

	assert.Equal(t, "8", res.Answer)
	assert.Equal(t, 1, res.Steps)

	obs := res.Scratchpad.Kind(StepObservation)
	require.Len(t, obs, 1)
	assert.True(t, obs[0].IsError)
	assert.Contains(t, obs[0].Text, "wrong total")
	assert.Contains(t, model.Chat(1).Transcript(), "rejected")
}

func TestRun_ValidationRetryIsBounded(t *testing.T) {
	model := scripted.New(scripted.Text("7")).Loop()
	a := New("calculator", "", "", model, Options{
		MaxSteps:         2,
		Validators:       []Validator{rejectAnswer("7")},
		ValidationPolicy: ValidateRetry,
	}, mathToolBox())

	_, err := a.Run(context.Background(), RunInput{Message: "add 5 and 3"})

	require.ErrorIs(t, err, ErrStepLimitExceeded)
	assert.Equal(t, 3, model.Calls())
}

func TestJudgeValidator(t *testing.T) {
	pad := NewScratchpad()
	pad.Add(Step{Index: 1, Kind: StepObservation, Agent: "calculator", Text: "8"})

	t.Run("pass", func(t *testing.T) {
		judge := scripted.New(scripted.Text("PASS\nThe trace supports the answer."))
		err := JudgeValidator(judge, "must equal the tool result")(context.Background(), "8", pad)
		require.NoError(t, err)

		prompt := judge.Chat(0).Transcript()
		assert.Contains(t, prompt, "must equal the tool result")
		assert.Contains(t, prompt, "[calculator #1 observation] 8")
	})

	t.Run("pass explanation mentioning failures", func(t *testing.T) {
		judge := scripted.New(scripted.Text("PASS\nNo failures found in the reasoning."))
		err := JudgeValidator(judge, "must equal the tool result")(context.Background(), "8", pad)
		require.NoError(t, err)
	})

	t.Run("fail", func(t *testing.T) {
		judge := scripted.New(scripted.Text("FAIL\nThe answer contradicts the observation."))
		err := JudgeValidator(judge, "must equal the tool result")(context.Background(), "9", pad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "contradicts")
	})

	t.Run("judge unavailable aborts the run", func(t *testing.T) {
		svc := &modeladapter.ServiceError{Provider: "judge", Op: "complete", Err: errors.New("down")}
		model := scripted.New(scripted.Text("8"))
		a := New("calculator", "", "", model, Options{
			Validators:       []Validator{JudgeValidator(scripted.New(scripted.Fail(svc)), "x")},
			ValidationPolicy: ValidateRetry,
		})

		_, err := a.Run(context.Background(), RunInput{Message: "hi"})
		var se *modeladapter.ServiceError
		require.ErrorAs(t, err, &se)
		assert.NotErrorIs(t, err, ErrValidationFailed)
	})
}

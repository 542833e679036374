package catalog

import (
	"testing"

	"github.com/germanamz/relay/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultNames(t *testing.T) {
	assert.Equal(t, []string{"calculator", "flight", "party", "state", "web"}, Default().Names())
}

func TestBuild(t *testing.T) {
	c := Default()

	tests := []struct {
		name string
		tool string
	}{
		{"calculator", "add"},
		{"flight", "calculate_flight_time"},
		{"party", "suggest_menu"},
		{"web", "visit_webpage"},
		{"state", "shared_state_get"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb, err := c.Build(tt.name)
			require.NoError(t, err)
			assert.True(t, tb.Has(tt.tool))
		})
	}
}

func TestBuildUnknown(t *testing.T) {
	_, err := Default().Build("nope")
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestNewWithExtra(t *testing.T) {
	echo := func() *toolbox.ToolBox { return toolbox.New() }

	c, err := New(map[string]Factory{"echo": echo})
	require.NoError(t, err)
	assert.True(t, c.Has("echo"))
	assert.True(t, c.Has("calculator"))

	_, err = New(map[string]Factory{"calculator": echo})
	assert.ErrorContains(t, err, `"calculator" is already registered`)

	_, err = New(map[string]Factory{"nil": nil})
	assert.Error(t, err)
}

package flight

import (
	"context"
	"testing"

	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/germanamz/relay/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	newYork = Coord{40.7128, -74.0060}
	london  = Coord{51.5074, -0.1278}
)

func TestHoursNewYorkLondon(t *testing.T) {
	h, err := Hours(newYork, london, DefaultCruisingSpeed)

	require.NoError(t, err)
	assert.Equal(t, 8.21, h)
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, 5570.2, Distance(newYork, london), 0.5)
	assert.Zero(t, Distance(london, london))
}

func TestHoursSamePoint(t *testing.T) {
	h, err := Hours(london, london, 500)

	require.NoError(t, err)
	assert.Equal(t, 1.0, h)
}

func TestHoursErrors(t *testing.T) {
	tests := []struct {
		name    string
		origin  Coord
		dest    Coord
		speed   float64
		wantErr string
	}{
		{"zero speed", newYork, london, 0, "cruising speed"},
		{"bad latitude", Coord{91, 0}, london, 850, "origin: latitude"},
		{"bad longitude", newYork, Coord{0, 200}, 850, "destination: longitude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Hours(tt.origin, tt.dest, tt.speed)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestToolDefaultSpeed(t *testing.T) {
	res, err := New().Call(context.Background(), nil, content.ToolCall{
		Name:      "calculate_flight_time",
		Arguments: `{"origin_coords":[40.7128,-74.0060],"destination_coords":[51.5074,-0.1278]}`,
	})

	require.NoError(t, err)
	assert.Equal(t, 8.21, res.Value)
	assert.Equal(t, "8.21", res.Text)
}

func TestToolCustomSpeed(t *testing.T) {
	res, err := New().Call(context.Background(), nil, content.ToolCall{
		Name:      "calculate_flight_time",
		Arguments: `{"origin_coords":[40.7128,-74.0060],"destination_coords":[51.5074,-0.1278],"cruising_speed_kmh":425}`,
	})

	require.NoError(t, err)
	assert.Equal(t, 15.42, res.Value)
}

func TestToolRejectsMalformedCoordinates(t *testing.T) {
	_, err := New().Call(context.Background(), nil, content.ToolCall{
		Name:      "calculate_flight_time",
		Arguments: `{"origin_coords":[40.7128],"destination_coords":[51.5074,-0.1278]}`,
	})

	var ie *toolbox.InvalidArgumentError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "origin_coords", ie.Field)
}

func TestToolParamNames(t *testing.T) {
	var names []string
	for _, p := range Tool().Params {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"origin_coords", "destination_coords", "cruising_speed_kmh"}, names)
}

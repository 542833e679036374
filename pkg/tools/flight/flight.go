// Package flight estimates flight times from great-circle distances.
package flight

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/germanamz/relay/pkg/tools/toolbox"
)

const (
	// EarthRadiusKM is the mean Earth radius used by the haversine formula.
	EarthRadiusKM = 6371.0
	// DefaultCruisingSpeed is a typical commercial cruising speed in km/h.
	DefaultCruisingSpeed = 850.0

	routingFactor = 1.1
	groundHours   = 1.0
)

// Coord is a (latitude, longitude) pair in degrees.
type Coord [2]float64

// Distance returns the great-circle distance between a and b in kilometres.
func Distance(a, b Coord) float64 {
	lat1, lon1 := radians(a[0]), radians(a[1])
	lat2, lon2 := radians(b[0]), radians(b[1])

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	h := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dlon/2), 2)
	return EarthRadiusKM * 2 * math.Asin(math.Sqrt(h))
}

// Hours estimates the flight time from origin to destination: the
// great-circle distance padded by 10% for routing, flown at speed km/h,
// plus one hour for takeoff and landing. The result is rounded to two
// decimals.
func Hours(origin, destination Coord, speed float64) (float64, error) {
	if speed <= 0 {
		return 0, fmt.Errorf("cruising speed must be positive, got %v", speed)
	}
	if err := origin.validate(); err != nil {
		return 0, fmt.Errorf("origin: %w", err)
	}
	if err := destination.validate(); err != nil {
		return 0, fmt.Errorf("destination: %w", err)
	}

	t := Distance(origin, destination)*routingFactor/speed + groundHours
	return math.Round(t*100) / 100, nil
}

func (c Coord) validate() error {
	if c[0] < -90 || c[0] > 90 {
		return fmt.Errorf("latitude %v out of range", c[0])
	}
	if c[1] < -180 || c[1] > 180 {
		return fmt.Errorf("longitude %v out of range", c[1])
	}
	return nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

var coordSchema = map[string]any{
	"items":    map[string]any{"type": "number"},
	"minItems": 2,
	"maxItems": 2,
}

// Tool returns calculate_flight_time.
func Tool() toolbox.Tool {
	return toolbox.Tool{
		Name:        "calculate_flight_time",
		Description: "Calculate the estimated flight time in hours between two points on Earth using great-circle distance.",
		Params: []toolbox.Param{
			{Name: "origin_coords", Type: toolbox.TypeArray, Description: "[latitude, longitude] of the starting point", Extra: coordSchema},
			{Name: "destination_coords", Type: toolbox.TypeArray, Description: "[latitude, longitude] of the destination", Extra: coordSchema},
			{Name: "cruising_speed_kmh", Type: toolbox.TypeNumber, Description: "cruising speed in km/h", Default: DefaultCruisingSpeed},
		},
		OutputType: toolbox.TypeNumber,
		Handler:    handle,
	}
}

// New returns a tool box holding the flight tools.
func New() *toolbox.ToolBox {
	return toolbox.MustNew(Tool())
}

var errCoord = errors.New("expected [latitude, longitude]")

func handle(_ context.Context, in toolbox.Input) (any, error) {
	var args struct {
		Origin      []float64 `json:"origin_coords"`
		Destination []float64 `json:"destination_coords"`
		Speed       float64   `json:"cruising_speed_kmh"`
	}
	if err := in.Bind(&args); err != nil {
		return nil, err
	}
	if len(args.Origin) != 2 || len(args.Destination) != 2 {
		return nil, errCoord
	}

	return Hours(Coord(args.Origin), Coord(args.Destination), args.Speed)
}

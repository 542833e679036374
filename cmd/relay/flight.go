package main

import (
	"fmt"

	"github.com/germanamz/relay/pkg/tools/flight"
	"github.com/spf13/cobra"
)

func newFlightCommand() *cobra.Command {
	var (
		from, to []float64
		speed    float64
	)

	cmd := &cobra.Command{
		Use:   "flight",
		Short: "Estimate a flight time between two coordinates",
		Example: `  relay flight --from 51.4700,-0.4543 --to 40.6413,-73.7781
  relay flight --from 48.8566,2.3522 --to 35.6762,139.6503 --speed 900`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			origin, err := coord("from", from)
			if err != nil {
				return err
			}
			destination, err := coord("to", to)
			if err != nil {
				return err
			}

			hours, err := flight.Hours(origin, destination, speed)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "distance: %.0f km\nflight time: %.2f hours\n",
				flight.Distance(origin, destination), hours)
			return nil
		},
	}

	cmd.Flags().Float64SliceVar(&from, "from", nil, "origin as lat,lon")
	cmd.Flags().Float64SliceVar(&to, "to", nil, "destination as lat,lon")
	cmd.Flags().Float64Var(&speed, "speed", flight.DefaultCruisingSpeed, "cruising speed in km/h")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func coord(flag string, v []float64) (flight.Coord, error) {
	if len(v) != 2 {
		return flight.Coord{}, fmt.Errorf("--%s needs lat,lon, got %d values", flag, len(v))
	}
	return flight.Coord{v[0], v[1]}, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/floodwatch/internal/hazard"
)

var (
	checkIP   string
	checkLat  float64
	checkLon  float64
	checkJSON bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "One-shot flood hazard lookup for an IP or coordinate",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		lat, lon := checkLat, checkLon
		if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
			loc, err := newGeoClient().Locate(ctx, checkIP)
			if err != nil {
				return eris.Wrap(err, "geolocate")
			}
			if !loc.Matched {
				return eris.New("could not geolocate; pass --lat and --lon instead")
			}
			lat, lon = loc.Latitude, loc.Longitude
		}

		coll, err := newDatasetStore().Load(ctx)
		if err != nil {
			return eris.Wrap(err, "load dataset")
		}

		res := hazard.Resolve(lat, lon, coll)

		if checkJSON {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{
				"latitude":  lat,
				"longitude": lon,
				"hazard":    res.Label,
				"matched":   res.Matched,
			})
		}

		fmt.Printf("Location: %.5f, %.5f\n", lat, lon)
		fmt.Printf("Hazard:   %s\n", res.Label)
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkIP, "ip", "", "IP address to geolocate (default: caller's public IP)")
	checkCmd.Flags().Float64Var(&checkLat, "lat", 0, "latitude (skips geolocation when set with --lon)")
	checkCmd.Flags().Float64Var(&checkLon, "lon", 0, "longitude (skips geolocation when set with --lat)")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "emit JSON output")
	rootCmd.AddCommand(checkCmd)
}

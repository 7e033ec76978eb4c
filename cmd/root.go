package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/floodwatch/internal/config"
	"github.com/sells-group/floodwatch/internal/dataset"
	"github.com/sells-group/floodwatch/pkg/geojs"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "floodwatch",
	Short: "Flood hazard lookup service",
	Long:  "Geolocates visitors by IP and reports whether their location falls inside a flood-hazard polygon from a cached geospatial dataset.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newDatasetStore builds the dataset store from config.
func newDatasetStore() *dataset.Store {
	return dataset.NewStore(dataset.Options{
		Path:            cfg.Dataset.Path,
		URL:             cfg.Dataset.URL,
		Format:          cfg.Dataset.Format,
		LabelField:      cfg.Dataset.LabelField,
		DownloadTimeout: time.Duration(cfg.Dataset.DownloadTimeoutSecs) * time.Second,
	})
}

// newGeoClient builds the geolocation client from config.
func newGeoClient() geojs.Client {
	return geojs.NewClient(
		geojs.WithBaseURL(cfg.GeoIP.BaseURL),
		geojs.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.GeoIP.TimeoutSecs) * time.Second}),
		geojs.WithRateLimit(cfg.GeoIP.RateLimit),
	)
}

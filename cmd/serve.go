package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/floodwatch/internal/mapimg"
	"github.com/sells-group/floodwatch/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the flood hazard web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store := newDatasetStore()
		handler := server.NewHandler(
			store,
			newGeoClient(),
			server.NewMapCache(cfg.Map.CacheSize, time.Duration(cfg.Map.CacheTTLMinutes)*time.Minute),
			cfg.Map.Dir,
			mapimg.Options{
				Width:  cfg.Map.Width,
				Height: cfg.Map.Height,
				Span:   cfg.Map.SpanDegrees,
			},
		)

		// Warm the dataset in the background so the first request does not
		// pay the download and parse cost.
		go func() {
			if _, err := store.Load(ctx); err != nil {
				zap.L().Warn("dataset warm load failed", zap.Error(err))
			}
		}()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.New(handler),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

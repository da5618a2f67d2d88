package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/api"
	"github.com/sells-group/riskgrid/internal/dashboard"
)

var (
	servePort     int
	serveDataDir  string
	serveDistrict string
	serveRecord   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scoring dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEnv(ctx, serveDataDir)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := dashboard.Options{
			Weights: defaultWeights(),
			TopN:    cfg.Scoring.TopN,
			Names:   env.Names,
			Source:  env.Source,
		}
		if serveRecord {
			opts.Recorder = env.Store
		}
		session := dashboard.NewSession(env.Loader, opts)

		if serveDistrict != "" {
			if _, err := session.Load(ctx, serveDistrict); err != nil {
				return eris.Wrap(err, "serve: preload district")
			}
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.NewRouter(session, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("source", env.Source),
			zap.String("district", serveDistrict),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "read grids from files in this directory instead of PostGIS")
	serveCmd.Flags().StringVar(&serveDistrict, "district", "", "district to load at startup")
	serveCmd.Flags().BoolVar(&serveRecord, "record", false, "record every applied scoring run")
	rootCmd.AddCommand(serveCmd)
}

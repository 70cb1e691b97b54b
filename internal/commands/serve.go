package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/apk-analysis/hermes-go/internal/api"
	"github.com/apk-analysis/hermes-go/internal/middleware"
	"github.com/apk-analysis/hermes-go/internal/progress"
	"github.com/apk-analysis/hermes-go/internal/service"
	"github.com/apk-analysis/hermes-go/internal/worker"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(e *env) *cobra.Command {
	var withProcess bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve statistics, metrics and progress over HTTP",
		Long: `Serve the statistics API, Prometheus metrics and a websocket progress stream.
With --process the pending apps are analyzed in the background and their progress is
broadcast on /ws/progress.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.serve(cmd.Context(), withProcess)
		},
	}

	cmd.Flags().Int("port", 8080, "HTTP listen port")
	cmd.Flags().BoolVar(&withProcess, "process", false, "analyze pending apps in the background")
	e.bind(cmd, "port", "server.port")
	e.addMarketFlags(cmd)
	e.addProcessFlags(cmd)
	return cmd
}

func (e *env) serve(ctx context.Context, withProcess bool) error {
	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	metrics := middleware.NewMetrics(e.logger, "")
	memMonitor := middleware.NewMemoryMonitor(e.logger, metrics, 30*time.Second)
	memMonitor.Start()
	defer memMonitor.Stop()

	hub := progress.NewHub(e.logger)
	go hub.Run(ctx)

	svc := service.NewStatsService(st.apps, e.reportOptions(), metrics, e.logger)
	router := api.SetupRouter(e.cfg, e.logger, svc, metrics, hub, memMonitor)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", e.cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	if withProcess {
		client, err := e.login(ctx)
		if err != nil {
			return err
		}
		runner := e.newRunner(client, st.apps).WithMetrics(metrics)
		p := worker.NewProcessor(runner, st.apps, st.restore, e.cfg.Worker, e.logger)
		p.OnProgress(hub.Reporter("process"))

		go func() {
			if _, err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.WithError(err).Error("Background processing failed")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		e.logger.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	e.logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		e.logger.Errorf("HTTP server shutdown error: %v", err)
	}
	e.logger.Info("Server stopped")
	return nil
}

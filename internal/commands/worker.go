package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/apk-analysis/hermes-go/internal/middleware"
	"github.com/apk-analysis/hermes-go/internal/queue"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newWorkerCommand(e *env) *cobra.Command {
	var metricsPort int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume app jobs from RabbitMQ and analyze them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.work(cmd.Context(), metricsPort)
		},
	}

	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "expose Prometheus metrics on this port (0 disables)")
	e.addMarketFlags(cmd)
	e.addProcessFlags(cmd)
	return cmd
}

func (e *env) work(ctx context.Context, metricsPort int) error {
	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := e.login(ctx)
	if err != nil {
		return err
	}

	mq, err := queue.NewRabbitMQ(&e.cfg.RabbitMQ, e.cfg.Worker.Concurrency, e.logger)
	if err != nil {
		return err
	}
	defer mq.Close()

	metrics := middleware.NewMetrics(e.logger, "")
	runner := e.newRunner(client, st.apps).WithMetrics(metrics)

	consumer := queue.NewConsumer(mq, queue.AppHandler(st.apps, runner.Process), e.cfg.Worker.Concurrency, e.logger)
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	e.logger.Infof("Job consumer started with %d workers", e.cfg.Worker.Concurrency)

	if metricsPort > 0 {
		stop := e.serveMetrics(metrics, metricsPort)
		defer stop()
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			consumer.Stop()
			e.logger.WithField("processed", consumer.Processed()).Info("Worker stopped")
			return nil
		case <-ticker.C:
			metrics.SetActiveWorkers(consumer.ActiveWorkers())
		}
	}
}

// serveMetrics 单独暴露 Prometheus 端点，返回关闭函数
func (e *env) serveMetrics(metrics *middleware.Metrics, port int) func() {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics/prometheus", metrics.Handler())

	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: r}
	go func() {
		e.logger.Infof("Metrics listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.WithError(err).Error("Metrics server error")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

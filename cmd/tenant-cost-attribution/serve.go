package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/server"
)

const shutdownTimeout = 30 * time.Second

var (
	listenAddr   string
	scheduleSpec string
	runOnStart   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "runs the pipeline on a schedule and serves its status over HTTP",
	RunE:  runServe,
}

func init() {
	addEngineFlags(serveCmd.Flags())
	addViewsFlags(serveCmd.Flags())
	addPipelineFlags(serveCmd.Flags(), "views, tables or local")
	addOutputFlags(serveCmd.Flags())
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "the address the HTTP API and metrics are served on")
	serveCmd.Flags().StringVar(&scheduleSpec, "schedule", server.DefaultSchedule, "cron expression runs are triggered at")
	serveCmd.Flags().BoolVar(&runOnStart, "run-on-start", true, "trigger a run immediately at startup")

	prometheus.MustRegister(version.NewCollector("tenant_cost"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := buildViewsConfig()
	if err != nil {
		return err
	}
	sched, err := server.ParseSchedule(scheduleSpec)
	if err != nil {
		return err
	}
	ctx := setupSignals()

	e, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.close()

	runner, publisher, err := newRunner(e, cfg)
	if err != nil {
		return err
	}
	healthCheck := func(ctx context.Context) error {
		_, err := e.QueryRows(ctx, "SELECT 1")
		return err
	}
	srv := server.New(ctx, runner, publisher, healthCheck, clock.RealClock{}, logger)

	httpServer := &http.Server{Addr: listenAddr, Handler: srv.Router()}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API server listening on %s", listenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	if runOnStart {
		if runID, err := srv.TriggerRun(); err != nil {
			logger.WithError(err).Warn("unable to trigger initial run")
		} else {
			logger.WithField("runID", runID).Info("triggered initial run")
		}
	}
	go srv.RunSchedule(ctx, sched)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP API server exited with error")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("unable to shut down HTTP API server")
	}
	srv.Wait()
	logger.Info("shut down")
	return nil
}

package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmaas/ivcrush/internal/report"
	"github.com/dmaas/ivcrush/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the daily trading loop",
	Long: `Starts the trading loop: wait for the pre-close execution window, scan
and open qualifying spreads, then close them after the next open. Also
serves the reporting endpoints and records periodic health snapshots.
SIGINT or SIGTERM stops the loop cleanly.`,
	RunE: runTrader,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runTrader(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sched := scheduler.New(a.log)
	if err := sched.AddJob(scheduler.NewHealthSnapshotJob(a.orch, a.healthLog, "")); err != nil {
		return err
	}
	if a.cached != nil {
		if err := sched.AddJob(scheduler.NewUniverseRefreshJob(a.cached)); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	router := report.NewRouter(a.store, a.healthLog, a.orch, a.log)
	srv := report.NewServer(a.cfg.ReportPort, router, a.log)
	go func() {
		if err := srv.Start(); err != nil {
			a.log.WithError(err).Error("report server exited")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	err = a.orch.Run(ctx)
	if errors.Is(err, context.Canceled) {
		a.log.Info("shutdown signal received")
		return nil
	}
	return err
}

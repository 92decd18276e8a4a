package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmaas/ivcrush/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Serve the reporting endpoints only",
	Long: `Serves /healthz, /metrics, /api/trades and /api/health without running
the trading loop. Useful for inspecting the journal and health log of a
trader running elsewhere against the same files.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	router := report.NewRouter(a.store, a.healthLog, a.orch, a.log)
	srv := report.NewServer(a.cfg.ReportPort, router, a.log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

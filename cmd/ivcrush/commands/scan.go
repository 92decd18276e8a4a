package commands

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Score the universe once without trading",
	Long: `Runs the earnings scan and volatility scoring pipeline immediately and
prints one JSON recommendation per candidate ticker. No orders are
submitted.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	tickers, err := a.tickers.Tickers(ctx)
	if err != nil {
		return err
	}

	events := a.scanner.Scan(ctx, tickers, a.cfg.ScanWindowDays)
	if len(events) == 0 {
		a.log.Info("no earnings events inside the scan window")
		return nil
	}

	names := make([]string, 0, len(events))
	for ticker := range events {
		names = append(names, ticker)
	}
	sort.Strings(names)

	enc := json.NewEncoder(os.Stdout)
	for _, ticker := range names {
		rec, err := a.engine.Evaluate(ctx, ticker)
		if err != nil {
			a.log.WithError(err).WithField("ticker", ticker).Warn("scoring failed")
			continue
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close open positions now",
	Long: `Closes positions immediately, outside the normal post-open window.
By default only spreads recorded in the trade journal are touched;
close_all_account_positions widens that to every account position.`,
	RunE: runClose,
}

func init() {
	rootCmd.AddCommand(closeCmd)
}

func runClose(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	return a.orch.CloseAllPositions(ctx)
}

package commands

import (
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "ivcrush",
	Short: "Earnings volatility calendar-spread trader",
	Long: `ivcrush trades calendar spreads around earnings announcements.

Shortly before each market close it scans the ticker universe for overnight
earnings events, scores the volatility setup of each candidate, and opens a
call calendar spread where the setup qualifies. Positions are unwound after
the next session's open.

Usage:
  ivcrush run              start the daily trading loop
  ivcrush scan             score the universe once without trading
  ivcrush close            close open positions now
  ivcrush report           serve the reporting endpoints only`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.json", "path to the JSON config file")
}

package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "signal-bot",
	Short: "Bybit futures signal execution bot",
	Long: `Signal execution bot for Bybit USDT perpetual futures.

The bot reads trade signals from a relay feed or webhook, places a limit entry
for each accepted signal, and manages the resulting position with a stop loss,
split take-profit targets, a breakeven move after the first target and a
trailing stop after the last one.

Configuration is read from the environment and from a .env file in the
working directory when present.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadDotEnv,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func loadDotEnv(_ *cobra.Command, _ []string) error {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

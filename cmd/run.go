package cmd

import (
	"fmt"

	"github.com/mselser95/signal-bot/internal/app"
	"github.com/mselser95/signal-bot/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the signal bot",
	Long: `Starts the signal bot, which will:
1. Reconcile tracked trades against exchange positions
2. Listen for signals on the relay feed and/or webhook
3. Place entries and manage stops and targets as fills arrive
4. Sweep trades periodically to catch missed events

Use --dry-run to log exchange writes instead of sending them.`,
	RunE: runBot,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("dry-run", false, "Log order placement instead of sending it (overrides EXECUTION_MODE)")
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	dryRun, _ := cmd.Flags().GetBool("dry-run")

	application, err := app.New(cfg, logger, &app.Options{DryRun: dryRun})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/signal-bot/internal/stats"
	"github.com/mselser95/signal-bot/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show win rate and PnL from the trade history",
	Long: `Reads the persisted trade history and prints performance summaries.

By default the 7 day, 30 day and all-time periods are shown. Use --days to
show a single custom period (0 means all time).

Examples:
  # Standard report
  signal-bot stats

  # Last 3 days as JSON
  signal-bot stats --days 3 --format json`,
	RunE: runStats,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	statsDays   int
	statsFormat string
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().IntVar(&statsDays, "days", -1, "Show a single period of N days (0 = all time)")
	statsCmd.Flags().StringVar(&statsFormat, "format", "table", "Output format: table, json")
}

func runStats(cmd *cobra.Command, _ []string) error {
	if statsFormat != "table" && statsFormat != "json" {
		return fmt.Errorf("invalid format: %s (valid: table, json)", statsFormat)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	blob, err := loadState(ctx, config.ReadEnv(), zap.NewNop())
	if err != nil {
		return err
	}

	now := time.Now()
	var periods []stats.Summary
	if statsDays >= 0 {
		periods = []stats.Summary{stats.Compute(blob.History(), statsDays, now)}
	} else {
		periods = stats.BuildReport(blob.History(), now).Periods()
	}

	return writeStats(cmd.OutOrStdout(), statsFormat, periods)
}

func writeStats(w io.Writer, format string, periods []stats.Summary) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(periods)
	}

	fmt.Fprintln(w, "Performance")
	fmt.Fprintln(w, "================================================================================")
	for _, s := range periods {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s\n", s.Label())
		fmt.Fprintln(w, "--------------------------------------------------------------------------------")
		if s.TotalTrades == 0 {
			fmt.Fprintln(w, "No closed trades")
			continue
		}
		fmt.Fprintf(w, "Trades: %d (%d wins, %d losses) | Win rate: %.1f%%\n",
			s.TotalTrades, s.Wins, s.Losses, s.WinRate)
		fmt.Fprintf(w, "Total PnL: %s | Avg: %s | Best: %s | Worst: %s\n",
			signedUSD(s.TotalPnL), signedUSD(s.AvgPnL), signedUSD(s.BestTrade), signedUSD(s.WorstTrade))
		fmt.Fprintf(w, "Avg TP fills: %.1f | Exits: %d trailing, %d stop loss, %d breakeven\n",
			s.AvgTPFills, s.TrailingExits, s.SLExits, s.BEExits)
	}
	return nil
}

func signedUSD(v float64) string {
	if v > 0 {
		return fmt.Sprintf("+$%.2f", v)
	}
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return "$0.00"
}

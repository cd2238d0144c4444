package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/signal-bot/internal/engine"
	"github.com/mselser95/signal-bot/internal/exchange"
	"github.com/mselser95/signal-bot/pkg/config"
	"github.com/mselser95/signal-bot/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List exchange positions and whether the bot tracks them",
	Long: `Fetches open positions from the exchange and matches them against the
trades in the persisted bot state.

Positions with no pending or open trade on the same symbol are marked
UNTRACKED. The bot never closes these on its own.

Examples:
  # Table of all positions
  signal-bot positions

  # Only positions the bot does not manage
  signal-bot positions --untracked-only

  # Export to CSV
  signal-bot positions --format csv > positions.csv`,
	RunE: runPositions,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	untrackedOnly   bool
	positionsFormat string
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(positionsCmd)

	positionsCmd.Flags().BoolVar(&untrackedOnly, "untracked-only", false, "Show only positions without a tracked trade")
	positionsCmd.Flags().StringVar(&positionsFormat, "format", "table", "Output format: table, json, csv")
}

// PositionRow is one exchange position joined with its tracked trade.
type PositionRow struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Size          float64 `json:"size"`
	AvgPrice      float64 `json:"avg_price"`
	UnrealisedPnL float64 `json:"unrealised_pnl"`
	Tracked       bool    `json:"tracked"`
	TradeID       string  `json:"trade_id,omitempty"`
	TPFills       int     `json:"tp_fills"`
	StopLoss      float64 `json:"stop_loss,omitempty"`
}

func runPositions(cmd *cobra.Command, _ []string) error {
	validFormats := map[string]bool{"table": true, "json": true, "csv": true}
	if !validFormats[positionsFormat] {
		return fmt.Errorf("invalid format: %s (valid: table, json, csv)", positionsFormat)
	}

	cfg := config.ReadEnv()
	if cfg.BybitAPIKey == "" || cfg.BybitAPISecret == "" {
		return fmt.Errorf("BYBIT_API_KEY and BYBIT_API_SECRET are required")
	}

	logger := zap.NewNop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := exchange.NewClient(&exchange.Config{
		BaseURL:     exchange.BaseURL(cfg.BybitTestnet, cfg.BybitDemo),
		APIKey:      cfg.BybitAPIKey,
		APISecret:   cfg.BybitAPISecret,
		RecvWindow:  cfg.BybitRecvWindow,
		Category:    cfg.Category,
		AccountType: cfg.AccountType,
		SettleCoin:  cfg.Quote,
		RateLimit:   cfg.BybitRateLimit,
		Logger:      logger,
	})

	positions, err := client.Positions(ctx)
	if err != nil {
		return fmt.Errorf("get positions: %w", err)
	}

	blob, err := loadState(ctx, cfg, logger)
	if err != nil {
		return err
	}

	rows := buildPositionRows(positions, blob.OpenTrades)
	if untrackedOnly {
		rows = filterUntracked(rows)
	}

	return writePositions(cmd.OutOrStdout(), positionsFormat, rows)
}

func buildPositionRows(positions []types.Position, trades map[string]*types.Trade) []PositionRow {
	orphans := make(map[string]struct{})
	for _, p := range engine.FindOrphans(positions, trades) {
		orphans[p.Symbol] = struct{}{}
	}

	bySymbol := make(map[string]*types.Trade, len(trades))
	for _, t := range trades {
		if t.Active() {
			bySymbol[t.Symbol] = t
		}
	}

	rows := make([]PositionRow, 0, len(positions))
	for _, p := range positions {
		row := PositionRow{
			Symbol:        p.Symbol,
			Side:          p.Side,
			Size:          p.Size,
			AvgPrice:      p.AvgPrice,
			UnrealisedPnL: p.UnrealisedPnL,
		}
		if _, orphan := orphans[p.Symbol]; !orphan {
			if t, ok := bySymbol[p.Symbol]; ok {
				row.Tracked = true
				row.TradeID = t.ID
				row.TPFills = t.TPFillCount()
				if t.SLPrice != nil {
					row.StopLoss = *t.SLPrice
				}
			}
		}
		rows = append(rows, row)
	}

	// Untracked first, then by unrealised PnL
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Tracked != rows[j].Tracked {
			return !rows[i].Tracked
		}
		return rows[i].UnrealisedPnL > rows[j].UnrealisedPnL
	})

	return rows
}

func filterUntracked(rows []PositionRow) []PositionRow {
	filtered := make([]PositionRow, 0, len(rows))
	for _, r := range rows {
		if !r.Tracked {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func writePositions(w io.Writer, format string, rows []PositionRow) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "csv":
		return writePositionsCSV(w, rows)
	default:
		writePositionsTable(w, rows)
		return nil
	}
}

func writePositionsTable(w io.Writer, rows []PositionRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No positions found")
		return
	}

	untracked := 0
	total := 0.0
	for _, r := range rows {
		if !r.Tracked {
			untracked++
		}
		total += r.UnrealisedPnL
	}

	fmt.Fprintf(w, "Positions (%d tracked, %d untracked)\n", len(rows)-untracked, untracked)
	fmt.Fprintln(w, "================================================================================")
	for _, r := range rows {
		status := "TRACKED"
		if !r.Tracked {
			status = "UNTRACKED"
		}
		fmt.Fprintf(w, "%-14s %-5s size=%-12s avg=%-12s upnl=%-10s %s\n",
			r.Symbol, r.Side, formatFloat(r.Size), formatFloat(r.AvgPrice), signedUSD(r.UnrealisedPnL), status)
		if r.Tracked {
			sl := "none"
			if r.StopLoss > 0 {
				sl = formatFloat(r.StopLoss)
			}
			fmt.Fprintf(w, "  trade=%s tp_fills=%d sl=%s\n", r.TradeID, r.TPFills, sl)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total unrealised PnL: %s\n", signedUSD(total))
}

func writePositionsCSV(w io.Writer, rows []PositionRow) error {
	cw := csv.NewWriter(w)

	err := cw.Write([]string{"symbol", "side", "size", "avg_price", "unrealised_pnl", "tracked", "trade_id", "tp_fills", "stop_loss"})
	if err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range rows {
		err = cw.Write([]string{
			r.Symbol,
			r.Side,
			formatFloat(r.Size),
			formatFloat(r.AvgPrice),
			formatFloat(r.UnrealisedPnL),
			strconv.FormatBool(r.Tracked),
			r.TradeID,
			strconv.Itoa(r.TPFills),
			formatFloat(r.StopLoss),
		})
		if err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mselser95/signal-bot/internal/signal"
	"github.com/mselser95/signal-bot/pkg/config"
	"github.com/mselser95/signal-bot/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var parseSignalCmd = &cobra.Command{
	Use:   "parse-signal [text]",
	Short: "Parse a signal message without trading it",
	Long: `Runs the signal parser on a message and prints the result with its
dedup hash. The message is taken from the arguments, or from stdin when no
arguments are given.

Examples:
  signal-bot parse-signal < message.txt
  pbpaste | signal-bot parse-signal --quote USDT`,
	RunE: runParseSignal,
}

//nolint:gochecknoglobals // Cobra boilerplate
var parseQuote string

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(parseSignalCmd)

	parseSignalCmd.Flags().StringVar(&parseQuote, "quote", "", "Quote currency (defaults to QUOTE)")
}

type parsedSignal struct {
	*types.Signal
	Hash string `json:"hash"`
}

func runParseSignal(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	quote := parseQuote
	if quote == "" {
		quote = config.ReadEnv().Quote
	}

	sig, ok := signal.Parse(text, strings.ToUpper(quote))
	if !ok {
		if signal.LooksLikeSignal(text) {
			fmt.Fprintln(cmd.ErrOrStderr(), "message resembles a signal but could not be parsed")
		}
		return fmt.Errorf("no signal found")
	}
	sig.Raw = ""

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(parsedSignal{Signal: sig, Hash: signal.Hash(sig)})
}

// Package signal turns channel messages into normalized trade signals.
package signal

import (
	"crypto/md5" //nolint:gosec // dedup key, not a security boundary
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/mselser95/signal-bot/pkg/types"
)

//nolint:gochecknoglobals // compiled patterns
var (
	reSide      = regexp.MustCompile(`(?i)(Short|Long)`)
	reSymbol    = regexp.MustCompile(`(?i)Name:\s*([A-Z0-9]+)/?USDT`)
	reEntry     = regexp.MustCompile(`(?i)Entry\s+price\s*\(?USDT\)?:?\s*\n?\s*([0-9]+(?:\.[0-9]+)?)`)
	reTarget    = regexp.MustCompile(`(\d+)\)\s*([0-9]+(?:\.[0-9]+)?)`)
	reUnlimited = regexp.MustCompile(`(?i)unlimited`)
)

// Parse extracts a signal from text. It returns false when the text is not
// a signal. Target lines marked "unlimited" are skipped and at most
// types.MaxTargets targets are kept, ordered by their number.
func Parse(text, quote string) (*types.Signal, bool) {
	sideMatch := reSide.FindStringSubmatch(text)
	if sideMatch == nil {
		return nil, false
	}
	side := types.SignalBuy
	if strings.EqualFold(sideMatch[1], "short") {
		side = types.SignalSell
	}

	symbolMatch := reSymbol.FindStringSubmatch(text)
	if symbolMatch == nil {
		return nil, false
	}
	base := strings.ToUpper(symbolMatch[1])

	entryMatch := reEntry.FindStringSubmatch(text)
	if entryMatch == nil {
		return nil, false
	}
	trigger, err := strconv.ParseFloat(entryMatch[1], 64)
	if err != nil || trigger <= 0 {
		return nil, false
	}

	return &types.Signal{
		Base:     base,
		Symbol:   base + quote,
		Side:     side,
		Trigger:  trigger,
		TPPrices: parseTargets(text),
		Raw:      text,
	}, true
}

func parseTargets(text string) []float64 {
	slots := make([]float64, types.MaxTargets)

	for _, loc := range reTarget.FindAllStringSubmatchIndex(text, -1) {
		if reUnlimited.MatchString(lineAround(text, loc[0], loc[1])) {
			continue
		}

		idx, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil || idx < 1 || idx > types.MaxTargets {
			continue
		}
		price, err := strconv.ParseFloat(text[loc[4]:loc[5]], 64)
		if err != nil {
			continue
		}
		slots[idx-1] = price
	}

	out := make([]float64, 0, types.MaxTargets)
	for _, p := range slots {
		if p > 0 {
			out = append(out, p)
		}
	}
	return out
}

func lineAround(text string, start, end int) string {
	lineStart := strings.LastIndexByte(text[:start], '\n') + 1
	lineEnd := strings.IndexByte(text[end:], '\n')
	if lineEnd == -1 {
		return text[lineStart:]
	}
	return text[lineStart : end+lineEnd]
}

// Hash is the dedup key over symbol, side, trigger and targets.
func Hash(sig *types.Signal) string {
	tps := make([]string, len(sig.TPPrices))
	for i, p := range sig.TPPrices {
		tps[i] = strconv.FormatFloat(p, 'f', -1, 64)
	}

	core := sig.Symbol + "|" + string(sig.Side) + "|" +
		strconv.FormatFloat(sig.Trigger, 'f', -1, 64) + "|[" + strings.Join(tps, ", ") + "]"

	sum := md5.Sum([]byte(core)) //nolint:gosec // dedup key
	return hex.EncodeToString(sum[:])
}

// LooksLikeSignal reports whether unparsed text resembles a signal closely
// enough to be worth logging.
func LooksLikeSignal(text string) bool {
	hasSide := strings.Contains(text, "Long") || strings.Contains(text, "Short")
	return hasSide && (strings.Contains(text, "Entry") || strings.Contains(text, "Name:"))
}

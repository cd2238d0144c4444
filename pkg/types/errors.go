package types

import (
	"errors"
	"fmt"
)

// APIError represents a rejection returned by the exchange API.
type APIError struct {
	Code     int    // Exchange return code
	Message  string // Exchange return message
	Endpoint string // Request path
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed: %s (%d)", e.Endpoint, e.Message, e.Code)
}

// Exchange return codes the engine treats specially.
const (
	CodeLeverageNotModified = 110043
	CodeMarginModeUnchanged = 110026
	CodeOrderNotExists      = 110001
)

// IsNotModified reports whether err is a "nothing to change" rejection from
// leverage or margin-mode calls.
func IsNotModified(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodeLeverageNotModified || apiErr.Code == CodeMarginModeUnchanged
}

var (
	// ErrInsufficientCandles is returned when too few candles exist to derive a structure stop.
	ErrInsufficientCandles = errors.New("insufficient candles")

	// ErrNoPosition is returned when a position is expected but the exchange reports none.
	ErrNoPosition = errors.New("no open position")
)

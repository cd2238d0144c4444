package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/mselser95/signal-bot/internal/circuitbreaker"
	"github.com/mselser95/signal-bot/internal/stats"
	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
)

// TradeSource is the read side of the trade engine.
type TradeSource interface {
	Trades() []*types.Trade
	Trade(id string) (*types.Trade, bool)
	History() []types.ArchivedTrade
	Report() stats.Report
	TradesToday() int
}

// BreakerSource exposes the circuit breaker state.
type BreakerSource interface {
	Status() circuitbreaker.Status
}

// TradesHandler serves trade state as JSON.
type TradesHandler struct {
	trades  TradeSource
	breaker BreakerSource
	logger  *zap.Logger
}

// NewTradesHandler creates a new trades handler.
func NewTradesHandler(trades TradeSource, breaker BreakerSource, logger *zap.Logger) *TradesHandler {
	return &TradesHandler{
		trades:  trades,
		breaker: breaker,
		logger:  logger,
	}
}

// TradesResponse is the body of GET /api/trades.
type TradesResponse struct {
	Count       int            `json:"count"`
	TradesToday int            `json:"trades_today"`
	Trades      []*types.Trade `json:"trades"`
}

// HistoryResponse is the body of GET /api/history.
type HistoryResponse struct {
	Count  int                   `json:"count"`
	Trades []types.ArchivedTrade `json:"trades"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleTrades handles GET /api/trades?status=<pending|open|closed|expired>.
func (h *TradesHandler) HandleTrades(w http.ResponseWriter, r *http.Request) {
	status := types.TradeStatus(r.URL.Query().Get("status"))
	switch status {
	case "", types.StatusPending, types.StatusOpen, types.StatusClosed, types.StatusExpired:
	default:
		h.writeError(w, "invalid status filter", http.StatusBadRequest)
		return
	}

	trades := h.trades.Trades()
	if status != "" {
		filtered := trades[:0]
		for _, t := range trades {
			if t.Status == status {
				filtered = append(filtered, t)
			}
		}
		trades = filtered
	}

	h.writeJSON(w, http.StatusOK, TradesResponse{
		Count:       len(trades),
		TradesToday: h.trades.TradesToday(),
		Trades:      trades,
	})
}

// HandleTrade handles GET /api/trades/{id}.
func (h *TradesHandler) HandleTrade(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, ok := h.trades.Trade(id)
	if !ok {
		h.writeError(w, "trade not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

// HandleHistory handles GET /api/history?limit=<n>, newest last.
func (h *TradesHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	history := h.trades.History()

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if limit < len(history) {
			history = history[len(history)-limit:]
		}
	}

	h.writeJSON(w, http.StatusOK, HistoryResponse{Count: len(history), Trades: history})
}

// HandleStats handles GET /api/stats.
func (h *TradesHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.trades.Report())
}

// HandleBreaker handles GET /api/breaker.
func (h *TradesHandler) HandleBreaker(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.breaker.Status())
}

func (h *TradesHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *TradesHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{Error: message})
}

package feed

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// TokenHeader carries the shared secret for webhook posts.
const TokenHeader = "X-Signal-Token"

const maxBodyBytes = 64 << 10

// Webhook accepts signal messages over HTTP.
type Webhook struct {
	token  string
	handle Handler
	now    func() time.Time
	open   atomic.Bool
	logger *zap.Logger
}

// WebhookConfig holds webhook configuration. An empty Token disables the check.
// With HoldUntilOpen set, authenticated posts get 503 until Open is called.
type WebhookConfig struct {
	Token         string
	Handler       Handler
	HoldUntilOpen bool
	Logger        *zap.Logger
}

// NewWebhook creates the webhook handler.
func NewWebhook(cfg *WebhookConfig) *Webhook {
	h := &Webhook{
		token:  cfg.Token,
		handle: cfg.Handler,
		now:    time.Now,
		logger: cfg.Logger,
	}
	h.open.Store(!cfg.HoldUntilOpen)
	return h
}

// Open starts handing posted messages to the handler.
func (h *Webhook) Open() {
	if !h.open.Swap(true) {
		h.logger.Info("signal-webhook-open")
	}
}

type webhookResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HandleSignal handles POST /api/signals.
func (h *Webhook) HandleSignal(w http.ResponseWriter, r *http.Request) {
	if h.token != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(TokenHeader)), []byte(h.token)) != 1 {
		MessagesTotal.WithLabelValues("webhook", "unauthorized").Inc()
		writeJSON(w, http.StatusUnauthorized, webhookResponse{Status: "error", Error: "invalid token"})
		return
	}

	if !h.open.Load() {
		MessagesTotal.WithLabelValues("webhook", "unavailable").Inc()
		writeJSON(w, http.StatusServiceUnavailable, webhookResponse{Status: "error", Error: "not ready"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Error: "read body failed"})
		return
	}

	msg, err := decodeMessage(body, h.now())
	if err != nil {
		MessagesTotal.WithLabelValues("webhook", "invalid").Inc()
		writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Error: err.Error()})
		return
	}

	MessagesTotal.WithLabelValues("webhook", "ok").Inc()
	h.logger.Debug("webhook-message-received", zap.String("id", msg.ID))
	// Admission must finish even if the client disconnects.
	h.handle(context.WithoutCancel(r.Context()), msg)

	writeJSON(w, http.StatusAccepted, webhookResponse{Status: "accepted", ID: msg.ID})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

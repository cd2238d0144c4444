package testutil

import (
	"context"
	"sync"

	"github.com/mselser95/signal-bot/internal/notify"
)

// RecordingNotifier records every notification it receives.
type RecordingNotifier struct {
	mu     sync.Mutex
	opened []notify.Opened
	closed []notify.Closed
	alerts []notify.Alert
}

// NewRecordingNotifier creates an empty recorder.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (r *RecordingNotifier) TradeOpened(_ context.Context, ev notify.Opened) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, ev)
	return nil
}

func (r *RecordingNotifier) TradeClosed(_ context.Context, ev notify.Closed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, ev)
	return nil
}

func (r *RecordingNotifier) PositionAlert(_ context.Context, ev notify.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, ev)
	return nil
}

// Opened returns the recorded "opened" notifications.
func (r *RecordingNotifier) Opened() []notify.Opened {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Opened(nil), r.opened...)
}

// Closed returns the recorded "closed" notifications.
func (r *RecordingNotifier) Closed() []notify.Closed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Closed(nil), r.closed...)
}

// Alerts returns the recorded position alerts.
func (r *RecordingNotifier) Alerts() []notify.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Alert(nil), r.alerts...)
}

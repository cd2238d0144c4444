// Package feed delivers raw signal messages from external sources to the
// engine: a websocket relay and an HTTP webhook.
package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Message is one raw feed message.
type Message struct {
	ID   string
	Text string
	Time time.Time
}

// Handler consumes feed messages. It is called sequentially per source.
type Handler func(ctx context.Context, msg Message)

// wireMessage is the JSON shape shared by both sources. ts is unix seconds;
// a missing ts means "now".
type wireMessage struct {
	ID   string  `json:"id"`
	Text string  `json:"text"`
	TS   float64 `json:"ts"`
}

func decodeMessage(raw []byte, now time.Time) (Message, error) {
	var w wireMessage
	err := json.Unmarshal(raw, &w)
	if err != nil {
		return Message{}, fmt.Errorf("unmarshal message: %w", err)
	}
	if strings.TrimSpace(w.Text) == "" {
		return Message{}, fmt.Errorf("message has no text")
	}

	at := now
	if w.TS > 0 {
		sec := int64(w.TS)
		at = time.Unix(sec, int64((w.TS-float64(sec))*1e9)).UTC()
	}
	return Message{ID: w.ID, Text: w.Text, Time: at}, nil
}

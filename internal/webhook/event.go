package webhook

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"playerhooks/internal/models"
	"playerhooks/internal/topics"
)

const (
	eventIDPrefix  = "evt_"
	eventIDLength  = 12
	eventIDCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewEventID returns "evt_" followed by 12 random alphanumerics.
func NewEventID() (string, error) {
	buf := make([]byte, eventIDLength)
	limit := big.NewInt(int64(len(eventIDCharset)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate event id: %w", err)
		}
		buf[i] = eventIDCharset[n.Int64()]
	}
	return eventIDPrefix + string(buf), nil
}

// EncodeEvent serializes the envelope. The result is the exact body sent to every endpoint
// and on every retry.
func EncodeEvent(topic topics.Topic, id string, createdAt time.Time, data any) (string, error) {
	if m, ok := data.(map[string]any); data == nil || (ok && m == nil) {
		data = map[string]any{}
	}
	ev := models.Event{
		Topic:     topic,
		ID:        id,
		CreatedAt: createdAt.UTC().Format(time.RFC3339),
		Data:      data,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return "", fmt.Errorf("encode event %s: %w", id, err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// eventIDOf pulls the envelope id out of a frozen body.
func eventIDOf(body string) string {
	var env struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return ""
	}
	return env.ID
}

package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the immutable wire format POSTed to subscribers:
// {id, event, timestamp, data}. It is built once when the delivery record is
// created and never regenerated, so retries always send identical bytes.
type Envelope struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope builds an envelope with a fresh event token and the current
// instant in RFC 3339 UTC. The same timestamp string is sent in the
// X-Webhook-Timestamp header, so it is stored as a string rather than a
// time.Time to avoid re-serialization drift.
func NewEnvelope(event string, data json.RawMessage) Envelope {
	return Envelope{
		ID:        "evt_" + uuid.NewString(),
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// ParseEnvelope decodes a stored delivery payload.
func ParseEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("decoding payload envelope: %w", err)
	}
	return env, nil
}

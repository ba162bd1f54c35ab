// Package notify delivers notifications and chat commands to the outside
// world over Kafka, RabbitMQ or the structured log.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Envelope types published by this package.
const (
	TypeEventRender   = "event.render"
	TypeAuditLogged   = "audit.logged"
	TypeMessageDelete = "message.delete"
	TypeThreadDelete  = "thread.delete"
	TypeArchivePost   = "archive.post"
)

// Publisher is the interface used by the service to publish envelopes.
// Key selects the partition (Kafka) or is carried as a header (RabbitMQ).
type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

// Envelope is the wire format of every published message.
type Envelope struct {
	Type    string          `json:"type"`
	GuildID string          `json:"guild_id,omitempty"`
	EventID string          `json:"event_id,omitempty"`
	At      time.Time       `json:"at"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(typ, guildID, eventID string, at time.Time, data any) (Envelope, error) {
	env := Envelope{Type: typ, GuildID: guildID, EventID: eventID, At: at.UTC()}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: %s: %w", ErrEncode, typ, err)
		}
		env.Data = b
	}
	return env, nil
}

func encode(env Envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEncode, env.Type, err)
	}
	return b, nil
}

package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"cashbook/internal/core"
)

// AuditMessage is the wire form of a ledger audit event.
type AuditMessage struct {
	Event       core.AuditEvent `json:"event"`
	PublishedAt time.Time       `json:"published_at"`
}

// NewAuditMessage wraps an event for publishing
func NewAuditMessage(e core.AuditEvent) *AuditMessage {
	return &AuditMessage{
		Event:       e,
		PublishedAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *AuditMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AuditMessageFromJSON decodes a message and rejects events without an
// action, which no producer emits.
func AuditMessageFromJSON(data []byte) (*AuditMessage, error) {
	var msg AuditMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Event.Action == "" {
		return nil, fmt.Errorf("audit message without action")
	}
	return &msg, nil
}

// RoutingKey is the per-action routing key, e.g. "ledger.approve".
func (m *AuditMessage) RoutingKey() string {
	return "ledger." + m.Event.Action
}

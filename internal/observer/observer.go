// Package observer publishes enrichment and lifecycle events for external
// consumers (dashboards, auditing). Event delivery is best-effort by
// contract: publishers report errors, callers log and move on.
package observer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher delivers events to an observer channel.
type Publisher interface {
	// Publish sends one event. Channel is a dot-free topic token, eventType
	// tags the payload shape.
	Publish(channel, eventType string, payload any) error
}

// Event is the wire envelope for observer events.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// NATSPublisher publishes events over core NATS (fire-and-forget, no
// JetStream persistence). Observers that miss events miss them.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher creates a publisher rooted at the given subject prefix.
func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Publish sends the event to <prefix>.<channel>.
func (p *NATSPublisher) Publish(channel, eventType string, payload any) error {
	data, err := json.Marshal(Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("encode observer event %s: %w", eventType, err)
	}
	if err := p.conn.Publish(p.prefix+"."+channel, data); err != nil {
		return fmt.Errorf("publish observer event %s: %w", eventType, err)
	}
	return nil
}

// NoopPublisher discards all events. Used when no observer transport is
// configured and in tests.
type NoopPublisher struct{}

// Publish discards the event.
func (NoopPublisher) Publish(channel, eventType string, payload any) error {
	return nil
}

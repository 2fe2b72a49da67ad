// Package bus routes messages between squad member identities.
//
// Two interchangeable backends satisfy the same routing contract: an
// in-process best-effort backend (InMemoryBus) and a durable, replayable
// NATS JetStream backend (DurableBus). Switching backends changes delivery
// guarantees, never routing semantics.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/parkerduff/squadron/pkg/models"
)

// Handler receives messages pushed to a subscriber. A handler that returns
// an error (or panics) is logged and isolated; it never affects delivery to
// other subscribers or the outcome of the originating send.
type Handler func(ctx context.Context, msg *models.Message) error

// Subscription identifies one registered handler.
type Subscription struct {
	id        int64
	recipient string
	handler   Handler

	// stop tears down backend resources (durable consumers). Nil for the
	// in-memory backend.
	stop func()
}

// Recipient returns the identity the subscription listens for.
func (s *Subscription) Recipient() string {
	return s.recipient
}

// FetchOptions filter a fetch-by-recipient call.
type FetchOptions struct {
	// Since excludes messages created at or before this instant.
	Since time.Time
	// Limit caps the result to the most recent N messages (0 = no cap).
	Limit int
	// Type filters by message type tag when non-empty.
	Type string
}

// Stats reports bus counters.
type Stats struct {
	// Sent counts point-to-point messages routed.
	Sent int64 `json:"sent"`
	// Broadcasts counts broadcast messages routed.
	Broadcasts int64 `json:"broadcasts"`
	// Delivered counts subscriber callback invocations that succeeded.
	Delivered int64 `json:"delivered"`
	// SubscriberErrors counts callbacks that failed or panicked.
	SubscriberErrors int64 `json:"subscriber_errors"`
	// Evictions counts messages dropped from capped queues.
	Evictions int64 `json:"evictions"`
	// HistorySize is the current global history length.
	HistorySize int `json:"history_size"`
	// KnownRecipients is the number of materialized delivery queues.
	KnownRecipients int `json:"known_recipients"`
	// Subscriptions is the number of active subscriptions.
	Subscriptions int `json:"subscriptions"`
}

// Bus is the sole channel through which squad members exchange messages.
type Bus interface {
	// Send routes a point-to-point message to the recipient's queue.
	Send(ctx context.Context, from, to, content, msgType string, metadata map[string]any, executionID string) (*models.Message, error)

	// Broadcast routes a message to every currently known recipient queue.
	// "Currently known" means queues materialized by at least one prior
	// direct send: an identity with no prior traffic will not retroactively
	// receive earlier broadcasts.
	Broadcast(ctx context.Context, from, content, msgType string, metadata map[string]any, executionID string) (*models.Message, error)

	// Messages returns the recipient's queue contents in creation order,
	// filtered by opts.
	Messages(recipient string, opts FetchOptions) ([]*models.Message, error)

	// Conversation returns all messages correlated with an execution in
	// creation-time order (ties broken by insertion order).
	Conversation(executionID string, limit int) ([]*models.Message, error)

	// Subscribe registers a push handler for a recipient. Broadcast
	// messages reach every subscriber regardless of recipient.
	Subscribe(recipient string, handler Handler) (*Subscription, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(sub *Subscription)

	// Stats returns current counters.
	Stats() Stats

	// Close releases backend resources.
	Close() error
}

// ConfigurationError indicates missing or invalid transport configuration
// at startup.
type ConfigurationError struct {
	// Field names the offending configuration field.
	Field string
	// Reason explains what is wrong with it.
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("bus configuration: %s: %s", e.Field, e.Reason)
}

// DeliveryDegradedError indicates the durable backend was unreachable for a
// primary send. Unlike best-effort side channel failures, these fail loudly.
type DeliveryDegradedError struct {
	// Op names the operation that failed.
	Op string
	// Err is the underlying transport error.
	Err error
}

func (e *DeliveryDegradedError) Error() string {
	return fmt.Sprintf("durable delivery degraded during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeliveryDegradedError) Unwrap() error {
	return e.Err
}

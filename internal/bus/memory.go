package bus

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parkerduff/squadron/pkg/models"
)

// DefaultQueueCap is the per-recipient queue bound when none is configured.
const DefaultQueueCap = 1000

// DefaultHistoryCap bounds the global history when none is configured.
const DefaultHistoryCap = 10000

// InMemoryBus is the in-process backend. Delivery is best-effort: messages
// live only as long as the process, and capped queues drop their oldest
// entries under pressure.
type InMemoryBus struct {
	mu sync.Mutex

	// queues holds per-recipient delivery queues, materialized lazily on
	// the first direct send to an identity.
	queues map[string][]*models.Message
	// history is the global append-only log backing conversation fetches.
	history []*models.Message
	// subs maps recipient identity to active subscriptions.
	subs   map[string][]*Subscription
	nextID int64

	queueCap   int
	historyCap int

	sent             int64
	broadcasts       int64
	delivered        int64
	subscriberErrors int64
	evictions        int64

	enricher *Enricher
	metrics  *busMetrics
}

// MemoryOption customizes an InMemoryBus.
type MemoryOption func(*InMemoryBus)

// WithQueueCap bounds each recipient queue to n messages.
func WithQueueCap(n int) MemoryOption {
	return func(b *InMemoryBus) { b.queueCap = n }
}

// WithHistoryCap bounds the global history to n messages.
func WithHistoryCap(n int) MemoryOption {
	return func(b *InMemoryBus) { b.historyCap = n }
}

// WithEnricher attaches a best-effort enrichment side channel. Enrichment
// failures are logged and never affect delivery.
func WithEnricher(e *Enricher) MemoryOption {
	return func(b *InMemoryBus) { b.enricher = e }
}

// NewInMemoryBus creates an in-process bus.
func NewInMemoryBus(opts ...MemoryOption) *InMemoryBus {
	b := &InMemoryBus{
		queues:     make(map[string][]*models.Message),
		subs:       make(map[string][]*Subscription),
		queueCap:   DefaultQueueCap,
		historyCap: DefaultHistoryCap,
		metrics:    defaultMetrics(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Send routes a point-to-point message. The recipient's queue is created if
// this is the first message addressed to them.
func (b *InMemoryBus) Send(ctx context.Context, from, to, content, msgType string, metadata map[string]any, executionID string) (*models.Message, error) {
	if to == "" {
		return nil, &ConfigurationError{Field: "to", Reason: "point-to-point send requires a recipient"}
	}

	msg := newMessage(from, to, content, msgType, metadata, executionID)

	b.mu.Lock()
	b.appendQueue(to, msg)
	b.appendHistory(msg)
	b.sent++
	handlers := b.handlersFor(to)
	b.mu.Unlock()

	b.metrics.observeSend("direct")
	b.notify(ctx, handlers, msg)
	b.enrich(msg)
	return msg, nil
}

// Broadcast routes a message to every currently known recipient queue and
// every registered subscriber.
func (b *InMemoryBus) Broadcast(ctx context.Context, from, content, msgType string, metadata map[string]any, executionID string) (*models.Message, error) {
	msg := newMessage(from, "", content, msgType, metadata, executionID)

	b.mu.Lock()
	for recipient := range b.queues {
		b.appendQueue(recipient, msg)
	}
	b.appendHistory(msg)
	b.broadcasts++
	var handlers []*Subscription
	for _, subs := range b.subs {
		handlers = append(handlers, subs...)
	}
	b.mu.Unlock()

	b.metrics.observeSend("broadcast")
	b.notify(ctx, handlers, msg)
	b.enrich(msg)
	return msg, nil
}

// Messages returns the recipient's queue contents in creation order. An
// identity that has never received a direct message has an empty queue.
func (b *InMemoryBus) Messages(recipient string, opts FetchOptions) ([]*models.Message, error) {
	b.mu.Lock()
	queue := b.queues[recipient]
	filtered := make([]*models.Message, 0, len(queue))
	for _, msg := range queue {
		if !opts.Since.IsZero() && !msg.CreatedAt.After(opts.Since) {
			continue
		}
		if opts.Type != "" && msg.Type != opts.Type {
			continue
		}
		filtered = append(filtered, msg)
	}
	b.mu.Unlock()

	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[len(filtered)-opts.Limit:]
	}
	return filtered, nil
}

// Conversation returns all messages correlated with an execution, in the
// order they were created. Direct and broadcast messages interleave in the
// same timeline.
func (b *InMemoryBus) Conversation(executionID string, limit int) ([]*models.Message, error) {
	b.mu.Lock()
	var out []*models.Message
	for _, msg := range b.history {
		if msg.ExecutionID == executionID {
			out = append(out, msg)
		}
	}
	b.mu.Unlock()

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Subscribe registers a push handler for a recipient.
func (b *InMemoryBus) Subscribe(recipient string, handler Handler) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, recipient: recipient, handler: handler}
	b.subs[recipient] = append(b.subs[recipient], sub)
	b.metrics.setSubscriptions(b.subscriptionCount())
	return sub, nil
}

// Unsubscribe removes a subscription. Removing an already-removed
// subscription is a no-op.
func (b *InMemoryBus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.recipient]
	for i, s := range subs {
		if s.id == sub.id {
			b.subs[sub.recipient] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.recipient]) == 0 {
		delete(b.subs, sub.recipient)
	}
	b.metrics.setSubscriptions(b.subscriptionCount())
}

// Stats returns current counters.
func (b *InMemoryBus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Sent:             b.sent,
		Broadcasts:       b.broadcasts,
		Delivered:        b.delivered,
		SubscriberErrors: b.subscriberErrors,
		Evictions:        b.evictions,
		HistorySize:      len(b.history),
		KnownRecipients:  len(b.queues),
		Subscriptions:    b.subscriptionCount(),
	}
}

// Close releases resources. The in-memory backend has none.
func (b *InMemoryBus) Close() error {
	return nil
}

// appendQueue appends to a recipient queue, evicting the oldest entry when
// the cap is reached. Caller holds the lock.
func (b *InMemoryBus) appendQueue(recipient string, msg *models.Message) {
	queue := b.queues[recipient]
	if b.queueCap > 0 && len(queue) >= b.queueCap {
		queue = queue[1:]
		b.evictions++
		b.metrics.observeEviction()
	}
	b.queues[recipient] = append(queue, msg)
}

// appendHistory appends to the global history. Caller holds the lock.
func (b *InMemoryBus) appendHistory(msg *models.Message) {
	if b.historyCap > 0 && len(b.history) >= b.historyCap {
		b.history = b.history[1:]
	}
	b.history = append(b.history, msg)
}

// handlersFor snapshots the subscriptions for a recipient. Caller holds the
// lock; the snapshot lets callbacks run without it.
func (b *InMemoryBus) handlersFor(recipient string) []*Subscription {
	subs := b.subs[recipient]
	if len(subs) == 0 {
		return nil
	}
	return append([]*Subscription(nil), subs...)
}

// notify invokes handlers outside the bus lock so a slow or re-entrant
// subscriber cannot stall routing. Each handler is isolated: an error or
// panic is logged and counted, and the remaining handlers still run.
func (b *InMemoryBus) notify(ctx context.Context, handlers []*Subscription, msg *models.Message) {
	for _, sub := range handlers {
		if err := b.invoke(ctx, sub, msg); err != nil {
			log.Printf("[bus] subscriber %s failed for message %s: %v", sub.recipient, msg.ID, err)
			b.mu.Lock()
			b.subscriberErrors++
			b.mu.Unlock()
			b.metrics.observeSubscriberError()
			continue
		}
		b.mu.Lock()
		b.delivered++
		b.mu.Unlock()
		b.metrics.observeDelivery()
	}
}

func (b *InMemoryBus) invoke(ctx context.Context, sub *Subscription, msg *models.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &subscriberPanicError{value: r}
		}
	}()
	return sub.handler(ctx, msg)
}

func (b *InMemoryBus) enrich(msg *models.Message) {
	if b.enricher == nil {
		return
	}
	b.enricher.Notify(msg)
}

func (b *InMemoryBus) subscriptionCount() int {
	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}

type subscriberPanicError struct {
	value any
}

func (e *subscriberPanicError) Error() string {
	return "subscriber panicked: " + formatPanic(e.value)
}

func formatPanic(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic value"
}

func newMessage(from, to, content, msgType string, metadata map[string]any, executionID string) *models.Message {
	return &models.Message{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		From:        from,
		To:          to,
		Content:     content,
		Type:        msgType,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
}

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/parkerduff/squadron/pkg/models"
)

// DurableConfig configures the JetStream backend.
type DurableConfig struct {
	// URL is the NATS server address.
	URL string
	// Stream is the JetStream stream name.
	Stream string
	// SubjectPrefix roots the subject hierarchy: <prefix>.direct.<recipient>
	// and <prefix>.broadcast.
	SubjectPrefix string
	// ConsumerGroup namespaces durable consumer names, so independent
	// deployments can share a stream.
	ConsumerGroup string
	// MaxMsgs bounds stream retention by message count (0 = unlimited).
	MaxMsgs int64
	// MaxAge bounds stream retention by message age (0 = unlimited).
	MaxAge time.Duration
}

// Validate checks the configuration for startup errors.
func (c DurableConfig) Validate() error {
	if c.URL == "" {
		return &ConfigurationError{Field: "url", Reason: "NATS server URL is required"}
	}
	if c.Stream == "" {
		return &ConfigurationError{Field: "stream", Reason: "stream name is required"}
	}
	if c.SubjectPrefix == "" {
		return &ConfigurationError{Field: "subject_prefix", Reason: "subject prefix is required"}
	}
	if strings.ContainsAny(c.SubjectPrefix, " .*>") {
		return &ConfigurationError{Field: "subject_prefix", Reason: "must be a single subject token"}
	}
	if c.ConsumerGroup == "" {
		return &ConfigurationError{Field: "consumer_group", Reason: "consumer group is required"}
	}
	return nil
}

// DurableBus is the NATS JetStream backend. Messages survive process
// restarts up to the configured retention limits, and push subscribers get
// at-least-once delivery through durable consumers.
type DurableBus struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	cfg    DurableConfig

	mu     sync.Mutex
	nextID int64
	subs   map[int64]*Subscription

	sent             int64
	broadcasts       int64
	delivered        int64
	subscriberErrors int64

	enricher *Enricher
	metrics  *busMetrics
}

// DurableOption customizes a DurableBus.
type DurableOption func(*DurableBus)

// WithDurableEnricher attaches a best-effort enrichment side channel.
func WithDurableEnricher(e *Enricher) DurableOption {
	return func(b *DurableBus) { b.enricher = e }
}

// NewDurableBus connects to NATS and ensures the stream exists with the
// configured retention limits. Existing streams are updated in place.
func NewDurableBus(ctx context.Context, cfg DurableConfig, opts ...DurableOption) (*DurableBus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("squadron-bus"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize JetStream: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "squadron message bus",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxMsgs:     cfg.MaxMsgs,
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}

	b := &DurableBus{
		conn:    conn,
		js:      js,
		stream:  stream,
		cfg:     cfg,
		subs:    make(map[int64]*Subscription),
		metrics: defaultMetrics(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Send publishes a point-to-point message to the recipient's subject. A
// publish failure surfaces as DeliveryDegradedError.
func (b *DurableBus) Send(ctx context.Context, from, to, content, msgType string, metadata map[string]any, executionID string) (*models.Message, error) {
	if to == "" {
		return nil, &ConfigurationError{Field: "to", Reason: "point-to-point send requires a recipient"}
	}

	msg := newMessage(from, to, content, msgType, metadata, executionID)
	if err := b.publish(ctx, b.directSubject(to), msg); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.sent++
	b.mu.Unlock()
	b.metrics.observeSend("direct")
	b.enrich(msg)
	return msg, nil
}

// Broadcast publishes to the shared broadcast subject. Every durable
// consumer filters it in, so all subscribers receive the message; fetches
// see it only for recipients whose queue existed when it was published.
func (b *DurableBus) Broadcast(ctx context.Context, from, content, msgType string, metadata map[string]any, executionID string) (*models.Message, error) {
	msg := newMessage(from, "", content, msgType, metadata, executionID)
	if err := b.publish(ctx, b.broadcastSubject(), msg); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.broadcasts++
	b.mu.Unlock()
	b.metrics.observeSend("broadcast")
	b.enrich(msg)
	return msg, nil
}

// Messages replays the stream for a recipient. The result matches the
// in-memory queue semantics: direct messages always appear, broadcasts only
// from the point the recipient's queue was materialized by its first direct
// message.
func (b *DurableBus) Messages(recipient string, opts FetchOptions) ([]*models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	raw, err := b.replay(ctx, []string{b.directSubject(recipient), b.broadcastSubject()})
	if err != nil {
		return nil, err
	}

	// A broadcast counts only once the recipient's queue exists, i.e. after
	// the first direct message in stream order.
	materialized := false
	var out []*models.Message
	for _, msg := range raw {
		if msg.Broadcast() {
			if !materialized {
				continue
			}
		} else {
			materialized = true
		}
		if !opts.Since.IsZero() && !msg.CreatedAt.After(opts.Since) {
			continue
		}
		if opts.Type != "" && msg.Type != opts.Type {
			continue
		}
		out = append(out, msg)
	}

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[len(out)-opts.Limit:]
	}
	return out, nil
}

// Conversation replays the full stream and filters by execution.
func (b *DurableBus) Conversation(executionID string, limit int) ([]*models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	raw, err := b.replay(ctx, []string{b.cfg.SubjectPrefix + ".>"})
	if err != nil {
		return nil, err
	}

	var out []*models.Message
	for _, msg := range raw {
		if msg.ExecutionID == executionID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Subscribe creates a durable consumer for the recipient and delivers
// messages at-least-once: a handler error triggers redelivery.
func (b *DurableBus) Subscribe(recipient string, handler Handler) (*Subscription, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	consumer, err := b.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:        b.consumerName(recipient),
		FilterSubjects: []string{b.directSubject(recipient), b.broadcastSubject()},
		AckPolicy:      jetstream.AckExplicitPolicy,
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer for %s: %w", recipient, err)
	}

	consumeCtx, err := consumer.Consume(func(jmsg jetstream.Msg) {
		var msg models.Message
		if err := json.Unmarshal(jmsg.Data(), &msg); err != nil {
			log.Printf("[bus] dropping undecodable message on %s: %v", jmsg.Subject(), err)
			// Redelivery cannot fix a malformed payload.
			if err := jmsg.Ack(); err != nil {
				log.Printf("[bus] ack failed: %v", err)
			}
			return
		}

		if err := b.invoke(&msg, handler); err != nil {
			log.Printf("[bus] subscriber %s failed for message %s: %v", recipient, msg.ID, err)
			b.mu.Lock()
			b.subscriberErrors++
			b.mu.Unlock()
			b.metrics.observeSubscriberError()
			if err := jmsg.Nak(); err != nil {
				log.Printf("[bus] nak failed: %v", err)
			}
			return
		}

		b.mu.Lock()
		b.delivered++
		b.mu.Unlock()
		b.metrics.observeDelivery()
		if err := jmsg.Ack(); err != nil {
			log.Printf("[bus] ack failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("start consumer for %s: %w", recipient, err)
	}

	b.mu.Lock()
	b.nextID++
	sub := &Subscription{
		id:        b.nextID,
		recipient: recipient,
		handler:   handler,
		stop:      consumeCtx.Stop,
	}
	b.subs[sub.id] = sub
	b.metrics.setSubscriptions(len(b.subs))
	b.mu.Unlock()
	return sub, nil
}

// Unsubscribe stops the subscription's consumer loop. The durable consumer
// itself is kept, so a later Subscribe for the same recipient resumes where
// it left off.
func (b *DurableBus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	_, active := b.subs[sub.id]
	delete(b.subs, sub.id)
	b.metrics.setSubscriptions(len(b.subs))
	b.mu.Unlock()

	if active && sub.stop != nil {
		sub.stop()
	}
}

// Stats combines local counters with the stream's current message count.
func (b *DurableBus) Stats() Stats {
	b.mu.Lock()
	stats := Stats{
		Sent:             b.sent,
		Broadcasts:       b.broadcasts,
		Delivered:        b.delivered,
		SubscriberErrors: b.subscriberErrors,
		Subscriptions:    len(b.subs),
	}
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if info, err := b.stream.Info(ctx); err == nil {
		stats.HistorySize = int(info.State.Msgs)
	}
	return stats
}

// Close stops all consumer loops and drains the connection.
func (b *DurableBus) Close() error {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[int64]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.stop != nil {
			sub.stop()
		}
	}
	return b.conn.Drain()
}

func (b *DurableBus) publish(ctx context.Context, subject string, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.ID, err)
	}
	if _, err := b.js.Publish(ctx, subject, data); err != nil {
		return &DeliveryDegradedError{Op: "publish", Err: err}
	}
	return nil
}

// replay drains the stream contents matching the given subjects using an
// ephemeral ordered consumer.
func (b *DurableBus) replay(ctx context.Context, subjects []string) ([]*models.Message, error) {
	consumer, err := b.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: subjects,
	})
	if err != nil {
		return nil, fmt.Errorf("create replay consumer: %w", err)
	}

	var out []*models.Message
	for {
		batch, err := consumer.FetchNoWait(100)
		if err != nil {
			return nil, fmt.Errorf("fetch replay batch: %w", err)
		}
		n := 0
		for jmsg := range batch.Messages() {
			n++
			var msg models.Message
			if err := json.Unmarshal(jmsg.Data(), &msg); err != nil {
				log.Printf("[bus] skipping undecodable message on %s: %v", jmsg.Subject(), err)
				continue
			}
			out = append(out, &msg)
		}
		if err := batch.Error(); err != nil {
			return nil, fmt.Errorf("drain replay batch: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

func (b *DurableBus) invoke(msg *models.Message, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &subscriberPanicError{value: r}
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return handler(ctx, msg)
}

func (b *DurableBus) enrich(msg *models.Message) {
	if b.enricher == nil {
		return
	}
	b.enricher.Notify(msg)
}

func (b *DurableBus) directSubject(recipient string) string {
	return b.cfg.SubjectPrefix + ".direct." + subjectToken(recipient)
}

func (b *DurableBus) broadcastSubject() string {
	return b.cfg.SubjectPrefix + ".broadcast"
}

func (b *DurableBus) consumerName(recipient string) string {
	return b.cfg.ConsumerGroup + "-" + subjectToken(recipient)
}

// subjectToken makes an identity safe for use as a NATS subject token.
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '*', '>', '\t':
			return '_'
		}
		return r
	}, s)
}

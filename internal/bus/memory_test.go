package bus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/parkerduff/squadron/pkg/models"
)

func TestSendAppendsToRecipientQueueOnly(t *testing.T) {
	b := NewInMemoryBus()
	ctx := context.Background()

	if _, err := b.Send(ctx, "alice", "bob", "hello", models.MessageTypeQuestion, nil, "exec-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	bobMsgs, err := b.Messages("bob", FetchOptions{})
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(bobMsgs) != 1 || bobMsgs[0].Content != "hello" {
		t.Fatalf("bob queue = %v, want one hello", bobMsgs)
	}

	aliceMsgs, err := b.Messages("alice", FetchOptions{})
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(aliceMsgs) != 0 {
		t.Errorf("alice queue has %d messages, want 0", len(aliceMsgs))
	}
}

func TestSendRequiresRecipient(t *testing.T) {
	b := NewInMemoryBus()
	_, err := b.Send(context.Background(), "alice", "", "x", models.MessageTypeQuestion, nil, "")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("got %v, want ConfigurationError", err)
	}
}

func TestBroadcastReachesKnownQueuesOnly(t *testing.T) {
	b := NewInMemoryBus()
	ctx := context.Background()

	// Materialize bob's and carol's queues with direct traffic.
	b.Send(ctx, "alice", "bob", "hi bob", models.MessageTypeQuestion, nil, "")
	b.Send(ctx, "alice", "carol", "hi carol", models.MessageTypeQuestion, nil, "")

	if _, err := b.Broadcast(ctx, "alice", "standup time", models.MessageTypeStandup, nil, ""); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	for _, recipient := range []string{"bob", "carol"} {
		msgs, _ := b.Messages(recipient, FetchOptions{Type: models.MessageTypeStandup})
		if len(msgs) != 1 {
			t.Errorf("%s got %d standups, want 1", recipient, len(msgs))
		}
	}

	// dave's queue did not exist at broadcast time; a later direct message
	// must not resurrect the earlier broadcast.
	b.Send(ctx, "alice", "dave", "hi dave", models.MessageTypeQuestion, nil, "")
	daveMsgs, _ := b.Messages("dave", FetchOptions{Type: models.MessageTypeStandup})
	if len(daveMsgs) != 0 {
		t.Errorf("dave got %d standups sent before his queue existed, want 0", len(daveMsgs))
	}

	// But dave receives broadcasts from now on.
	b.Broadcast(ctx, "alice", "second standup", models.MessageTypeStandup, nil, "")
	daveMsgs, _ = b.Messages("dave", FetchOptions{Type: models.MessageTypeStandup})
	if len(daveMsgs) != 1 {
		t.Errorf("dave got %d standups after materialization, want 1", len(daveMsgs))
	}
}

func TestConversationOrdering(t *testing.T) {
	b := NewInMemoryBus()
	ctx := context.Background()

	b.Send(ctx, "alice", "bob", "first", models.MessageTypeQuestion, nil, "exec-1")
	b.Send(ctx, "bob", "alice", "second", models.MessageTypeAnswer, nil, "exec-1")
	b.Broadcast(ctx, "alice", "third", models.MessageTypeStatusUpdate, nil, "exec-1")
	b.Send(ctx, "alice", "bob", "other conversation", models.MessageTypeQuestion, nil, "exec-2")

	msgs, err := b.Conversation("exec-1", 0)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, content := range want {
		if msgs[i].Content != content {
			t.Errorf("position %d = %q, want %q", i, msgs[i].Content, content)
		}
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Errorf("creation times out of order at position %d", i)
		}
	}

	limited, _ := b.Conversation("exec-1", 2)
	if len(limited) != 2 || limited[0].Content != "second" {
		t.Errorf("limit should keep the most recent messages in order, got %v", limited)
	}
}

func TestQueueEviction(t *testing.T) {
	b := NewInMemoryBus(WithQueueCap(3))
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three", "four"} {
		b.Send(ctx, "alice", "bob", content, models.MessageTypeStatusUpdate, nil, "")
	}

	msgs, _ := b.Messages("bob", FetchOptions{})
	if len(msgs) != 3 {
		t.Fatalf("queue holds %d, want 3", len(msgs))
	}
	if msgs[0].Content != "two" {
		t.Errorf("oldest message should be evicted, front is %q", msgs[0].Content)
	}
	if got := b.Stats().Evictions; got != 1 {
		t.Errorf("evictions = %d, want 1", got)
	}
}

func TestSubscriberIsolation(t *testing.T) {
	b := NewInMemoryBus()
	ctx := context.Background()

	var mu sync.Mutex
	var delivered []string

	if _, err := b.Subscribe("bob", func(ctx context.Context, msg *models.Message) error {
		return errors.New("subscriber exploded")
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := b.Subscribe("bob", func(ctx context.Context, msg *models.Message) error {
		panic("subscriber panicked")
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := b.Subscribe("bob", func(ctx context.Context, msg *models.Message) error {
		mu.Lock()
		delivered = append(delivered, msg.Content)
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := b.Send(ctx, "alice", "bob", "survives", models.MessageTypeQuestion, nil, ""); err != nil {
		t.Fatalf("send should not fail when subscribers do: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 || delivered[0] != "survives" {
		t.Errorf("well-behaved subscriber got %v, want [survives]", delivered)
	}

	stats := b.Stats()
	if stats.SubscriberErrors != 2 {
		t.Errorf("subscriber errors = %d, want 2", stats.SubscriberErrors)
	}
	if stats.Delivered != 1 {
		t.Errorf("delivered = %d, want 1", stats.Delivered)
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := NewInMemoryBus()
	ctx := context.Background()

	var mu sync.Mutex
	got := make(map[string]int)
	for _, id := range []string{"bob", "carol"} {
		id := id
		b.Subscribe(id, func(ctx context.Context, msg *models.Message) error {
			mu.Lock()
			got[id]++
			mu.Unlock()
			return nil
		})
	}

	b.Broadcast(ctx, "alice", "standup", models.MessageTypeStandup, nil, "")

	mu.Lock()
	defer mu.Unlock()
	if got["bob"] != 1 || got["carol"] != 1 {
		t.Errorf("broadcast deliveries = %v, want one each", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewInMemoryBus()
	ctx := context.Background()

	var count int
	sub, err := b.Subscribe("bob", func(ctx context.Context, msg *models.Message) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b.Send(ctx, "alice", "bob", "one", models.MessageTypeQuestion, nil, "")
	b.Unsubscribe(sub)
	b.Send(ctx, "alice", "bob", "two", models.MessageTypeQuestion, nil, "")

	if count != 1 {
		t.Errorf("handler ran %d times, want 1", count)
	}

	// Unsubscribing twice is harmless.
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)
}

func TestFetchOptions(t *testing.T) {
	b := NewInMemoryBus()
	ctx := context.Background()

	b.Send(ctx, "alice", "bob", "q1", models.MessageTypeQuestion, nil, "")
	mid, _ := b.Send(ctx, "alice", "bob", "s1", models.MessageTypeStatusUpdate, nil, "")
	b.Send(ctx, "alice", "bob", "q2", models.MessageTypeQuestion, nil, "")

	byType, _ := b.Messages("bob", FetchOptions{Type: models.MessageTypeQuestion})
	if len(byType) != 2 {
		t.Errorf("type filter returned %d, want 2", len(byType))
	}

	since, _ := b.Messages("bob", FetchOptions{Since: mid.CreatedAt})
	for _, msg := range since {
		if !msg.CreatedAt.After(mid.CreatedAt) {
			t.Errorf("since filter returned message at %v, not after %v", msg.CreatedAt, mid.CreatedAt)
		}
	}

	limited, _ := b.Messages("bob", FetchOptions{Limit: 1})
	if len(limited) != 1 || limited[0].Content != "q2" {
		t.Errorf("limit should keep the newest message, got %v", limited)
	}
}

func TestStatsCounters(t *testing.T) {
	b := NewInMemoryBus()
	ctx := context.Background()

	b.Send(ctx, "alice", "bob", "x", models.MessageTypeQuestion, nil, "")
	b.Send(ctx, "alice", "carol", "y", models.MessageTypeQuestion, nil, "")
	b.Broadcast(ctx, "alice", "z", models.MessageTypeStandup, nil, "")

	stats := b.Stats()
	if stats.Sent != 2 {
		t.Errorf("sent = %d, want 2", stats.Sent)
	}
	if stats.Broadcasts != 1 {
		t.Errorf("broadcasts = %d, want 1", stats.Broadcasts)
	}
	if stats.KnownRecipients != 2 {
		t.Errorf("known recipients = %d, want 2", stats.KnownRecipients)
	}
	// Two direct messages plus one broadcast in the global history.
	if stats.HistorySize != 3 {
		t.Errorf("history = %d, want 3", stats.HistorySize)
	}
}

package bus

import (
	"log"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/parkerduff/squadron/pkg/models"
)

// MemberLookup resolves a squad member identity to its roster record.
type MemberLookup interface {
	Member(id string) (*models.SquadMember, error)
}

// EventPublisher delivers enrichment events to external observers.
type EventPublisher interface {
	Publish(channel, eventType string, payload any) error
}

// enrichmentCacheSize bounds the roster lookup cache. Rosters are small;
// this exists to keep repeat senders off the store's hot path.
const enrichmentCacheSize = 256

// Enricher is the best-effort side channel attached to bus sends. For every
// routed message it resolves the sender's roster record and publishes an
// annotated event for external observers. Failures anywhere in this path are
// logged and swallowed; the primary delivery has already happened.
type Enricher struct {
	roster    MemberLookup
	publisher EventPublisher
	cache     *lru.Cache[string, *models.SquadMember]
	channel   string
}

// MessageEvent is the payload published for each enriched message.
type MessageEvent struct {
	Message    *models.Message `json:"message"`
	SenderName string          `json:"sender_name,omitempty"`
	SenderRole string          `json:"sender_role,omitempty"`
}

// NewEnricher creates an enrichment side channel publishing to the given
// observer channel.
func NewEnricher(roster MemberLookup, publisher EventPublisher, channel string) *Enricher {
	cache, err := lru.New[string, *models.SquadMember](enrichmentCacheSize)
	if err != nil {
		// Only possible with a non-positive size constant.
		panic(err)
	}
	return &Enricher{
		roster:    roster,
		publisher: publisher,
		cache:     cache,
		channel:   channel,
	}
}

// Notify enriches and publishes one message. Never returns an error:
// enrichment is strictly best-effort.
func (e *Enricher) Notify(msg *models.Message) {
	event := MessageEvent{Message: msg}

	if member := e.lookup(msg.From); member != nil {
		event.SenderName = member.Name
		event.SenderRole = string(member.Role)
	}

	eventType := "message.sent"
	if msg.Broadcast() {
		eventType = "message.broadcast"
	}
	if err := e.publisher.Publish(e.channel, eventType, event); err != nil {
		log.Printf("[bus] enrichment publish failed for message %s: %v", msg.ID, err)
	}
}

func (e *Enricher) lookup(id string) *models.SquadMember {
	if id == "" {
		return nil
	}
	if member, ok := e.cache.Get(id); ok {
		return member
	}
	member, err := e.roster.Member(id)
	if err != nil {
		log.Printf("[bus] enrichment lookup failed for sender %s: %v", id, err)
		return nil
	}
	e.cache.Add(id, member)
	return member
}

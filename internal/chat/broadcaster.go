// ABOUTME: In-memory fan-out of presence events to session subscribers
// ABOUTME: Events are ephemeral; missed ones are recovered via the message log

package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// EventKind categorizes a presence event.
type EventKind string

const (
	EventOpened   EventKind = "opened"
	EventAssigned EventKind = "assigned"
	EventMessage  EventKind = "message"
	EventTyping   EventKind = "typing"
	EventClosed   EventKind = "closed"
)

// PresenceEvent is an ephemeral notification of session activity. It is
// never persisted and is consumed at most once per subscriber per emission.
// For message events Seq matches the persisted sequence number so a
// subscriber can detect and repair gaps with Read.
type PresenceEvent struct {
	SessionID string    `json:"session_id"`
	Kind      EventKind `json:"kind"`
	Seq       int64     `json:"seq,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Body      string    `json:"body,omitempty"`
	At        time.Time `json:"at"`
}

// Broadcaster provides in-memory pub/sub for presence events. Subscribers
// register for a session ID and receive events as they are published. The
// channel makes no durability guarantee: a subscriber that disconnects
// catches up through the message log, not through the broadcaster.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *PresenceEvent // sessionID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *PresenceEvent),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events on the given session.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled, so an abnormal disconnect releases its resources.
func (b *Broadcaster) Subscribe(ctx context.Context, sessionID string) (<-chan *PresenceEvent, string) {
	subID := uuid.New().String()
	ch := make(chan *PresenceEvent, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[sessionID]; !ok {
		b.subscribers[sessionID] = make(map[string]chan *PresenceEvent)
	}
	b.subscribers[sessionID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"session_id", sessionID,
		"sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(sessionID, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of the given session in
// emission order. If excludeSubID is non-empty, that subscriber is skipped
// (used so typing events don't echo back to the originator).
// Non-blocking: events are dropped for subscribers whose channels are full.
//
// Sends happen under the read lock. Unsubscribe closes channels under the
// write lock, so a channel can never be closed while a send is in flight.
func (b *Broadcaster) Publish(sessionID string, event *PresenceEvent, excludeSubID string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers[sessionID] {
		if excludeSubID != "" && id == excludeSubID {
			continue
		}
		select {
		case ch <- event:
			// Sent
		default:
			// Subscriber channel full; the message log covers the gap
			b.logger.Debug("dropped event for slow subscriber",
				"session_id", sessionID,
				"kind", event.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel. It has no
// effect on persisted state.
func (b *Broadcaster) Unsubscribe(sessionID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sessionID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	// Clean up empty session entries
	if len(subs) == 0 {
		delete(b.subscribers, sessionID)
	}

	b.logger.Debug("subscriber removed",
		"session_id", sessionID,
		"sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sessionID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, sessionID)
	}

	b.logger.Debug("broadcaster closed")
}

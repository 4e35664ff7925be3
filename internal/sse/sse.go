// Package sse implements the SSE Broadcaster (component H): process-wide pub/sub with a
// bounded per-subscriber queue, liveness ping, and drop-on-stall.
package sse

import (
	"fmt"
	"sync"
	"time"

	"github.com/fleetward/fleetward/internal/models"
)

// queueSize is the bounded per-subscriber delivery queue.
const queueSize = 100

// pingInterval is the liveness ping period; the sole liveness mechanism (§4.8).
const pingInterval = 10 * time.Second

// Message is one framed SSE message.
type Message struct {
	Event   string
	Payload string
}

// Frame renders the message in SSE wire format.
func (m Message) Frame() string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", m.Event, m.Payload)
}

// Subscription is a bounded channel of messages for one subscriber.
type Subscription struct {
	UserID string
	ch     chan Message
}

// C returns the channel handlers should range over to stream frames to the client.
func (s *Subscription) C() <-chan Message { return s.ch }

// Broadcaster is the SSE Broadcaster.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[*Subscription]bool
	stopPing    chan struct{}
}

// New constructs a Broadcaster and starts its liveness-ping ticker.
func New() *Broadcaster {
	b := &Broadcaster{
		subscribers: make(map[*Subscription]bool),
		stopPing:    make(chan struct{}),
	}
	go b.pingLoop()
	return b
}

// Subscribe allocates a bounded-queue Subscription for userID.
func (b *Broadcaster) Subscribe(userID string) *Subscription {
	sub := &Subscription{UserID: userID, ch: make(chan Message, queueSize)}
	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Publish enqueues event/payload to every current subscriber; a stalled subscriber (full
// queue) is dropped rather than blocking the publisher.
func (b *Broadcaster) Publish(event, payload string) {
	msg := Message{Event: event, Payload: payload}
	b.mu.Lock()
	stale := b.sendToAllLocked(msg)
	b.mu.Unlock()
	b.dropStale(stale)
}

// PublishTo addresses a single subscriber by user id; a missing subscriber is reported as
// a non-fatal NotFound error rather than treated as a system failure.
func (b *Broadcaster) PublishTo(userID, event, payload string) error {
	msg := Message{Event: event, Payload: payload}
	b.mu.Lock()
	var target *Subscription
	for sub := range b.subscribers {
		if sub.UserID == userID {
			target = sub
			break
		}
	}
	if target == nil {
		b.mu.Unlock()
		return models.NewAPIError(models.KindNotFound, "no active subscription for user")
	}
	ok := trySend(target, msg)
	b.mu.Unlock()
	if !ok {
		b.dropStale([]*Subscription{target})
	}
	return nil
}

func (b *Broadcaster) sendToAllLocked(msg Message) []*Subscription {
	var stale []*Subscription
	for sub := range b.subscribers {
		if !trySend(sub, msg) {
			stale = append(stale, sub)
		}
	}
	return stale
}

func trySend(sub *Subscription, msg Message) bool {
	select {
	case sub.ch <- msg:
		return true
	default:
		return false
	}
}

func (b *Broadcaster) dropStale(stale []*Subscription) {
	for _, sub := range stale {
		b.Unsubscribe(sub)
	}
}

func (b *Broadcaster) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.Publish("ping", "{}")
		case <-b.stopPing:
			return
		}
	}
}

// Close stops the ping loop. Existing subscriptions are left for callers to unsubscribe.
func (b *Broadcaster) Close() {
	close(b.stopPing)
}

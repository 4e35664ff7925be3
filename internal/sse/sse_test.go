package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	s1 := b.Subscribe("u1")
	s2 := b.Subscribe("u2")

	b.Publish("minion-update", `{"id":"m1"}`)

	msg1 := <-s1.C()
	msg2 := <-s2.C()
	assert.Equal(t, "minion-update", msg1.Event)
	assert.Equal(t, "minion-update", msg2.Event)
}

func TestPublishToMissingSubscriberIsNotFound(t *testing.T) {
	b := New()
	defer b.Close()

	err := b.PublishTo("ghost", "event", "{}")
	require.Error(t, err)
}

func TestPublishToStalledSubscriberDropsItWithoutBlocking(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("u1")
	for i := 0; i < queueSize; i++ {
		b.Publish("fill", "{}")
	}
	// Queue is now full; one more publish must not block, and must drop the subscriber.
	b.Publish("overflow", "{}")

	b.mu.Lock()
	_, stillSubscribed := b.subscribers[sub]
	b.mu.Unlock()
	assert.False(t, stillSubscribed)
}

func TestMessageFrameFormatsSSEWire(t *testing.T) {
	msg := Message{Event: "ping", Payload: "{}"}
	assert.Equal(t, "event: ping\ndata: {}\n\n", msg.Frame())
}

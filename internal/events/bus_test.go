package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(8, nil)

	ch, unsub := bus.Subscribe()
	defer unsub()

	bus.Publish(TypeChannelReady, map[string]any{"cid": 3})

	select {
	case evt := <-ch:
		assert.Equal(t, TypeChannelReady, evt.Type)
		assert.Equal(t, 3, evt.Data["cid"])
		assert.WithinDuration(t, time.Now(), evt.Time, time.Second)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(8, nil)

	ch, unsub := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())

	unsub()
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	// Second call is a no-op.
	unsub()
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus(2, nil)

	ch, unsub := bus.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TypeMetrics, map[string]any{"i": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}

	// Buffer holds at most the first two events.
	assert.Len(t, ch, 2)
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus(8, nil)

	ch1, unsub1 := bus.Subscribe()
	ch2, unsub2 := bus.Subscribe()
	defer unsub1()
	defer unsub2()

	bus.Publish(TypeAllStopped, nil)

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			assert.Equal(t, TypeAllStopped, evt.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

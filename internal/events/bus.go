// Package events provides the in-process event bus that fans application
// events out to SSE subscribers and other listeners.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lavacast/lavacast/internal/observability"
)

// Event types published on the bus.
const (
	TypeChannelReady      = "channel_ready"
	TypeTranscodeStart    = "transcode_start"
	TypeTranscodeProgress = "transcode_progress"
	TypeTranscodeError    = "transcode_error"
	TypeStreamStopped     = "stream_stopped"
	TypeStreamRestarted   = "stream_restarted"
	TypeAllStopped        = "all_stopped"
	TypeMetrics           = "metrics"
)

// Event is a single bus message. Data carries the type-specific payload and
// marshals directly into the SSE data field.
type Event struct {
	Type string         `json:"type"`
	Time time.Time      `json:"time"`
	Data map[string]any `json:"data,omitempty"`
}

// Bus fans events out to subscribers over buffered channels. Slow
// subscribers have events dropped rather than blocking publishers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	bufferSize  int
	logger      *slog.Logger
}

// NewBus creates an event bus. bufferSize is the per-subscriber channel
// depth; values below 1 get a sane default.
func NewBus(bufferSize int, logger *slog.Logger) *Bus {
	if bufferSize < 1 {
		bufferSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]chan Event),
		bufferSize:  bufferSize,
		logger:      observability.WithComponent(logger, "events"),
	}
}

// Subscribe registers a new subscriber and returns its channel along with an
// unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	id := uuid.New().String()
	ch := make(chan Event, b.bufferSize)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "subscriber_id", id)

	return ch, func() {
		b.mu.Lock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
		b.mu.Unlock()
	}
}

// Publish delivers an event to all subscribers without blocking. Events for
// full subscriber buffers are dropped.
func (b *Bus) Publish(eventType string, data map[string]any) {
	evt := Event{Type: eventType, Time: time.Now(), Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.logger.Debug("dropping event for slow subscriber",
				"subscriber_id", id, "event_type", eventType)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

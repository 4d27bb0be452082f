package server

import (
	"context"
	"sync"

	"github.com/spacesedan/sentiboard/internal/models"
)

const subscriberBuffer = 8

// Hub sequences data-updated events and fans them out to websocket
// subscribers and long-poll waiters. Only the latest event is retained.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	latest  *models.RealtimeEvent
	subs    map[chan models.RealtimeEvent]struct{}
	changed chan struct{}
	metrics *Metrics
}

func NewHub(metrics *Metrics) *Hub {
	return &Hub{
		subs:    make(map[chan models.RealtimeEvent]struct{}),
		changed: make(chan struct{}),
		metrics: metrics,
	}
}

// Publish assigns the next sequence number to a data-updated event carrying
// stats and delivers it. Subscribers that are behind lose the event; the
// next one supersedes it anyway.
func (h *Hub) Publish(stats models.StatsResponse) models.RealtimeEvent {
	h.mu.Lock()
	h.seq++
	event := models.RealtimeEvent{Event: models.EventDataUpdated, Seq: h.seq, Data: &stats}
	h.latest = &event
	close(h.changed)
	h.changed = make(chan struct{})

	dropped := 0
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	h.metrics.broadcast(dropped)
	return event
}

// Latest returns the most recent event, if any was published.
func (h *Hub) Latest() (models.RealtimeEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return models.RealtimeEvent{}, false
	}
	return *h.latest, true
}

// Subscribe registers a buffered event channel. The returned func removes it.
func (h *Hub) Subscribe() (<-chan models.RealtimeEvent, func()) {
	ch := make(chan models.RealtimeEvent, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	h.metrics.subscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			h.metrics.subscribers.Dec()
		})
	}
}

// Wait returns the latest event once its sequence exceeds cursor, blocking
// until one is published or ctx ends. A cursor ahead of this hub's sequence
// was issued by another instance or before a restart: the latest event is
// returned at once so the caller can adopt its sequence, and with nothing
// published yet the wait is for the first event.
func (h *Hub) Wait(ctx context.Context, cursor uint64) (models.RealtimeEvent, bool) {
	for {
		h.mu.Lock()
		latest, changed, seq := h.latest, h.changed, h.seq
		h.mu.Unlock()

		if cursor > seq {
			if latest != nil {
				return *latest, true
			}
			cursor = 0
		}
		if latest != nil && latest.Seq > cursor {
			return *latest, true
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return models.RealtimeEvent{}, false
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

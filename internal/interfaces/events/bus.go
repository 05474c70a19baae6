// Package events implements the real-time transport §6 requires: an
// in-process fan-out implementing hitl.Publisher, with an optional
// gorilla/websocket hub for external subscribers. Grounded on the hub
// shape from the sniper-terminal reference repo in the example pack,
// adapted from a single price-ticker broadcaster to a typed domain-event
// bus with per-subscriber buffered channels instead of a raw conn map.
package events

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sentinel/internal/domain/hitl"
)

// Bus fans out hitl.Event to every registered subscriber. Publish never
// blocks on a slow subscriber: a full subscriber channel drops the event
// and logs a warning rather than stalling the gateway.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan hitl.Event
	next int
}

// NewBus builds an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan hitl.Event)}
}

// Subscribe registers a new listener with a buffered channel of depth
// bufSize and returns it alongside an unsubscribe func.
func (b *Bus) Subscribe(bufSize int) (<-chan hitl.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan hitl.Event, bufSize)
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Publish implements hitl.Publisher.
func (b *Bus) Publish(ev hitl.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Int("subscriber_id", id).Str("event_type", string(ev.Type)).
				Msg("events: subscriber channel full, dropping event")
		}
	}
}

// Package bus provides an instance-scoped publish/subscribe channel for
// generated subscription fields. Every generator owns one Bus, so multiple
// server instances in one process never cross-publish.
package bus

import (
	"sync"

	"github.com/ew-kislov/apigen/store"
)

// Event is one entity change published on a topic.
type Event struct {
	Topic  string       `json:"topic"`
	Record store.Record `json:"record"`
}

// Bus fans events out to topic subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Event
	nextID int
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[int]chan Event)}
}

// Publish delivers the event to every subscriber of its topic.
func (b *Bus) Publish(topic string, rec store.Record) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	ev := Event{Topic: topic, Record: rec}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a subscriber for the topic and returns its receive
// channel plus a cancel func. The channel is closed on cancel or bus close.
func (b *Bus) Subscribe(topic string, buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan Event)
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[topic][id]; ok {
				delete(b.subs[topic], id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close shuts the bus down and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, topic := range b.subs {
		for id, ch := range topic {
			delete(topic, id)
			close(ch)
		}
	}
}

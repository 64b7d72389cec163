// Package bus provides the in-process publish/subscribe channel used for the
// flat-backend broadcast-on-write protocol. Cross-process propagation is
// layered on top by the flat store's file watcher.
package bus

import "sync"

// Topic identifies a class of change notifications.
type Topic string

const (
	SessionsChanged Topic = "sessions.changed"
	ProjectsChanged Topic = "projects.changed"
	SettingsChanged Topic = "settings.changed"
)

// Bus fans change notifications out to subscribers. Handlers run
// synchronously on the publishing goroutine.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[Topic]map[int]func()
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic]map[int]func())}
}

// Subscribe registers fn for a topic and returns a function that removes the
// subscription. Stores subscribe on construction and unsubscribe on Close.
func (b *Bus) Subscribe(topic Topic, fn func()) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]func())
	}
	id := b.next
	b.next++
	b.subs[topic][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish invokes every handler subscribed to the topic.
func (b *Bus) Publish(topic Topic) {
	b.mu.Lock()
	handlers := make([]func(), 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

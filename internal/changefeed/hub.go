// Package changefeed delivers "something changed" notifications for stored
// records to in-process subscribers.
package changefeed

import "sync"

// Topics published by the stores. The key of a user event is the user id, the
// key of a message event is the group id.
const (
	TopicUser     = "user_changed"
	TopicMessages = "messages_changed"
)

// Publisher announces a change of the record identified by (topic, key).
type Publisher interface {
	Publish(topic, key string)
}

// Subscriber registers interest in changes of (topic, key).
type Subscriber interface {
	Subscribe(topic, key string) *Subscription
}

type subKey struct {
	topic string
	key   string
}

// Hub fans notifications out to subscribers. Notifications carry no payload:
// subscribers re-read the record, so pending notifications coalesce.
type Hub struct {
	mu   sync.Mutex
	subs map[subKey]map[*Subscription]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[subKey]map[*Subscription]struct{})}
}

// Subscription receives a value on C after every change of its record. At most
// one notification is buffered.
type Subscription struct {
	C <-chan struct{}

	c    chan struct{}
	hub  *Hub
	key  subKey
	once sync.Once
}

// Subscribe registers a new subscription for (topic, key).
func (h *Hub) Subscribe(topic, key string) *Subscription {
	c := make(chan struct{}, 1)
	s := &Subscription{C: c, c: c, hub: h, key: subKey{topic: topic, key: key}}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.key]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[s.key] = set
	}
	set[s] = struct{}{}
	return s
}

// Publish notifies every subscriber of (topic, key) without blocking.
func (h *Hub) Publish(topic, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[subKey{topic: topic, key: key}] {
		select {
		case s.c <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions for (topic, key).
func (h *Hub) Subscribers(topic, key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[subKey{topic: topic, key: key}])
}

// Stop unregisters the subscription. It is safe to call more than once.
// C is never closed; select on your own done channel alongside it.
func (s *Subscription) Stop() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		set := h.subs[s.key]
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.key)
		}
	})
}

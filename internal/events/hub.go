package events

import (
	"sync"

	"go.uber.org/zap"
)

// Hub fans events out to subscribers. Publishers never block: a subscriber
// whose buffer is full loses the event (logged), matching how the device
// sessions must stay decoupled from slow consumers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	logger *zap.Logger
}

// Subscription is one consumer's handle. Events arrive on C; Close detaches
// from the hub and closes C.
type Subscription struct {
	C chan Event

	hub   *Hub
	types map[Type]struct{} // nil means all types
	once  sync.Once
}

const subscriptionBuffer = 256

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers a consumer for the given event types, or for every
// type when none are named.
func (h *Hub) Subscribe(types ...Type) *Subscription {
	sub := &Subscription{
		C:   make(chan Event, subscriptionBuffer),
		hub: h,
	}
	if len(types) > 0 {
		sub.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Publish delivers an event to every matching subscriber.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if sub.types != nil {
			if _, ok := sub.types[evt.Type]; !ok {
				continue
			}
		}
		select {
		case sub.C <- evt:
		default:
			h.logger.Warn("Subscriber buffer full, event dropped",
				zap.String("event_type", string(evt.Type)))
		}
	}
}

// SubscriberCount returns the number of attached subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close detaches the subscription and closes its channel. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.C)
	})
}

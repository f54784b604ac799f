package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Hub fans events out to live subscribers of the same tenant
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]*Subscription
}

// Subscription receives the events of one tenant
type Subscription struct {
	id     int
	tenant string
	types  map[string]bool
	ch     chan Event
	hub    *Hub
	once   sync.Once
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]*Subscription)}
}

// Subscribe registers interest in events of tenant. No types means every type.
func (h *Hub) Subscribe(tenant string, types ...string) *Subscription {
	sub := &Subscription{
		tenant: tenant,
		types:  make(map[string]bool, len(types)),
		ch:     make(chan Event, 32),
		hub:    h,
	}
	for _, t := range types {
		sub.types[t] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub.id = h.nextID
	if h.subs[tenant] == nil {
		h.subs[tenant] = make(map[int]*Subscription)
	}
	h.subs[tenant][sub.id] = sub
	return sub
}

// Events returns the delivery channel. It is closed on Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close unregisters the subscription
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs[s.tenant], s.id)
		if len(s.hub.subs[s.tenant]) == 0 {
			delete(s.hub.subs, s.tenant)
		}
		s.hub.mu.Unlock()
		close(s.ch)
	})
}

// Publish implements Publisher. Slow subscribers lose events rather than block the publisher.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs[event.Tenant] {
		if len(sub.types) > 0 && !sub.types[event.Type] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			logrus.WithFields(logrus.Fields{
				"tenant": event.Tenant,
				"type":   event.Type,
			}).Warn("Subscriber queue full, event dropped")
		}
	}
	return nil
}

// Count returns the number of subscribers of tenant
func (h *Hub) Count(tenant string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenant])
}

package activity

import "sync"

// Hub is an in-process Port. Platform adapters (the gateway middleware, a terminal
// key reader) call Emit; trackers subscribe to it.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]hubSubscription
}

type hubSubscription struct {
	signals map[Signal]struct{}
	handler func(Signal)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]hubSubscription)}
}

func (h *Hub) Subscribe(signals []Signal, handler func(Signal)) func() {
	set := make(map[Signal]struct{}, len(signals))
	for _, s := range signals {
		set[s] = struct{}{}
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = hubSubscription{signals: set, handler: handler}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Emit delivers the signal to every subscriber listening for it.
func (h *Hub) Emit(signal Signal) {
	h.mu.RLock()
	handlers := make([]func(Signal), 0, len(h.subs))
	for _, sub := range h.subs {
		if _, ok := sub.signals[signal]; ok {
			handlers = append(handlers, sub.handler)
		}
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(signal)
	}
}

// Listeners returns the number of live subscriptions.
func (h *Hub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

var _ Port = (*Hub)(nil)

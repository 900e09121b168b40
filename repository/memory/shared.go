package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/fastygo/storefront-session/repository"
)

// Shared is an in-process durable store shared by several tabs. Each tab opens its own
// Handle; a change made through one handle is delivered synchronously to the
// subscribers of every other handle, mirroring the browser storage event.
type Shared struct {
	mu       sync.Mutex
	data     map[string]string
	handlers map[*subscription]struct{}
}

type subscription struct {
	origin  string
	handler func(repository.Change)
}

// NewShared creates an empty shared store.
func NewShared() *Shared {
	return &Shared{
		data:     make(map[string]string),
		handlers: make(map[*subscription]struct{}),
	}
}

// Open returns a new handle with its own origin.
func (s *Shared) Open() *Handle {
	return &Handle{shared: s, origin: uuid.NewString()}
}

// Subscribers returns the number of live subscriptions across all handles.
func (s *Shared) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

func (s *Shared) apply(origin string, values map[string]string, removed []string) {
	s.mu.Lock()
	before := make(map[string]string, len(s.data))
	for k, v := range s.data {
		before[k] = v
	}
	keys := make([]string, 0, len(values)+len(removed))
	for key, value := range values {
		s.data[key] = value
		keys = append(keys, key)
	}
	for _, key := range removed {
		delete(s.data, key)
		keys = append(keys, key)
	}
	changes := repository.Diff(keys, before, s.data, origin)
	targets := make([]*subscription, 0, len(s.handlers))
	for sub := range s.handlers {
		if sub.origin != origin {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, change := range changes {
		for _, sub := range targets {
			sub.handler(change)
		}
	}
}

// Handle is one tab's view of a Shared store.
type Handle struct {
	shared *Shared
	origin string
}

// Origin identifies changes made through this handle.
func (h *Handle) Origin() string {
	return h.origin
}

func (h *Handle) Get(_ context.Context, keys []string) (map[string]string, error) {
	h.shared.mu.Lock()
	defer h.shared.mu.Unlock()

	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if value, ok := h.shared.data[key]; ok {
			out[key] = value
		}
	}
	return out, nil
}

func (h *Handle) Commit(_ context.Context, values map[string]string) error {
	h.shared.apply(h.origin, values, nil)
	return nil
}

func (h *Handle) Remove(_ context.Context, keys []string) error {
	h.shared.apply(h.origin, nil, keys)
	return nil
}

func (h *Handle) Subscribe(_ context.Context, handler func(repository.Change)) (func(), error) {
	sub := &subscription{origin: h.origin, handler: handler}
	h.shared.mu.Lock()
	h.shared.handlers[sub] = struct{}{}
	h.shared.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.shared.mu.Lock()
			delete(h.shared.handlers, sub)
			h.shared.mu.Unlock()
		})
	}, nil
}

func (h *Handle) Ping(context.Context) error {
	return nil
}

func (h *Handle) Close() error {
	return nil
}

var _ repository.DurableStore = (*Handle)(nil)

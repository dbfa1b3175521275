package changefeed

import (
	"context"
	"errors"
	"sync"
)

// Memory is an in-process feed. Publish runs every attached handler
// synchronously, which keeps local runs and tests deterministic.
type Memory struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

func NewMemory() *Memory {
	return &Memory{handlers: make(map[int]Handler)}
}

// Attach registers h and returns a function removing it.
func (m *Memory) Attach(h Handler) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.handlers[id] = h
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.handlers, id)
		m.mu.Unlock()
	}
}

func (m *Memory) Publish(ctx context.Context, ev Event) error {
	m.mu.RLock()
	handlers := make([]Handler, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Memory) Subscribe(ctx context.Context, h Handler) error {
	detach := m.Attach(h)
	defer detach()

	<-ctx.Done()
	return nil
}

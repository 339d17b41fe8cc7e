// Package events carries the "backend data changed" signal between
// independent consumers. Subscribers register explicitly and get a function
// to unregister, so nothing listens on an ambient global.
package events

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// Kind names an event type.
type Kind string

// DataChanged is published once per successful dataset upload.
const DataChanged Kind = "data_changed"

// Event is a notification delivered to subscribers.
type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Files      []string  `json:"files,omitempty"`
	HasOutflow bool      `json:"has_outflow"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

// Handler receives events. It runs on the publisher's goroutine.
type Handler func(ctx context.Context, e Event)

// Publisher broadcasts events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers.
type Subscriber interface {
	Subscribe(h Handler) (unsubscribe func())
}

// Bus is an in-process publish/subscribe channel.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]Handler
}

var (
	_ Publisher  = (*Bus)(nil)
	_ Subscriber = (*Bus)(nil)
)

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[uint64]Handler)}
}

// Subscribe adds h. The returned function removes it and is safe to call twice.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to every current subscriber, in subscription order.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, e)
	}
	return nil
}

// Len reports how many handlers are subscribed.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// Multi fans an event out to several publishers. Every publisher is tried;
// failures are joined.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

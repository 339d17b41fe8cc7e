// Package dashboard holds headless view models for the dashboard pages.
//
// A view loads its data through the api service and keeps the last
// snapshot with its loading and error state. A Session mounts views, ties
// each to a cancellable context and refetches them when the dataset changes.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"fluxo/internal/log"
)

// View is a page that can (re)load its data.
type View interface {
	Name() string
	Load(ctx context.Context) error
}

// State is a snapshot of a view.
type State[T any] struct {
	Loading  bool
	Err      error
	Data     T
	LoadedAt time.Time
}

// Panel is a View backed by a load function. Each successful load replaces
// the previous data; a failed load keeps it and records the error.
type Panel[T any] struct {
	name   string
	load   func(ctx context.Context) (T, error)
	logger *log.Logger

	mu    sync.Mutex
	seq   uint64
	state State[T]
}

// NewPanel creates a Panel named name.
func NewPanel[T any](name string, load func(ctx context.Context) (T, error), logger *log.Logger) *Panel[T] {
	if logger == nil {
		logger = log.Default()
	}
	return &Panel[T]{
		name:   name,
		load:   load,
		logger: logger.WithComponent(log.ComponentDashboard).With(log.FieldView, name),
	}
}

func (p *Panel[T]) Name() string { return p.name }

// State returns a copy of the current snapshot.
func (p *Panel[T]) State() State[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Load fetches fresh data. The result is dropped when ctx was cancelled
// while loading or when a newer load started meanwhile.
func (p *Panel[T]) Load(ctx context.Context) error {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.state.Loading = true
	p.mu.Unlock()

	start := time.Now()
	data, err := p.load(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	if ctx.Err() != nil || seq != p.seq {
		p.logger.Debug("Discarding stale result", "seq", seq)
		if seq == p.seq {
			p.state.Loading = false
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return nil
	}

	p.state.Loading = false
	if err != nil {
		p.state.Err = err
		if !errors.Is(err, context.Canceled) {
			p.logger.Warn("View load failed", log.FieldError, err)
		}
		return err
	}
	p.state.Err = nil
	p.state.Data = data
	p.state.LoadedAt = time.Now()
	p.logger.Debug("View loaded", log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

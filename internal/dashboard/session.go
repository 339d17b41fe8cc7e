package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"fluxo/internal/events"
	"fluxo/internal/log"
)

var (
	ErrAlreadyMounted = errors.New("view already mounted")
	ErrNotMounted     = errors.New("view not mounted")
	ErrSessionClosed  = errors.New("session closed")
)

// LoadFunc observes every completed load of a mounted view.
type LoadFunc func(name string, err error)

type mount struct {
	view        View
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	// guarded by Session.mu
	running bool
	dirty   bool
}

// Session owns the mounted views. Each view gets a context that is
// cancelled on unmount, so in-flight requests are aborted and their
// results ignored.
type Session struct {
	bus    events.Subscriber
	logger *log.Logger
	onLoad LoadFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	mounted map[string]*mount
	closed  bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLoadObserver registers fn to be called after every load.
func WithLoadObserver(fn LoadFunc) SessionOption {
	return func(s *Session) { s.onLoad = fn }
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(l *log.Logger) SessionOption {
	return func(s *Session) { s.logger = l.WithComponent(log.ComponentDashboard) }
}

// NewSession creates a session whose views refetch on bus events.
func NewSession(ctx context.Context, bus events.Subscriber, opts ...SessionOption) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		bus:     bus,
		logger:  log.Default().WithComponent(log.ComponentDashboard),
		ctx:     ctx,
		cancel:  cancel,
		mounted: make(map[string]*mount),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mount subscribes v to data changes and performs its initial load. The
// view stays mounted when the initial load fails.
func (s *Session) Mount(v View) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if _, ok := s.mounted[v.Name()]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyMounted, v.Name())
	}
	ctx, cancel := context.WithCancel(s.ctx)
	m := &mount{view: v, ctx: ctx, cancel: cancel}
	m.unsubscribe = s.bus.Subscribe(func(_ context.Context, e events.Event) {
		if e.Kind != events.DataChanged {
			return
		}
		s.schedule(m)
	})
	s.mounted[v.Name()] = m
	s.mu.Unlock()

	s.logger.Debug("View mounted", log.FieldView, v.Name())
	return s.load(m)
}

// Unmount cancels the view's in-flight requests and stops its refreshes.
func (s *Session) Unmount(name string) error {
	s.mu.Lock()
	m, ok := s.mounted[name]
	if ok {
		delete(s.mounted, name)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMounted, name)
	}
	m.unsubscribe()
	m.cancel()
	s.logger.Debug("View unmounted", log.FieldView, name)
	return nil
}

// Refresh reloads a mounted view now.
func (s *Session) Refresh(name string) error {
	s.mu.Lock()
	m, ok := s.mounted[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMounted, name)
	}
	return s.load(m)
}

// Mounted lists the mounted view names in order.
func (s *Session) Mounted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.mounted))
	for name := range s.mounted {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Wait blocks until refreshes triggered by events have finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close unmounts every view and waits for pending refreshes.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	mounted := s.mounted
	s.mounted = make(map[string]*mount)
	s.mu.Unlock()

	for _, m := range mounted {
		m.unsubscribe()
		m.cancel()
	}
	s.cancel()
	s.wg.Wait()
}

// schedule starts a background reload of m. A change that arrives while a
// reload is running marks the mount dirty, and exactly one more load follows
// the running one.
func (s *Session) schedule(m *mount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || m.ctx.Err() != nil {
		return
	}
	if m.running {
		m.dirty = true
		return
	}
	m.running = true
	s.wg.Add(1)
	go s.reload(m)
}

func (s *Session) reload(m *mount) {
	defer s.wg.Done()
	for {
		_ = s.load(m)

		s.mu.Lock()
		again := m.dirty && !s.closed && m.ctx.Err() == nil
		m.dirty = false
		if !again {
			m.running = false
		}
		s.mu.Unlock()
		if !again {
			return
		}
		s.logger.Debug("Data changed during load, reloading", log.FieldView, m.view.Name())
	}
}

func (s *Session) load(m *mount) error {
	err := m.view.Load(m.ctx)
	if s.onLoad != nil && m.ctx.Err() == nil {
		s.onLoad(m.view.Name(), err)
	}
	return err
}

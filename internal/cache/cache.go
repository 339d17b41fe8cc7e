// Package cache provides a bounded LRU cache with TTL and the message
// deduplication built on it.
package cache

import (
	"context"
	"time"

	"fluxo/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

var _ Cache[struct{}] = (*LRUCache[struct{}])(nil)

// Deduper remembers recently seen ids so redelivered messages can be skipped.
type Deduper struct {
	seen *LRUCache[time.Time]
}

// NewDeduper remembers up to size ids for ttl each.
func NewDeduper(size int, ttl time.Duration) *Deduper {
	return &Deduper{seen: NewLRUCache[time.Time](size, ttl)}
}

// FirstSeen marks id as seen and reports whether it was new. Empty ids are
// always new.
func (d *Deduper) FirstSeen(id string) bool {
	if id == "" {
		return true
	}
	return d.seen.SetIfAbsent(id, d.seen.now())
}

// Forget drops id so a later delivery is processed again.
func (d *Deduper) Forget(id string) {
	d.seen.Delete(id)
}

// CleanExpired implements Cleaner.
func (d *Deduper) CleanExpired() int {
	return d.seen.CleanExpired()
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically evicts expired entries from registered caches.
type Manager struct {
	caches []Cleaner
	logger *log.Logger
	done   chan struct{}
}

// NewManager creates a new cache manager
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{logger: logger.WithComponent(log.ComponentCache)}
}

// Register adds a cache to the manager for cleanup. Call before Start.
func (m *Manager) Register(c Cleaner) {
	m.caches = append(m.caches, c)
}

// Start runs cleanup every interval until ctx is done.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := m.CleanAll(); n > 0 {
					m.logger.Debug("Evicted expired cache entries", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// CleanAll runs one cleanup pass and returns the number of evicted entries.
func (m *Manager) CleanAll() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Wait blocks until the cleanup goroutine started by Start has exited.
func (m *Manager) Wait() {
	if m.done != nil {
		<-m.done
	}
}

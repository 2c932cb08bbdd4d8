// Package lease gates worker registration with the job master.
//
// A worker first acquires a short-lived register lease, then registers,
// which consumes the lease. Registered workers stay live as long as they
// heartbeat within the TTL. The number of outstanding leases is bounded so
// a burst of workers cannot all register at once.
package lease

import (
	"sync"
	"time"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

const (
	// DefaultTTL is how long a lease or a registration lives without renewal.
	DefaultTTL = 30 * time.Second
	// DefaultMaxLeases bounds outstanding, unconsumed leases.
	DefaultMaxLeases = 25
)

// Option configures a Manager.
type Option interface {
	apply(*Manager)
}

type optionFunc func(*Manager)

func (f optionFunc) apply(m *Manager) { f(m) }

// WithTTL sets the lease and registration lifetime.
func WithTTL(d time.Duration) Option {
	return optionFunc(func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	})
}

// WithMaxLeases bounds how many leases may be outstanding at once.
func WithMaxLeases(n int) Option {
	return optionFunc(func(m *Manager) {
		if n > 0 {
			m.maxLeases = n
		}
	})
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(m *Manager) {
		if now != nil {
			m.now = now
		}
	})
}

// Manager tracks register leases and live worker registrations.
type Manager struct {
	mu        sync.Mutex
	ttl       time.Duration
	maxLeases int
	now       func() time.Time

	leases  map[string]time.Time
	workers map[string]time.Time
}

// NewManager creates a Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		ttl:       DefaultTTL,
		maxLeases: DefaultMaxLeases,
		now:       time.Now,
		leases:    make(map[string]time.Time),
		workers:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt.apply(m)
	}
	return m
}

// TryAcquire grants workerID a register lease. An existing lease is
// extended. It returns false when the lease budget is exhausted.
func (m *Manager) TryAcquire(workerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.expireLocked(now)

	if _, ok := m.leases[workerID]; !ok && len(m.leases) >= m.maxLeases {
		return false
	}
	m.leases[workerID] = now.Add(m.ttl)
	return true
}

// Register consumes workerID's lease and marks the worker live. Without a
// valid lease it returns *core.LeaseNotFoundError.
func (m *Manager) Register(workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.expireLocked(now)

	if _, ok := m.leases[workerID]; !ok {
		return &core.LeaseNotFoundError{WorkerID: workerID}
	}
	delete(m.leases, workerID)
	m.workers[workerID] = now.Add(m.ttl)
	return nil
}

// Heartbeat renews a registration. A worker whose registration expired must
// acquire a new lease and register again.
func (m *Manager) Heartbeat(workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.expireLocked(now)

	if _, ok := m.workers[workerID]; !ok {
		return &core.LeaseNotFoundError{WorkerID: workerID}
	}
	m.workers[workerID] = now.Add(m.ttl)
	return nil
}

// Unregister removes a worker and any lease it holds.
func (m *Manager) Unregister(workerID string) {
	m.mu.Lock()
	delete(m.workers, workerID)
	delete(m.leases, workerID)
	m.mu.Unlock()
}

// LiveWorkers returns the number of registered workers that have not
// expired.
func (m *Manager) LiveWorkers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(m.now())
	return len(m.workers)
}

// OutstandingLeases returns the number of unconsumed, unexpired leases.
func (m *Manager) OutstandingLeases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(m.now())
	return len(m.leases)
}

func (m *Manager) expireLocked(now time.Time) {
	for id, until := range m.leases {
		if !now.Before(until) {
			delete(m.leases, id)
		}
	}
	for id, until := range m.workers {
		if !now.Before(until) {
			delete(m.workers, id)
		}
	}
}

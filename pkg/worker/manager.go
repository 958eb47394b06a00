package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/events"
	"github.com/cuemby/fabrik/pkg/oplog"
	"github.com/cuemby/fabrik/pkg/runtime"
	"github.com/cuemby/fabrik/pkg/storage"
)

// Manager owns every Actor active on this host: the runtime's "global
// mutable state" for active workers (spec.md §9), generalizing warren's
// worker.Worker's single-node container map into a table of actors.
// pkg/rpc's fabric enqueues directly against a Manager when the target
// worker is local (the direct-path optimization, spec.md §4.3).
type Manager struct {
	Engine  runtime.Engine
	Oplog   oplog.Appender
	Store   storage.Store
	Limiter *Limiter
	Broker  *events.Broker

	mu     sync.RWMutex
	actors map[string]*Actor
}

// NewManager creates a host-local worker Manager.
func NewManager(engine runtime.Engine, log oplog.Appender, store storage.Store, limiter *Limiter, broker *events.Broker) *Manager {
	return &Manager{
		Engine:  engine,
		Oplog:   log,
		Store:   store,
		Limiter: limiter,
		Broker:  broker,
		actors:  make(map[string]*Actor),
	}
}

// Activate starts (or returns the existing) Actor for a worker. It writes
// no component metadata or worker record to Store (spec.md
// WorkerAlreadyExists is only raised by the
// registry's explicit Create operation, not by Activate's idempotent
// get-or-start semantics).
func (m *Manager) Activate(ctx context.Context, id domain.WorkerId, meta domain.ComponentMetadata) (*Actor, error) {
	m.mu.Lock()
	if a, ok := m.actors[id.String()]; ok {
		m.mu.Unlock()
		return a, nil
	}
	a := NewActor(id, m.Engine, m.Oplog, m.Limiter, m.Broker)
	m.actors[id.String()] = a
	m.mu.Unlock()

	if err := a.Start(ctx, meta); err != nil {
		m.mu.Lock()
		delete(m.actors, id.String())
		m.mu.Unlock()
		return nil, fmt.Errorf("activate worker %s: %w", id, err)
	}
	return a, nil
}

// Lookup returns the local Actor for id, or false if it is not active
// on this host (the caller should treat this as WorkerNotFound-locally,
// distinct from InvalidShardId which means "wrong host entirely").
func (m *Manager) Lookup(id domain.WorkerId) (*Actor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actors[id.String()]
	return a, ok
}

// Deactivate stops and removes a worker's actor from this host, e.g.
// before a shard handoff.
func (m *Manager) Deactivate(id domain.WorkerId) error {
	m.mu.Lock()
	a, ok := m.actors[id.String()]
	delete(m.actors, id.String())
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return a.Stop()
}

// List returns every actor currently active on this host.
func (m *Manager) List() []*Actor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Actor, 0, len(m.actors))
	for _, a := range m.actors {
		out = append(out, a)
	}
	return out
}

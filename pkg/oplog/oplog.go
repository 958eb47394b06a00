// Package oplog provides the durable, replicated log of a worker's
// execution history: the Service API that the worker runtime appends to
// and replays from, backed by a pkg/cluster Raft group.
package oplog

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cuemby/fabrik/pkg/cluster"
	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/events"
	"github.com/cuemby/fabrik/pkg/log"
	"github.com/cuemby/fabrik/pkg/metrics"
	"github.com/cuemby/fabrik/pkg/storage"
)

type appendOplogEntryCmd struct {
	Worker domain.WorkerId
	Entry  domain.OplogEntry
}

func marshalAppendCommand(worker domain.WorkerId, entry *domain.OplogEntry) (json.RawMessage, error) {
	return json.Marshal(appendOplogEntryCmd{Worker: worker, Entry: *entry})
}

type truncateOplogCmd struct {
	Worker      domain.WorkerId
	BeforeIndex domain.OplogIndex
}

func marshalTruncate(worker domain.WorkerId, beforeIndex domain.OplogIndex) json.RawMessage {
	data, _ := json.Marshal(truncateOplogCmd{Worker: worker, BeforeIndex: beforeIndex})
	return data
}

func marshalWorkerID(worker domain.WorkerId) json.RawMessage {
	data, _ := json.Marshal(worker)
	return data
}

// Service is the oplog API a worker actor calls against. It assigns
// indices, proposes appends through the cluster's Raft group, and serves
// reads straight from the local store (Invariant O1: the store only
// reflects committed entries).
type Service struct {
	cluster *cluster.Cluster
	store   storage.Store

	mu           sync.Mutex
	nextIndex    map[string]domain.OplogIndex
	regionOpen   map[string]bool
	broker       *events.Broker
	snapshotEach int
	sinceSnap    map[string]int
}

// NewService creates an oplog Service over a cluster's Raft group and
// local store. snapshotEvery is the number of appends per worker after
// which Append itself emits a compaction Snapshot entry (Open Question
// OQ-1: resolved as an every-N cadence, default 100; N counts appended
// entries, not invocations).
func NewService(c *cluster.Cluster, store storage.Store, broker *events.Broker, snapshotEvery int) *Service {
	if snapshotEvery <= 0 {
		snapshotEvery = 100
	}
	return &Service{
		cluster:      c,
		store:        store,
		nextIndex:    make(map[string]domain.OplogIndex),
		regionOpen:   make(map[string]bool),
		broker:       broker,
		snapshotEach: snapshotEvery,
		sinceSnap:    make(map[string]int),
	}
}

// Append proposes the next OplogEntry for a worker, assigning its index
// from the last committed entry. It is the only write path into a
// worker's durable history.
func (s *Service) Append(worker domain.WorkerId, kind domain.OplogEntryKind, payload interface{}) (*domain.OplogEntry, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.OplogAppendDuration)

	s.mu.Lock()
	idx, ok := s.nextIndex[worker.String()]
	if !ok {
		last, err := s.store.LastOplogIndex(worker)
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("failed to read last oplog index: %w", err)
		}
		idx = last
	}
	idx++
	s.nextIndex[worker.String()] = idx
	s.mu.Unlock()

	entry, err := domain.NewOplogEntry(idx, kind, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode oplog entry: %w", err)
	}

	data, err := marshalAppendCommand(worker, entry)
	if err != nil {
		return nil, err
	}

	if err := s.cluster.Apply(cluster.Command{Op: cluster.OpAppendOplogEntry, Data: data}); err != nil {
		return nil, fmt.Errorf("failed to append oplog entry: %w", err)
	}

	metrics.OplogEntriesTotal.WithLabelValues(string(kind)).Inc()
	if s.broker != nil {
		s.broker.Publish(&events.Event{
			Type:     events.EventOplogAppended,
			Message:  worker.String(),
			Metadata: map[string]string{"kind": string(kind), "index": fmt.Sprint(idx)},
		})
	}

	s.mu.Lock()
	s.sinceSnap[worker.String()]++
	shouldSnapshot := s.sinceSnap[worker.String()] >= s.snapshotEach
	if shouldSnapshot {
		s.sinceSnap[worker.String()] = 0
	}
	s.mu.Unlock()

	if shouldSnapshot && kind != domain.EntrySnapshot {
		if _, err := s.Snapshot(worker); err != nil {
			log.Errorf("failed to emit cadence snapshot for "+worker.String()+": %v", err)
		}
	}

	return entry, nil
}

// Read returns every oplog entry for a worker with index >= fromIndex,
// in order. Replaying the returned slice from empty state reconstructs
// the worker's WorkerStatus deterministically (Invariant O1).
func (s *Service) Read(worker domain.WorkerId, fromIndex domain.OplogIndex) ([]*domain.OplogEntry, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.OplogReplayDuration, worker.String())

	entries, err := s.store.ListOplogEntries(worker, fromIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to read oplog: %w", err)
	}
	return entries, nil
}

// LastIndex returns the highest committed index for a worker, or 0 if
// it has no oplog yet.
func (s *Service) LastIndex(worker domain.WorkerId) (domain.OplogIndex, error) {
	return s.store.LastOplogIndex(worker)
}

// BeginRegion opens an atomic region: every entry appended until the
// matching CommitRegion is replayed as a single unit on crash recovery
// (Invariant O3 — an interrupted region is rolled back, not partially
// replayed).
func (s *Service) BeginRegion(worker domain.WorkerId) (*domain.OplogEntry, error) {
	s.mu.Lock()
	if s.regionOpen[worker.String()] {
		s.mu.Unlock()
		return nil, fmt.Errorf("atomic region already open for worker %s", worker)
	}
	s.regionOpen[worker.String()] = true
	s.mu.Unlock()

	return s.Append(worker, domain.EntryBeginAtomicRegion, nil)
}

// CommitRegion closes the most recently opened atomic region.
func (s *Service) CommitRegion(worker domain.WorkerId) (*domain.OplogEntry, error) {
	s.mu.Lock()
	if !s.regionOpen[worker.String()] {
		s.mu.Unlock()
		return nil, fmt.Errorf("no atomic region open for worker %s", worker)
	}
	s.regionOpen[worker.String()] = false
	s.mu.Unlock()

	return s.Append(worker, domain.EntryEndAtomicRegion, nil)
}

// Snapshot appends a compaction marker and then truncates every entry
// before it (the worker runtime's in-memory state is the actual snapshot
// payload; the oplog only records that a compaction point exists at this
// index and does not store that state).
func (s *Service) Snapshot(worker domain.WorkerId) (*domain.OplogEntry, error) {
	entry, err := s.Append(worker, domain.EntrySnapshot, nil)
	if err != nil {
		return nil, err
	}

	if err := s.cluster.Apply(cluster.Command{
		Op:   cluster.OpTruncateOplog,
		Data: marshalTruncate(worker, entry.Index),
	}); err != nil {
		log.Errorf("failed to truncate oplog for "+worker.String()+": %v", err)
	}

	if s.broker != nil {
		s.broker.Publish(&events.Event{Type: events.EventOplogSnapshot, Message: worker.String()})
	}
	metrics.SnapshotsTotal.WithLabelValues("cadence").Inc()

	return entry, nil
}

// Delete removes a worker's entire oplog, used when a worker is
// permanently decommissioned.
func (s *Service) Delete(worker domain.WorkerId) error {
	return s.cluster.Apply(cluster.Command{Op: cluster.OpDeleteOplog, Data: marshalWorkerID(worker)})
}

// Appender is the subset of Service's API an Actor depends on, extracted
// as an interface so tests can substitute a fake oplog instead of
// standing up a real Raft cluster (the "testing seam" called for in
// spec.md §9 Design Notes). *Service satisfies it directly.
type Appender interface {
	Append(worker domain.WorkerId, kind domain.OplogEntryKind, payload interface{}) (*domain.OplogEntry, error)
	Read(worker domain.WorkerId, fromIndex domain.OplogIndex) ([]*domain.OplogEntry, error)
	LastIndex(worker domain.WorkerId) (domain.OplogIndex, error)
}

package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/metrics"
	"github.com/cuemby/fabrik/pkg/rpc/wire"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// scheduleTable is the fabric's persistent schedule driver for
// InvokeScheduled/InvokeCancelable: a scheduled invocation is recorded
// both as a PendingWorkerInvocation oplog entry (so a crash before it
// fires is recoverable on replay) and as a one-shot robfig/cron entry
// that actually fires the call. Cancel removes the cron entry before it
// runs; after it has fired the token is inert, matching
// "at-least-once-fires-or-cancelled" semantics (spec.md §4.3).
type scheduleTable struct {
	fabric *Fabric
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func newScheduleTable(f *Fabric) *scheduleTable {
	c := cron.New(cron.WithSeconds())
	c.Start()
	return &scheduleTable{
		fabric:  f,
		cron:    c,
		entries: make(map[string]cron.EntryID),
	}
}

// add registers req to fire once at req.ScheduledFor.
func (s *scheduleTable) add(req *wire.InvokeRequest) (string, error) {
	if req.ScheduledFor == nil {
		return "", domain.ErrInvalidRequest("scheduled invocation missing ScheduledFor")
	}

	token := uuid.NewString()
	if _, err := s.fabric.Oplog.Append(req.Worker, domain.EntryPendingWorkerInvoke, domain.PendingWorkerInvocationPayload{
		InvocationId:   token,
		FunctionName:   req.Function,
		Args:           req.Args,
		IdempotencyKey: req.IdempotencyKey,
		ScheduledFor:   req.ScheduledFor,
		CancelToken:    token,
	}); err != nil {
		return "", fmt.Errorf("record scheduled invocation: %w", err)
	}

	spec := cronSpecAt(*req.ScheduledFor)
	reqCopy := *req
	id, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		if entryID, ok := s.entries[token]; ok {
			s.cron.Remove(entryID)
		}
		delete(s.entries, token)
		s.mu.Unlock()
		metrics.ScheduledInvocationsFired.Inc()
		_, _ = s.fabric.runLocal(context.Background(), &reqCopy)
	})
	if err != nil {
		return "", fmt.Errorf("schedule invocation: %w", err)
	}

	s.mu.Lock()
	s.entries[token] = id
	s.mu.Unlock()
	return token, nil
}

// cancel removes a scheduled entry, returning false if it already fired
// or never existed.
func (s *scheduleTable) cancel(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[token]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, token)
	return true
}

// cronSpecAt builds a one-shot robfig/cron (with-seconds) schedule for
// a single fixed instant: "sec min hour dom month *". robfig/cron has
// no native one-shot primitive, so the callback in add() removes its
// own entry the moment it fires.
func cronSpecAt(at time.Time) string {
	return fmt.Sprintf("%d %d %d %d %d *", at.Second(), at.Minute(), at.Hour(), at.Day(), int(at.Month()))
}

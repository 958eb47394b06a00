package worker

import (
	"context"
	"sync"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/metrics"
)

// Limiter is the process-wide, per-account fuel/memory budget guard
// (spec.md §5: "guarded by an async mutex; the limiter blocks, not
// spins, when over quota"). It generalizes warren's NodeResources
// allocated/capacity bookkeeping from per-node CPU/mem/disk to
// fuel/memory. Budgets are keyed by the worker's ComponentId: Borrow,
// Return and GrowMemory look up the accountID given to SetCapacity under
// worker.ComponentId, so there is no account dimension separate from the
// component.
type Limiter struct {
	DefaultFuel uint64

	mu        sync.Mutex
	cond      *sync.Cond
	capacity  map[string]accountBudget
	allocated map[string]accountBudget
}

type accountBudget struct {
	Fuel   uint64
	Memory int64
}

// NewLimiter creates a Limiter with a default per-invocation fuel grant.
func NewLimiter(defaultFuel uint64) *Limiter {
	l := &Limiter{
		DefaultFuel: defaultFuel,
		capacity:    make(map[string]accountBudget),
		allocated:   make(map[string]accountBudget),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// SetCapacity configures an account's total fuel/memory budget. Workers
// of that account are denied growth past it (spec.md §4.2 Fuel & memory).
func (l *Limiter) SetCapacity(accountID string, fuel uint64, memory int64) {
	l.mu.Lock()
	l.capacity[accountID] = accountBudget{Fuel: fuel, Memory: memory}
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Borrow blocks (never spins) until accountID has fuel available, or ctx
// is done. A zero-capacity account (none configured) is treated as
// unbounded, matching warren's "no limit configured" default.
func (l *Limiter) Borrow(ctx context.Context, worker domain.WorkerId, fuel uint64) error {
	accountID := worker.ComponentId

	waitDone := make(chan struct{})
	go func() {
		l.mu.Lock()
		for {
			cap, bounded := l.capacity[accountID]
			if !bounded {
				break
			}
			alloc := l.allocated[accountID]
			if alloc.Fuel+fuel <= cap.Fuel {
				break
			}
			select {
			case <-ctx.Done():
				l.mu.Unlock()
				close(waitDone)
				return
			default:
			}
			l.cond.Wait()
		}
		alloc := l.allocated[accountID]
		alloc.Fuel += fuel
		l.allocated[accountID] = alloc
		l.mu.Unlock()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	metrics.FuelBorrowedTotal.WithLabelValues(accountID).Add(float64(fuel))
	return nil
}

// Return releases fuel borrowed by a prior Borrow call, waking any
// blocked borrower that might now fit.
func (l *Limiter) Return(worker domain.WorkerId, fuel uint64) {
	accountID := worker.ComponentId
	l.mu.Lock()
	alloc := l.allocated[accountID]
	if alloc.Fuel >= fuel {
		alloc.Fuel -= fuel
	} else {
		alloc.Fuel = 0
	}
	l.allocated[accountID] = alloc
	l.cond.Broadcast()
	l.mu.Unlock()
}

// GrowMemory negotiates a memory-grow request against the account's
// configured ceiling, denying growth past quota rather than blocking
// (a memory grow cannot wait the way fuel can: the component is asking
// for more linear memory right now).
func (l *Limiter) GrowMemory(worker domain.WorkerId, deltaBytes int64) error {
	accountID := worker.ComponentId
	l.mu.Lock()
	defer l.mu.Unlock()

	cap, bounded := l.capacity[accountID]
	if !bounded {
		return nil
	}
	alloc := l.allocated[accountID]
	if alloc.Memory+deltaBytes > cap.Memory {
		return domain.ErrOutOfMemory(worker)
	}
	alloc.Memory += deltaBytes
	l.allocated[accountID] = alloc
	return nil
}

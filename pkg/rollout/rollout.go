package rollout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/log"
	"github.com/cuemby/fabrik/pkg/metrics"
	"github.com/cuemby/fabrik/pkg/worker"
	"github.com/rs/zerolog"
)

// Plan describes one rollout: the worker ids to update, the target
// component version to update them to, and how to batch the work.
type Plan struct {
	Workers     []domain.WorkerId
	Target      domain.ComponentMetadata
	Mode        domain.UpdateMode
	Parallelism int
	BatchDelay  time.Duration
}

// Result summarizes a completed or aborted rollout.
type Result struct {
	Updated []domain.WorkerId
	Failed  map[string]error
}

// Rollout batches worker.Actor.Update calls across a component's
// workers that are active on this host.
type Rollout struct {
	manager *worker.Manager
	logger  zerolog.Logger
}

// NewRollout creates a Rollout driven against the given host-local
// worker Manager.
func NewRollout(manager *worker.Manager) *Rollout {
	return &Rollout{
		manager: manager,
		logger:  log.WithComponent("rollout"),
	}
}

// Run executes plan, updating batches of Parallelism workers at a time
// with a BatchDelay pause between batches. It aborts and returns after
// the first batch containing any failure, leaving subsequent batches
// untouched.
func (r *Rollout) Run(ctx context.Context, plan Plan) (*Result, error) {
	if plan.Parallelism <= 0 {
		plan.Parallelism = 1
	}
	mode := string(plan.Mode)
	timer := metrics.NewTimer()

	result := &Result{Failed: map[string]error{}}
	batches := batch(plan.Workers, plan.Parallelism)

	for i, b := range batches {
		r.logger.Info().Int("batch", i+1).Int("of", len(batches)).Int("size", len(b)).Msg("starting rollout batch")

		errs := r.updateBatch(ctx, b, plan.Target, plan.Mode)
		for id, err := range errs {
			result.Failed[id] = err
		}
		for _, id := range b {
			if _, failed := errs[id.String()]; !failed {
				result.Updated = append(result.Updated, id)
			}
		}

		if len(errs) > 0 {
			metrics.RolloutsTotal.WithLabelValues(mode, "failed").Inc()
			timer.ObserveDurationVec(metrics.RolloutDuration, mode)
			return result, fmt.Errorf("rollout aborted: batch %d had %d failures", i+1, len(errs))
		}

		if i < len(batches)-1 && plan.BatchDelay > 0 {
			select {
			case <-time.After(plan.BatchDelay):
			case <-ctx.Done():
				metrics.RolloutsTotal.WithLabelValues(mode, "canceled").Inc()
				timer.ObserveDurationVec(metrics.RolloutDuration, mode)
				return result, ctx.Err()
			}
		}
	}

	metrics.RolloutsTotal.WithLabelValues(mode, "succeeded").Inc()
	timer.ObserveDurationVec(metrics.RolloutDuration, mode)
	return result, nil
}

// updateBatch concurrently updates every worker in b, returning a map
// of worker id string to error for any that failed.
func (r *Rollout) updateBatch(ctx context.Context, b []domain.WorkerId, target domain.ComponentMetadata, mode domain.UpdateMode) map[string]error {
	var mu sync.Mutex
	errs := make(map[string]error)
	var wg sync.WaitGroup

	for _, id := range b {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			actor, ok := r.manager.Lookup(id)
			if !ok {
				mu.Lock()
				errs[id.String()] = fmt.Errorf("worker %s not active on this host", id)
				mu.Unlock()
				return
			}
			if err := actor.Update(ctx, target, mode); err != nil {
				r.logger.Error().Err(err).Str("worker", id.String()).Msg("worker update failed")
				mu.Lock()
				errs[id.String()] = err
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}

// batch splits ids into contiguous groups of at most size n.
func batch(ids []domain.WorkerId, n int) [][]domain.WorkerId {
	var out [][]domain.WorkerId
	for i := 0; i < len(ids); i += n {
		end := i + n
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[i:end])
	}
	return out
}

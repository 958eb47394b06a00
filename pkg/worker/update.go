package worker

import (
	"context"
	"fmt"

	"github.com/cuemby/fabrik/pkg/domain"
)

// Update applies the worker Update Protocol (spec.md §4.2) to a single
// actor: record PendingUpdate, wait for the in-flight invocation to
// drain, reload against the target component version, and record the
// outcome. pkg/rollout drives this across every durable worker of a
// component when a deployment activates a new revision.
func (a *Actor) Update(ctx context.Context, target domain.ComponentMetadata, mode domain.UpdateMode) error {
	if _, err := a.Oplog.Append(a.ID, domain.EntryPendingUpdate, domain.PendingUpdatePayload{
		TargetVersion: target.Version,
		UpdateMode:    mode,
	}); err != nil {
		return err
	}

	a.drain()

	switch mode {
	case domain.UpdateModeSnapshot:
		return a.updateSnapshot(ctx, target)
	default:
		return a.updateAutomatic(ctx, target)
	}
}

// drain blocks until no invocation is in flight and the queue is empty,
// i.e. until the current invocation (if any) completes.
func (a *Actor) drain() {
	a.mu.Lock()
	for len(a.queue) > 0 {
		a.queueCond.Wait()
	}
	a.mu.Unlock()
}

// updateAutomatic reloads the component and continues replaying its
// history against the new version: no snapshot call, the new code must
// interpret the old oplog directly.
func (a *Actor) updateAutomatic(ctx context.Context, target domain.ComponentMetadata) error {
	mod, err := a.Engine.Download(ctx, target.ComponentId, target.Version)
	if err != nil {
		return a.failUpdate(target.Version, fmt.Sprintf("download: %v", err))
	}
	limits := domain.ResourceLimits{FuelLimit: a.Limiter.DefaultFuel, MemoryLimitByte: target.MemoryLimitBytes}
	inst, err := a.Engine.Instantiate(ctx, mod, limits)
	if err != nil {
		return a.failUpdate(target.Version, fmt.Sprintf("instantiate: %v", err))
	}

	if err := a.replay(ctx); err != nil {
		inst.Close()
		return a.failUpdate(target.Version, fmt.Sprintf("replay: %v", err))
	}

	a.mu.Lock()
	old := a.instance
	a.module = mod
	a.instance = inst
	a.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return a.succeedUpdate(target.Version)
}

// updateSnapshot calls the component's exported snapshot function,
// reloads the target version, and calls its load function with that
// payload (spec.md §4.2 Snapshot-based update). The payload is passed in
// memory only; it is not written to the oplog or to storage.
func (a *Actor) updateSnapshot(ctx context.Context, target domain.ComponentMetadata) error {
	a.mu.Lock()
	inst := a.instance
	a.mu.Unlock()

	payload, err := inst.Snapshot(ctx)
	if err != nil {
		return a.failUpdate(target.Version, fmt.Sprintf("snapshot: %v", err))
	}

	mod, err := a.Engine.Download(ctx, target.ComponentId, target.Version)
	if err != nil {
		return a.failUpdate(target.Version, fmt.Sprintf("download: %v", err))
	}
	limits := domain.ResourceLimits{FuelLimit: a.Limiter.DefaultFuel, MemoryLimitByte: target.MemoryLimitBytes}
	newInst, err := a.Engine.Instantiate(ctx, mod, limits)
	if err != nil {
		return a.failUpdate(target.Version, fmt.Sprintf("instantiate: %v", err))
	}
	if err := newInst.Load(ctx, payload); err != nil {
		newInst.Close()
		return a.failUpdate(target.Version, fmt.Sprintf("load: %v", err))
	}

	a.mu.Lock()
	old := a.instance
	a.module = mod
	a.instance = newInst
	a.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return a.succeedUpdate(target.Version)
}

// failUpdate writes FailedUpdate and leaves the worker on its current
// version, still running (spec.md §4.2: "the worker keeps its current
// version and continues").
func (a *Actor) failUpdate(target int, reason string) error {
	a.Oplog.Append(a.ID, domain.EntryFailedUpdate, domain.FailedUpdatePayload{TargetVersion: target, Reason: reason})
	a.setPhase(PhaseLive)
	return domain.ErrUpdateFailed(a.ID, reason)
}

func (a *Actor) succeedUpdate(target int) error {
	_, err := a.Oplog.Append(a.ID, domain.EntrySuccessfulUpdate, domain.SuccessfulUpdatePayload{TargetVersion: target})
	a.setPhase(PhaseLive)
	return err
}

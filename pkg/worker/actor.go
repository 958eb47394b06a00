package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/events"
	"github.com/cuemby/fabrik/pkg/log"
	"github.com/cuemby/fabrik/pkg/metrics"
	"github.com/cuemby/fabrik/pkg/oplog"
	"github.com/cuemby/fabrik/pkg/runtime"
)

// Phase is the worker actor's local lifecycle phase, finer-grained than
// domain.WorkerStatus: it additionally distinguishes Loading/Replaying,
// which Status collapses into "idle".
type Phase string

const (
	PhaseCreated    Phase = "created"
	PhaseLoading    Phase = "loading"
	PhaseReplaying  Phase = "replaying"
	PhaseLive       Phase = "live"
	PhaseSuspended  Phase = "suspended"
	PhaseInterrupt  Phase = "interrupted"
	PhaseFailed     Phase = "failed"
	PhaseExited     Phase = "exited"
)

// Invocation is one request queued against an actor.
type Invocation struct {
	Function       string
	Args           json.RawMessage
	IdempotencyKey string
	Context        domain.InvocationContext
	Reply          chan InvocationResult
}

// InvocationResult is delivered on an Invocation's Reply channel, and to
// every other caller that shares its IdempotencyKey (at most one
// execution per key, spec.md §4.2 Idempotency).
type InvocationResult struct {
	Output json.RawMessage
	Trap   domain.TrapKind
	Err    error
}

// Actor owns a single worker's execution for its active lifetime on this
// host. At most one invocation executes at a time (spec.md §4.2).
type Actor struct {
	ID      domain.WorkerId
	Engine  runtime.Engine
	Oplog   oplog.Appender
	Limiter *Limiter
	Broker  *events.Broker
	Retry   RetryPolicy

	mu        sync.Mutex
	phase     Phase
	instance  runtime.Instance
	module    runtime.Module
	queue     []*Invocation
	queueCond *sync.Cond
	stopCh    chan struct{}

	// completed maps an idempotency key to its recorded result so a
	// retried invocation never re-executes (spec.md §4.2 Idempotency).
	completed map[string]InvocationResult
	// waiters lets multiple callers that share an in-flight key all
	// observe the same result once it lands.
	waiters map[string][]chan InvocationResult

	resources *ResourceStore
	retries   int
}

// NewActor creates an Actor in PhaseCreated. Call Start to begin
// replay-seeded activation.
func NewActor(id domain.WorkerId, engine runtime.Engine, log oplog.Appender, limiter *Limiter, broker *events.Broker) *Actor {
	a := &Actor{
		ID:        id,
		Engine:    engine,
		Oplog:     log,
		Limiter:   limiter,
		Broker:    broker,
		Retry:     DefaultRetryPolicy(),
		phase:     PhaseCreated,
		completed: make(map[string]InvocationResult),
		waiters:   make(map[string][]chan InvocationResult),
		resources: NewResourceStore(),
		stopCh:    make(chan struct{}),
	}
	a.queueCond = sync.NewCond(&a.mu)
	return a
}

// Phase returns the actor's current lifecycle phase.
func (a *Actor) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// Status projects the actor's Phase onto the spec's WorkerStatus state
// machine (Created/Loading/Replaying collapse to "idle" until Live).
func (a *Actor) Status() domain.WorkerStatus {
	switch a.Phase() {
	case PhaseCreated, PhaseLoading, PhaseReplaying:
		return domain.WorkerStatusIdle
	case PhaseLive:
		return domain.WorkerStatusRunning
	case PhaseSuspended:
		return domain.WorkerStatusSuspended
	case PhaseInterrupt:
		return domain.WorkerStatusSuspended
	case PhaseFailed:
		return domain.WorkerStatusFailed
	case PhaseExited:
		return domain.WorkerStatusExited
	default:
		return domain.WorkerStatusIdle
	}
}

// Start activates the worker: downloads its component, replays its
// history, then begins dispatching queued invocations. Start returns
// once the actor has flipped to live mode (or failed).
func (a *Actor) Start(ctx context.Context, meta domain.ComponentMetadata) error {
	a.setPhase(PhaseLoading)

	mod, err := a.Engine.Download(ctx, meta.ComponentId, meta.Version)
	if err != nil {
		a.fail(fmt.Errorf("download component: %w", err))
		return err
	}
	limits := domain.ResourceLimits{FuelLimit: a.Limiter.DefaultFuel, MemoryLimitByte: meta.MemoryLimitBytes}
	inst, err := a.Engine.Instantiate(ctx, mod, limits)
	if err != nil {
		a.fail(fmt.Errorf("instantiate component: %w", err))
		return err
	}

	a.mu.Lock()
	a.module = mod
	a.instance = inst
	a.mu.Unlock()

	if err := a.replay(ctx); err != nil {
		a.fail(fmt.Errorf("replay: %w", err))
		return err
	}

	a.setPhase(PhaseLive)
	a.publish(events.EventWorkerCreated)
	go a.dispatchLoop(ctx)
	return nil
}

// replay reads the worker's full oplog, restores the resource table from
// CreateResource/DropResource entries and, for each ExportedFunctionInvoked
// entry with an ExportedFunctionCompleted partner, primes the
// completed-invocation cache so a later Invoke with the same idempotency
// key short-circuits instead of re-executing (spec.md §4.1 replay-seeded
// execution).
func (a *Actor) replay(ctx context.Context) error {
	a.setPhase(PhaseReplaying)
	last, err := a.Oplog.LastIndex(a.ID)
	if err != nil {
		return err
	}
	if last == 0 {
		return nil
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.OplogReplayDuration, a.ID.String())

	entries, err := a.Oplog.Read(a.ID, 1)
	if err != nil {
		return err
	}
	entries = EffectiveReplayEntries(entries)
	for _, e := range entries {
		switch e.Kind {
		case domain.EntryExportedFunctionCompl:
			var p domain.ExportedFunctionCompletedPayload
			if err := e.Decode(&p); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrInvalidRequest("malformed ExportedFunctionCompleted"), err)
			}
			// Find the matching invoke entry's idempotency key by
			// scanning backward is unnecessary: the key is carried on
			// the invoke entry itself, so we index by invocation id and
			// resolve on a second pass below.
		case domain.EntryCreateResource:
			var p domain.CreateResourcePayload
			if err := e.Decode(&p); err == nil {
				a.resources.restore(p.ResourceId, p.TypeName)
			}
		case domain.EntryDropResource:
			var p domain.DropResourcePayload
			if err := e.Decode(&p); err == nil {
				a.resources.drop(p.ResourceId)
			}
		}
	}

	// Second pass: pair ExportedFunctionInvoked with the following
	// ExportedFunctionCompleted by InvocationId so idempotent
	// replays can be served without re-invoking the component.
	byID := map[string]*domain.ExportedFunctionInvokedPayload{}
	for _, e := range entries {
		if e.Kind == domain.EntryExportedFunctionInvoke {
			var p domain.ExportedFunctionInvokedPayload
			if err := e.Decode(&p); err == nil {
				cp := p
				byID[p.InvocationId] = &cp
			}
		}
	}
	for _, e := range entries {
		if e.Kind != domain.EntryExportedFunctionCompl {
			continue
		}
		var p domain.ExportedFunctionCompletedPayload
		if err := e.Decode(&p); err != nil {
			continue
		}
		invoked, ok := byID[p.InvocationId]
		if !ok || invoked.IdempotencyKey == "" {
			continue
		}
		a.completed[invoked.IdempotencyKey] = InvocationResult{Output: p.Result}
	}
	return nil
}

func (a *Actor) setPhase(p Phase) {
	a.mu.Lock()
	a.phase = p
	a.mu.Unlock()
}

func (a *Actor) fail(err error) {
	a.mu.Lock()
	a.phase = PhaseFailed
	a.mu.Unlock()
	log.Errorf("worker %s failed: %v", a.ID, err)
	a.publish(events.EventWorkerFailed)
}

func (a *Actor) publish(t events.EventType) {
	if a.Broker == nil {
		return
	}
	a.Broker.Publish(&events.Event{Type: t, Message: a.ID.String()})
}

// Enqueue admits an invocation into the FIFO queue. While the actor is
// replaying, the invocation is buffered and dispatched only after live
// mode begins, in FIFO order (spec.md §8 boundary behavior).
func (a *Actor) Enqueue(inv *Invocation) {
	a.mu.Lock()
	if existing, ok := a.completed[inv.IdempotencyKey]; ok && inv.IdempotencyKey != "" {
		a.mu.Unlock()
		inv.Reply <- existing
		return
	}
	if inv.IdempotencyKey != "" {
		if waiters, inflight := a.waiters[inv.IdempotencyKey]; inflight {
			a.waiters[inv.IdempotencyKey] = append(waiters, inv.Reply)
			a.mu.Unlock()
			return
		}
		a.waiters[inv.IdempotencyKey] = []chan InvocationResult{}
	}
	if a.phase == PhaseSuspended {
		a.phase = PhaseLive
	}
	a.queue = append(a.queue, inv)
	a.queueCond.Signal()
	a.mu.Unlock()
}

// dispatchLoop pops the oldest queued invocation and runs it to
// completion; only one invocation is in flight per actor at a time.
func (a *Actor) dispatchLoop(ctx context.Context) {
	stopped := false
	go func() {
		<-a.stopCh
		a.mu.Lock()
		stopped = true
		a.queueCond.Broadcast()
		a.mu.Unlock()
	}()

	for {
		a.mu.Lock()
		for len(a.queue) == 0 && !stopped {
			a.queueCond.Wait()
		}
		if stopped && len(a.queue) == 0 {
			a.mu.Unlock()
			return
		}
		inv := a.queue[0]
		a.queue = a.queue[1:]
		phase := a.phase
		a.mu.Unlock()

		if phase != PhaseLive {
			inv.Reply <- InvocationResult{Err: a.rejectionFor(phase)}
			continue
		}

		result := a.run(ctx, inv)
		a.deliver(inv.IdempotencyKey, result, inv.Reply)
	}
}

// rejectionFor produces the wire error for an invocation arriving while
// the actor cannot run it right now (spec.md §6 error taxonomy).
func (a *Actor) rejectionFor(phase Phase) error {
	switch phase {
	case PhaseFailed:
		return domain.ErrPreviousInvocationFailed(a.ID, nil)
	case PhaseExited:
		return domain.ErrPreviousInvocationExited(a.ID)
	default:
		return domain.ErrWorkerNotFound(a.ID)
	}
}

func (a *Actor) deliver(key string, result InvocationResult, first chan InvocationResult) {
	a.mu.Lock()
	if key != "" {
		a.completed[key] = result
		waiters := a.waiters[key]
		delete(a.waiters, key)
		a.mu.Unlock()
		for _, w := range waiters {
			w <- result
		}
	} else {
		a.mu.Unlock()
	}
	first <- result
}

// run drives a single invocation's full ExportedFunctionInvoked /
// ExportedFunctionCompleted oplog bracket around the engine call
// (spec.md Invariant O2: commit boundary).
func (a *Actor) run(ctx context.Context, inv *Invocation) InvocationResult {
	invID := fmt.Sprintf("%s-%d", a.ID, time.Now().UnixNano())
	if _, err := a.Oplog.Append(a.ID, domain.EntryExportedFunctionInvoke, domain.ExportedFunctionInvokedPayload{
		InvocationId:   invID,
		FunctionName:   inv.Function,
		Args:           inv.Args,
		IdempotencyKey: inv.IdempotencyKey,
		Context:        inv.Context,
	}); err != nil {
		return InvocationResult{Err: err}
	}

	if err := a.Limiter.Borrow(ctx, a.ID, a.Limiter.DefaultFuel); err != nil {
		return InvocationResult{Err: err}
	}
	defer a.Limiter.Return(a.ID, a.Limiter.DefaultFuel)

	a.mu.Lock()
	inst := a.instance
	a.mu.Unlock()

	out, trap, err := inst.Invoke(ctx, inv.Function, inv.Args)
	fuel := inst.FuelConsumed()

	if err != nil || trap != domain.TrapNone {
		return a.handleTrap(inv, invID, trap, err)
	}

	if _, aerr := a.Oplog.Append(a.ID, domain.EntryExportedFunctionCompl, domain.ExportedFunctionCompletedPayload{
		InvocationId: invID,
		Result:       out,
		ConsumedFuel: fuel,
	}); aerr != nil {
		return InvocationResult{Err: aerr}
	}
	return InvocationResult{Output: out}
}

// handleTrap records an Error entry and classifies a trap per spec.md §7.
// Out-of-fuel and out-of-memory traps park the actor in PhaseFailed at
// once. Any other trap increments the actor's trap count; while that count
// is at most Retry.MaxAttempts only this invocation fails, after that the
// actor parks in PhaseFailed. The invocation is not re-run and Retry.Delay
// is not consulted.
func (a *Actor) handleTrap(inv *Invocation, invID string, trap domain.TrapKind, cause error) InvocationResult {
	retryable := trap != domain.TrapOutOfMemory && trap != domain.TrapOutOfFuel
	a.mu.Lock()
	a.retries++
	attempt := a.retries
	a.mu.Unlock()

	a.Oplog.Append(a.ID, domain.EntryError, domain.ErrorPayload{
		Message:    fmt.Sprintf("%v", cause),
		Retryable:  retryable,
		RetryCount: attempt,
	})

	if retryable && attempt <= a.Retry.MaxAttempts {
		a.publish(events.EventInvocationDone)
		return InvocationResult{Trap: trap, Err: domain.ErrComponentTrapped(a.ID, cause)}
	}

	a.setPhase(PhaseFailed)
	a.publish(events.EventWorkerFailed)
	if trap == domain.TrapOutOfFuel {
		return InvocationResult{Trap: trap, Err: domain.ErrOutOfFuel(a.ID)}
	}
	if trap == domain.TrapOutOfMemory {
		return InvocationResult{Trap: trap, Err: domain.ErrOutOfMemory(a.ID)}
	}
	return InvocationResult{Trap: trap, Err: domain.ErrComponentTrapped(a.ID, cause)}
}

// Interrupt appends an Interrupted oplog entry, then sets PhaseLoading when
// restart is true and PhaseInterrupt (reported by Status as suspended)
// otherwise (spec.md §5 Cancellation). It does not cancel an invocation
// that is already executing; the dispatch loop rejects the invocations it
// pops afterwards, since the phase is no longer Live.
func (a *Actor) Interrupt(restart bool) error {
	if _, err := a.Oplog.Append(a.ID, domain.EntryInterrupted, nil); err != nil {
		return err
	}
	if restart {
		a.setPhase(PhaseLoading)
	} else {
		a.setPhase(PhaseInterrupt)
	}
	return nil
}

// Suspend parks an idle actor; it resumes to PhaseLive on the next
// Enqueue, matching the spec's Live --idle--> Suspended --invoke--> Live
// transition.
func (a *Actor) Suspend() error {
	if _, err := a.Oplog.Append(a.ID, domain.EntrySuspend, domain.SuspendPayload{Reason: "idle"}); err != nil {
		return err
	}
	a.setPhase(PhaseSuspended)
	return nil
}

// Resume transitions a Suspended actor back to Live without replaying
// (its in-memory instance state is already current).
func (a *Actor) Resume() {
	a.setPhase(PhaseLive)
}

// Stop tears the actor's dispatch loop down and releases its instance.
func (a *Actor) Stop() error {
	close(a.stopCh)
	a.mu.Lock()
	inst := a.instance
	a.mu.Unlock()
	if inst != nil {
		return inst.Close()
	}
	return nil
}

package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/metrics"
	"github.com/cuemby/fabrik/pkg/oplog"
	"github.com/cuemby/fabrik/pkg/rpc/wire"
	"github.com/cuemby/fabrik/pkg/storage"
	"github.com/cuemby/fabrik/pkg/worker"
	"github.com/sony/gobreaker"
)

// Fabric is the RPC/Invocation fabric: it resolves a worker_id to a
// shard, and either enqueues directly into the local worker.Manager
// (the direct-path bypass, spec.md §4.3) or forwards the call to the
// shard's owning peer over the wire codec. It implements
// wire.FabricServer so it can be registered directly against a
// grpc.Server via rpc.NewServer.
type Fabric struct {
	Shards  *ShardTable
	Workers *worker.Manager
	Store   storage.Store
	Oplog   oplog.Appender

	peers    *peerPool
	schedule *scheduleTable
}

var _ wire.FabricServer = (*Fabric)(nil)

// NewFabric wires a Fabric around a host-local worker.Manager and a
// shard table; peer connections are dialed lazily and cached.
func NewFabric(shards *ShardTable, workers *worker.Manager, store storage.Store, log oplog.Appender, dial PeerDialer) *Fabric {
	f := &Fabric{
		Shards:  shards,
		Workers: workers,
		Store:   store,
		Oplog:   log,
		peers:   newPeerPool(dial),
	}
	f.schedule = newScheduleTable(f)
	return f
}

// PeerDialer opens a connection to a peer host, injected so tests can
// substitute a fake fabric instead of dialing real mTLS sockets (the
// fabric half of spec.md §9's testing-seam requirement).
type PeerDialer func(host string) (*wire.FabricClient, error)

// Invoke is the entry point every gateway/client call arrives through.
// It resolves the worker's shard and either runs it locally or forwards
// it, honoring req.Mode.
func (f *Fabric) Invoke(ctx context.Context, req *wire.InvokeRequest) (*wire.InvokeResponse, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.InvocationDuration, string(req.Mode))

	shardID, local := f.Shards.IsLocal(req.Worker)
	var resp *wire.InvokeResponse
	var err error
	if local {
		resp, err = f.dispatchLocal(ctx, req)
	} else {
		resp, err = f.forwardToOwner(ctx, shardID, req)
	}

	status := "ok"
	if err != nil || (resp != nil && resp.ErrorCode != "") {
		status = "error"
	}
	metrics.InvocationsTotal.WithLabelValues(string(req.Mode), status).Inc()
	return resp, err
}

// Forward is called by a peer that resolved a worker to a shard it
// believes this host owns. If this host's table disagrees (shard
// reassigned since the caller last converged), it replies
// InvalidShardId rather than silently running the call on the wrong
// host's state.
func (f *Fabric) Forward(ctx context.Context, req *wire.ForwardRequest) (*wire.InvokeResponse, error) {
	shardID, local := f.Shards.IsLocal(req.Worker)
	if !local || shardID != req.ShardID {
		return nil, domain.ErrInvalidShardId(req.Worker)
	}
	return f.dispatchLocal(ctx, &req.InvokeRequest)
}

// Cancel removes a scheduled invocation's cron entry before it fires.
func (f *Fabric) Cancel(ctx context.Context, req *wire.CancelRequest) (*wire.CancelResponse, error) {
	return &wire.CancelResponse{Canceled: f.schedule.cancel(req.CancelToken)}, nil
}

// ShardAssignment answers a peer's probe for which shards this host
// currently owns.
func (f *Fabric) ShardAssignment(ctx context.Context, req *wire.ShardAssignmentRequest) (*wire.ShardAssignmentResponse, error) {
	host, _ := f.Shards.Owner(req.ShardID)
	return &wire.ShardAssignmentResponse{Host: host}, nil
}

func (f *Fabric) dispatchLocal(ctx context.Context, req *wire.InvokeRequest) (*wire.InvokeResponse, error) {
	switch req.Mode {
	case domain.InvokeScheduled, domain.InvokeCancelable:
		token, err := f.schedule.add(req)
		if err != nil {
			return nil, err
		}
		return &wire.InvokeResponse{CancelToken: token}, nil
	default:
		return f.runLocal(ctx, req)
	}
}

func (f *Fabric) runLocal(ctx context.Context, req *wire.InvokeRequest) (*wire.InvokeResponse, error) {
	meta, err := f.latestComponent(req.Worker.ComponentId)
	if err != nil {
		return nil, fmt.Errorf("resolve component for %s: %w", req.Worker, err)
	}
	actor, err := f.Workers.Activate(ctx, req.Worker, *meta)
	if err != nil {
		return nil, err
	}

	reply := make(chan worker.InvocationResult, 1)
	actor.Enqueue(&worker.Invocation{
		Function:       req.Function,
		Args:           req.Args,
		IdempotencyKey: req.IdempotencyKey,
		Context:        req.Context,
		Reply:          reply,
	})

	if req.Mode == domain.InvokeFireAndForget {
		return &wire.InvokeResponse{}, nil
	}

	select {
	case result := <-reply:
		return resultToWire(result), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// latestComponent resolves a worker's component to the newest version
// known to this host's store. pkg/registry's deployment/environment
// revision model pins a specific version per environment; once a
// worker's Activate path carries that context, this should resolve
// through the registry instead of "always run latest".
func (f *Fabric) latestComponent(componentID string) (*domain.ComponentMetadata, error) {
	versions, err := f.Store.ListComponentVersions(componentID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("no versions registered for component %s", componentID)
	}
	latest := versions[0]
	for _, v := range versions[1:] {
		if v.Version > latest.Version {
			latest = v
		}
	}
	return latest, nil
}

func resultToWire(r worker.InvocationResult) *wire.InvokeResponse {
	if r.Err == nil {
		return &wire.InvokeResponse{Output: r.Output, Trap: r.Trap}
	}
	resp := &wire.InvokeResponse{Output: r.Output, Trap: r.Trap, ErrorMessage: r.Err.Error()}
	var werr *domain.WorkerExecutorError
	if errors.As(r.Err, &werr) {
		resp.ErrorCode = werr.Code
	}
	return resp
}

// forwardToOwner dials (or reuses) a connection to the shard's owning
// host and relays the request, wrapped by a per-host circuit breaker so
// a host that has stopped responding (but whose shard reassignment
// hasn't converged into this table yet) fails fast instead of hanging
// every caller on a dial timeout.
func (f *Fabric) forwardToOwner(ctx context.Context, shardID uint32, req *wire.InvokeRequest) (*wire.InvokeResponse, error) {
	host, ok := f.Shards.Owner(shardID)
	if !ok {
		return nil, domain.ErrInvalidShardId(req.Worker)
	}

	result, err := f.peers.breaker(host).Execute(func() (interface{}, error) {
		client, err := f.peers.client(host)
		if err != nil {
			return nil, err
		}
		return client.Forward(ctx, &wire.ForwardRequest{InvokeRequest: *req, ShardID: shardID})
	})
	if err != nil {
		outcome := "error"
		if err == gobreaker.ErrOpenState {
			outcome = "breaker-open"
		}
		metrics.ShardForwardsTotal.WithLabelValues(outcome).Inc()
		if err == gobreaker.ErrOpenState {
			return nil, domain.ErrInvalidShardId(req.Worker)
		}
		return nil, err
	}
	metrics.ShardForwardsTotal.WithLabelValues("ok").Inc()
	return result.(*wire.InvokeResponse), nil
}

// peerPool caches one PeerClient and one gobreaker.CircuitBreaker per
// peer host.
type peerPool struct {
	dial     PeerDialer
	mu       sync.Mutex
	clients  map[string]*wire.FabricClient
	breakers map[string]*gobreaker.CircuitBreaker
}

func newPeerPool(dial PeerDialer) *peerPool {
	return &peerPool{
		dial:     dial,
		clients:  make(map[string]*wire.FabricClient),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (p *peerPool) client(host string) (*wire.FabricClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[host]; ok {
		return c, nil
	}
	c, err := p.dial(host)
	if err != nil {
		return nil, fmt.Errorf("dial shard owner %s: %w", host, err)
	}
	p.clients[host] = c
	return c, nil
}

func (p *peerPool) breaker(host string) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if b, ok := p.breakers[host]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rpc-forward-" + host,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(host).Set(float64(to))
		},
	})
	p.breakers[host] = b
	return b
}

package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cuemby/fabrik/pkg/domain"
)

// MockEngine is an in-memory Engine for tests and for running fabrik
// without a real Wasm host. Downloaded modules are registered ahead of
// time via Register; Instantiate runs a caller-supplied handler function
// instead of real Wasm bytecode.
type MockEngine struct {
	mu      sync.RWMutex
	modules map[string]*mockModule
}

// NewMockEngine creates an empty MockEngine.
func NewMockEngine() *MockEngine {
	return &MockEngine{modules: make(map[string]*mockModule)}
}

// Handler is the behavior a mockModule runs when invoked: given a
// function name and args, it returns a result or an error. A nil
// handler echoes args back as the result.
type Handler func(fn string, args json.RawMessage) (json.RawMessage, error)

// Register makes a component version available to Download, with handler
// as its invocation behavior.
func (e *MockEngine) Register(componentID string, version int, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.modules[moduleKey(componentID, version)] = &mockModule{componentID: componentID, version: version, handler: handler}
}

func moduleKey(componentID string, version int) string {
	return fmt.Sprintf("%s@%d", componentID, version)
}

type mockModule struct {
	componentID string
	version     int
	handler     Handler
}

func (m *mockModule) ComponentId() string { return m.componentID }
func (m *mockModule) Version() int        { return m.version }

func (e *MockEngine) Download(_ context.Context, componentID string, version int) (Module, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	mod, ok := e.modules[moduleKey(componentID, version)]
	if !ok {
		return nil, fmt.Errorf("mock engine: component %s@%d not registered", componentID, version)
	}
	return mod, nil
}

func (e *MockEngine) Instantiate(_ context.Context, mod Module, limits domain.ResourceLimits) (Instance, error) {
	m, ok := mod.(*mockModule)
	if !ok {
		return nil, fmt.Errorf("mock engine: module of unexpected type %T", mod)
	}
	return &mockInstance{module: m, limits: limits}, nil
}

// mockInstance simulates fuel/memory accounting: every Invoke charges a
// fixed per-call fuel cost and traps with TrapOutOfFuel once the budget
// is exhausted, so worker resource-limit tests don't need a real host.
type mockInstance struct {
	module *mockModule
	limits domain.ResourceLimits

	mu       sync.Mutex
	snapshot []byte
	fuelUsed uint64
	memBytes int64
	closed   int32
}

const mockFuelPerInvoke = 100

func (i *mockInstance) Invoke(_ context.Context, fn string, args json.RawMessage) (json.RawMessage, domain.TrapKind, error) {
	if atomic.LoadInt32(&i.closed) != 0 {
		return nil, domain.TrapHostError, fmt.Errorf("instance closed")
	}

	used := atomic.AddUint64(&i.fuelUsed, mockFuelPerInvoke)
	if i.limits.FuelLimit > 0 && used > i.limits.FuelLimit {
		return nil, domain.TrapOutOfFuel, fmt.Errorf("out of fuel")
	}

	if i.module.handler == nil {
		return args, domain.TrapNone, nil
	}

	result, err := i.module.handler(fn, args)
	if err != nil {
		return nil, domain.TrapUnreachable, err
	}
	return result, domain.TrapNone, nil
}

func (i *mockInstance) Snapshot(_ context.Context) ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return json.Marshal(mockSnapshotState{FuelUsed: i.fuelUsed, MemBytes: i.memBytes})
}

func (i *mockInstance) Load(_ context.Context, data []byte) error {
	var state mockSnapshotState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to decode mock snapshot: %w", err)
	}
	i.mu.Lock()
	i.fuelUsed = state.FuelUsed
	i.memBytes = state.MemBytes
	i.mu.Unlock()
	return nil
}

type mockSnapshotState struct {
	FuelUsed uint64
	MemBytes int64
}

func (i *mockInstance) FuelConsumed() uint64 { return atomic.LoadUint64(&i.fuelUsed) }
func (i *mockInstance) MemoryBytes() int64   { return atomic.LoadInt64(&i.memBytes) }

func (i *mockInstance) Close() error {
	atomic.StoreInt32(&i.closed, 1)
	return nil
}

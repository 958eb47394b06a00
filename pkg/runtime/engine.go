// Package runtime defines the Engine interface a fabrik worker host
// instantiates Wasm components against. A real Engine wraps a Wasm host
// (wasmtime or wasmer bindings); this package itself ships only the
// interface and an in-memory MockEngine used in tests, the same way
// warren's runtime package centered on a single ContainerdRuntime.
package runtime

import (
	"context"
	"encoding/json"

	"github.com/cuemby/fabrik/pkg/domain"
)

// Module is an opaque, downloaded and validated component binary,
// ready to be instantiated any number of times.
type Module interface {
	ComponentId() string
	Version() int
}

// Instance is one running (or suspended) instantiation of a Module,
// bound to a single worker.
type Instance interface {
	// Invoke calls an exported function and blocks until it returns,
	// traps, or ctx is canceled. trap is domain.TrapNone on success.
	Invoke(ctx context.Context, fn string, args json.RawMessage) (result json.RawMessage, trap domain.TrapKind, err error)

	// Snapshot captures enough state to resume this instance elsewhere
	// without replaying its full oplog (used by the Update Protocol's
	// "snapshot" UpdateMode).
	Snapshot(ctx context.Context) ([]byte, error)

	// Load restores state captured by Snapshot into a freshly
	// instantiated Instance of a (possibly different) Module version.
	Load(ctx context.Context, snapshot []byte) error

	// FuelConsumed reports cumulative fuel charged against this
	// instance so far.
	FuelConsumed() uint64

	// MemoryBytes reports the instance's current linear memory size.
	MemoryBytes() int64

	Close() error
}

// Engine downloads component binaries and instantiates them under a
// resource budget. Implementations are expected to be safe for
// concurrent use by multiple worker actors.
type Engine interface {
	// Download fetches and validates a component's Wasm binary and its
	// WIT-derived AgentType, content-addressed by ContentHash.
	Download(ctx context.Context, componentID string, version int) (Module, error)

	// Instantiate creates a new Instance of mod under limits. The
	// returned Instance starts in a fresh, unexecuted state; callers
	// invoke the constructor function themselves as the first
	// EntryExportedFunctionInvoke oplog entry, same as any other call.
	Instantiate(ctx context.Context, mod Module, limits domain.ResourceLimits) (Instance, error)
}

/*
Package log provides structured logging for fabrik using zerolog.

It wraps zerolog with a global, once-initialized logger plus a set of
context-logger helpers that tag every line with the identifier most
useful for that subsystem: a component name, a cluster node ID, a
worker ID, an invocation ID, or a trace ID.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│  Global Logger (zerolog.Logger, set by log.Init)          │
	│        │                                                   │
	│        ▼                                                   │
	│  Context Loggers                                           │
	│   - WithComponent("scheduler")                             │
	│   - WithNodeID("node-abc123")                               │
	│   - WithWorkerID("comp-1/worker-7")                         │
	│   - WithInvocationID("inv-...")                             │
	│   - WithTraceID("trace-...")                                 │
	│        │                                                   │
	│        ▼                                                   │
	│  JSON or console output, filtered by level                 │
	└────────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	log.Info("cluster bootstrapped")
	log.Error("failed to dial peer")

	schedLog := log.WithComponent("scheduler")
	schedLog.Info().Str("shard", "0").Msg("assigned shard")

	workerLog := log.WithWorkerID(id.String())
	workerLog.Error().Err(err).Msg("update failed")

# Integration Points

  - pkg/cluster: Raft membership and bootstrap events
  - pkg/scheduler: shard assignment decisions
  - pkg/reconciler: node and worker health reconciliation
  - pkg/worker: actor lifecycle, replay, and Update Protocol transitions
  - pkg/rpc: fabric dial/forward/cancel outcomes
  - cmd/fabrik: process startup and shutdown

# Log Levels

Debug is for replay/queue-depth detail during development; Info is the
production default; Warn flags conditions the reconciler or scheduler
can self-correct from; Error is a failed operation that needs
investigation; Fatal exits the process and is reserved for startup
failures (e.g. a Raft store that cannot be opened).

# Conventions

Prefer structured fields (.Str, .Int, .Err) over string interpolation
so logs stay queryable. Never log secret plaintext, certificate private
keys, or oplog payload bytes — only their identifiers.

# See Also

  - https://github.com/rs/zerolog
*/
package log

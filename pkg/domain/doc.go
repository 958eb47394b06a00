/*
Package domain defines the core data structures shared by every fabrik
component: worker identity, component metadata, oplog entries, the worker
status state machine, promises, invocation contexts, and the registry's
revisioned entities.

# Architecture

The domain package is the foundation of fabrik's data model. It defines:

  - Worker identity and component metadata (agent type, filesystem manifest)
  - Oplog entry kinds and the durable state machine they drive
  - Promises and invocation contexts used to correlate async results
  - Registry entities: accounts, applications, environments, deployments

All types are designed to be:
  - Serializable (JSON for storage and the hand-rolled RPC wire codec)
  - Self-documenting (clear field names, typed string enums)
  - Validated at the boundary (oplog, registry) rather than in the struct

# Core Types

Worker identity:
  - WorkerId: ComponentId + WorkerName, globally addressable
  - ComponentMetadata: content hash, memory limit, filesystem manifest, agent type
  - AgentType: a named, versioned WIT-shaped interface description

Oplog:
  - OplogEntry: tagged union over the entry kinds a worker's log can hold
  - WorkerStatus: the state machine an oplog replay reconstructs

Invocation:
  - Promise: a result slot a caller can await or poll
  - InvocationContext / Span: propagated trace context for an invocation

Registry:
  - Account, Application, Environment, Deployment, EnvironmentShare

# See Also

  - pkg/oplog for the service that appends/replays OplogEntry values
  - pkg/worker for the state machine driven by those entries
  - pkg/registry for the entities' revisioned storage
*/
package domain

/*
Package registry implements the CRUD-plus-revision protocol over
Account, Application, Environment, Deployment, and EnvironmentShare
(spec.md §4.6): every mutation to a revisioned entity inserts a new
`*_revision` row rather than updating one in place, then atomically
swaps the parent's `current_revision_id` pointer, failing with
ConcurrentModification if a concurrent writer already moved it.

Follows the same interface-in-one-file, concrete-implementation-in-
another idiom as pkg/storage (an interface, a bucket-per-entity BoltDB
implementation), but the registry additionally needs relational
revision history and atomic current-pointer CAS across parent/child
rows — exactly the gap a KV bucket handles awkwardly. A second Store
implementation, backed by PostgreSQL via pgx, is offered for deployments
that want real `UPDATE ... WHERE revision_id = $expected RETURNING ...`
semantics instead of a bbolt-transaction compare-and-swap; the bolt
implementation stays the default for single-binary/dev deployments.

# Architecture

	┌─────────────────────────────────────────────────────────────────┐
	│                          Registry                                │
	│  CreateApplication / UpdateEnvironment / ActivateDeployment ...   │
	└───────────────────────────┬────────────────────────────────────┘
	                           │ Store interface
	         ┌─────────────────┴─────────────────┐
	         ▼                                   ▼
	┌─────────────────┐                 ┌──────────────────┐
	│   boltStore      │                 │    pgxStore       │
	│ (bbolt, default) │                 │ (pgx, migrate'd)  │
	└─────────────────┘                 └──────────────────┘

# Visibility (Invariant R2)

Every read and write through Registry is gated by CheckVisibility: an
environment is visible to an account iff the account owns the
application chain, or a non-deleted EnvironmentShare grants it access,
or the caller passed an explicit override.

# See also

  - pkg/storage for the Store-interface/BoltStore idiom this package's bolt backend follows
  - pkg/domain/registry.go for the revisioned entity types this package persists
  - pkg/gateway for the deployment activation this package's Registry exposes to
*/
package registry

package worker

import "sync"

// ResourceStore is a worker's handle table for WIT-resource values whose
// lifetime must outlive the invocation that created them (spec.md §4.2
// Resource store). Handles are keyed by a 64-bit id. Actor replay restores
// handles from CreateResource/DropResource oplog entries; Create,
// CreateIndexed and Drop change only this in-memory table and append no
// oplog entry.
type ResourceStore struct {
	mu      sync.Mutex
	next    uint64
	handles map[uint64]resourceHandle
}

type resourceHandle struct {
	TypeName string
	// Params holds an indexed resource's (owner, name, params) address.
	// Nothing looks a handle up by it, and replay's restore does not
	// bring it back.
	Params map[string]string
}

// NewResourceStore creates an empty handle table.
func NewResourceStore() *ResourceStore {
	return &ResourceStore{handles: make(map[uint64]resourceHandle)}
}

// Create allocates the next handle id for a resource of typeName.
func (r *ResourceStore) Create(typeName string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.handles[id] = resourceHandle{TypeName: typeName}
	return id
}

// CreateIndexed allocates the next handle id for typeName and keeps params
// on the handle. Handles are still looked up only by id, and actor replay
// does not process DescribeResource entries.
func (r *ResourceStore) CreateIndexed(typeName string, params map[string]string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.handles[id] = resourceHandle{TypeName: typeName, Params: params}
	return id
}

// Drop releases a handle. Dropping an unknown id is a no-op: replay may
// see a DropResource for a handle a snapshot already elided.
func (r *ResourceStore) Drop(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

// restore reinstates a handle at a specific id during replay, matching
// the id the original CreateResource entry assigned.
func (r *ResourceStore) restore(id uint64, typeName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[id] = resourceHandle{TypeName: typeName}
	if id > r.next {
		r.next = id
	}
}

func (r *ResourceStore) drop(id uint64) {
	r.Drop(id)
}

// Exists reports whether a handle id is currently live.
func (r *ResourceStore) Exists(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[id]
	return ok
}

// Len reports the number of live handles, used by health reporting.
func (r *ResourceStore) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

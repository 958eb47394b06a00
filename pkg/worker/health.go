package worker

import "time"

// Health is the compressed status report a host's worker manager
// publishes for the reconciler to poll (spec.md §4.2 WorkerStatus /
// compressed status record; generalizes warren's per-container
// heartbeat payload to one entry per live worker actor).
type Health struct {
	Worker        string
	Phase         Phase
	LastError     string
	ComponentVer  int
	LiveResources int
	ReportedAt    time.Time
}

// Report snapshots an actor's current health for the reconciler.
func (a *Actor) Report() Health {
	a.mu.Lock()
	defer a.mu.Unlock()
	ver := 0
	if a.module != nil {
		ver = a.module.Version()
	}
	return Health{
		Worker:        a.ID.String(),
		Phase:         a.phase,
		ComponentVer:  ver,
		LiveResources: a.resources.Len(),
		ReportedAt:    time.Now(),
	}
}

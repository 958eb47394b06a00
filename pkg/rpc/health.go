package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/fabrik/pkg/metrics"
)

// HealthServer exposes /health, /ready, and /metrics over plain HTTP
// alongside the mTLS gRPC fabric, generalized from warren's
// pkg/api.HealthServer (same three endpoints, same unauthenticated
// plaintext listener for load-balancer probes).
type HealthServer struct {
	fabric *Fabric
	mux    *http.ServeMux
}

func NewHealthServer(f *Fabric) *HealthServer {
	h := &HealthServer{fabric: f, mux: http.NewServeMux()}
	h.mux.HandleFunc("/health", h.handleHealth)
	h.mux.HandleFunc("/ready", h.handleReady)
	h.mux.Handle("/metrics", metrics.Handler())
	return h
}

func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReady reports not-ready until this host's shard table has at
// least one assignment, i.e. it has converged with the cluster at
// least once since startup.
func (h *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ready := len(h.fabric.Shards.Shards()) > 0
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
}

// Package gateway implements the Gateway Pipeline: it resolves an
// incoming HTTP request to a binding in a compiled API definition,
// materializes the request slices a binding's Rib scripts declared they
// read, evaluates those scripts, dispatches the resulting call through
// the RPC fabric (or streams a file, or shuttles the request through a
// component's wasi:http/incoming-handler export), and maps the result
// back to an HTTP response.
//
// Grounded on kubernaut's go.mod domain stack (go-chi/chi, go-chi/cors —
// its implementation slice is test-only, so only the dependency choice
// is grounded there) composed the way warren's pkg/api.Server composes a
// grpc.Server: a small Gateway struct owning a chi.Mux, built once at
// compiled-API-definition load time.
package gateway

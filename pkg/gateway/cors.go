package gateway

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CorsOptions configures a Static::CorsPreflight binding and the CORS
// headers injected on "actual" (non-preflight) responses for routes that
// enable CORS. Defaults match spec.md §8 scenario 5 ("CORS preflight
// default"): wildcard origin, the common verb set, 200 status.
type CorsOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

// DefaultCorsOptions returns the configuration spec.md §8 scenario 5
// expects when a route declares cors-preflight without explicit options.
func DefaultCorsOptions() *CorsOptions {
	return &CorsOptions{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Idempotency-Key", "traceparent", "tracestate", "Authorization"},
		MaxAgeSeconds:  300,
	}
}

func (o *CorsOptions) chiCors() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   o.AllowedOrigins,
		AllowedMethods:   o.AllowedMethods,
		AllowedHeaders:   o.AllowedHeaders,
		ExposedHeaders:   o.ExposedHeaders,
		AllowCredentials: o.AllowCredentials,
		MaxAge:           o.MaxAgeSeconds,
	})
}

// servePreflight answers an OPTIONS request directly with the configured
// Access-Control-* headers and no worker call (spec.md §4.4 "CORS
// preflight: answer directly").
func servePreflight(w http.ResponseWriter, r *http.Request, opts *CorsOptions) {
	if opts == nil {
		opts = DefaultCorsOptions()
	}
	opts.chiCors().HandlerFunc(w, r)
	w.WriteHeader(http.StatusOK)
}

// applyActualCORS injects Access-Control-Allow-Origin/-Expose-Headers/
// -Allow-Credentials onto an outbound non-preflight response (spec.md
// §4.4 "CORS actual").
func applyActualCORS(next http.Handler, opts *CorsOptions) http.Handler {
	if opts == nil {
		opts = DefaultCorsOptions()
	}
	return opts.chiCors().Handler(next)
}

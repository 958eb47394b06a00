package gateway

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/cuemby/fabrik/pkg/rib"
)

// compiledScript is rib's compiled form; aliased so route.go doesn't need
// to import pkg/rib directly for its field declarations.
type compiledScript = rib.Script

// CompiledAPIDefinition is the Gateway's routing table: an ordered set of
// Routes, each holding its pre-compiled Rib scripts. It is built once
// when a deployment activates and never mutated afterward — concurrent
// requests only ever read it (spec.md §9's "no plugin hierarchy, no
// dynamic route mutation at request time").
type CompiledAPIDefinition struct {
	routes []*Route
}

// NewCompiledAPIDefinition returns an empty routing table.
func NewCompiledAPIDefinition() *CompiledAPIDefinition {
	return &CompiledAPIDefinition{}
}

// RouteSpec is the uncompiled form a caller hands to AddRoute: Rib source
// strings plus the declared rib_input_type for each (spec.md §4.4 "Each
// Rib script carries its compiled form plus a declared rib_input_type").
type RouteSpec struct {
	Method      string
	Path        string
	Binding     *Binding
	CORSEnabled bool
	AuthEnabled bool
	ContentType string

	WorkerNameInput     rib.RibInputType
	IdempotencyKeyInput rib.RibInputType
	ResponseInput       rib.RibInputType
}

// AddRoute compiles spec's Rib scripts and appends the resulting Route,
// recording declaration order for the route-resolution tie-break.
func (d *CompiledAPIDefinition) AddRoute(spec RouteSpec) (*Route, error) {
	r := &Route{
		Method:      spec.Method,
		Pattern:     CompilePathPattern(spec.Path),
		Binding:     spec.Binding,
		declOrder:   len(d.routes),
		CORSEnabled: spec.CORSEnabled,
		AuthEnabled: spec.AuthEnabled,
		ContentType: spec.ContentType,
	}

	if spec.Binding != nil && spec.Binding.WorkerNameRib != "" {
		s, err := rib.Compile(spec.Binding.WorkerNameRib, spec.WorkerNameInput)
		if err != nil {
			return nil, fmt.Errorf("compile worker-name rib for %s %s: %w", spec.Method, spec.Path, err)
		}
		r.WorkerNameScript = s
	}
	if spec.Binding != nil && spec.Binding.IdempotencyKeyRib != "" {
		s, err := rib.Compile(spec.Binding.IdempotencyKeyRib, spec.IdempotencyKeyInput)
		if err != nil {
			return nil, fmt.Errorf("compile idempotency-key rib for %s %s: %w", spec.Method, spec.Path, err)
		}
		r.IdempotencyKeyScript = s
	}
	if spec.Binding != nil && spec.Binding.ResponseRib != "" {
		s, err := rib.Compile(spec.Binding.ResponseRib, spec.ResponseInput)
		if err != nil {
			return nil, fmt.Errorf("compile response rib for %s %s: %w", spec.Method, spec.Path, err)
		}
		r.ResponseScript = s
	}

	d.routes = append(d.routes, r)
	return r, nil
}

// Resolve picks the route matching method+path per spec.md §4.4 "Route
// resolution": longest literal prefix first, then declaration order as
// tie-break; method must match exactly, except that OPTIONS may be
// served by a CorsPreflight binding even when no explicit OPTIONS route
// was declared for that path.
func (d *CompiledAPIDefinition) Resolve(method, path string) (*Route, map[string]interface{}, bool) {
	type candidate struct {
		route *Route
		vars  map[string]interface{}
	}
	var candidates []candidate

	for _, r := range d.routes {
		if r.Method != method {
			continue
		}
		vars, ok := r.Pattern.Match(path)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{r, vars})
	}

	if len(candidates) == 0 && method == http.MethodOptions {
		// Implicit CORS preflight: a route exists for some other method
		// on this path with CORS enabled (spec.md §8 boundary behavior
		// "CORS preflight on a route with no OPTIONS entry").
		for _, r := range d.routes {
			if !r.CORSEnabled {
				continue
			}
			vars, ok := r.Pattern.Match(path)
			if !ok {
				continue
			}
			return syntheticPreflightRoute(r), vars, true
		}
		return nil, nil, false
	}

	if len(candidates) == 0 {
		return nil, nil, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		li, lj := candidates[i].route.Pattern.literalPrefixLen(), candidates[j].route.Pattern.literalPrefixLen()
		if li != lj {
			return li > lj
		}
		return candidates[i].route.declOrder < candidates[j].route.declOrder
	})
	best := candidates[0]
	return best.route, best.vars, true
}

// syntheticPreflightRoute builds a throwaway CorsPreflight route sharing
// the target route's CORS options, for the implicit-OPTIONS case.
func syntheticPreflightRoute(target *Route) *Route {
	opts := target.Binding.CorsOptions
	if opts == nil {
		opts = DefaultCorsOptions()
	}
	return &Route{
		Method:  http.MethodOptions,
		Pattern: target.Pattern,
		Binding: &Binding{Kind: BindingCorsPreflight, CorsOptions: opts},
	}
}

package gateway

import "strings"

// BindingKind tags which binding a route carries: Worker, HttpHandler,
// FileServer, or one of the two Static sub-variants (CorsPreflight,
// OAuthCallback), each of which gets its own kind.
// Switched on by the executor instead of a type hierarchy, per spec.md
// §9's "tagged union, not deep inheritance" design note.
type BindingKind string

const (
	BindingWorker       BindingKind = "worker"
	BindingHttpHandler  BindingKind = "http-handler"
	BindingFileServer   BindingKind = "file-server"
	BindingCorsPreflight BindingKind = "cors-preflight"
	BindingOAuthCallback BindingKind = "oauth-callback"
)

// Binding is the declarative rule a route carries, drawn from spec.md
// §4.4's four variants plus the two Static sub-variants. Not every field
// is populated for every Kind: WorkerNameRib/IdempotencyKeyRib/ResponseRib
// are Rib source strings, compiled once at AddRoute time.
type Binding struct {
	Kind BindingKind

	ComponentID string
	Version     int // 0 means "latest", resolved through the registry

	WorkerNameRib      string
	IdempotencyKeyRib  string
	ResponseRib        string

	// CorsOptions configures a Static::CorsPreflight binding.
	CorsOptions *CorsOptions

	// OAuthScheme configures a Static::OAuthCallback binding.
	OAuthScheme *OAuthSchemeMetadata
}

// OAuthSchemeMetadata names the OIDC provider an auth callback route
// exchanges a code against. The provider's client secret is resolved at
// runtime from pkg/security, never stored on the route.
type OAuthSchemeMetadata struct {
	ProviderName string
	ClientID     string
	RedirectPath string
	Scopes       []string
}

// segKind tags one path-pattern segment.
type segKind int

const (
	segLiteral segKind = iota
	segVar           // {var}
	segRest          // {rest..}
)

type pathSegment struct {
	kind segKind
	text string // literal text, or the var/rest name
}

// PathPattern is a compiled route path: `/a/{var}/b/{rest..}` binds one
// segment to `var` and the remaining segments as a list to `rest`.
type PathPattern struct {
	raw      string
	segments []pathSegment
}

// CompilePathPattern parses a path template into a PathPattern. `{rest..}`
// is only valid as the final segment.
func CompilePathPattern(raw string) *PathPattern {
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	segs := make([]pathSegment, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			name := p[1 : len(p)-1]
			if strings.HasSuffix(name, "..") {
				segs = append(segs, pathSegment{kind: segRest, text: strings.TrimSuffix(name, "..")})
			} else {
				segs = append(segs, pathSegment{kind: segVar, text: name})
			}
			continue
		}
		segs = append(segs, pathSegment{kind: segLiteral, text: p})
	}
	return &PathPattern{raw: raw, segments: segs}
}

// literalPrefixLen counts the leading literal (non-variable) segments, used
// by route resolution's "longest literal prefix first" tie-break.
func (p *PathPattern) literalPrefixLen() int {
	n := 0
	for _, s := range p.segments {
		if s.kind != segLiteral {
			break
		}
		n++
	}
	return n
}

// Match attempts to bind requestPath against the pattern, returning the
// path variables on success ({} for a pattern with no variables).
func (p *PathPattern) Match(requestPath string) (map[string]interface{}, bool) {
	reqParts := splitPath(requestPath)
	vars := make(map[string]interface{})

	i := 0
	for _, seg := range p.segments {
		switch seg.kind {
		case segLiteral:
			if i >= len(reqParts) || reqParts[i] != seg.text {
				return nil, false
			}
			i++
		case segVar:
			if i >= len(reqParts) {
				return nil, false
			}
			vars[seg.text] = reqParts[i]
			i++
		case segRest:
			rest := append([]string{}, reqParts[i:]...)
			items := make([]interface{}, len(rest))
			for j, r := range rest {
				items[j] = r
			}
			vars[seg.text] = items
			i = len(reqParts)
		}
	}
	if i != len(reqParts) {
		return nil, false
	}
	return vars, true
}

func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Route pairs one (method, path pattern) with its binding, compiled Rib
// scripts, and optional middleware flags.
type Route struct {
	Method  string
	Pattern *PathPattern
	Binding *Binding

	// declOrder is assigned by CompiledAPIDefinition.AddRoute and used as
	// the tie-break after longest-literal-prefix (spec.md §4.4 "Route
	// resolution").
	declOrder int

	WorkerNameScript     *compiledScript
	IdempotencyKeyScript *compiledScript
	ResponseScript       *compiledScript

	CORSEnabled bool
	AuthEnabled bool

	// ContentType, if set, overrides Accept-header negotiation for this
	// route's response mapping (spec.md §4.5 rule 1).
	ContentType string
}

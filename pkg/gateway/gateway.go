package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/fsoverlay"
	"github.com/cuemby/fabrik/pkg/gateway/contenttype"
	"github.com/cuemby/fabrik/pkg/log"
	"github.com/cuemby/fabrik/pkg/metrics"
	"github.com/cuemby/fabrik/pkg/rib"
	"github.com/cuemby/fabrik/pkg/rpc/wire"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Invoker is the RPC fabric seam the Gateway dispatches Worker/
// HttpHandler bindings through. *rpc.Fabric satisfies it; tests
// substitute a fake (spec.md §9's testing-seam requirement).
type Invoker interface {
	Invoke(ctx context.Context, req *wire.InvokeRequest) (*wire.InvokeResponse, error)
}

// Gateway owns a compiled API definition and the chi.Mux it is served
// through, composed the way warren's pkg/api.Server composes a
// grpc.Server around a fixed set of already-wired dependencies.
type Gateway struct {
	def     *CompiledAPIDefinition
	invoker Invoker
	overlay *fsoverlay.Store
	auth    *AuthConfig
	mux     *chi.Mux
}

// NewGateway builds a Gateway's chi.Mux once around def. overlay and
// auth may be nil for deployments that declare no FileServer or
// OAuthCallback bindings.
func NewGateway(def *CompiledAPIDefinition, invoker Invoker, overlay *fsoverlay.Store, auth *AuthConfig) *Gateway {
	g := &Gateway{def: def, invoker: invoker, overlay: overlay, auth: auth}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	var sessions SessionStore
	if auth != nil {
		sessions = auth.Sessions
	}
	r.Use(withAuth(sessions))
	r.NotFound(g.dispatch)
	r.MethodNotAllowed(g.dispatch)
	r.Handle("/*", http.HandlerFunc(g.dispatch))
	g.mux = r
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mux.ServeHTTP(w, r)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("gateway request")
	})
}

// dispatch resolves r to a Route and runs its binding. It is the single
// entry point every request passes through, matching spec.md §2's
// request flow: identify site -> resolve binding -> evaluate expression
// -> dispatch -> map response.
func (g *Gateway) dispatch(w http.ResponseWriter, r *http.Request) {
	timer := metrics.NewTimer()
	route, vars, ok := g.def.Resolve(r.Method, r.URL.Path)
	if !ok {
		writeError(w, errRouteNotFound)
		metrics.GatewayRequestsTotal.WithLabelValues("unresolved", "404").Inc()
		return
	}
	routeLabel := route.Method + " " + route.Pattern.raw
	defer timer.ObserveDurationVec(metrics.GatewayRequestDuration, routeLabel)

	handler := func(w http.ResponseWriter, r *http.Request) {
		g.dispatchBinding(w, r, route, vars)
	}

	final := http.Handler(http.HandlerFunc(handler))
	if route.CORSEnabled && route.Binding.Kind != BindingCorsPreflight {
		final = applyActualCORS(final, route.Binding.CorsOptions)
	}
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	final.ServeHTTP(rec, r)
	metrics.GatewayRequestsTotal.WithLabelValues(routeLabel, strconv.Itoa(rec.status)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (g *Gateway) dispatchBinding(w http.ResponseWriter, r *http.Request, route *Route, vars map[string]interface{}) {
	switch route.Binding.Kind {
	case BindingCorsPreflight:
		servePreflight(w, r, route.Binding.CorsOptions)
	case BindingOAuthCallback:
		if g.auth == nil {
			writeError(w, errUnauthorized)
			return
		}
		g.auth.Callback(w, r)
	case BindingWorker:
		g.handleWorker(w, r, route, vars)
	case BindingHttpHandler:
		g.handleHttpHandler(w, r, route, vars)
	case BindingFileServer:
		g.handleFileServer(w, r, route, vars)
	default:
		writeError(w, errRouteNotFound)
	}
}

// unionInputType combines every script's declared rib_input_type so the
// request is materialized exactly once per binding (spec.md §4.4: "the
// gateway materializes only those slices").
func unionInputType(scripts ...*compiledScript) rib.RibInputType {
	var need rib.RibInputType
	for _, s := range scripts {
		if s == nil {
			continue
		}
		need.Body = need.Body || s.InputType.Body
		need.Headers = need.Headers || s.InputType.Headers
		need.Query = need.Query || s.InputType.Query
		need.Path = need.Path || s.InputType.Path
		need.Auth = need.Auth || s.InputType.Auth
	}
	return need
}

func (g *Gateway) handleWorker(w http.ResponseWriter, r *http.Request, route *Route, vars map[string]interface{}) {
	need := unionInputType(route.WorkerNameScript, route.IdempotencyKeyScript, route.ResponseScript)
	reqValue, err := materializeRequest(r, need, vars, authClaimsFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	bindings := map[string]rib.Value{"request": reqValue}

	workerName, err := evalWorkerName(route, bindings)
	if err != nil {
		writeError(w, err)
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if route.IdempotencyKeyScript != nil {
		v, err := route.IdempotencyKeyScript.Evaluate(bindings)
		if err != nil {
			metrics.RibEvaluationsTotal.WithLabelValues("error").Inc()
			writeError(w, err)
			return
		}
		idempotencyKey = v.AsString()
	}

	call, err := route.ResponseScript.ResolveCall(bindings)
	if err != nil {
		metrics.RibEvaluationsTotal.WithLabelValues("error").Inc()
		writeError(w, err)
		return
	}
	metrics.RibEvaluationsTotal.WithLabelValues("ok").Inc()

	args, err := json.Marshal(valuesToJSON(call.Args))
	if err != nil {
		writeError(w, err)
		return
	}

	workerID := domain.WorkerId{ComponentId: route.Binding.ComponentID, WorkerName: workerName}
	resp, err := g.invoker.Invoke(r.Context(), &wire.InvokeRequest{
		Worker:         workerID,
		Function:       call.Interface + "." + call.Method,
		Args:           args,
		IdempotencyKey: idempotencyKey,
		Context:        traceContextFrom(r),
		Mode:           domain.InvokeAwait,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if resp.ErrorCode != "" {
		writeError(w, domainErrorFromResponse(resp, workerID))
		return
	}

	writeMappedResponse(w, r, route, resp.Output)
}

func (g *Gateway) handleHttpHandler(w http.ResponseWriter, r *http.Request, route *Route, vars map[string]interface{}) {
	need := unionInputType(route.WorkerNameScript, route.IdempotencyKeyScript)
	need.Body, need.Headers, need.Query, need.Path = true, true, true, true
	reqValue, err := materializeRequest(r, need, vars, authClaimsFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	bindings := map[string]rib.Value{"request": reqValue}

	workerName, err := evalWorkerName(route, bindings)
	if err != nil {
		writeError(w, err)
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if route.IdempotencyKeyScript != nil {
		v, err := route.IdempotencyKeyScript.Evaluate(bindings)
		if err != nil {
			writeError(w, err)
			return
		}
		idempotencyKey = v.AsString()
	}

	incoming, err := encodeIncomingRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	workerID := domain.WorkerId{ComponentId: route.Binding.ComponentID, WorkerName: workerName}
	resp, err := g.invoker.Invoke(r.Context(), &wire.InvokeRequest{
		Worker:         workerID,
		Function:       "wasi:http/incoming-handler.{handle}",
		Args:           incoming,
		IdempotencyKey: idempotencyKey,
		Context:        traceContextFrom(r),
		Mode:           domain.InvokeAwait,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if resp.ErrorCode != "" {
		writeError(w, domainErrorFromResponse(resp, workerID))
		return
	}

	status, headers, body, err := decodeOutgoingResponse(resp.Output)
	if err != nil {
		writeError(w, err)
		return
	}
	for k, vs := range headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (g *Gateway) handleFileServer(w http.ResponseWriter, r *http.Request, route *Route, vars map[string]interface{}) {
	if g.overlay == nil {
		writeError(w, errRouteNotFound)
		return
	}
	need := unionInputType(route.WorkerNameScript, route.ResponseScript)
	reqValue, err := materializeRequest(r, need, vars, authClaimsFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	bindings := map[string]rib.Value{"request": reqValue}

	workerName, err := evalWorkerName(route, bindings)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := route.ResponseScript.Evaluate(bindings)
	if err != nil {
		writeError(w, err)
		return
	}
	filePathV, ok := result.Field("file_path")
	if !ok || filePathV.Kind != rib.KindString {
		writeError(w, &BadRequest{Field: "response_rib", Message: "file server response must produce { file_path: string, ... }"})
		return
	}

	workerID := domain.WorkerId{ComponentId: route.Binding.ComponentID, WorkerName: workerName}
	root := g.overlay.OverlayRoot(workerID)
	full := filepath.Join(root, filepath.Clean("/"+filePathV.Str))
	if !strings.HasPrefix(full, filepath.Clean(root)+string(os.PathSeparator)) {
		writeError(w, &BadRequest{Field: "file_path", Message: "path escapes worker filesystem"})
		return
	}

	status := http.StatusOK
	if sv, ok := result.Field("status"); ok && sv.Kind == rib.KindNumber {
		status = int(sv.Num)
	}
	if hv, ok := result.Field("headers"); ok && hv.Kind == rib.KindList {
		for _, pair := range hv.List {
			if pair.Kind != rib.KindRecord {
				continue
			}
			name, _ := pair.Field("name")
			value, _ := pair.Field("value")
			w.Header().Add(name.AsString(), value.AsString())
		}
	}

	f, err := os.Open(full)
	if err != nil {
		writeError(w, domain.ErrInvalidRequest("file not found: "+filePathV.Str))
		return
	}
	defer f.Close()
	w.WriteHeader(status)
	_, _ = copyFile(w, f)
}

func copyFile(w http.ResponseWriter, f *os.File) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
	}
}

func evalWorkerName(route *Route, bindings map[string]rib.Value) (string, error) {
	if route.WorkerNameScript == nil {
		return uuid.NewString(), nil
	}
	v, err := route.WorkerNameScript.Evaluate(bindings)
	if err != nil {
		metrics.RibEvaluationsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.RibEvaluationsTotal.WithLabelValues("ok").Inc()
	return v.AsString(), nil
}

func valuesToJSON(values []rib.Value) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = ribValueToJSON(v)
	}
	return out
}

func ribValueToJSON(v rib.Value) interface{} {
	switch v.Kind {
	case rib.KindBool:
		return v.Bool
	case rib.KindString:
		return v.Str
	case rib.KindNumber:
		return v.Num
	case rib.KindList:
		return valuesToJSON(v.List)
	case rib.KindRecord:
		out := make(map[string]interface{}, len(v.Record))
		for k, e := range v.Record {
			out[k] = ribValueToJSON(e)
		}
		return out
	default:
		return nil
	}
}

func writeMappedResponse(w http.ResponseWriter, r *http.Request, route *Route, output json.RawMessage) {
	var decoded interface{}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &decoded); err != nil {
			writeError(w, &BadRequest{Field: "output", Message: err.Error()})
			return
		}
	}
	value := fromJSONValue(decoded)
	contentType := contenttype.Negotiate(route.ContentType, r.Header.Get("Accept"))
	mapped, err := contenttype.Map(value, contentType)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", mapped.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(mapped.Body)
}

func domainErrorFromResponse(resp *wire.InvokeResponse, worker domain.WorkerId) error {
	return &domain.WorkerExecutorError{
		Category: domain.CategoryInvocationFatal,
		Code:     resp.ErrorCode,
		Message:  resp.ErrorMessage,
		Worker:   &worker,
	}
}

// traceContextFrom reads W3C traceparent/tracestate off the inbound
// request and seeds a fresh InvocationContext span, propagated to the
// RPC fabric's gRPC leg by pkg/tracing (spec.md §6 "Invocation context on
// the wire").
func traceContextFrom(r *http.Request) domain.InvocationContext {
	ctx := domain.InvocationContext{IdempotencyKey: r.Header.Get("Idempotency-Key")}
	traceID := uuid.NewString()
	if tp := r.Header.Get("traceparent"); tp != "" {
		parts := strings.Split(tp, "-")
		if len(parts) >= 2 {
			traceID = parts[1]
		}
	}
	return ctx.WithSpan(r.Method+" "+r.URL.Path, traceID, uuid.NewString())
}

// encodeIncomingRequest builds the JSON envelope shuttled to a
// wasi:http/incoming-handler export, standing in for the wasi-http
// incoming-request resource a real Wasm host would construct (spec.md
// §4.4 "the core shuttles the request through incoming-request/
// outgoing-response resources").
func encodeIncomingRequest(r *http.Request) (json.RawMessage, error) {
	body := ""
	if r.Body != nil {
		buf := make([]byte, r.ContentLength)
		if r.ContentLength > 0 {
			_, _ = r.Body.Read(buf)
			body = base64.StdEncoding.EncodeToString(buf)
		}
	}
	return json.Marshal(map[string]interface{}{
		"method":  r.Method,
		"path":    r.URL.Path,
		"query":   r.URL.RawQuery,
		"headers": r.Header,
		"body":    body,
	})
}

func decodeOutgoingResponse(raw json.RawMessage) (int, map[string][]string, []byte, error) {
	var env struct {
		Status  int                 `json:"status"`
		Headers map[string][]string `json:"headers"`
		Body    string              `json:"body"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0, nil, nil, &BadRequest{Field: "output", Message: err.Error()}
	}
	body, err := base64.StdEncoding.DecodeString(env.Body)
	if err != nil {
		body = []byte(env.Body)
	}
	if env.Status == 0 {
		env.Status = http.StatusOK
	}
	return env.Status, env.Headers, body, nil
}

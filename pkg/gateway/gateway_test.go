package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cuemby/fabrik/pkg/rib"
	"github.com/cuemby/fabrik/pkg/rpc/wire"
	"github.com/stretchr/testify/require"
)

// fakeInvoker is the Invoker testing seam: it records the last request it
// was handed and replies with a canned output, standing in for the RPC
// fabric in gateway-only tests (spec.md §9 testing seam).
type fakeInvoker struct {
	lastReq *wire.InvokeRequest
	output  json.RawMessage
	calls   int
	byKey   map[string]*wire.InvokeResponse
}

func newFakeInvoker(output json.RawMessage) *fakeInvoker {
	return &fakeInvoker{output: output, byKey: make(map[string]*wire.InvokeResponse)}
}

func (f *fakeInvoker) Invoke(_ context.Context, req *wire.InvokeRequest) (*wire.InvokeResponse, error) {
	f.lastReq = req
	if req.IdempotencyKey != "" {
		if cached, ok := f.byKey[req.IdempotencyKey]; ok {
			return cached, nil
		}
	}
	f.calls++
	resp := &wire.InvokeResponse{Output: f.output}
	if req.IdempotencyKey != "" {
		f.byKey[req.IdempotencyKey] = resp
	}
	return resp, nil
}

func buildRoute(t *testing.T, method, path, workerNameRib, responseRib string) (*CompiledAPIDefinition, *Route) {
	t.Helper()
	def := NewCompiledAPIDefinition()
	route, err := def.AddRoute(RouteSpec{
		Method: method,
		Path:   path,
		Binding: &Binding{
			Kind:          BindingWorker,
			ComponentID:   "shopping-cart",
			WorkerNameRib: workerNameRib,
			ResponseRib:   responseRib,
		},
		WorkerNameInput: rib.RibInputType{Path: true, Query: true, Body: true},
		ResponseInput:   rib.RibInputType{Path: true, Query: true, Body: true},
	})
	require.NoError(t, err)
	return def, route
}

func TestScenarioSimpleInvocation(t *testing.T) {
	def, _ := buildRoute(t, "GET", "/foo/{user-id}",
		`"shopping-cart-${request.path.user-id}"`,
		`golem:it/api.{get-cart-contents}("a","b")`)

	invoker := newFakeInvoker(mustJSON(t, "ok"))
	gw := NewGateway(def, invoker, nil, nil)

	req := httptest.NewRequest("GET", "/foo/1", nil)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "shopping-cart-1", invoker.lastReq.Worker.WorkerName)
	require.Equal(t, "golem:it/api.get-cart-contents", invoker.lastReq.Function)

	var args []interface{}
	require.NoError(t, json.Unmarshal(invoker.lastReq.Args, &args))
	require.Equal(t, []interface{}{"a", "b"}, args)
}

func TestScenarioQueryAndPath(t *testing.T) {
	def, _ := buildRoute(t, "GET", "/foo/{user-id}",
		`"shopping-cart-${request.path.user-id}"`,
		`golem:it/api.{get-cart-contents}(request.query.token-id, request.query.token-id)`)

	invoker := newFakeInvoker(mustJSON(t, "ok"))
	gw := NewGateway(def, invoker, nil, nil)

	req := httptest.NewRequest("GET", "/foo/1?token-id=jon", nil)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "shopping-cart-1", invoker.lastReq.Worker.WorkerName)
	var args []interface{}
	require.NoError(t, json.Unmarshal(invoker.lastReq.Args, &args))
	require.Equal(t, []interface{}{"jon", "jon"}, args)
}

func TestScenarioBodyDrivenBranching(t *testing.T) {
	def, _ := buildRoute(t, "GET", "/foo/{user-id}",
		`if request.body.age > 100 then "shopping-cart-0" else "shopping-cart-1"`,
		`golem:it/api.{get-cart-contents}("a")`)

	invoker := newFakeInvoker(mustJSON(t, "ok"))
	gw := NewGateway(def, invoker, nil, nil)

	req := httptest.NewRequest("GET", "/foo/1", strings.NewReader(`{"age":10}`))
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "shopping-cart-1", invoker.lastReq.Worker.WorkerName)
}

func TestScenarioIdempotencyKeyReusesResult(t *testing.T) {
	def, _ := buildRoute(t, "POST", "/items",
		`"items-worker"`,
		`golem:it/api.{create-item}("x")`)

	invoker := newFakeInvoker(mustJSON(t, "created"))
	gw := NewGateway(def, invoker, nil, nil)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/items", nil)
		req.Header.Set("Idempotency-Key", "k-1")
		rec := httptest.NewRecorder()
		gw.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Equal(t, 1, invoker.calls)
}

func TestScenarioCORSPreflightDefault(t *testing.T) {
	def := NewCompiledAPIDefinition()
	_, err := def.AddRoute(RouteSpec{
		Method:      "GET",
		Path:        "/foo/1",
		CORSEnabled: true,
		Binding: &Binding{
			Kind:        BindingWorker,
			ComponentID: "shopping-cart",
			WorkerNameRib: `"shopping-cart-1"`,
			ResponseRib:   `golem:it/api.{get-cart-contents}("a")`,
			CorsOptions: DefaultCorsOptions(),
		},
	})
	require.NoError(t, err)

	invoker := newFakeInvoker(mustJSON(t, "ok"))
	gw := NewGateway(def, invoker, nil, nil)

	req := httptest.NewRequest("OPTIONS", "/foo/1", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouteNotFoundMapsTo404(t *testing.T) {
	def := NewCompiledAPIDefinition()
	gw := NewGateway(def, newFakeInvoker(nil), nil, nil)

	req := httptest.NewRequest("GET", "/nope", nil)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

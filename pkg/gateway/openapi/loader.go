// Package openapi builds a gateway.CompiledAPIDefinition from an OpenAPI
// 3 document's vendor extensions, the "OpenAPI-derived routing table"
// spec.md §1 names as in-scope (consuming a document, as opposed to
// generating one, which remains an external collaborator). Grounded on
// kubernaut's go.mod choice of github.com/getkin/kin-openapi (its own
// implementation slice is test-only, so only the dependency is
// grounded there).
package openapi

import (
	"context"
	"fmt"

	"github.com/cuemby/fabrik/pkg/gateway"
	"github.com/cuemby/fabrik/pkg/rib"
	"github.com/getkin/kin-openapi/openapi3"
)

// bindingExtensionKey is the vendor extension an operation carries its
// fabrik binding under, named after the original's `x-golem-worker-
// bridge` convention (spec.md §4.4 "OpenAPI-derived routing table").
const bindingExtensionKey = "x-fabrik-binding"

// bindingDoc is the shape bindingExtensionKey's value is unmarshaled
// into; it mirrors gateway.Binding/RouteSpec's fields in wire form.
type bindingDoc struct {
	Kind                string   `json:"kind" yaml:"kind"`
	ComponentID         string   `json:"componentId" yaml:"componentId"`
	Version             int      `json:"version" yaml:"version"`
	WorkerName          string   `json:"workerName" yaml:"workerName"`
	IdempotencyKey      string   `json:"idempotencyKey" yaml:"idempotencyKey"`
	Response            string   `json:"response" yaml:"response"`
	CORS                bool     `json:"cors" yaml:"cors"`
	Auth                bool     `json:"auth" yaml:"auth"`
	ContentType         string   `json:"contentType" yaml:"contentType"`
	ReadsBody           bool     `json:"readsBody" yaml:"readsBody"`
	ReadsHeaders        bool     `json:"readsHeaders" yaml:"readsHeaders"`
	ReadsQuery          bool     `json:"readsQuery" yaml:"readsQuery"`
	AllowedOrigins      []string `json:"allowedOrigins" yaml:"allowedOrigins"`
}

// Load parses an OpenAPI 3 document and returns the CompiledAPIDefinition
// its x-fabrik-binding extensions describe. Operations without the
// extension are skipped (they document an out-of-band API surface, not
// one the gateway serves).
func Load(ctx context.Context, data []byte) (*gateway.CompiledAPIDefinition, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("openapi: parse document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("openapi: invalid document: %w", err)
	}

	def := gateway.NewCompiledAPIDefinition()
	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			raw, ok := op.Extensions[bindingExtensionKey]
			if !ok {
				continue
			}
			bd, err := decodeBindingDoc(raw)
			if err != nil {
				return nil, fmt.Errorf("openapi: %s %s: %w", method, path, err)
			}
			if _, err := def.AddRoute(routeSpecFromBindingDoc(method, path, bd)); err != nil {
				return nil, fmt.Errorf("openapi: %s %s: %w", method, path, err)
			}
		}
	}
	return def, nil
}

func routeSpecFromBindingDoc(method, path string, bd bindingDoc) gateway.RouteSpec {
	input := rib.RibInputType{Body: bd.ReadsBody, Headers: bd.ReadsHeaders, Query: bd.ReadsQuery, Path: true, Auth: bd.Auth}

	binding := &gateway.Binding{
		Kind:              gateway.BindingKind(bd.Kind),
		ComponentID:       bd.ComponentID,
		Version:           bd.Version,
		WorkerNameRib:     bd.WorkerName,
		IdempotencyKeyRib: bd.IdempotencyKey,
		ResponseRib:       bd.Response,
	}
	if bd.CORS {
		opts := gateway.DefaultCorsOptions()
		if len(bd.AllowedOrigins) > 0 {
			opts.AllowedOrigins = bd.AllowedOrigins
		}
		binding.CorsOptions = opts
	}

	return gateway.RouteSpec{
		Method:              method,
		Path:                path,
		Binding:             binding,
		CORSEnabled:         bd.CORS,
		AuthEnabled:         bd.Auth,
		ContentType:         bd.ContentType,
		WorkerNameInput:     input,
		IdempotencyKeyInput: input,
		ResponseInput:       input,
	}
}

// decodeBindingDoc converts kin-openapi's generic extension value
// (decoded as interface{} from the document's JSON/YAML) into a
// bindingDoc without assuming json.RawMessage, since kin-openapi may
// hand back either shape depending on the loader configuration.
func decodeBindingDoc(raw interface{}) (bindingDoc, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return bindingDoc{}, fmt.Errorf("%s extension must be an object", bindingExtensionKey)
	}
	bd := bindingDoc{}
	bd.Kind, _ = m["kind"].(string)
	bd.ComponentID, _ = m["componentId"].(string)
	if v, ok := m["version"].(float64); ok {
		bd.Version = int(v)
	}
	bd.WorkerName, _ = m["workerName"].(string)
	bd.IdempotencyKey, _ = m["idempotencyKey"].(string)
	bd.Response, _ = m["response"].(string)
	bd.CORS, _ = m["cors"].(bool)
	bd.Auth, _ = m["auth"].(bool)
	bd.ContentType, _ = m["contentType"].(string)
	bd.ReadsBody, _ = m["readsBody"].(bool)
	bd.ReadsHeaders, _ = m["readsHeaders"].(bool)
	bd.ReadsQuery, _ = m["readsQuery"].(bool)
	if origins, ok := m["allowedOrigins"].([]interface{}); ok {
		for _, o := range origins {
			if s, ok := o.(string); ok {
				bd.AllowedOrigins = append(bd.AllowedOrigins, s)
			}
		}
	}
	return bd, nil
}

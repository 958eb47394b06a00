package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cuemby/fabrik/pkg/rib"
)

// BadRequest reports a malformed request and maps to HTTP 400. Within
// request materialization it is returned only for a body that cannot be
// read or is not valid JSON; header and query values are materialized as
// strings and are not decoded as typed primitives, so they never produce
// one.
type BadRequest struct {
	Field   string
	Message string
}

func (e *BadRequest) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("bad request: %s: %s", e.Field, e.Message)
	}
	return "bad request: " + e.Message
}

// materializeRequest builds the `request` Rib binding for r, populating
// only the slices declared by the union of every script's InputType
// (spec.md §4.4: "The gateway materializes only those slices"). pathVars
// comes from the route's PathPattern.Match; auth is nil unless an
// auth middleware ran and a claims bag is attached to the request
// context.
func materializeRequest(r *http.Request, need rib.RibInputType, pathVars map[string]interface{}, auth map[string]interface{}) (rib.Value, error) {
	fields := make(map[string]rib.Value)

	if need.Body {
		body, err := materializeBody(r)
		if err != nil {
			return rib.Value{}, err
		}
		fields["body"] = body
	}

	if need.Headers {
		fields["headers"] = materializeStringMultiMap(r.Header)
	}

	if need.Query {
		fields["query"] = materializeStringMultiMap(r.URL.Query())
	}

	if need.Path {
		fields["path"] = materializePathVars(pathVars)
	}

	if need.Auth {
		if auth == nil {
			fields["auth"] = rib.Null()
		} else {
			fields["auth"] = fromJSONValue(auth)
		}
	}

	return rib.Record(fields), nil
}

func materializeBody(r *http.Request) (rib.Value, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return rib.Null(), nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return rib.Value{}, &BadRequest{Field: "body", Message: err.Error()}
	}
	if len(data) == 0 {
		return rib.Null(), nil
	}
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return rib.Value{}, &BadRequest{Field: "body", Message: "not valid JSON: " + err.Error()}
	}
	return fromJSONValue(decoded), nil
}

// materializeStringMultiMap turns a header/query multimap into a Rib
// record: a field with one value materializes as a string, a field with
// several materializes as a list<string>. Values are not parsed into
// other primitive types.
func materializeStringMultiMap(values map[string][]string) rib.Value {
	fields := make(map[string]rib.Value, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			fields[k] = rib.String(vs[0])
			continue
		}
		items := make([]rib.Value, len(vs))
		for i, v := range vs {
			items[i] = rib.String(v)
		}
		fields[k] = rib.List(items...)
	}
	return rib.Record(fields)
}

func materializePathVars(vars map[string]interface{}) rib.Value {
	fields := make(map[string]rib.Value, len(vars))
	for k, v := range vars {
		switch tv := v.(type) {
		case string:
			fields[k] = rib.String(tv)
		case []interface{}:
			items := make([]rib.Value, len(tv))
			for i, e := range tv {
				items[i] = rib.String(fmt.Sprint(e))
			}
			fields[k] = rib.List(items...)
		default:
			fields[k] = rib.String(fmt.Sprint(tv))
		}
	}
	return rib.Record(fields)
}

// fromJSONValue converts a decoded JSON value (as produced by
// json.Unmarshal into interface{}) into a rib.Value.
func fromJSONValue(v interface{}) rib.Value {
	switch tv := v.(type) {
	case nil:
		return rib.Null()
	case bool:
		return rib.Bool(tv)
	case float64:
		return rib.Number(tv)
	case string:
		return rib.String(tv)
	case []interface{}:
		items := make([]rib.Value, len(tv))
		for i, e := range tv {
			items[i] = fromJSONValue(e)
		}
		return rib.List(items...)
	case map[string]interface{}:
		fields := make(map[string]rib.Value, len(tv))
		for k, e := range tv {
			fields[k] = fromJSONValue(e)
		}
		return rib.Record(fields)
	default:
		return rib.Null()
	}
}

// Package contenttype maps a Rib Value to an HTTP response body, per
// spec.md §4.5. Grounded on
// original_source/golem-worker-service-base/src/http_content_type_mapper.rs
// for the three-rule precedence (route-set Content-Type, then Accept
// negotiation, then JSON default) and the type→body compatibility table.
package contenttype

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuemby/fabrik/pkg/rib"
)

// Priority is the ordered list of content types the Accept negotiation
// rule picks from, highest priority first (spec.md §4.5 rule 2).
var Priority = []string{
	"application/json",
	"text/plain",
	"text/html",
	"application/xml",
	"application/x-www-form-urlencoded",
	"image/*",
	"application/octet-stream",
}

// IllegalMapping is returned when the negotiated/forced content type is
// incompatible with the value's shape (spec.md §4.5: a record requested
// as non-JSON, or a None option requested as non-JSON). The gateway maps
// this to HTTP 406 (spec.md §7).
type IllegalMapping struct {
	ValueKind   rib.Kind
	ContentType string
}

func (e *IllegalMapping) Error() string {
	return fmt.Sprintf("cannot map %s value as %s", e.ValueKind, e.ContentType)
}

// Mapped is the result of mapping a Value: the response body bytes and
// the content type to send with them.
type Mapped struct {
	Body        []byte
	ContentType string
}

// Negotiate picks the content type a response will be sent as, applying
// spec.md §4.5's three rules in order: an explicit route Content-Type
// wins outright; otherwise the highest-priority type present in accept;
// otherwise JSON.
func Negotiate(routeContentType, accept string) string {
	if routeContentType != "" {
		return routeContentType
	}
	if accept == "" || accept == "*/*" {
		return "application/json"
	}
	offered := parseAccept(accept)
	for _, candidate := range Priority {
		if offered[candidate] {
			return candidate
		}
		if strings.HasSuffix(candidate, "/*") {
			prefix := strings.TrimSuffix(candidate, "*")
			for o := range offered {
				if strings.HasPrefix(o, prefix) {
					return candidate
				}
			}
		}
	}
	return "application/json"
}

func parseAccept(header string) map[string]bool {
	out := make(map[string]bool)
	for _, part := range strings.Split(header, ",") {
		mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if mt != "" {
			out[mt] = true
		}
	}
	if out["*/*"] {
		for _, p := range Priority {
			out[p] = true
		}
	}
	return out
}

// Map turns v into response bytes for contentType, enforcing spec.md
// §4.5's type→body compatibility table. Returns *IllegalMapping when the
// requested type cannot represent v's shape.
func Map(v rib.Value, contentType string) (Mapped, error) {
	base := contentType
	if i := strings.Index(base, ";"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	switch v.Kind {
	case rib.KindList:
		if isByteList(v) && base == "application/octet-stream" {
			return Mapped{Body: bytesOf(v), ContentType: base}, nil
		}
		if base == "application/json" {
			b, err := json.Marshal(valueToJSON(v))
			return Mapped{Body: b, ContentType: base}, err
		}
		if isByteList(v) {
			return Mapped{Body: bytesOf(v), ContentType: "application/octet-stream"}, nil
		}
		return Mapped{}, &IllegalMapping{v.Kind, contentType}

	case rib.KindNull:
		if base == "application/json" {
			return Mapped{Body: []byte("null"), ContentType: base}, nil
		}
		return Mapped{}, &IllegalMapping{v.Kind, contentType}

	case rib.KindString, rib.KindNumber, rib.KindBool:
		switch base {
		case "application/json":
			b, err := json.Marshal(valueToJSON(v))
			return Mapped{Body: b, ContentType: base}, err
		case "text/plain", "text/html":
			return Mapped{Body: []byte(v.AsString()), ContentType: base}, nil
		default:
			return Mapped{Body: []byte(v.AsString()), ContentType: base}, nil
		}

	case rib.KindRecord:
		if base != "application/json" {
			return Mapped{}, &IllegalMapping{v.Kind, contentType}
		}
		b, err := json.Marshal(valueToJSON(v))
		return Mapped{Body: b, ContentType: base}, err

	default:
		return Mapped{}, &IllegalMapping{v.Kind, contentType}
	}
}

// isByteList reports whether v is a list<u8> candidate: every element is
// a whole number in [0,255].
func isByteList(v rib.Value) bool {
	if v.Kind != rib.KindList {
		return false
	}
	for _, e := range v.List {
		if e.Kind != rib.KindNumber || e.Num < 0 || e.Num > 255 || e.Num != float64(int(e.Num)) {
			return false
		}
	}
	return true
}

func bytesOf(v rib.Value) []byte {
	out := make([]byte, len(v.List))
	for i, e := range v.List {
		out[i] = byte(e.Num)
	}
	return out
}

// valueToJSON converts a rib.Value into a plain Go value json.Marshal can
// encode, so byte lists that are not being sent as octet-stream still
// render as a JSON array rather than a base64 string.
func valueToJSON(v rib.Value) interface{} {
	switch v.Kind {
	case rib.KindBool:
		return v.Bool
	case rib.KindString:
		return v.Str
	case rib.KindNumber:
		return v.Num
	case rib.KindNull:
		return nil
	case rib.KindList:
		out := make([]interface{}, len(v.List))
		for i, e := range v.List {
			out[i] = valueToJSON(e)
		}
		return out
	case rib.KindRecord:
		out := make(map[string]interface{}, len(v.Record))
		for k, e := range v.Record {
			out[k] = valueToJSON(e)
		}
		return out
	default:
		return nil
	}
}

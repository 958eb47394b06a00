// Package rib implements the embedded expression language Rib scripts are
// written in: a small compiled AST plus an Evaluate entry point, grounded
// on original_source/golem-rib/src/parser/rib_expr.rs for the grammar
// shape and original_source/golem-worker-service-base/src/evaluator.rs
// for the evaluation-order/error-propagation rules.
package rib

import (
	"fmt"
	"sort"
)

// Kind tags a Value's runtime shape, mirroring the WIT primitive/record/
// list/option vocabulary closely enough to drive the gateway's content-
// type mapper (pkg/gateway/contenttype) without a full WIT type checker.
type Kind string

const (
	KindBool   Kind = "bool"
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindList   Kind = "list"
	KindRecord Kind = "record"
	KindOption Kind = "option"
	KindNull   Kind = "null"
)

// Value is Rib's dynamically-typed runtime value: the result of
// evaluating any expression, and the materialized shape of any
// request slice (body/headers/query/path/auth).
type Value struct {
	Kind   Kind
	Bool   bool
	Str    string
	Num    float64
	List   []Value
	Record map[string]Value
}

func Bool(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func Null() Value            { return Value{Kind: KindNull} }
func List(items ...Value) Value {
	return Value{Kind: KindList, List: items}
}
func Record(fields map[string]Value) Value {
	return Value{Kind: KindRecord, Record: fields}
}

// TypeName returns the Rib type name used in TypeMismatch error messages.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindList:
		return "list"
	case KindRecord:
		return "record"
	case KindOption:
		return "option"
	default:
		return "null"
	}
}

// Field looks up a record field, returning (Null, false) if v is not a
// record or the field is absent — callers turn the false into a
// FieldNotFound error with the path that was being walked.
func (v Value) Field(name string) (Value, bool) {
	if v.Kind != KindRecord {
		return Value{}, false
	}
	f, ok := v.Record[name]
	return f, ok
}

// AsString renders v the way string interpolation does: scalars render
// their natural text form, everything else renders as compact JSON-like
// text (sufficient for Rib's "${...}" interpolation use case).
func (v Value) AsString() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.Num)
	case KindNull:
		return ""
	case KindList:
		parts := make([]string, len(v.List))
		for i, e := range v.List {
			parts[i] = e.AsString()
		}
		return "[" + joinStrings(parts, ", ") + "]"
	case KindRecord:
		keys := make([]string, 0, len(v.Record))
		for k := range v.Record {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, v.Record[k].AsString())
		}
		return "{" + joinStrings(parts, ", ") + "}"
	default:
		return ""
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}

func joinStrings(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

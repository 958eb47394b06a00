package rib

import "strings"

// env is the evaluation environment: a flat set of top-level bindings
// (currently just "request", but structured as a map so gateway/auth
// can extend it, e.g. with a "now" binding for future Rib features).
type env struct {
	bindings map[string]Value
}

func newEnv(bindings map[string]Value) *env {
	return &env{bindings: bindings}
}

// Evaluate runs the compiled script against the given top-level
// bindings (normally just {"request": materializedRequest}) and returns
// the resulting Value. Sub-expressions are evaluated before an operator
// is applied; a type mismatch short-circuits immediately with the Rib
// type name in the error, matching the evaluator shape in
// original_source/golem-worker-service-base/src/evaluator.rs.
func (s *Script) Evaluate(bindings map[string]Value) (Value, error) {
	return s.expr.eval(newEnv(bindings))
}

// Call describes a resolved response-rib function invocation: the
// interface/method to call and its already-evaluated arguments. The
// gateway dispatches this through the RPC fabric; Rib itself has no
// knowledge of workers or the wire.
type Call struct {
	Interface string
	Method    string
	Args      []Value
}

// ResolveCall evaluates a response rib that is a bare FuncCall
// expression (the common shape for Worker/HttpHandler bindings) and
// returns the method name plus evaluated arguments, without attempting
// to run it — running it is the gateway's job.
func (s *Script) ResolveCall(bindings map[string]Value) (*Call, error) {
	fc, ok := s.expr.(*FuncCall)
	if !ok {
		return nil, errParse("response rib is not a function call expression")
	}
	e := newEnv(bindings)
	args := make([]Value, len(fc.Args))
	for i, a := range fc.Args {
		v, err := a.eval(e)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return &Call{Interface: fc.Interface, Method: fc.Method, Args: args}, nil
}

func (l *Literal) eval(*env) (Value, error) { return l.Value, nil }

func (t *StringTemplate) eval(e *env) (Value, error) {
	if len(t.Parts) == 1 && t.Parts[0].Expr == nil {
		return String(t.Parts[0].Text), nil
	}
	var sb strings.Builder
	for _, part := range t.Parts {
		if part.Expr == nil {
			sb.WriteString(part.Text)
			continue
		}
		v, err := part.Expr.eval(e)
		if err != nil {
			return Value{}, err
		}
		sb.WriteString(v.AsString())
	}
	return String(sb.String()), nil
}

func (i *Ident) eval(e *env) (Value, error) {
	v, ok := e.bindings[i.Name]
	if !ok {
		return Value{}, errUnknownIdentifier(i.Name)
	}
	return v, nil
}

func (f *FieldSelect) eval(e *env) (Value, error) {
	v, err := f.Base.eval(e)
	if err != nil {
		return Value{}, err
	}
	path := identPrefix(f.Base)
	for _, field := range f.Fields {
		next, ok := v.Field(field)
		if !ok {
			return Value{}, errFieldNotFound(path + "." + field)
		}
		v = next
		path += "." + field
	}
	return v, nil
}

func identPrefix(base Expr) string {
	if id, ok := base.(*Ident); ok {
		return id.Name
	}
	return "<expr>"
}

func (b *BinaryOp) eval(e *env) (Value, error) {
	left, err := b.Left.eval(e)
	if err != nil {
		return Value{}, err
	}
	right, err := b.Right.eval(e)
	if err != nil {
		return Value{}, err
	}

	switch b.Op {
	case "==":
		return Bool(valuesEqual(left, right)), nil
	case "!=":
		return Bool(!valuesEqual(left, right)), nil
	}

	if left.Kind != KindNumber || right.Kind != KindNumber {
		return Value{}, errTypeMismatch("number", left.TypeName()+" "+b.Op+" "+right.TypeName())
	}
	switch b.Op {
	case ">":
		return Bool(left.Num > right.Num), nil
	case "<":
		return Bool(left.Num < right.Num), nil
	case ">=":
		return Bool(left.Num >= right.Num), nil
	case "<=":
		return Bool(left.Num <= right.Num), nil
	default:
		return Value{}, errParse("unknown operator: " + b.Op)
	}
}

func valuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindBool:
		return a.Bool == b.Bool
	case KindString:
		return a.Str == b.Str
	case KindNumber:
		return a.Num == b.Num
	case KindNull:
		return true
	default:
		return a.AsString() == b.AsString()
	}
}

func (i *IfExpr) eval(e *env) (Value, error) {
	cond, err := i.Cond.eval(e)
	if err != nil {
		return Value{}, err
	}
	if cond.Kind != KindBool {
		return Value{}, errTypeMismatch("bool", cond.TypeName())
	}
	if cond.Bool {
		return i.Then.eval(e)
	}
	return i.Else.eval(e)
}

func (l *ListLit) eval(e *env) (Value, error) {
	items := make([]Value, len(l.Items))
	for idx, item := range l.Items {
		v, err := item.eval(e)
		if err != nil {
			return Value{}, err
		}
		items[idx] = v
	}
	return List(items...), nil
}

// eval on a bare FuncCall (used when a script's whole body is a
// function call but the caller wants a Value rather than a Call, e.g.
// a worker_name_rib that happens to be written as a call expression)
// returns a string rendering of the call — callers that actually want
// to invoke it should use ResolveCall instead.
func (f *FuncCall) eval(e *env) (Value, error) {
	call, err := (&Script{expr: f}).ResolveCall(e.bindings)
	if err != nil {
		return Value{}, err
	}
	parts := make([]string, len(call.Args))
	for i, a := range call.Args {
		parts[i] = a.AsString()
	}
	return String(call.Interface + ".{" + call.Method + "}(" + joinStrings(parts, ", ") + ")"), nil
}

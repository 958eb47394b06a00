package rib

import "fmt"

// EvalError is Rib's typed evaluation error; the gateway's request
// materializer and response mapper both switch on these to produce the
// right HTTP status (spec.md §4.4/§6: type mismatches become 400, a
// missing field surfaces as a 400 rather than a 500).
type EvalError struct {
	Kind    string
	Message string
}

func (e *EvalError) Error() string { return e.Message }

func errTypeMismatch(expected, got string) error {
	return &EvalError{Kind: "TypeMismatch", Message: fmt.Sprintf("expected %s, got %s", expected, got)}
}

func errFieldNotFound(path string) error {
	return &EvalError{Kind: "FieldNotFound", Message: fmt.Sprintf("field not found: %s", path)}
}

func errUnknownIdentifier(name string) error {
	return &EvalError{Kind: "UnknownIdentifier", Message: fmt.Sprintf("unknown identifier: %s", name)}
}

func errParse(msg string) error {
	return &EvalError{Kind: "ParseError", Message: msg}
}

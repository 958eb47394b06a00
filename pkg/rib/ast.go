package rib

// Expr is a compiled Rib expression node. The tree is small and
// recursive rather than driven by a general parser-generator grammar —
// sufficient for the method surface spec.md exercises: field select,
// list literals, string interpolation, comparisons, if/then/else, and a
// single top-level function-call expression for response ribs. There is
// no record literal syntax; records only enter through the bindings.
type Expr interface {
	eval(env *env) (Value, error)
}

// Literal is a constant bool/number/string/null.
type Literal struct {
	Value Value
}

// TemplatePart is either literal text or an embedded expression inside a
// `"...${expr}..."` string template.
type TemplatePart struct {
	Text string
	Expr Expr // nil when this part is plain text
}

// StringTemplate is a (possibly-interpolated) string literal: `"plain"`
// has a single text-only part, `"cart-${request.path.id}"` has a text
// part and an expression part.
type StringTemplate struct {
	Parts []TemplatePart
}

// Ident resolves a top-level name against the evaluation environment,
// e.g. `request`.
type Ident struct {
	Name string
}

// FieldSelect walks `Base.Fields[0].Fields[1]...`, e.g.
// `request.path.user-id`.
type FieldSelect struct {
	Base   Expr
	Fields []string
}

// BinaryOp is a comparison: `>`, `<`, `>=`, `<=`, `==`, `!=`.
type BinaryOp struct {
	Op          string
	Left, Right Expr
}

// IfExpr is `if Cond then Then else Else`.
type IfExpr struct {
	Cond, Then, Else Expr
}

// ListLit is `[e1, e2, ...]`.
type ListLit struct {
	Items []Expr
}

// FuncCall is the WIT-invocation-syntax expression used by response
// ribs: `golem:it/api.{get-cart-contents}(arg1, arg2)`. Interface is the
// "golem:it/api" portion, Method the "get-cart-contents" portion.
type FuncCall struct {
	Interface string
	Method    string
	Args      []Expr
}

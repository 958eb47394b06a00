package rib

import "fmt"

// Script is a compiled Rib expression ready to evaluate, plus the
// declared rib_input_type describing which request slices it reads
// (spec.md §4.4: "the gateway materializes only those slices").
type Script struct {
	Source    string
	InputType RibInputType
	expr      Expr
}

// RibInputType declares which of request.{body,headers,query,path,auth}
// a script reads, so the gateway materializes only those slices.
type RibInputType struct {
	Body    bool
	Headers bool
	Query   bool
	Path    bool
	Auth    bool
}

// Compile parses src into a Script. inputType is supplied by the
// compiled API definition (or inferred conservatively as "reads
// everything" when the caller has none available).
func Compile(src string, inputType RibInputType) (*Script, error) {
	p := &parser{lex: newLexer(src)}
	p.advance()
	expr, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("rib: %s: %w", src, err)
	}
	if p.cur.kind != tokEOF {
		return nil, fmt.Errorf("rib: %s: unexpected trailing input", src)
	}
	return &Script{Source: src, InputType: inputType, expr: expr}, nil
}

type parser struct {
	lex *lexer
	cur token
}

func (p *parser) advance() { p.cur = p.lex.next() }

func (p *parser) expect(k tokenKind) error {
	if p.cur.kind != k {
		return errParse(fmt.Sprintf("unexpected token near %q", p.cur.text))
	}
	p.advance()
	return nil
}

// parseExpr := ifExpr | comparison
func (p *parser) parseExpr() (Expr, error) {
	if p.cur.kind == tokIf {
		return p.parseIf()
	}
	return p.parseComparison()
}

func (p *parser) parseIf() (Expr, error) {
	p.advance() // consume 'if'
	cond, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokThen); err != nil {
		return nil, err
	}
	thenE, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokElse); err != nil {
		return nil, err
	}
	elseE, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &IfExpr{Cond: cond, Then: thenE, Else: elseE}, nil
}

// parseComparison := primary (op primary)?
func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.cur.kind == tokOp {
		op := p.cur.text
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &BinaryOp{Op: op, Left: left, Right: right}, nil
	}
	return left, nil
}

// parsePrimary handles literals, identifiers/field-selects, function
// calls, and list literals, then folds in any trailing `.field` chain.
func (p *parser) parsePrimary() (Expr, error) {
	var base Expr
	var err error

	switch p.cur.kind {
	case tokStringStart:
		base, err = p.parseStringTemplate()
	case tokNumber:
		n, perr := parseNumber(p.cur.text)
		if perr != nil {
			return nil, errParse("bad number: " + p.cur.text)
		}
		p.advance()
		base = &Literal{Value: Number(n)}
	case tokTrue:
		p.advance()
		base = &Literal{Value: Bool(true)}
	case tokFalse:
		p.advance()
		base = &Literal{Value: Bool(false)}
	case tokLBracket:
		base, err = p.parseList()
	case tokPath:
		base, err = p.parsePathExpr()
	default:
		return nil, errParse(fmt.Sprintf("unexpected token near %q", p.cur.text))
	}
	if err != nil {
		return nil, err
	}

	var fields []string
	for p.cur.kind == tokDot {
		p.advance()
		if p.cur.kind != tokPath {
			return nil, errParse("expected field name after '.'")
		}
		fields = append(fields, p.cur.text)
		p.advance()
	}
	if len(fields) > 0 {
		return &FieldSelect{Base: base, Fields: fields}, nil
	}
	return base, nil
}

func (p *parser) parseList() (Expr, error) {
	p.advance() // consume '['
	var items []Expr
	for p.cur.kind != tokRBracket {
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.cur.kind == tokComma {
			p.advance()
			continue
		}
		break
	}
	if err := p.expect(tokRBracket); err != nil {
		return nil, err
	}
	return &ListLit{Items: items}, nil
}

// parsePathExpr handles a bare identifier (`request`), and the
// function-call syntax `golem:it/api.{method-name}(args...)`. The
// colon/slash-bearing namespace is already one tokPath (pathChar
// includes ':' and '/').
func (p *parser) parsePathExpr() (Expr, error) {
	name := p.cur.text
	p.advance()

	if p.cur.kind == tokDot {
		// Peek past the dot: `.{` means a function call, otherwise it's
		// a field-select chain the caller (parsePrimary) handles.
		save := *p.lex
		saveTok := p.cur
		p.advance()
		if p.cur.kind == tokLBrace {
			p.advance()
			if p.cur.kind != tokPath {
				return nil, errParse("expected method name inside {}")
			}
			method := p.cur.text
			p.advance()
			if err := p.expect(tokRBrace); err != nil {
				return nil, err
			}
			if err := p.expect(tokLParen); err != nil {
				return nil, err
			}
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &FuncCall{Interface: name, Method: method, Args: args}, nil
		}
		// Not a function call: rewind to before the dot so parsePrimary's
		// field-select loop sees it.
		*p.lex = save
		p.cur = saveTok
	}
	return &Ident{Name: name}, nil
}

func (p *parser) parseArgs() ([]Expr, error) {
	var args []Expr
	for p.cur.kind != tokRParen {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.cur.kind == tokComma {
			p.advance()
			continue
		}
		break
	}
	if err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return args, nil
}

// parseStringTemplate reads a `"...${expr}..."` literal, recursing into
// parseExpr for each interpolation.
func (p *parser) parseStringTemplate() (Expr, error) {
	// p.cur is tokStringStart; the lexer has already consumed the
	// opening quote, so read the body directly off p.lex.
	var parts []TemplatePart
	for {
		text, hitInterp, hitEnd := p.lex.readStringBody()
		if text != "" || (!hitInterp && !hitEnd) {
			parts = append(parts, TemplatePart{Text: text})
		}
		if hitEnd {
			break
		}
		if !hitInterp {
			return nil, errParse("unterminated string literal")
		}
		p.advance() // prime p.cur from inside the interpolation
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		parts = append(parts, TemplatePart{Expr: inner})
		if p.cur.kind != tokRBrace {
			return nil, errParse("expected '}' to close interpolation")
		}
		// fall through: resume reading string body right after '}'
	}
	p.advance() // consume the token following the closing quote
	if len(parts) == 1 && parts[0].Expr == nil {
		return &StringTemplate{Parts: parts}, nil
	}
	return &StringTemplate{Parts: parts}, nil
}

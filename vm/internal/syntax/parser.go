package syntax

// Binding powers. Unary minus sits between the multiplicative operators and
// ^ so that -2^2 is -(2^2).
const (
	precCompare = 1
	precAdd     = 2
	precMul     = 3
	precUnary   = 4
	precPow     = 5
)

var binaryPrec = map[string]int{
	"==": precCompare, "!=": precCompare,
	"<": precCompare, "<=": precCompare, ">": precCompare, ">=": precCompare,
	"+": precAdd, "-": precAdd,
	"*": precMul, "/": precMul, "\\": precMul,
	"^": precPow,
}

type parser struct {
	src  string
	toks []Token
	pos  int
}

// Parse parses a whole program. Statements are separated by newlines or ";".
func Parse(src string) (*Program, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	return p.program()
}

func (p *parser) peek() Token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() Token {
	t := p.toks[p.pos]
	if t.Kind != EOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t Token, format string, args ...any) *Error {
	return newError(p.src, t.Pos, format, args...)
}

func (p *parser) expect(kind TokenKind) (Token, error) {
	t := p.next()
	if t.Kind != kind {
		return t, p.unexpected(t, kind.String())
	}
	return t, nil
}

func (p *parser) unexpected(t Token, want string) *Error {
	got := t.Kind.String()
	if t.Kind == Op || t.Kind == Name {
		got = "\"" + t.Text + "\""
	}
	if want == "" {
		return p.errorf(t, "unexpected %s", got)
	}
	return p.errorf(t, "expected %s, got %s", want, got)
}

func isTerminator(k TokenKind) bool {
	switch k {
	case EOF, Newline, Semi, Comma, RParen, RBracket:
		return true
	}
	return false
}

func (p *parser) program() (*Program, error) {
	prog := &Program{}
	for {
		for k := p.peek().Kind; k == Newline || k == Semi; k = p.peek().Kind {
			p.next()
		}
		if p.peek().Kind == EOF {
			return prog, nil
		}
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		prog.Stmts = append(prog.Stmts, stmt)

		switch t := p.peek(); t.Kind {
		case Newline, Semi, EOF:
		default:
			return nil, p.unexpected(t, "")
		}
	}
}

func (p *parser) statement() (Node, error) {
	isConst := false
	if t := p.peek(); t.Kind == Const {
		p.next()
		isConst = true
	}

	start := p.peek()
	lhs, err := p.expr(0)
	if err != nil {
		return nil, err
	}

	if t := p.peek(); t.Kind != Op || t.Text != "=" {
		if isConst {
			return nil, p.errorf(start, "expected assignment after \"const\"")
		}
		return lhs, nil
	}
	eq := p.next()

	rhs, err := p.statement()
	if err != nil {
		return nil, err
	}

	switch target := lhs.(type) {
	case *Ident:
		return &Assign{At: target.At, Target: target, Value: rhs, Const: isConst}, nil
	case *Index, *Field:
		if isConst {
			return nil, p.errorf(start, "invalid const target")
		}
		return &Assign{At: lhs.Pos(), Target: lhs, Value: rhs}, nil
	case *Call:
		name, ok := target.Fn.(*Ident)
		if !ok || isConst {
			return nil, p.errorf(eq, "invalid function definition")
		}
		def := &FuncDef{At: target.At, Name: name.Name, Body: rhs}
		for _, a := range target.Args {
			param, ok := a.(*Ident)
			if !ok {
				return nil, p.errorf(eq, "function parameters must be names")
			}
			def.Params = append(def.Params, param.Name)
		}
		return def, nil
	}
	return nil, p.errorf(eq, "invalid assignment target")
}

func (p *parser) expr(minPrec int) (Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.Kind != Op {
			return left, nil
		}
		prec, ok := binaryPrec[t.Text]
		if !ok || prec < minPrec {
			return left, nil
		}
		p.next()

		nextMin := prec + 1
		if t.Text == "^" {
			nextMin = prec
		}
		right, err := p.expr(nextMin)
		if err != nil {
			return nil, err
		}
		left = &Binary{At: t.Pos, Op: t.Text, Left: left, Right: right}
	}
}

func (p *parser) unary() (Node, error) {
	t := p.peek()
	if t.Kind == Op {
		// a bare operator is a function value: reduce(+, xs), (\)
		if isTerminator(p.peekAt(1).Kind) && t.Text != "=" {
			p.next()
			return &Ident{At: t.Pos, Name: t.Text}, nil
		}
		if t.Text == "-" || t.Text == "+" {
			p.next()
			operand, err := p.expr(precUnary)
			if err != nil {
				return nil, err
			}
			if t.Text == "+" {
				return operand, nil
			}
			return &Unary{At: t.Pos, Op: "-", Operand: operand}, nil
		}
		return nil, p.unexpected(t, "")
	}
	prim, err := p.primary()
	if err != nil {
		return nil, err
	}
	return p.postfix(prim)
}

func (p *parser) postfix(n Node) (Node, error) {
	for {
		t := p.peek()
		switch t.Kind {
		case LParen:
			p.next()
			args, err := p.list(RParen)
			if err != nil {
				return nil, err
			}
			n = &Call{At: n.Pos(), Fn: n, Args: args}
		case LBracket:
			p.next()
			idx, err := p.list(RBracket)
			if err != nil {
				return nil, err
			}
			if len(idx) == 0 {
				return nil, p.errorf(t, "empty index")
			}
			n = &Index{At: n.Pos(), Target: n, Indices: idx}
		case Dot:
			p.next()
			name, err := p.expect(Name)
			if err != nil {
				return nil, err
			}
			n = &Field{At: n.Pos(), Target: n, Name: name.Text}
		default:
			return n, nil
		}
	}
}

// list parses comma-separated expressions up to the closing token.
func (p *parser) list(end TokenKind) ([]Node, error) {
	var out []Node
	if p.peek().Kind == end {
		p.next()
		return out, nil
	}
	for {
		e, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		t := p.next()
		switch t.Kind {
		case Comma:
		case end:
			return out, nil
		default:
			return nil, p.unexpected(t, end.String())
		}
	}
}

func (p *parser) primary() (Node, error) {
	t := p.next()
	switch t.Kind {
	case Int:
		v, err := ParseInt(t.Text)
		if err != nil {
			return nil, p.errorf(t, "integer literal %s out of range", t.Text)
		}
		return &IntLit{At: t.Pos, Value: v}, nil
	case Float:
		v, err := ParseFloat(t.Text)
		if err != nil {
			return nil, p.errorf(t, "invalid float literal %s", t.Text)
		}
		return &FloatLit{At: t.Pos, Value: v}, nil
	case String:
		return &StringLit{At: t.Pos, Value: t.Text}, nil
	case Symbol:
		return &SymbolLit{At: t.Pos, Name: t.Text}, nil
	case Name:
		return &Ident{At: t.Pos, Name: t.Text}, nil
	case LParen:
		return p.paren(t)
	case LBracket:
		return p.vector(t)
	}
	return nil, p.unexpected(t, "")
}

func (p *parser) paren(open Token) (Node, error) {
	if p.peek().Kind == RParen {
		p.next()
		return &TupleLit{At: open.Pos}, nil
	}
	first, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if p.peek().Kind == RParen {
		p.next()
		return first, nil
	}
	if _, err := p.expect(Comma); err != nil {
		return nil, err
	}
	tup := &TupleLit{At: open.Pos, Elems: []Node{first}}
	if p.peek().Kind == RParen {
		p.next()
		return tup, nil
	}
	rest, err := p.list(RParen)
	if err != nil {
		return nil, err
	}
	tup.Elems = append(tup.Elems, rest...)
	return tup, nil
}

func (p *parser) vector(open Token) (Node, error) {
	vec := &VectorLit{At: open.Pos}
	if p.peek().Kind == RBracket {
		p.next()
		return vec, nil
	}
	var sep TokenKind
	for {
		e, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		vec.Elems = append(vec.Elems, e)

		t := p.next()
		switch t.Kind {
		case RBracket:
			vec.Vcat = sep == Semi
			return vec, nil
		case Comma, Semi:
			if sep != EOF && sep != t.Kind {
				return nil, p.errorf(t, "cannot mix \",\" and \";\" in a vector literal")
			}
			sep = t.Kind
		default:
			return nil, p.unexpected(t, "\"]\"")
		}
	}
}

package expr

import (
	"strconv"

	"github.com/rotisserie/eris"
)

// skimsName is the reserved identifier through which expressions index skim
// matrices: skims['DISTANCE'].
const skimsName = "skims"

type parser struct {
	lex  lexer
	cur  token
	err  error
}

func newParser(src string) *parser {
	p := &parser{lex: lexer{src: src}}
	p.advance()
	return p
}

func (p *parser) advance() {
	if p.err != nil {
		return
	}
	tok, err := p.lex.next()
	if err != nil {
		p.err = err
		return
	}
	p.cur = tok
}

func (p *parser) parse() (node, error) {
	n := p.parseOr()
	if p.err != nil {
		return nil, p.err
	}
	if p.cur.kind != tokEOF {
		return nil, eris.Errorf("unexpected %q at offset %d", p.cur.text, p.cur.pos)
	}
	return n, nil
}

func (p *parser) parseOr() node {
	n := p.parseAnd()
	for p.err == nil && (p.isOp("|") || p.isKeyword("or")) {
		p.advance()
		rhs := p.parseAnd()
		n = &logicalNode{op: "or", lhs: n, rhs: rhs}
	}
	return n
}

func (p *parser) parseAnd() node {
	n := p.parseCmp()
	for p.err == nil && (p.isOp("&") || p.isKeyword("and")) {
		p.advance()
		rhs := p.parseCmp()
		n = &logicalNode{op: "and", lhs: n, rhs: rhs}
	}
	return n
}

// comparison is non-associative: a < b < c is rejected.
func (p *parser) parseCmp() node {
	n := p.parseAdd()
	if p.err != nil {
		return n
	}
	switch {
	case p.isOp("=="), p.isOp("!="), p.isOp("<"), p.isOp("<="), p.isOp(">"), p.isOp(">="):
		op := p.cur.text
		p.advance()
		rhs := p.parseAdd()
		return &compareNode{op: op, lhs: n, rhs: rhs}
	}
	return n
}

func (p *parser) parseAdd() node {
	n := p.parseMul()
	for p.err == nil && (p.isOp("+") || p.isOp("-")) {
		op := p.cur.text
		p.advance()
		rhs := p.parseMul()
		n = &arithNode{op: op, lhs: n, rhs: rhs}
	}
	return n
}

func (p *parser) parseMul() node {
	n := p.parseUnary()
	for p.err == nil && (p.isOp("*") || p.isOp("/")) {
		op := p.cur.text
		p.advance()
		rhs := p.parseUnary()
		n = &arithNode{op: op, lhs: n, rhs: rhs}
	}
	return n
}

func (p *parser) parseUnary() node {
	switch {
	case p.isOp("-"):
		p.advance()
		return &negNode{operand: p.parseUnary()}
	case p.isOp("~"), p.isKeyword("not"):
		p.advance()
		return &notNode{operand: p.parseUnary()}
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() node {
	if p.err != nil {
		return nil
	}

	switch p.cur.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(p.cur.text, 64)
		if err != nil {
			p.err = eris.Wrapf(err, "bad number %q at offset %d", p.cur.text, p.cur.pos)
			return nil
		}
		p.advance()
		return &numberNode{value: f}

	case tokString:
		p.err = eris.Wrapf(ErrType, "string literal %q at offset %d is not a value", p.cur.text, p.cur.pos)
		return nil

	case tokIdent:
		name := p.cur.text
		p.advance()
		switch {
		case name == skimsName && p.isOp("["):
			return p.parseSkimRef()
		case p.isOp("("):
			return p.parseCall(name)
		}
		return &fieldNode{name: name}

	case tokOp:
		if p.cur.text == "(" {
			p.advance()
			n := p.parseOr()
			p.expect(")")
			return n
		}
	}

	p.err = eris.Errorf("unexpected %q at offset %d", p.cur.text, p.cur.pos)
	return nil
}

// parseSkimRef parses skims['NAME'] with the opening bracket current.
func (p *parser) parseSkimRef() node {
	p.expect("[")
	if p.err != nil {
		return nil
	}
	if p.cur.kind != tokString {
		p.err = eris.Errorf("skims index must be a quoted matrix name at offset %d", p.cur.pos)
		return nil
	}
	name := p.cur.text
	p.advance()
	p.expect("]")
	return &skimNode{name: name}
}

func (p *parser) parseCall(name string) node {
	fn, ok := builtins[name]
	if !ok {
		p.err = eris.Wrapf(ErrUndefined, "unknown function %q at offset %d", name, p.cur.pos)
		return nil
	}

	p.expect("(")
	var args []node
	if !p.isOp(")") {
		for {
			args = append(args, p.parseOr())
			if p.err != nil {
				return nil
			}
			if !p.isOp(",") {
				break
			}
			p.advance()
		}
	}
	p.expect(")")
	if p.err != nil {
		return nil
	}

	if len(args) < fn.minArgs || (fn.maxArgs > 0 && len(args) > fn.maxArgs) {
		p.err = eris.Errorf("%s expects %s, got %d args", name, fn.arity, len(args))
		return nil
	}
	return &callNode{name: name, fn: fn, args: args}
}

func (p *parser) isOp(text string) bool {
	return p.err == nil && p.cur.kind == tokOp && p.cur.text == text
}

func (p *parser) isKeyword(text string) bool {
	return p.err == nil && p.cur.kind == tokIdent && p.cur.text == text
}

func (p *parser) expect(text string) {
	if p.err != nil {
		return
	}
	if !p.isOp(text) {
		p.err = eris.Errorf("expected %q at offset %d, got %q", text, p.cur.pos, p.cur.text)
		return
	}
	p.advance()
}

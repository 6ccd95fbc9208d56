package guard

import (
	"fmt"
	"strconv"
	"strings"
)

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) error {
	if t := p.next(); t.kind != kind {
		return fmt.Errorf("expected %s, found %s at %d", what, t, t.pos)
	}
	return nil
}

// expr := or
func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logical{and: false, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseCompare()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseCompare()
		if err != nil {
			return nil, err
		}
		left = &logical{and: true, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseCompare() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	switch op := p.peek(); op.kind {
	case tokEq, tokNeq, tokLt, tokLte, tokGt, tokGte:
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &compare{op: op.kind, text: op.text, left: left, right: right}, nil
	}
	return left, nil
}

// '!' binds tighter than comparisons: !a == b is (!a) == b.
func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokNot {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &not{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokString:
		return &literal{value: t.text}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at %d", t.text, t.pos)
		}
		return &literal{value: f}, nil
	case tokIdent:
		switch t.text {
		case "true":
			return &literal{value: true}, nil
		case "false":
			return &literal{value: false}, nil
		case "null", "nil":
			return &literal{value: nil}, nil
		}
		if p.peek().kind == tokLParen {
			return p.parseCall(t)
		}
		return &ident{path: strings.Split(t.text, ".")}, nil
	}
	return nil, fmt.Errorf("unexpected %s at %d", t, t.pos)
}

func (p *parser) parseCall(name token) (node, error) {
	if strings.Contains(name.text, ".") {
		return nil, fmt.Errorf("invalid function name %q at %d", name.text, name.pos)
	}
	p.next() // (
	c := &call{name: name.text}
	if p.peek().kind == tokRParen {
		p.next()
		return c, nil
	}
	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		c.args = append(c.args, arg)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		if err := p.expect(tokRParen, "')' or ','"); err != nil {
			return nil, err
		}
		return c, nil
	}
}

package condition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// The expression grammar is deliberately tiny: comparisons, boolean
// connectives, membership, literals, dotted identifiers and helper
// calls. No assignment, no loops, no indexing. Keeping the grammar
// this small is what keeps the sandbox property easy to guarantee.
//
//	expr       := or
//	or         := and ( ("||" | "or") and )*
//	and        := unary ( ("&&" | "and") unary )*
//	unary      := ("!" | "not") unary | comparison
//	comparison := term ( ("==" | "!=" | "<" | "<=" | ">" | ">=" | "in") term )?
//	term       := number | string | "true" | "false" | ident ("." ident)*
//	            | ident "(" args? ")" | "(" expr ")"

type nodeKind int

const (
	nodeLiteral nodeKind = iota
	nodeIdent
	nodeCall
	nodeUnary
	nodeBinary
)

type node struct {
	kind  nodeKind
	value any    // literal value
	name  string // identifier path or function name
	op    string
	left  *node
	right *node
	args  []*node
}

type token struct {
	kind string // "ident", "number", "string", "op", "eof"
	text string
	pos  int
}

type lexer struct {
	input  string
	pos    int
	tokens []token
}

func lex(input string) ([]token, error) {
	l := &lexer{input: input}

	for l.pos < len(l.input) {
		ch := l.input[l.pos]

		switch {
		case unicode.IsSpace(rune(ch)):
			l.pos++
		case ch == '"' || ch == '\'':
			if err := l.lexString(ch); err != nil {
				return nil, err
			}
		case unicode.IsDigit(rune(ch)):
			l.lexNumber()
		case unicode.IsLetter(rune(ch)) || ch == '_':
			l.lexIdent()
		default:
			if err := l.lexOperator(); err != nil {
				return nil, err
			}
		}
	}

	l.tokens = append(l.tokens, token{kind: "eof", pos: l.pos})

	return l.tokens, nil
}

func (l *lexer) lexString(quote byte) error {
	start := l.pos
	l.pos++

	var sb strings.Builder

	for l.pos < len(l.input) && l.input[l.pos] != quote {
		sb.WriteByte(l.input[l.pos])
		l.pos++
	}

	if l.pos >= len(l.input) {
		return fmt.Errorf("unterminated string at offset %d", start)
	}

	l.pos++
	l.tokens = append(l.tokens, token{kind: "string", text: sb.String(), pos: start})

	return nil
}

func (l *lexer) lexNumber() {
	start := l.pos
	for l.pos < len(l.input) && (unicode.IsDigit(rune(l.input[l.pos])) || l.input[l.pos] == '.') {
		l.pos++
	}

	l.tokens = append(l.tokens, token{kind: "number", text: l.input[start:l.pos], pos: start})
}

func (l *lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.input) {
		ch := rune(l.input[l.pos])
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && ch != '_' && ch != '.' {
			break
		}

		l.pos++
	}

	l.tokens = append(l.tokens, token{kind: "ident", text: l.input[start:l.pos], pos: start})
}

var twoByteOps = []string{"==", "!=", "<=", ">=", "&&", "||"}

func (l *lexer) lexOperator() error {
	if l.pos+1 < len(l.input) {
		two := l.input[l.pos : l.pos+2]
		for _, op := range twoByteOps {
			if two == op {
				l.tokens = append(l.tokens, token{kind: "op", text: op, pos: l.pos})
				l.pos += 2

				return nil
			}
		}
	}

	switch ch := l.input[l.pos]; ch {
	case '<', '>', '!', '(', ')', ',':
		l.tokens = append(l.tokens, token{kind: "op", text: string(ch), pos: l.pos})
		l.pos++

		return nil
	default:
		return fmt.Errorf("unexpected character %q at offset %d", ch, l.pos)
	}
}

type parser struct {
	tokens []token
	pos    int
}

func parse(input string) (*node, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}

	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if p.peek().kind != "eof" {
		return nil, fmt.Errorf("unexpected token %q at offset %d", p.peek().text, p.peek().pos)
	}

	return root, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != "eof" {
		p.pos++
	}

	return t
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != "op" && t.kind != "ident" {
		return "", false
	}

	for _, op := range ops {
		if t.text == op {
			p.next()

			return op, true
		}
	}

	return "", false
}

func (p *parser) parseOr() (*node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for {
		if _, ok := p.acceptOp("||", "or"); !ok {
			return left, nil
		}

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = &node{kind: nodeBinary, op: "||", left: left, right: right}
	}
}

func (p *parser) parseAnd() (*node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		if _, ok := p.acceptOp("&&", "and"); !ok {
			return left, nil
		}

		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		left = &node{kind: nodeBinary, op: "&&", left: left, right: right}
	}
}

func (p *parser) parseUnary() (*node, error) {
	if _, ok := p.acceptOp("!", "not"); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &node{kind: nodeUnary, op: "!", left: operand}, nil
	}

	return p.parseComparison()
}

func (p *parser) parseComparison() (*node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	op, ok := p.acceptOp("==", "!=", "<=", ">=", "<", ">", "in")
	if !ok {
		return left, nil
	}

	right, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	return &node{kind: nodeBinary, op: op, left: left, right: right}, nil
}

func (p *parser) parseTerm() (*node, error) {
	t := p.peek()

	switch t.kind {
	case "number":
		p.next()

		value, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q at offset %d", t.text, t.pos)
		}

		return &node{kind: nodeLiteral, value: value}, nil

	case "string":
		p.next()

		return &node{kind: nodeLiteral, value: t.text}, nil

	case "ident":
		p.next()

		switch t.text {
		case "true":
			return &node{kind: nodeLiteral, value: true}, nil
		case "false":
			return &node{kind: nodeLiteral, value: false}, nil
		}

		if _, ok := p.acceptOp("("); ok {
			return p.parseCall(t.text)
		}

		return &node{kind: nodeIdent, name: t.text}, nil

	case "op":
		if t.text == "(" {
			p.next()

			inner, err := p.parseOr()
			if err != nil {
				return nil, err
			}

			if _, ok := p.acceptOp(")"); !ok {
				return nil, fmt.Errorf("missing closing parenthesis at offset %d", p.peek().pos)
			}

			return inner, nil
		}
	}

	return nil, fmt.Errorf("unexpected token %q at offset %d", t.text, t.pos)
}

func (p *parser) parseCall(name string) (*node, error) {
	call := &node{kind: nodeCall, name: name}

	if _, ok := p.acceptOp(")"); ok {
		return call, nil
	}

	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		call.args = append(call.args, arg)

		if _, ok := p.acceptOp(","); ok {
			continue
		}

		if _, ok := p.acceptOp(")"); ok {
			return call, nil
		}

		return nil, fmt.Errorf("missing closing parenthesis in call to %s at offset %d", name, p.peek().pos)
	}
}

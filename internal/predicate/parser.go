package predicate

import (
	"fmt"
	"strings"
)

type parser struct {
	tokens []token
	pos    int
}

// Parse parses a single hint of the form `<column> <op> <value>` or
// `<column> IS [NOT] NULL`.
func Parse(input string) (PartitionFilter, error) {
	tokens, err := lex(input)
	if err != nil {
		return PartitionFilter{}, err
	}
	p := &parser{tokens: tokens}

	column, err := p.key("column")
	if err != nil {
		return PartitionFilter{}, err
	}

	var op Op
	tok := p.next()
	switch tok.kind {
	case tokenEQ:
		op = OpEqual
	case tokenNE:
		op = OpNotEqual
	case tokenGT:
		op = OpGreaterThan
	case tokenLT:
		op = OpLessThan
	case tokenGE:
		op = OpGreaterEqual
	case tokenLE:
		op = OpLessEqual
	case tokenKey:
		if !isKeyword(tok, "IS") {
			return PartitionFilter{}, fmt.Errorf("%w: expected operator, got %s", ErrParse, tok)
		}
		op, err = p.nullCheck()
		if err != nil {
			return PartitionFilter{}, err
		}
		if err := p.end(); err != nil {
			return PartitionFilter{}, err
		}
		return PartitionFilter{Column: column, Predicate: Predicate{Op: op}}, nil
	default:
		return PartitionFilter{}, fmt.Errorf("%w: expected operator, got %s", ErrParse, tok)
	}

	value, err := p.key("value")
	if err != nil {
		return PartitionFilter{}, err
	}
	if err := p.end(); err != nil {
		return PartitionFilter{}, err
	}
	return PartitionFilter{Column: column, Predicate: Predicate{Op: op, Value: value}}, nil
}

func (p *parser) next() token {
	if p.pos >= len(p.tokens) {
		return token{kind: tokenEnd}
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok
}

func (p *parser) key(what string) (string, error) {
	tok := p.next()
	if tok.kind != tokenKey {
		return "", fmt.Errorf("%w: expected %s, got %s", ErrParse, what, tok)
	}
	if what == "column" && tok.text == "" {
		return "", fmt.Errorf("%w: empty column name", ErrParse)
	}
	return tok.text, nil
}

func (p *parser) nullCheck() (Op, error) {
	tok := p.next()
	if isKeyword(tok, "NULL") {
		return OpIsNull, nil
	}
	if !isKeyword(tok, "NOT") {
		return 0, fmt.Errorf("%w: expected NOT or NULL after IS, got %s", ErrParse, tok)
	}
	tok = p.next()
	if !isKeyword(tok, "NULL") {
		return 0, fmt.Errorf("%w: expected NULL after IS NOT, got %s", ErrParse, tok)
	}
	return OpIsNotNull, nil
}

func (p *parser) end() error {
	if tok := p.next(); tok.kind != tokenEnd {
		return fmt.Errorf("%w: unexpected trailing token %s", ErrParse, tok)
	}
	return nil
}

func isKeyword(tok token, keyword string) bool {
	return tok.kind == tokenKey && !tok.quoted && strings.EqualFold(tok.text, keyword)
}

package predicate

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenKey tokenKind = iota
	tokenEQ
	tokenGT
	tokenLT
	tokenGE
	tokenLE
	tokenNE
	tokenEnd
)

type token struct {
	kind   tokenKind
	text   string
	quoted bool
}

func (t token) String() string {
	switch t.kind {
	case tokenKey:
		return fmt.Sprintf("Key(%q)", t.text)
	case tokenEQ:
		return "EQ"
	case tokenGT:
		return "GT"
	case tokenLT:
		return "LT"
	case tokenGE:
		return "GE"
	case tokenLE:
		return "LE"
	case tokenNE:
		return "NE"
	case tokenEnd:
		return "End"
	default:
		return "?"
	}
}

type scanState int

const (
	outsideQuote scanState = iota
	insideQuote
)

// lex turns a hint into tokens in a single left-to-right pass.
func lex(input string) ([]token, error) {
	runes := []rune(input)
	tokens := make([]token, 0, 4)

	state := outsideQuote
	var quote rune
	var quoted strings.Builder

	for i := 0; i < len(runes); i++ {
		c := runes[i]

		if state == insideQuote {
			if c == quote {
				tokens = append(tokens, token{kind: tokenKey, text: quoted.String(), quoted: true})
				quoted.Reset()
				state = outsideQuote
				continue
			}
			quoted.WriteRune(c)
			continue
		}

		switch {
		case unicode.IsSpace(c):
		case c == '\'' || c == '"':
			state = insideQuote
			quote = c
		case c == '=':
			tokens = append(tokens, token{kind: tokenEQ})
		case c == '>':
			if peek(runes, i) == '=' {
				tokens = append(tokens, token{kind: tokenGE})
				i++
			} else {
				tokens = append(tokens, token{kind: tokenGT})
			}
		case c == '<':
			switch peek(runes, i) {
			case '=':
				tokens = append(tokens, token{kind: tokenLE})
				i++
			case '>':
				tokens = append(tokens, token{kind: tokenNE})
				i++
			default:
				tokens = append(tokens, token{kind: tokenLT})
			}
		case isBare(c):
			start := i
			for i+1 < len(runes) && isBare(runes[i+1]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenKey, text: string(runes[start : i+1])})
		default:
			return nil, fmt.Errorf("%w: unrecognized character %q at offset %d", ErrParse, c, i)
		}
	}

	if state == insideQuote {
		return nil, fmt.Errorf("%w: unterminated %c quote", ErrParse, quote)
	}
	return append(tokens, token{kind: tokenEnd}), nil
}

func peek(runes []rune, i int) rune {
	if i+1 < len(runes) {
		return runes[i+1]
	}
	return 0
}

func isBare(c rune) bool {
	if unicode.IsLetter(c) || unicode.IsDigit(c) {
		return true
	}
	switch c {
	case '_', '.', '-', ':', '+':
		return true
	}
	return false
}

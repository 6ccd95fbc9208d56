package guard

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokComma
	tokNot
	tokAnd
	tokOr
	tokEq
	tokNeq
	tokLt
	tokLte
	tokGt
	tokGte
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", t.text)
}

func lex(src string) ([]token, error) {
	var tokens []token
	runes := []rune(src)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case r == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case r == ',':
			tokens = append(tokens, token{tokComma, ",", i})
			i++
		case r == '!':
			if peek(runes, i+1) == '=' {
				tokens = append(tokens, token{tokNeq, "!=", i})
				i += 2
			} else {
				tokens = append(tokens, token{tokNot, "!", i})
				i++
			}
		case r == '=':
			if peek(runes, i+1) != '=' {
				return nil, fmt.Errorf("unexpected '=' at %d, use '=='", i)
			}
			tokens = append(tokens, token{tokEq, "==", i})
			i += 2
		case r == '<' || r == '>':
			kind, text := tokLt, "<"
			if r == '>' {
				kind, text = tokGt, ">"
			}
			if peek(runes, i+1) == '=' {
				kind++
				text += "="
				tokens = append(tokens, token{kind, text, i})
				i += 2
			} else {
				tokens = append(tokens, token{kind, text, i})
				i++
			}
		case r == '&' || r == '|':
			if peek(runes, i+1) != r {
				return nil, fmt.Errorf("unexpected %q at %d", r, i)
			}
			kind := tokAnd
			if r == '|' {
				kind = tokOr
			}
			tokens = append(tokens, token{kind, string([]rune{r, r}), i})
			i += 2
		case r == '"' || r == '\'':
			start := i
			var sb strings.Builder
			i++
			for ; i < len(runes) && runes[i] != r; i++ {
				if runes[i] == '\\' && i+1 < len(runes) {
					i++
				}
				sb.WriteRune(runes[i])
			}
			if i >= len(runes) {
				return nil, fmt.Errorf("unterminated string at %d", start)
			}
			i++
			tokens = append(tokens, token{tokString, sb.String(), start})
		case unicode.IsDigit(r) || (r == '-' && unicode.IsDigit(peek(runes, i+1))):
			start := i
			i++
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, token{tokNumber, string(runes[start:i]), start})
		case isIdentStart(r):
			start := i
			for i < len(runes) && (isIdentStart(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			if strings.HasSuffix(text, ".") || strings.Contains(text, "..") {
				return nil, fmt.Errorf("malformed identifier %q at %d", text, start)
			}
			tokens = append(tokens, token{tokIdent, text, start})
		default:
			return nil, fmt.Errorf("unexpected %q at %d", r, i)
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(runes)})
	return tokens, nil
}

func peek(runes []rune, i int) rune {
	if i < len(runes) {
		return runes[i]
	}
	return 0
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

package liquid

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokenText tokenKind = iota
	tokenOutput
	tokenTag
)

// token is one top-level lexeme of a template source.
type token struct {
	kind tokenKind
	// value is the raw text for text tokens and the trimmed inner markup for
	// output and tag tokens.
	value string
	line  int
	// trimLeft and trimRight record the "-" whitespace control markers.
	trimLeft  bool
	trimRight bool
}

// name returns the tag name of a tag token.
func (t token) name() string {
	name, _ := splitTag(t.value)
	return name
}

// splitTag splits tag markup into its name and the remaining arguments.
func splitTag(markup string) (string, string) {
	markup = strings.TrimSpace(markup)
	i := strings.IndexFunc(markup, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if i < 0 {
		return markup, ""
	}
	return markup[:i], strings.TrimSpace(markup[i+1:])
}

// rawTags hold bodies that are never tokenized.
var rawTags = map[string]bool{
	"raw":     true,
	"comment": true,
	"schema":  true,
}

// tokenize splits source into text, output and tag tokens and applies
// whitespace control.
func tokenize(src string) ([]token, error) {
	var tokens []token
	line := 1
	pos := 0

	for pos < len(src) {
		start := indexDelim(src, pos)
		if start < 0 {
			tokens = append(tokens, token{kind: tokenText, value: src[pos:], line: line})
			break
		}
		if start > pos {
			tokens = append(tokens, token{kind: tokenText, value: src[pos:start], line: line})
			line += strings.Count(src[pos:start], "\n")
		}

		kind, closer := tokenOutput, "}}"
		if src[start+1] == '%' {
			kind, closer = tokenTag, "%}"
		}

		end := strings.Index(src[start+2:], closer)
		if end < 0 {
			return nil, &SyntaxError{Line: line, Msg: fmt.Sprintf("unclosed %q", src[start:start+2])}
		}
		end += start + 2

		inner := src[start+2 : end]
		tok := token{kind: kind, line: line}
		if strings.HasPrefix(inner, "-") {
			tok.trimLeft = true
			inner = inner[1:]
		}
		if strings.HasSuffix(inner, "-") {
			tok.trimRight = true
			inner = inner[:len(inner)-1]
		}
		tok.value = strings.TrimSpace(inner)
		tokens = append(tokens, tok)

		line += strings.Count(src[start:end+2], "\n")
		pos = end + 2

		if kind == tokenTag && rawTags[tok.name()] {
			body, next, closing, err := scanRaw(src, pos, "end"+tok.name())
			if err != nil {
				return nil, &SyntaxError{Line: tok.line, Msg: err.Error()}
			}
			tokens = append(tokens, token{kind: tokenText, value: body, line: line}, closing)
			line += strings.Count(src[pos:next], "\n")
			pos = next
		}
	}

	applyTrim(tokens)
	return tokens, nil
}

// indexDelim finds the next "{{" or "{%" at or after pos.
func indexDelim(src string, pos int) int {
	for i := pos; i < len(src)-1; i++ {
		if src[i] == '{' && (src[i+1] == '{' || src[i+1] == '%') {
			return i
		}
	}
	return -1
}

// scanRaw finds the closing tag of a raw block and returns the verbatim
// body, the offset after the closing tag and the closing token.
func scanRaw(src string, pos int, endName string) (string, int, token, error) {
	i := pos
	for {
		start := strings.Index(src[i:], "{%")
		if start < 0 {
			return "", 0, token{}, fmt.Errorf("%s not found", endName)
		}
		start += i
		end := strings.Index(src[start+2:], "%}")
		if end < 0 {
			return "", 0, token{}, fmt.Errorf("%s not found", endName)
		}
		end += start + 2

		inner := src[start+2 : end]
		closing := token{kind: tokenTag}
		if strings.HasPrefix(inner, "-") {
			closing.trimLeft = true
			inner = inner[1:]
		}
		if strings.HasSuffix(inner, "-") {
			closing.trimRight = true
			inner = inner[:len(inner)-1]
		}
		closing.value = strings.TrimSpace(inner)
		if closing.value == endName {
			return src[pos:start], end + 2, closing, nil
		}
		i = end + 2
	}
}

// applyTrim strips whitespace from text tokens adjacent to "-" markers.
func applyTrim(tokens []token) {
	for i := range tokens {
		if tokens[i].kind == tokenText {
			continue
		}
		if tokens[i].trimLeft && i > 0 && tokens[i-1].kind == tokenText {
			tokens[i-1].value = strings.TrimRight(tokens[i-1].value, " \t\r\n")
		}
		if tokens[i].trimRight && i+1 < len(tokens) && tokens[i+1].kind == tokenText {
			tokens[i+1].value = strings.TrimLeft(tokens[i+1].value, " \t\r\n")
		}
	}
}

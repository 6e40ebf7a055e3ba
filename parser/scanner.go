package parser

import (
	"go/parser"
	"go/token"
	"strings"

	"github.com/pywire/pywire/ir"
)

// ScanInterpolations splits a text run into literal and expression chunks
// (C1). The scan is a single left-to-right pass with a brace-depth counter
// that ignores braces inside quoted strings, so CSS-like content such as
// `color: red;` embedded in a style block never gets mistaken for an
// expression.
//
// Concatenating every chunk's source text reconstructs the original input:
// for a literal chunk that is Text; for an expression chunk it is the
// original "{...}" span (callers that need the raw expression source use
// Text, which holds the un-braced expression).
func ScanInterpolations(text string, line, col int) []ir.TextChunk {
	var chunks []ir.TextChunk
	runes := []rune(text)
	n := len(runes)

	curLine, curCol := line, col
	advance := func(r rune) {
		if r == '\n' {
			curLine++
			curCol = 1
		} else {
			curCol++
		}
	}

	var literal strings.Builder
	litLine, litCol := curLine, curCol

	flushLiteral := func() {
		if literal.Len() > 0 {
			chunks = append(chunks, ir.TextChunk{IsExpr: false, Text: literal.String(), Line: litLine, Column: litCol})
			literal.Reset()
		}
	}

	i := 0
	for i < n {
		r := runes[i]
		if r == '{' {
			start := i
			startLine, startCol := curLine, curCol
			end, ok := findMatchingBrace(runes, i)
			if !ok {
				// Unmatched trailing '{': treated as literal.
				if literal.Len() == 0 {
					litLine, litCol = curLine, curCol
				}
				literal.WriteRune(r)
				advance(r)
				i++
				continue
			}
			captured := string(runes[start+1 : end])
			if expr, valid := validExpression(captured); valid {
				flushLiteral()
				chunks = append(chunks, ir.TextChunk{IsExpr: true, Text: expr, Line: startLine, Column: startCol})
				for _, rr := range runes[start : end+1] {
					advance(rr)
				}
				i = end + 1
				litLine, litCol = curLine, curCol
				continue
			}
			// Not a valid expression: emit the original braces as literal.
			if literal.Len() == 0 {
				litLine, litCol = curLine, curCol
			}
			for _, rr := range runes[start : end+1] {
				literal.WriteRune(rr)
				advance(rr)
			}
			i = end + 1
			continue
		}
		if literal.Len() == 0 {
			litLine, litCol = curLine, curCol
		}
		literal.WriteRune(r)
		advance(r)
		i++
	}
	flushLiteral()
	return chunks
}

// findMatchingBrace returns the index of the '}' matching the '{' at open,
// respecting nesting and single/double-quoted strings (braces inside quotes
// never change depth).
func findMatchingBrace(runes []rune, open int) (int, bool) {
	depth := 0
	var quote rune
	for i := open; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			if r == '\\' {
				i++ // skip escaped char
				continue
			}
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// validExpression reports whether captured parses as an expression in the
// code language (Go). A failing parse that contains a ';' anywhere is
// rejected outright (protects inline CSS like "{color: red; margin: 0}").
// Otherwise a trailing ":format-spec" suffix is stripped and parsing is
// retried once, recognizing the format-specifier extension (e.g.
// "{value:.2f}").
func validExpression(captured string) (string, bool) {
	if tryParseExpr(captured) {
		return captured, true
	}
	if strings.Contains(captured, ";") {
		return "", false
	}
	if idx := lastUnquotedColon(captured); idx >= 0 {
		base := captured[:idx]
		if tryParseExpr(base) {
			return base, true
		}
	}
	return "", false
}

func tryParseExpr(src string) bool {
	if strings.TrimSpace(src) == "" {
		return false
	}
	_, err := parser.ParseExprFrom(token.NewFileSet(), "", src, 0)
	return err == nil
}

// lastUnquotedColon finds a trailing ":format-spec" separator: the last ':'
// not nested inside brackets/parens/braces or a string literal.
func lastUnquotedColon(s string) int {
	depth := 0
	var quote rune
	last := -1
	runes := []rune(s)
	for i, r := range runes {
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ':':
			if depth == 0 {
				last = i
			}
		}
	}
	return last
}

// Package scan extracts dependency references from source text without
// modifying it. Rewriting is a separate pass over the returned byte ranges.
package scan

import (
	"bytes"

	"github.com/efebarandurmaz/modwrap/internal/ir"
)

// Ref is a static dependency reference in a script. Start and End delimit the
// string literal including its quotes.
type Ref struct {
	Path  string
	Flag  ir.Flag
	Start int
	End   int
	Quote byte
}

// regexPrecedes lists the keywords after which a slash starts a regular
// expression rather than a division.
var regexPrecedes = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "in": true, "of": true,
	"new": true, "delete": true, "void": true, "throw": true, "case": true,
	"do": true, "else": true, "yield": true, "await": true,
}

// controlHeads are the keywords whose parenthesized head is followed by a
// statement, where a slash starts a regular expression.
var controlHeads = map[string]bool{"if": true, "while": true, "for": true, "with": true}

// headEnd marks the ')' closing a control statement head.
const headEnd = 'h'

type scriptScanner struct {
	src    []byte
	i      int
	prev   byte   // last significant character
	word   string // last identifier, when prev ended one
	parens []bool // open parentheses, true for control statement heads
	refs   []Ref
}

// Script returns the require() and require.async() references in src in
// source order. References inside comments, strings, template literals and
// regular expressions are ignored, as are literals containing escapes. A
// slash after the head of if, while, for or with starts a regular expression.
func Script(src []byte) []Ref {
	s := &scriptScanner{src: src}
	s.run()
	return s.refs
}

func (s *scriptScanner) run() {
	for s.i < len(s.src) {
		c := s.src[s.i]
		switch {
		case isSpace(c):
			s.i++
		case c == '/' && s.peek(1) == '/':
			s.skipLine()
		case c == '/' && s.peek(1) == '*':
			s.skipBlock()
		case c == '\'' || c == '"':
			s.skipString(c)
			s.mark('"', "")
		case c == '`':
			s.skipTemplate()
			s.mark('`', "")
		case c == '/' && s.regexAllowed():
			s.skipRegex()
			s.mark('/', "")
		case isIdentStart(c):
			start := s.i
			for s.i < len(s.src) && isIdentPart(s.src[s.i]) {
				s.i++
			}
			word := string(s.src[start:s.i])
			if word == "require" && s.prev != '.' {
				s.require()
			}
			s.mark('a', word)
		case isDigit(c):
			for s.i < len(s.src) && (isIdentPart(s.src[s.i]) || s.src[s.i] == '.') {
				s.i++
			}
			s.mark('0', "")
		case c == '(':
			s.open(s.prev == 'a' && controlHeads[s.word])
			s.i++
			s.mark('(', "")
		case c == ')':
			s.i++
			if s.close() {
				s.mark(headEnd, "")
			} else {
				s.mark(')', "")
			}
		default:
			s.i++
			s.mark(c, "")
		}
	}
}

func (s *scriptScanner) open(head bool) {
	s.parens = append(s.parens, head)
}

// close pops the innermost parenthesis and reports whether it opened a
// control statement head.
func (s *scriptScanner) close() bool {
	n := len(s.parens)
	if n == 0 {
		return false
	}
	head := s.parens[n-1]
	s.parens = s.parens[:n-1]
	return head
}

func (s *scriptScanner) mark(c byte, word string) {
	s.prev = c
	s.word = word
}

func (s *scriptScanner) peek(n int) byte {
	if s.i+n < len(s.src) {
		return s.src[s.i+n]
	}
	return 0
}

func (s *scriptScanner) regexAllowed() bool {
	switch s.prev {
	case 0, '(', ',', '=', ':', '[', '!', '&', '|', '?', '{', '}', ';', '+', '-', '*', '%', '<', '>', '~', '^', headEnd:
		return true
	case 'a':
		return regexPrecedes[s.word]
	}
	return false
}

// require handles the text following a require identifier. It consumes only
// what belongs to a recognized call; anything else is left for run.
func (s *scriptScanner) require() {
	j := s.skipSpace(s.i)
	if j >= len(s.src) {
		return
	}

	switch s.src[j] {
	case '(':
		if ref, end, ok := s.literalAt(s.skipSpace(j + 1)); ok {
			if k := s.skipSpace(end); k < len(s.src) && s.src[k] == ')' {
				s.refs = append(s.refs, ref)
				s.open(false)
				s.i = end
			}
		}
	case '.':
		k := s.skipSpace(j + 1)
		if !bytes.HasPrefix(s.src[k:], []byte("async")) || (k+5 < len(s.src) && isIdentPart(s.src[k+5])) {
			return
		}
		k = s.skipSpace(k + 5)
		if k >= len(s.src) || s.src[k] != '(' {
			return
		}
		k = s.skipSpace(k + 1)
		if k < len(s.src) && s.src[k] == '[' {
			s.asyncList(k + 1)
			return
		}
		if ref, end, ok := s.literalAt(k); ok {
			if n := s.skipSpace(end); n < len(s.src) && (s.src[n] == ')' || s.src[n] == ',') {
				ref.Flag = ir.FlagAsync
				s.refs = append(s.refs, ref)
				s.open(false)
				s.i = end
			}
		}
	}
}

// asyncList reads the array form of require.async, starting after '['.
func (s *scriptScanner) asyncList(k int) {
	var refs []Ref
	for {
		k = s.skipSpace(k)
		ref, end, ok := s.literalAt(k)
		if !ok {
			return
		}
		ref.Flag = ir.FlagAsync
		refs = append(refs, ref)
		k = s.skipSpace(end)
		if k >= len(s.src) {
			return
		}
		switch s.src[k] {
		case ',':
			k++
		case ']':
			s.refs = append(s.refs, refs...)
			s.open(false)
			s.i = k + 1
			s.mark(']', "")
			return
		default:
			return
		}
	}
}

// literalAt parses a quoted string starting at j. Literals with escapes or
// line breaks are rejected.
func (s *scriptScanner) literalAt(j int) (Ref, int, bool) {
	if j >= len(s.src) {
		return Ref{}, j, false
	}
	q := s.src[j]
	if q != '\'' && q != '"' {
		return Ref{}, j, false
	}
	for k := j + 1; k < len(s.src); k++ {
		switch s.src[k] {
		case q:
			return Ref{Path: string(s.src[j+1 : k]), Start: j, End: k + 1, Quote: q}, k + 1, true
		case '\\', '\n':
			return Ref{}, j, false
		}
	}
	return Ref{}, j, false
}

func (s *scriptScanner) skipSpace(j int) int {
	for j < len(s.src) {
		switch {
		case isSpace(s.src[j]):
			j++
		case s.src[j] == '/' && j+1 < len(s.src) && s.src[j+1] == '*':
			end := bytes.Index(s.src[j+2:], []byte("*/"))
			if end < 0 {
				return len(s.src)
			}
			j += end + 4
		default:
			return j
		}
	}
	return j
}

func (s *scriptScanner) skipLine() {
	for s.i < len(s.src) && s.src[s.i] != '\n' {
		s.i++
	}
}

func (s *scriptScanner) skipBlock() {
	end := bytes.Index(s.src[s.i+2:], []byte("*/"))
	if end < 0 {
		s.i = len(s.src)
		return
	}
	s.i += end + 4
}

func (s *scriptScanner) skipString(q byte) {
	s.i++
	for s.i < len(s.src) {
		switch s.src[s.i] {
		case '\\':
			s.i += 2
			continue
		case q, '\n':
			s.i++
			return
		}
		s.i++
	}
}

func (s *scriptScanner) skipTemplate() {
	s.i++
	depth := 0
	for s.i < len(s.src) {
		c := s.src[s.i]
		switch {
		case c == '\\':
			s.i += 2
			continue
		case c == '`' && depth == 0:
			s.i++
			return
		case c == '$' && s.peek(1) == '{':
			depth++
			s.i++
		case c == '}' && depth > 0:
			depth--
		}
		s.i++
	}
}

func (s *scriptScanner) skipRegex() {
	s.i++
	inClass := false
	for s.i < len(s.src) {
		c := s.src[s.i]
		switch {
		case c == '\\':
			s.i += 2
			continue
		case c == '\n':
			return
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		case c == '/' && !inClass:
			s.i++
			for s.i < len(s.src) && isIdentPart(s.src[s.i]) {
				s.i++
			}
			return
		}
		s.i++
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

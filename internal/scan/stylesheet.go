package scan

import (
	"bytes"
	"strings"
)

// Import is an @import rule. Start and End cover the whole statement,
// including the terminating semicolon and one following line break.
type Import struct {
	Path  string
	Media string
	Start int
	End   int
}

// URL is a url() reference. Start and End cover the reference text only,
// without quotes or the surrounding url( ).
type URL struct {
	Path  string
	Start int
	End   int
}

// Sheet holds the references found in a stylesheet, in source order.
type Sheet struct {
	Imports []Import
	URLs    []URL
}

// Stylesheet scans src for @import rules and url() references. Comments and
// quoted strings outside those constructs are skipped.
func Stylesheet(src []byte) Sheet {
	var sheet Sheet
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := bytes.Index(src[i+2:], []byte("*/"))
			if end < 0 {
				return sheet
			}
			i += end + 4
		case c == '"' || c == '\'':
			i = skipCSSString(src, i)
		case c == '@' && hasFoldPrefix(src[i+1:], "import") && !identAt(src, i+7):
			imp, end, ok := cssImport(src, i)
			if !ok {
				i += 7
				continue
			}
			sheet.Imports = append(sheet.Imports, imp)
			i = end
		case (c == 'u' || c == 'U') && hasFoldPrefix(src[i:], "url(") && (i == 0 || !isCSSIdent(src[i-1])):
			u, end, ok := cssURL(src, i+4)
			if ok {
				sheet.URLs = append(sheet.URLs, u)
			}
			i = end
		default:
			i++
		}
	}
	return sheet
}

// cssImport parses the @import statement starting at the '@' at start.
func cssImport(src []byte, start int) (Import, int, bool) {
	j := skipCSSSpace(src, start+7)
	if j >= len(src) {
		return Import{}, j, false
	}

	var path string
	switch {
	case src[j] == '"' || src[j] == '\'':
		end := skipCSSString(src, j)
		if end <= j+1 || src[end-1] != src[j] {
			return Import{}, end, false
		}
		path = string(src[j+1 : end-1])
		j = end
	case hasFoldPrefix(src[j:], "url("):
		u, end, ok := cssURL(src, j+4)
		if !ok {
			return Import{}, end, false
		}
		path = u.Path
		j = end
	default:
		return Import{}, j, false
	}

	semi := bytes.IndexByte(src[j:], ';')
	if semi < 0 {
		return Import{}, len(src), false
	}
	media := strings.TrimSpace(string(src[j : j+semi]))
	end := j + semi + 1
	if end < len(src) && src[end] == '\r' {
		end++
	}
	if end < len(src) && src[end] == '\n' {
		end++
	}
	return Import{Path: path, Media: media, Start: start, End: end}, end, true
}

// cssURL parses the argument of url( starting right after the parenthesis and
// returns the index after the closing one.
func cssURL(src []byte, j int) (URL, int, bool) {
	j = skipCSSSpace(src, j)
	if j >= len(src) {
		return URL{}, j, false
	}

	var u URL
	if q := src[j]; q == '"' || q == '\'' {
		end := bytes.IndexByte(src[j+1:], q)
		if end < 0 {
			return URL{}, len(src), false
		}
		u = URL{Path: string(src[j+1 : j+1+end]), Start: j + 1, End: j + 1 + end}
		j = j + end + 2
	} else {
		end := bytes.IndexByte(src[j:], ')')
		if end < 0 {
			return URL{}, len(src), false
		}
		raw := src[j : j+end]
		trimmed := bytes.TrimRight(raw, " \t\r\n\f")
		u = URL{Path: string(trimmed), Start: j, End: j + len(trimmed)}
		j += len(trimmed)
	}

	j = skipCSSSpace(src, j)
	if j >= len(src) || src[j] != ')' {
		return URL{}, j, false
	}
	return u, j + 1, true
}

func skipCSSString(src []byte, i int) int {
	q := src[i]
	i++
	for i < len(src) {
		switch src[i] {
		case '\\':
			i += 2
			continue
		case q:
			return i + 1
		case '\n':
			return i
		}
		i++
	}
	return i
}

func skipCSSSpace(src []byte, j int) int {
	for j < len(src) && isSpace(src[j]) {
		j++
	}
	return j
}

func hasFoldPrefix(b []byte, prefix string) bool {
	return len(b) >= len(prefix) && strings.EqualFold(string(b[:len(prefix)]), prefix)
}

func identAt(src []byte, i int) bool {
	return i < len(src) && isCSSIdent(src[i])
}

func isCSSIdent(c byte) bool {
	return c == '-' || isIdentPart(c)
}

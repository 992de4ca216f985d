package scan

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
)

// Edit replaces src[Start:End] with Text.
type Edit struct {
	Start int
	End   int
	Text  string
}

// Rewrite applies non-overlapping edits to src and returns a new buffer.
// Edits may be given in any order.
func Rewrite(src []byte, edits []Edit) ([]byte, error) {
	if len(edits) == 0 {
		return bytes.Clone(src), nil
	}
	sorted := slices.Clone(edits)
	slices.SortStableFunc(sorted, func(a, b Edit) int { return a.Start - b.Start })

	var buf bytes.Buffer
	buf.Grow(len(src))
	pos := 0
	for _, e := range sorted {
		if e.Start < pos || e.End < e.Start || e.End > len(src) {
			return nil, fmt.Errorf("rewrite: edit [%d,%d) overlaps or is out of range", e.Start, e.End)
		}
		buf.Write(src[pos:e.Start])
		buf.WriteString(e.Text)
		pos = e.End
	}
	buf.Write(src[pos:])
	return buf.Bytes(), nil
}

// QuoteWith renders s as a script string literal delimited by q.
func QuoteWith(s string, q byte) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(q)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == q || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte(q)
	return b.String()
}

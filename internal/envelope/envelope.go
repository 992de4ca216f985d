// Package envelope renders and parses the module registration wrapper:
//
//	define("id", ["dep"], function(require, exports, module){
//	  body
//	});
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	headerOpen  = "define("
	headerClose = ", function(require, exports, module){\n"
	footer      = "\n});\n"
	strict      = "'use strict';\n\n"
)

// Options controls body formatting.
type Options struct {
	Indent int
	Strict bool
}

// ErrNotEnvelope is returned by Unwrap for input that was not produced by Wrap.
var ErrNotEnvelope = errors.New("envelope: not a module envelope")

// Wrap registers body as module id with the given dependency identifiers.
// Trailing line breaks of body are dropped and every non-empty line is
// indented by opts.Indent spaces.
func Wrap(id string, deps []string, body []byte, opts Options) ([]byte, error) {
	idJSON, err := encode(id)
	if err != nil {
		return nil, fmt.Errorf("encoding module id: %w", err)
	}
	if deps == nil {
		deps = []string{}
	}
	depsJSON, err := encode(deps)
	if err != nil {
		return nil, fmt.Errorf("encoding dependencies of %s: %w", id, err)
	}

	body = bytes.TrimRight(body, "\r\n")
	if opts.Strict {
		body = append([]byte(strict), body...)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(idJSON) + len(depsJSON) + 64)
	buf.WriteString(headerOpen)
	buf.Write(idJSON)
	buf.WriteString(", ")
	buf.Write(depsJSON)
	buf.WriteString(headerClose)
	buf.Write(Indent(body, opts.Indent))
	buf.WriteString(footer)
	return buf.Bytes(), nil
}

// Unwrap splits an envelope into its identifier, dependencies and the
// indented body exactly as written by Wrap.
func Unwrap(data []byte) (id string, deps []string, body []byte, err error) {
	if !bytes.HasPrefix(data, []byte(headerOpen)) || !bytes.HasSuffix(data, []byte(footer)) {
		return "", nil, nil, ErrNotEnvelope
	}
	end := bytes.Index(data, []byte(headerClose))
	if end < 0 {
		return "", nil, nil, ErrNotEnvelope
	}

	var parts []json.RawMessage
	args := append([]byte{'['}, data[len(headerOpen):end]...)
	args = append(args, ']')
	if err := json.Unmarshal(args, &parts); err != nil || len(parts) != 2 {
		return "", nil, nil, ErrNotEnvelope
	}
	if err := json.Unmarshal(parts[0], &id); err != nil {
		return "", nil, nil, fmt.Errorf("%w: id: %v", ErrNotEnvelope, err)
	}
	if err := json.Unmarshal(parts[1], &deps); err != nil {
		return "", nil, nil, fmt.Errorf("%w: dependencies: %v", ErrNotEnvelope, err)
	}

	start := end + len(headerClose)
	stop := len(data) - len(footer)
	if stop < start {
		return "", nil, nil, ErrNotEnvelope
	}
	return id, deps, data[start:stop], nil
}

// Indent prefixes every non-empty line of body with n spaces.
func Indent(body []byte, n int) []byte {
	if n <= 0 || len(body) == 0 {
		return bytes.Clone(body)
	}
	pad := strings.Repeat(" ", n)
	lines := bytes.SplitAfter(body, []byte("\n"))

	var buf bytes.Buffer
	buf.Grow(len(body) + len(lines)*n)
	for _, line := range lines {
		if len(bytes.TrimRight(line, "\r\n")) > 0 {
			buf.WriteString(pad)
		}
		buf.Write(line)
	}
	return buf.Bytes()
}

// Quote renders s as a JSON string literal without HTML escaping, suitable
// for embedding text in generated script.
func Quote(s string) string {
	b, err := encode(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

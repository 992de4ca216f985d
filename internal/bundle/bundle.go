// Package bundle walks the dependency graph of an entry file and
// concatenates the modules it reaches.
package bundle

import (
	"bytes"
	"context"
	"fmt"

	"github.com/efebarandurmaz/modwrap/internal/ir"
)

type state uint8

const (
	pending state = iota
	inProgress
	resolved
)

// FetchFunc returns the packaged module for an absolute path.
type FetchFunc func(ctx context.Context, path string) (*ir.Module, error)

// Walker visits every module reachable from an entry exactly once.
type Walker struct {
	Fetch FetchFunc
	// OnCycle is called for each edge leading back into a module that is
	// still being walked. The edge is not followed.
	OnCycle func(ctx context.Context, c ir.Cycle)
}

// Walk returns the modules reachable from entry in depth-first discovery
// order, entry first. A module is listed before the modules it depends on,
// which is not a dependency-before-dependent order; envelopes carry their
// own dependency lists.
func (w *Walker) Walk(ctx context.Context, entry string) (*ir.Bundle, error) {
	b := &ir.Bundle{Entry: entry}
	states := make(map[string]state)

	var visit func(path, referrer string) error
	visit = func(path, referrer string) error {
		switch states[path] {
		case resolved:
			return nil
		case inProgress:
			c := ir.Cycle{Path: path, Referrer: referrer}
			b.Cycles = append(b.Cycles, c)
			if w.OnCycle != nil {
				w.OnCycle(ctx, c)
			}
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		states[path] = inProgress

		m, err := w.Fetch(ctx, path)
		if err != nil {
			if referrer != "" {
				return fmt.Errorf("%w (required by %s)", err, referrer)
			}
			return err
		}
		b.Modules = append(b.Modules, m)

		for _, dep := range m.Modules.Values() {
			if err := visit(dep, path); err != nil {
				return err
			}
		}
		states[path] = resolved
		return nil
	}

	if err := visit(entry, ""); err != nil {
		return nil, err
	}
	return b, nil
}

// Combine concatenates module contents in the given order.
func Combine(modules []*ir.Module) []byte {
	n := 0
	for _, m := range modules {
		n += len(m.Content)
	}
	var buf bytes.Buffer
	buf.Grow(n)
	for _, m := range modules {
		buf.Write(m.Content)
	}
	return buf.Bytes()
}

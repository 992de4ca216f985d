package pipeline

import (
	"context"

	"github.com/efebarandurmaz/modwrap/internal/bundle"
	"github.com/efebarandurmaz/modwrap/internal/diag"
	"github.com/efebarandurmaz/modwrap/internal/ir"
)

func (b *Builder) walk(ctx context.Context, entry *ir.File) (*ir.Bundle, error) {
	w := &bundle.Walker{
		Fetch: func(ctx context.Context, path string) (*ir.Module, error) {
			return b.module(ctx, path, entry)
		},
		OnCycle: func(ctx context.Context, c ir.Cycle) {
			b.Report(ctx, diag.Cycle(c.Path, c.Referrer))
		},
	}
	return w.Walk(ctx, entry.Path)
}

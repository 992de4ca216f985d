// Package stylesheet packages CSS files as script modules that hand their
// text to the stylesheet injection loader.
package stylesheet

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/efebarandurmaz/modwrap/internal/config"
	"github.com/efebarandurmaz/modwrap/internal/diag"
	"github.com/efebarandurmaz/modwrap/internal/envelope"
	"github.com/efebarandurmaz/modwrap/internal/ir"
	"github.com/efebarandurmaz/modwrap/internal/packager"
	"github.com/efebarandurmaz/modwrap/internal/resolve"
	"github.com/efebarandurmaz/modwrap/internal/scan"
)

// LoaderKind is the loader registry kind of the injection runtime.
const LoaderKind = "css"

type Packager struct{}

func New() *Packager { return &Packager{} }

func (p *Packager) Kind() string { return config.KindStylesheet }

func (p *Packager) Extensions() []string { return []string{resolve.StylesheetExt} }

func (p *Packager) Resolve(path string) string { return path + resolve.ScriptExt }

// Parse removes local @import rules, turning them into dependencies, and
// passes url() references through the configured rewriter. The loader is
// always the first dependency.
func (p *Packager) Parse(ctx context.Context, env packager.Env, f *ir.File) (*ir.Module, error) {
	opts := env.Options()
	space := env.Space()

	id, err := space.ModuleID(f.Path)
	if err != nil {
		return nil, err
	}
	m := &ir.Module{ID: id, Path: f.Path, Kind: p.Kind(), Loaders: []string{LoaderKind}}

	loader, err := env.Loader(ctx, LoaderKind, opts.CSS.Loader)
	if err != nil {
		return nil, fmt.Errorf("%s: registering %s loader: %w", f.Path, LoaderKind, err)
	}
	m.Dependencies.Add(loader.ID)
	m.Edges = append(m.Edges, ir.Edge{Ref: opts.CSS.Loader, ID: loader.ID, Path: loader.Path})
	if !opts.Ignored(loader.Path) {
		m.Modules.Add(loader.Path)
	}

	sheet := scan.Stylesheet(f.Contents)
	edits := make([]scan.Edit, 0, len(sheet.Imports)+len(sheet.URLs))

	for _, imp := range sheet.Imports {
		if resolve.IsRemote(imp.Path) {
			env.Report(ctx, diag.Unsupported(imp.Path, f.Path, "remote @import is not bundled"))
			continue
		}
		if imp.Media != "" {
			env.Report(ctx, diag.Unsupported(imp.Path, f.Path, "media qualifier dropped from @import: "+imp.Media))
		}

		abs, err := space.ResolveIn(imp.Path, f.Path, filepath.Dir(f.Path))
		if err != nil {
			return nil, fmt.Errorf("%s: @import %q: %w", f.Path, imp.Path, err)
		}
		depID, err := space.ModuleID(abs)
		if err != nil {
			return nil, fmt.Errorf("%s: @import %q: %w", f.Path, imp.Path, err)
		}

		edge := ir.Edge{Ref: imp.Path, ID: depID, Path: abs}
		switch {
		case !env.Exists(abs):
			env.Report(ctx, diag.Unresolved(abs, f.Path))
			edge.Missing = true
		case !opts.Ignored(abs) && env.Handles(abs):
			m.Modules.Add(abs)
		}
		m.Edges = append(m.Edges, edge)
		m.Dependencies.Add(depID)
		edits = append(edits, scan.Edit{Start: imp.Start, End: imp.End})
	}

	if opts.CSS.OnPath != nil {
		for _, u := range sheet.URLs {
			if out := opts.CSS.OnPath(u.Path, f.Path); out != u.Path {
				edits = append(edits, scan.Edit{Start: u.Start, End: u.End, Text: out})
			}
		}
	}

	m.Content, err = scan.Rewrite(f.Contents, edits)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return m, nil
}

// Transform passes the stylesheet text to the loader as a string literal.
func (p *Packager) Transform(_ context.Context, _ packager.Env, m *ir.Module) ([]byte, error) {
	deps := m.Dependencies.Values()
	if len(deps) == 0 {
		return nil, fmt.Errorf("%s: stylesheet module has no loader dependency", m.Path)
	}
	out := "require(" + envelope.Quote(deps[0]) + ")(" + envelope.Quote(string(m.Content)) + ");"
	return []byte(out), nil
}

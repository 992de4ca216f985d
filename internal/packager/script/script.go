// Package script packages JavaScript modules.
package script

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/efebarandurmaz/modwrap/internal/config"
	"github.com/efebarandurmaz/modwrap/internal/diag"
	"github.com/efebarandurmaz/modwrap/internal/ir"
	"github.com/efebarandurmaz/modwrap/internal/packager"
	"github.com/efebarandurmaz/modwrap/internal/resolve"
	"github.com/efebarandurmaz/modwrap/internal/scan"
)

const indexFile = "index" + resolve.ScriptExt

// Packager rewrites require() references into module identifiers.
type Packager struct{}

func New() *Packager { return &Packager{} }

func (p *Packager) Kind() string { return config.KindScript }

func (p *Packager) Extensions() []string { return []string{resolve.ScriptExt} }

// Resolve gives files mapped onto the script packager a script extension.
func (p *Packager) Resolve(path string) string {
	if strings.EqualFold(filepath.Ext(path), resolve.ScriptExt) {
		return path
	}
	return path + resolve.ScriptExt
}

func (p *Packager) Parse(ctx context.Context, env packager.Env, f *ir.File) (*ir.Module, error) {
	id, err := env.Space().ModuleID(f.Path)
	if err != nil {
		return nil, err
	}
	m := &ir.Module{ID: id, Path: f.Path, Kind: p.Kind()}

	var edits []scan.Edit
	for _, ref := range scan.Script(f.Contents) {
		edge, depID, walk, err := reference(ctx, env, f.Path, ref)
		if err != nil {
			return nil, fmt.Errorf("%s: require(%q): %w", f.Path, ref.Path, err)
		}
		m.Edges = append(m.Edges, edge)
		m.Dependencies.Add(depID)
		if walk {
			m.Modules.Add(edge.Path)
		}
		if depID != ref.Path {
			edits = append(edits, scan.Edit{Start: ref.Start, End: ref.End, Text: scan.QuoteWith(depID, ref.Quote)})
		}
	}

	m.Content, err = scan.Rewrite(f.Contents, edits)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return m, nil
}

// reference resolves one require() argument into the identifier written to
// the envelope and reports whether the walker should follow it.
func reference(ctx context.Context, env packager.Env, referrer string, ref scan.Ref) (ir.Edge, string, bool, error) {
	edge := ir.Edge{Ref: ref.Path, ID: ref.Path, Flag: ref.Flag}
	if resolve.IsRemote(ref.Path) {
		return edge, ref.Path, false, nil
	}

	opts := env.Options()
	target := ref.Path
	if alias, ok := opts.Alias[target]; ok {
		target = alias
	}

	abs, err := env.Space().Resolve(target, referrer)
	if err != nil {
		return edge, "", false, err
	}
	if strings.HasSuffix(target, "/") {
		abs = filepath.Join(abs, indexFile)
	}

	walk := ref.Flag == ir.FlagNone
	if walk && !env.Exists(abs) {
		if env.Exists(abs + resolve.ScriptExt) {
			abs += resolve.ScriptExt
			edge.Extended = true
		} else {
			env.Report(ctx, diag.Unresolved(abs, referrer))
			edge.Missing = true
			walk = false
		}
	}
	edge.Path = abs

	id, err := env.Space().ModuleID(abs)
	if err != nil {
		return edge, "", false, err
	}
	edge.ID = id
	if walk && (opts.Ignored(abs) || !env.Handles(abs)) {
		walk = false
	}
	return edge, id, walk, nil
}

// Transform leaves the rewritten body as is.
func (p *Packager) Transform(_ context.Context, _ packager.Env, m *ir.Module) ([]byte, error) {
	return m.Content, nil
}

// Package markup packages HTML and template files as modules exporting
// their text.
package markup

import (
	"context"

	"github.com/efebarandurmaz/modwrap/internal/config"
	"github.com/efebarandurmaz/modwrap/internal/envelope"
	"github.com/efebarandurmaz/modwrap/internal/ir"
	"github.com/efebarandurmaz/modwrap/internal/packager"
)

type Packager struct{}

func New() *Packager { return &Packager{} }

func (p *Packager) Kind() string { return config.KindMarkup }

func (p *Packager) Extensions() []string { return []string{".html", ".htm", ".tpl"} }

func (p *Packager) Resolve(path string) string { return path + ".js" }

func (p *Packager) Parse(_ context.Context, env packager.Env, f *ir.File) (*ir.Module, error) {
	id, err := env.Space().ModuleID(f.Path)
	if err != nil {
		return nil, err
	}
	return &ir.Module{ID: id, Path: f.Path, Kind: p.Kind(), Content: f.Contents}, nil
}

func (p *Packager) Transform(_ context.Context, _ packager.Env, m *ir.Module) ([]byte, error) {
	return []byte("module.exports = " + envelope.Quote(string(m.Content)) + ";"), nil
}

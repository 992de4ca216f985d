// Package jsondata packages JSON documents as modules exporting their value.
package jsondata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/efebarandurmaz/modwrap/internal/config"
	"github.com/efebarandurmaz/modwrap/internal/ir"
	"github.com/efebarandurmaz/modwrap/internal/packager"
)

// MalformedError reports a JSON file that does not parse.
type MalformedError struct {
	Path   string
	Offset int64
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed JSON in %s at offset %d: %v", e.Path, e.Offset, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

type Packager struct{}

func New() *Packager { return &Packager{} }

func (p *Packager) Kind() string { return config.KindJSON }

func (p *Packager) Extensions() []string { return []string{".json"} }

func (p *Packager) Resolve(path string) string { return path + ".js" }

// Parse validates the document. JSON modules have no dependencies.
func (p *Packager) Parse(_ context.Context, env packager.Env, f *ir.File) (*ir.Module, error) {
	if err := validate(f.Contents); err != nil {
		return nil, &MalformedError{Path: f.Path, Offset: offset(err), Err: err}
	}
	id, err := env.Space().ModuleID(f.Path)
	if err != nil {
		return nil, err
	}
	return &ir.Module{ID: id, Path: f.Path, Kind: p.Kind(), Content: bytes.TrimSpace(f.Contents)}, nil
}

func (p *Packager) Transform(_ context.Context, _ packager.Env, m *ir.Module) ([]byte, error) {
	out := make([]byte, 0, len(m.Content)+20)
	out = append(out, "module.exports = "...)
	out = append(out, m.Content...)
	out = append(out, ';')
	return out, nil
}

func validate(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("empty document")
	}
	var v any
	return json.Unmarshal(data, &v)
}

func offset(err error) int64 {
	var syntax *json.SyntaxError
	if errors.As(err, &syntax) {
		return syntax.Offset
	}
	return 0
}

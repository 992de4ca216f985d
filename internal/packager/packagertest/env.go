// Package packagertest provides an in-memory packager.Env for tests.
package packagertest

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/efebarandurmaz/modwrap/internal/config"
	"github.com/efebarandurmaz/modwrap/internal/diag"
	"github.com/efebarandurmaz/modwrap/internal/ir"
	"github.com/efebarandurmaz/modwrap/internal/resolve"
)

// Env implements packager.Env over an afero.MemMapFs.
type Env struct {
	Opts *config.Options
	Fs   afero.Fs
	// Exts are the extensions Handles accepts.
	Exts []string

	mu       sync.Mutex
	warnings []diag.Warning
	loaders  map[string]*ir.Loader
}

// New returns an Env for root and base, both slash paths. mutate may adjust
// the options before they are normalized.
func New(t testing.TB, root, base string, mutate ...func(*config.Options)) *Env {
	t.Helper()
	opts := config.NewOptions(filepath.FromSlash(root), filepath.FromSlash(base))
	for _, fn := range mutate {
		fn(opts)
	}
	if err := opts.Normalize(); err != nil {
		t.Fatalf("normalize options: %v", err)
	}
	return &Env{
		Opts:    opts,
		Fs:      afero.NewMemMapFs(),
		Exts:    []string{".js", ".css", ".json", ".html", ".tpl"},
		loaders: make(map[string]*ir.Loader),
	}
}

// WriteFile stores content at the slash path name and returns its OS path.
func (e *Env) WriteFile(t testing.TB, name, content string) string {
	t.Helper()
	p := filepath.FromSlash(name)
	if err := afero.WriteFile(e.Fs, p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

// File returns an ir.File for a file written with WriteFile.
func (e *Env) File(t testing.TB, name string) *ir.File {
	t.Helper()
	p := filepath.FromSlash(name)
	data, err := afero.ReadFile(e.Fs, p)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return &ir.File{Path: p, Contents: data, Size: int64(len(data))}
}

func (e *Env) Options() *config.Options { return e.Opts }

func (e *Env) Space() resolve.Space { return e.Opts.Space() }

func (e *Env) Exists(path string) bool {
	info, err := e.Fs.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (e *Env) Handles(path string) bool {
	return slices.Contains(e.Exts, strings.ToLower(filepath.Ext(path)))
}

func (e *Env) Loader(_ context.Context, kind, identifier string) (*ir.Loader, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.loaders[kind]; ok {
		return l, nil
	}
	path := filepath.Join(e.Opts.Base, filepath.FromSlash(identifier)+resolve.ScriptExt)
	id, err := e.Space().ModuleID(path)
	if err != nil {
		return nil, err
	}
	l := &ir.Loader{Kind: kind, ID: id, Path: path}
	e.loaders[kind] = l
	return l, nil
}

func (e *Env) Report(_ context.Context, w diag.Warning) {
	e.mu.Lock()
	e.warnings = append(e.warnings, w)
	e.mu.Unlock()
}

// Warnings returns the reported warnings.
func (e *Env) Warnings() []diag.Warning {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.warnings)
}

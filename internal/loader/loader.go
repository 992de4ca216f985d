// Package loader synthesizes the runtime helper modules that packagers depend
// on implicitly, such as the stylesheet injection runtime.
package loader

import (
	"context"
	"embed"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/efebarandurmaz/modwrap/internal/cache"
	"github.com/efebarandurmaz/modwrap/internal/config"
	"github.com/efebarandurmaz/modwrap/internal/ir"
	"github.com/efebarandurmaz/modwrap/internal/resolve"
)

//go:embed runtime/*.js
var runtimeFS embed.FS

var assets = map[string]string{
	"css": "runtime/css-loader.js",
}

// Asset returns the runtime source for a loader kind.
func Asset(kind string) ([]byte, error) {
	name, ok := assets[kind]
	if !ok {
		return nil, fmt.Errorf("unknown loader kind %q", kind)
	}
	return runtimeFS.ReadFile(name)
}

// Compiler packages a synthesized file the same way as a project script.
type Compiler interface {
	Compile(ctx context.Context, f *ir.File) (*ir.Module, error)
}

// Registry creates each loader kind at most once per build and stores the
// compiled module in the build cache under the loader's path, so the walker
// finds it like any other file.
type Registry struct {
	opts     *config.Options
	compiler Compiler
	modules  *cache.BuildCache

	group   singleflight.Group
	mu      sync.Mutex
	loaders map[string]*ir.Loader
	folded  map[string]bool
}

func NewRegistry(opts *config.Options, compiler Compiler, modules *cache.BuildCache) *Registry {
	return &Registry{
		opts:     opts,
		compiler: compiler,
		modules:  modules,
		loaders:  make(map[string]*ir.Loader),
		folded:   make(map[string]bool),
	}
}

// Register returns the loader of kind, synthesizing it under identifier on
// first use. Later calls in the same build return the same loader.
func (r *Registry) Register(ctx context.Context, kind, identifier string) (*ir.Loader, error) {
	if l, ok := r.lookup(kind); ok {
		return l, nil
	}
	v, err, _ := r.group.Do(kind, func() (any, error) {
		if l, ok := r.lookup(kind); ok {
			return l, nil
		}
		return r.synthesize(ctx, kind, identifier)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ir.Loader), nil
}

func (r *Registry) lookup(kind string) (*ir.Loader, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loaders[kind]
	return l, ok
}

func (r *Registry) synthesize(ctx context.Context, kind, identifier string) (*ir.Loader, error) {
	src, err := Asset(kind)
	if err != nil {
		return nil, err
	}
	path, err := r.Path(identifier)
	if err != nil {
		return nil, fmt.Errorf("%s loader %q: %w", kind, identifier, err)
	}

	f := &ir.File{Path: path, Contents: src, Size: int64(len(src))}
	m, err := r.compiler.Compile(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("compiling %s loader: %w", kind, err)
	}
	r.modules.Store(path, m)

	l := &ir.Loader{
		Kind:   kind,
		ID:     m.ID,
		Path:   path,
		File:   &ir.File{Path: m.Output, Contents: m.Content, Size: int64(len(m.Content))},
		Module: m,
	}
	r.mu.Lock()
	r.loaders[kind] = l
	r.mu.Unlock()
	return l, nil
}

// Path is the absolute path a loader identifier is registered under. Bare
// identifiers live in the base directory.
func (r *Registry) Path(identifier string) (string, error) {
	space := r.opts.Space()
	p, err := space.Resolve(identifier, filepath.Join(r.opts.Base, "_"))
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(filepath.Ext(p), resolve.ScriptExt) {
		p += resolve.ScriptExt
	}
	return p, nil
}

// Fold records that the module at path was written into a combined artifact.
func (r *Registry) Fold(path string) {
	r.mu.Lock()
	r.folded[path] = true
	r.mu.Unlock()
}

// Loaders returns every loader registered in this build, ordered by kind.
func (r *Registry) Loaders() []*ir.Loader {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ir.Loader, 0, len(r.loaders))
	for _, l := range r.loaders {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Pending returns the loaders that still need to be written on their own:
// those not folded into a combined artifact and not ignored.
func (r *Registry) Pending() []*ir.Loader {
	var out []*ir.Loader
	for _, l := range r.Loaders() {
		r.mu.Lock()
		folded := r.folded[l.Path]
		r.mu.Unlock()
		if folded || r.opts.Ignored(l.Path) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Reset forgets every loader. Call it once a build has completed.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.loaders = make(map[string]*ir.Loader)
	r.folded = make(map[string]bool)
	r.mu.Unlock()
}

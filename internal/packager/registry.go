package packager

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/efebarandurmaz/modwrap/internal/resolve"
)

// ErrScriptOverride is returned when a packager tries to replace the one
// registered for script files.
var ErrScriptOverride = errors.New("the script packager cannot be overridden")

// Registry dispatches files to packagers by extension.
type Registry struct {
	mu     sync.RWMutex
	byExt  map[string]Packager
	byKind map[string]Packager
}

// NewRegistry creates an empty packager registry.
func NewRegistry() *Registry {
	return &Registry{
		byExt:  make(map[string]Packager),
		byKind: make(map[string]Packager),
	}
}

// Register claims every extension of p. Later registrations replace earlier
// ones, except for the script extension; a packager claiming it is rejected
// as a whole.
func (r *Registry) Register(p Packager) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.Extensions() {
		if err := r.check(normalize(ext), p); err != nil {
			return err
		}
	}
	for _, ext := range p.Extensions() {
		r.byExt[normalize(ext)] = p
	}
	if _, ok := r.byKind[p.Kind()]; !ok {
		r.byKind[p.Kind()] = p
	}
	return nil
}

// Map routes ext to the packager registered under kind.
func (r *Registry) Map(ext, kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byKind[kind]
	if !ok {
		return fmt.Errorf("no packager of kind %q", kind)
	}
	return r.claim(normalize(ext), p)
}

func (r *Registry) claim(ext string, p Packager) error {
	if err := r.check(ext, p); err != nil {
		return err
	}
	r.byExt[ext] = p
	return nil
}

func (r *Registry) check(ext string, p Packager) error {
	if ext == resolve.ScriptExt {
		if cur, ok := r.byExt[ext]; ok && cur != p {
			return fmt.Errorf("%s: %w", p.Kind(), ErrScriptOverride)
		}
	}
	return nil
}

// Lookup returns the packager for path's extension.
func (r *Registry) Lookup(path string) (Packager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byExt[normalize(filepath.Ext(path))]
	return p, ok
}

// Kind returns the packager registered under kind.
func (r *Registry) Kind(kind string) (Packager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("no packager of kind %q", kind)
	}
	return p, nil
}

// Extensions returns the claimed extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func normalize(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Package packager defines how a file of one content type is parsed for
// dependencies, rewritten and wrapped.
package packager

import (
	"context"

	"github.com/efebarandurmaz/modwrap/internal/config"
	"github.com/efebarandurmaz/modwrap/internal/diag"
	"github.com/efebarandurmaz/modwrap/internal/ir"
	"github.com/efebarandurmaz/modwrap/internal/resolve"
)

// Env is the build a packager runs in. Packagers reach configuration, the
// file system and the loader registry only through it.
type Env interface {
	Options() *config.Options
	Space() resolve.Space
	// Exists reports whether path is a readable regular file.
	Exists(path string) bool
	// Handles reports whether a packager is registered for path.
	Handles(path string) bool
	// Loader registers the runtime helper of kind under identifier, once per
	// build, and returns it.
	Loader(ctx context.Context, kind, identifier string) (*ir.Loader, error)
	Report(ctx context.Context, w diag.Warning)
}

// Packager handles one content type.
type Packager interface {
	// Kind is the builtin kind name, e.g. "script".
	Kind() string
	// Extensions lists the file extensions claimed by default.
	Extensions() []string
	// Resolve returns the output path for a source path.
	Resolve(path string) string
	// Parse finds and rewrites the dependencies of f. The returned module
	// carries the rewritten body in Content.
	Parse(ctx context.Context, env Env, f *ir.File) (*ir.Module, error)
	// Transform applies the type-specific body rewrite to a parsed module.
	Transform(ctx context.Context, env Env, m *ir.Module) ([]byte, error)
}

// EnvelopeEmitter is an optional interface for packagers whose output is
// used as-is instead of being wrapped in a module envelope.
type EnvelopeEmitter interface {
	EmitsEnvelope() bool
}

// EmitsEnvelope reports whether output of p must be wrapped.
func EmitsEnvelope(p Packager) bool {
	if e, ok := p.(EnvelopeEmitter); ok {
		return e.EmitsEnvelope()
	}
	return true
}

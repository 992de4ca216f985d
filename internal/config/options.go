package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/efebarandurmaz/modwrap/internal/resolve"
)

// Builtin packager kinds that the packagers table may map an extension to.
const (
	KindScript     = "script"
	KindStylesheet = "stylesheet"
	KindJSON       = "json"
	KindMarkup     = "markup"
)

var builtinKinds = []string{KindScript, KindStylesheet, KindJSON, KindMarkup}

func isBuiltinKind(kind string) bool {
	return slices.Contains(builtinKinds, kind)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// ConfigError is a fatal configuration problem detected before any file is
// processed.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// CSSOptions configures the stylesheet packager.
type CSSOptions struct {
	// Loader is the identifier of the stylesheet injection runtime.
	Loader string
	// OnPath rewrites a url() reference found in the stylesheet at abs.
	OnPath func(ref, abs string) string
}

// Options is the Build Configuration. It is created once per build and must
// not be modified after Normalize.
type Options struct {
	Root   string
	Base   string
	Alias  map[string]string
	Ignore []string
	Map    func(id, abs string) string
	// OrderedIDs marks a Map whose result depends on the order paths are
	// first seen. Entries are then processed one at a time, in input order.
	OrderedIDs bool
	Indent     int
	Strict     bool
	// Combine decides per entry path whether the whole graph is inlined.
	// A nil predicate never combines.
	Combine   func(abs string) bool
	Packagers map[string]string
	CSS       CSSOptions

	ignore []string
}

// NewOptions returns Options with every default applied.
func NewOptions(root, base string) *Options {
	return &Options{
		Root:   root,
		Base:   base,
		Indent: DefaultIndent,
		Strict: true,
		CSS:    CSSOptions{Loader: DefaultCSSLoader},
	}
}

// Normalize absolutizes root and base, compiles ignore patterns and rejects
// unusable settings.
func (o *Options) Normalize() error {
	root := o.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return &ConfigError{Field: "root", Reason: "cannot determine working directory", Err: err}
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return &ConfigError{Field: "root", Reason: "invalid path", Err: err}
	}
	o.Root = root

	if strings.TrimSpace(o.Base) == "" {
		return &ConfigError{Field: "base", Reason: "required"}
	}
	base := o.Base
	if !filepath.IsAbs(base) {
		base = filepath.Join(root, base)
	}
	base = filepath.Clean(base)
	if !resolve.Within(root, base) {
		return &ConfigError{Field: "base", Reason: "must be inside root", Err: &resolve.OutOfBoundsError{Path: base, Root: root}}
	}
	o.Base = base

	if o.Indent < 0 {
		return &ConfigError{Field: "indent", Reason: fmt.Sprintf("must not be negative, got %d", o.Indent)}
	}
	if strings.TrimSpace(o.CSS.Loader) == "" {
		return &ConfigError{Field: "css.loader", Reason: "must not be empty"}
	}

	o.ignore = o.ignore[:0]
	for _, pattern := range o.Ignore {
		abs, err := rootedPattern(root, pattern)
		if err != nil {
			return &ConfigError{Field: "ignore", Reason: fmt.Sprintf("bad pattern %q", pattern), Err: err}
		}
		o.ignore = append(o.ignore, abs)
	}

	if len(o.Packagers) > 0 {
		packagers := make(map[string]string, len(o.Packagers))
		for ext, kind := range o.Packagers {
			packagers[normalizeExt(ext)] = kind
		}
		o.Packagers = packagers
	}
	return nil
}

// Ignored reports whether abs matches one of the ignore patterns.
func (o *Options) Ignored(abs string) bool {
	p := filepath.ToSlash(abs)
	for _, pattern := range o.ignore {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// ShouldCombine evaluates the combine predicate for an entry path.
func (o *Options) ShouldCombine(abs string) bool {
	return o.Combine != nil && o.Combine(abs)
}

// Space returns the identifier namespace described by the options.
func (o *Options) Space() resolve.Space {
	return resolve.Space{Root: o.Root, Base: o.Base, Map: o.Map}
}

// Options converts the file configuration into a normalized Build
// Configuration.
func (c *Config) Options() (*Options, error) {
	root := c.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, &ConfigError{Field: "root", Reason: "invalid path", Err: err}
	}

	o := NewOptions(absRoot, c.Base)
	o.Alias = c.Alias
	o.Ignore = c.Ignore
	o.Indent = c.Indent
	o.Strict = c.Strict
	o.Packagers = c.Packagers
	if c.CSS.Loader != "" {
		o.CSS.Loader = c.CSS.Loader
	}
	if c.CSS.RootURLs {
		o.CSS.OnPath = resolve.RootURLs(absRoot)
	}
	if fn, ok := resolve.Mapping(c.Map, absRoot); ok {
		o.Map = fn
		o.OrderedIDs = c.Map == resolve.MapNumeric
	}

	all, patterns, err := c.combinePatterns()
	if err != nil {
		return nil, err
	}
	switch {
	case all:
		o.Combine = func(string) bool { return true }
	case len(patterns) > 0:
		rooted := make([]string, 0, len(patterns))
		for _, pattern := range patterns {
			abs, err := rootedPattern(absRoot, pattern)
			if err != nil {
				return nil, &ConfigError{Field: "combine", Reason: fmt.Sprintf("bad pattern %q", pattern), Err: err}
			}
			rooted = append(rooted, abs)
		}
		o.Combine = func(abs string) bool {
			p := filepath.ToSlash(abs)
			for _, pattern := range rooted {
				if ok, _ := doublestar.Match(pattern, p); ok {
					return true
				}
			}
			return false
		}
	}

	if err := o.Normalize(); err != nil {
		return nil, err
	}
	return o, nil
}

var errBadPattern = errors.New("invalid glob pattern")

// rootedPattern turns a root-relative glob into an absolute slash pattern.
func rootedPattern(root, pattern string) (string, error) {
	pattern = filepath.ToSlash(strings.TrimSpace(pattern))
	if pattern == "" || !doublestar.ValidatePattern(pattern) {
		return "", errBadPattern
	}
	if strings.HasPrefix(pattern, "/") && resolve.Within(root, filepath.FromSlash(pattern)) {
		return pattern, nil
	}
	return strings.TrimSuffix(filepath.ToSlash(root), "/") + "/" + strings.TrimPrefix(pattern, "/"), nil
}

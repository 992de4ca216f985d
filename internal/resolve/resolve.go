// Package resolve maps dependency references to absolute paths and absolute
// paths to the module identifiers written into module envelopes.
package resolve

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ScriptExt is the canonical script extension omitted from identifiers.
const ScriptExt = ".js"

// StylesheetExt marks paths whose identifiers always keep an explicit ScriptExt.
const StylesheetExt = ".css"

// OutOfBoundsError reports a path that escapes the root directory.
type OutOfBoundsError struct {
	Path string
	Root string
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("path %s is outside root %s", e.Path, e.Root)
}

// Space is the identifier namespace of one build: the root sandbox, the base
// directory identifiers are relative to, and an optional id remapping.
type Space struct {
	Root string
	Base string
	// Map receives the computed identifier and the absolute path and may
	// return a different identifier.
	Map func(id, abs string) string
}

// Within reports whether p is dir or lies below it. Both must be clean
// absolute paths.
func Within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// IsRelative reports whether ref is written relative to its referrer.
func IsRelative(ref string) bool {
	return ref == "." || ref == ".." || strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../")
}

// IsRemote reports whether ref points at another host.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "//")
}

// Resolve turns ref, found in the file at referrer, into an absolute path.
// Bare references resolve against the base directory.
func (s Space) Resolve(ref, referrer string) (string, error) {
	return s.ResolveIn(ref, referrer, s.Base)
}

// ResolveIn is Resolve with bare references resolved against dir instead of
// the base directory.
func (s Space) ResolveIn(ref, referrer, dir string) (string, error) {
	var p string
	switch {
	case strings.HasPrefix(ref, "/"):
		p = filepath.Join(s.Root, filepath.FromSlash(ref))
	case IsRelative(ref):
		p = filepath.Join(filepath.Dir(referrer), filepath.FromSlash(ref))
	default:
		p = filepath.Join(dir, filepath.FromSlash(ref))
	}
	if !Within(s.Root, p) {
		return "", &OutOfBoundsError{Path: p, Root: s.Root}
	}
	return p, nil
}

// ModuleID computes the identifier of the module stored at abs. Paths inside
// base are base-relative; paths outside base but inside root are root-relative
// and carry a leading slash.
func (s Space) ModuleID(abs string) (string, error) {
	abs = filepath.Clean(abs)
	if !Within(s.Root, abs) {
		return "", &OutOfBoundsError{Path: abs, Root: s.Root}
	}

	var id string
	if Within(s.Base, abs) {
		rel, _ := filepath.Rel(s.Base, abs)
		id = filepath.ToSlash(rel)
	} else {
		rel, _ := filepath.Rel(s.Root, abs)
		id = "/" + filepath.ToSlash(rel)
	}

	if s.Map != nil {
		id = s.Map(id, abs)
	}

	// Stylesheets are packaged as script modules; loaders before 2.x
	// special-cased a bare ".css" id, so the suffix stays explicit.
	if strings.EqualFold(filepath.Ext(abs), StylesheetExt) {
		if !strings.HasSuffix(id, ScriptExt) {
			id += ScriptExt
		}
		return id, nil
	}
	return strings.TrimSuffix(id, ScriptExt), nil
}

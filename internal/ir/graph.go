package ir

import (
	"encoding/json"
	"io"
	"time"
)

// File is a file touched during a build: its path, buffered contents and the
// stat data used for cache invalidation. Stream is set instead of Contents
// when the caller handed over an unbuffered reader.
type File struct {
	Path     string    `json:"path"`
	Contents []byte    `json:"-"`
	Stream   io.Reader `json:"-"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// IsStream reports whether the file arrived as an unbuffered stream.
func (f *File) IsStream() bool { return f.Stream != nil && f.Contents == nil }

// Flag qualifies a dependency reference, e.g. a deferred load.
type Flag string

const (
	FlagNone  Flag = ""
	FlagAsync Flag = "async"
)

// Edge is one dependency reference found in a file and where it resolved to.
// ID is the identifier written into the envelope for it. Path is empty for
// remote references. Missing marks a reference whose target did not exist when
// the file was parsed; Extended one that only resolved once the script
// extension was appended.
type Edge struct {
	Ref      string `json:"ref"`
	ID       string `json:"id"`
	Path     string `json:"path,omitempty"`
	Flag     Flag   `json:"flag,omitempty"`
	Missing  bool   `json:"missing,omitempty"`
	Extended bool   `json:"extended,omitempty"`
}

// Set is an insertion-ordered set of strings. The zero value is ready to use.
type Set struct {
	items []string
	index map[string]struct{}
}

// NewSet returns a set holding values in order, duplicates dropped.
func NewSet(values ...string) Set {
	var s Set
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add appends v unless present and reports whether it was added.
func (s *Set) Add(v string) bool {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

func (s *Set) Has(v string) bool {
	_, ok := s.index[v]
	return ok
}

func (s *Set) Len() int { return len(s.items) }

// Values returns a copy of the members in insertion order.
func (s *Set) Values() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewSet(values...)
	return nil
}

// Module is the result of packaging one file.
type Module struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Output string `json:"output"`
	Kind   string `json:"kind"`
	// Dependencies are identifiers as written into the envelope.
	Dependencies Set `json:"dependencies"`
	// Modules are absolute paths the walker follows next.
	Modules Set    `json:"modules"`
	Edges   []Edge `json:"edges,omitempty"`
	// Loaders lists the kinds of virtual loaders this module depends on.
	Loaders []string `json:"loaders,omitempty"`
	Content []byte   `json:"-"`
}

// Complete reports whether every reference of m resolved to an existing file.
// Modules with missing references are not safe to reuse across builds.
func (m *Module) Complete() bool {
	for _, e := range m.Edges {
		if e.Missing {
			return false
		}
	}
	return true
}

// Cycle records an edge that led back into a module still being walked.
type Cycle struct {
	Path     string `json:"path"`
	Referrer string `json:"referrer"`
}

// Bundle is the walk result for one entry file, modules in discovery order.
type Bundle struct {
	Entry   string    `json:"entry"`
	Modules []*Module `json:"modules"`
	Cycles  []Cycle   `json:"cycles,omitempty"`
}

// Paths returns the source path of every module in order.
func (b *Bundle) Paths() []string {
	paths := make([]string, len(b.Modules))
	for i, m := range b.Modules {
		paths[i] = m.Path
	}
	return paths
}

// Loader is a synthesized runtime helper module.
type Loader struct {
	Kind   string  `json:"kind"`
	ID     string  `json:"id"`
	Path   string  `json:"path"`
	File   *File   `json:"file"`
	Module *Module `json:"module"`
}

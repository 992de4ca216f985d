package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// ExpandEntries turns entry arguments into absolute file paths. Arguments
// are root-relative paths or doublestar globs; absolute arguments must lie
// inside root. A literal path that does not match is kept so the build
// reports it as unreadable.
func ExpandEntries(fs afero.Fs, root string, patterns []string) ([]string, error) {
	fsys := afero.NewIOFS(afero.NewBasePathFs(fs, root))
	seen := make(map[string]bool)
	var entries []string
	add := func(rel string) {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if !seen[abs] {
			seen[abs] = true
			entries = append(entries, abs)
		}
	}

	for _, pattern := range patterns {
		rel := pattern
		if filepath.IsAbs(pattern) {
			r, err := filepath.Rel(root, pattern)
			if err != nil || strings.HasPrefix(r, "..") {
				return nil, fmt.Errorf("entry %s is outside root %s", pattern, root)
			}
			rel = r
		}
		rel = strings.TrimPrefix(filepath.ToSlash(filepath.Clean(rel)), "./")

		if !strings.ContainsAny(rel, "*?[{") {
			add(rel)
			continue
		}
		matches, err := doublestar.Glob(fsys, rel, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("entry pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			add(m)
		}
	}
	return entries, nil
}

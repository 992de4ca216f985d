package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Identifier remapping strategies selectable by name from configuration.
const (
	MapNone    = "none"
	MapHash    = "hash"
	MapNumeric = "numeric"
)

// Mapping returns the remap function for a named strategy. An empty name and
// MapNone return nil.
func Mapping(name, root string) (func(id, abs string) string, bool) {
	switch name {
	case "", MapNone:
		return nil, true
	case MapHash:
		return HashIDs(root), true
	case MapNumeric:
		return NumericIDs(), true
	}
	return nil, false
}

// HashIDs replaces every identifier with the first 8 hex characters of the
// sha256 of its root-relative path, keeping the file extension.
func HashIDs(root string) func(id, abs string) string {
	return func(id, abs string) string {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			rel = abs
		}
		sum := sha256.Sum256([]byte(filepath.ToSlash(rel)))
		return hex.EncodeToString(sum[:4]) + filepath.Ext(abs)
	}
}

// NumericIDs numbers identifiers in first-seen order. The same path always
// maps to the same number for the lifetime of the returned function.
func NumericIDs() func(id, abs string) string {
	var mu sync.Mutex
	seen := make(map[string]string)
	return func(id, abs string) string {
		mu.Lock()
		defer mu.Unlock()
		if n, ok := seen[abs]; ok {
			return n
		}
		n := strconv.Itoa(len(seen)) + filepath.Ext(abs)
		seen[abs] = n
		return n
	}
}

// RootURLs returns a stylesheet url() rewriter turning references relative
// to the stylesheet into root-relative ones. Remote, data, fragment and
// already-rooted references are returned unchanged.
func RootURLs(root string) func(ref, from string) string {
	return func(ref, from string) string {
		if ref == "" || IsRemote(ref) || strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "#") || hasScheme(ref) {
			return ref
		}
		path, suffix := ref, ""
		if i := strings.IndexAny(ref, "?#"); i >= 0 {
			path, suffix = ref[:i], ref[i:]
		}
		abs := filepath.Join(filepath.Dir(from), filepath.FromSlash(path))
		if !Within(root, abs) {
			return ref
		}
		rel, _ := filepath.Rel(root, abs)
		return "/" + filepath.ToSlash(rel) + suffix
	}
}

func hasScheme(ref string) bool {
	i := strings.IndexByte(ref, ':')
	if i <= 0 {
		return false
	}
	return !strings.ContainsAny(ref[:i], "/.?#")
}

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/efebarandurmaz/modwrap/internal/ir"
)

// DefaultContentSize is the number of modules a ContentCache keeps.
const DefaultContentSize = 4096

// Key is a content address of a file.
type Key string

// Fingerprint addresses f by path, stat data and the SHA-256 of its contents.
func Fingerprint(f *ir.File) Key {
	parts := []string{
		f.Path,
		strconv.FormatInt(f.Size, 10),
		strconv.FormatInt(f.ModTime.UnixNano(), 10),
		hashBytes(f.Contents),
	}
	return Key(hashBytes([]byte(strings.Join(parts, "|"))))
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ContentCache keeps packaged modules across builds, evicting the least
// recently used. A nil *ContentCache is a valid, always-missing cache.
type ContentCache struct {
	lru    *lru.Cache[Key, *ir.Module]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewContentCache returns a cache holding up to size modules, or nil when
// size is not positive.
func NewContentCache(size int) (*ContentCache, error) {
	if size <= 0 {
		return nil, nil
	}
	l, err := lru.New[Key, *ir.Module](size)
	if err != nil {
		return nil, err
	}
	return &ContentCache{lru: l}, nil
}

// Get returns the module packaged from identical file contents. A cached
// module that valid rejects is evicted and counted as a miss; a nil valid
// accepts every module.
func (c *ContentCache) Get(f *ir.File, valid func(*ir.Module) bool) (*ir.Module, bool) {
	if c == nil {
		return nil, false
	}
	key := Fingerprint(f)
	m, ok := c.lru.Get(key)
	if ok && valid != nil && !valid(m) {
		c.lru.Remove(key)
		m, ok = nil, false
	}
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return m, ok
}

func (c *ContentCache) Add(f *ir.File, m *ir.Module) {
	if c == nil {
		return
	}
	c.lru.Add(Fingerprint(f), m)
}

// Stats returns the hit and miss counts since creation.
func (c *ContentCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

func (c *ContentCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

func (c *ContentCache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

// Package cache holds the per-build module cache and the content-addressed
// cache reused across builds.
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/efebarandurmaz/modwrap/internal/ir"
)

// BuildCache maps absolute paths to packaged modules for one build. Concurrent
// requests for the same path share a single computation, so each path is
// packaged at most once until Reset.
type BuildCache struct {
	group singleflight.Group

	mu      sync.RWMutex
	modules map[string]*ir.Module
}

func NewBuildCache() *BuildCache {
	return &BuildCache{modules: make(map[string]*ir.Module)}
}

// Do returns the module cached for path, computing it with fn on a miss.
// cached is true when no computation ran for this call. Failed computations
// are not cached.
func (c *BuildCache) Do(ctx context.Context, path string, fn func(context.Context) (*ir.Module, error)) (m *ir.Module, cached bool, err error) {
	if m, ok := c.Get(path); ok {
		return m, true, nil
	}

	computed := false
	v, err, _ := c.group.Do(path, func() (any, error) {
		if m, ok := c.Get(path); ok {
			return m, nil
		}
		computed = true
		m, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.Store(path, m)
		return m, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*ir.Module), !computed, nil
}

// Store caches m under path, replacing any previous entry.
func (c *BuildCache) Store(path string, m *ir.Module) {
	c.mu.Lock()
	c.modules[path] = m
	c.mu.Unlock()
}

func (c *BuildCache) Get(path string) (*ir.Module, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.modules[path]
	return m, ok
}

func (c *BuildCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.modules)
}

// Reset drops every cached module. Call it once a build has completed.
func (c *BuildCache) Reset() {
	c.mu.Lock()
	c.modules = make(map[string]*ir.Module)
	c.mu.Unlock()
}

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/modwrap/internal/ir"
)

func TestBuildCache_AtMostOnce(t *testing.T) {
	c := NewBuildCache()
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func(context.Context) (*ir.Module, error) {
		calls.Add(1)
		<-release
		return &ir.Module{ID: "b"}, nil
	}

	var wg sync.WaitGroup
	results := make([]*ir.Module, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, _, err := c.Do(context.Background(), "/p/src/b.js", fn)
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, m := range results {
		assert.Same(t, results[0], m)
	}

	m, cached, err := c.Do(context.Background(), "/p/src/b.js", fn)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Same(t, results[0], m)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBuildCache_ErrorsNotCached(t *testing.T) {
	c := NewBuildCache()
	boom := errors.New("boom")
	_, _, err := c.Do(context.Background(), "a", func(context.Context) (*ir.Module, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	m, cached, err := c.Do(context.Background(), "a", func(context.Context) (*ir.Module, error) { return &ir.Module{ID: "a"}, nil })
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "a", m.ID)
}

func TestBuildCache_StoreAndReset(t *testing.T) {
	c := NewBuildCache()
	c.Store("/p/src/css-loader.js", &ir.Module{ID: "css-loader"})

	m, cached, err := c.Do(context.Background(), "/p/src/css-loader.js", func(context.Context) (*ir.Module, error) {
		t.Fatal("stored module must not be recomputed")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "css-loader", m.ID)

	c.Reset()
	assert.Equal(t, 0, c.Len())
}

func TestFingerprint(t *testing.T) {
	now := time.Unix(1700000000, 0)
	base := &ir.File{Path: "/p/a.js", Contents: []byte("x"), Size: 1, ModTime: now}

	same := *base
	assert.Equal(t, Fingerprint(base), Fingerprint(&same))

	tests := []struct {
		name   string
		mutate func(f *ir.File)
	}{
		{"path", func(f *ir.File) { f.Path = "/p/b.js" }},
		{"size", func(f *ir.File) { f.Size = 2 }},
		{"mtime", func(f *ir.File) { f.ModTime = now.Add(time.Second) }},
		{"contents", func(f *ir.File) { f.Contents = []byte("y") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := *base
			tt.mutate(&f)
			assert.NotEqual(t, Fingerprint(base), Fingerprint(&f))
		})
	}
}

func TestContentCache(t *testing.T) {
	c, err := NewContentCache(2)
	require.NoError(t, err)

	a := &ir.File{Path: "/p/a.js", Contents: []byte("a")}
	b := &ir.File{Path: "/p/b.js", Contents: []byte("b")}
	d := &ir.File{Path: "/p/d.js", Contents: []byte("d")}

	_, ok := c.Get(a, nil)
	assert.False(t, ok)

	c.Add(a, &ir.Module{ID: "a"})
	c.Add(b, &ir.Module{ID: "b"})
	m, ok := c.Get(a, nil)
	require.True(t, ok)
	assert.Equal(t, "a", m.ID)

	c.Add(d, &ir.Module{ID: "d"})
	_, ok = c.Get(b, nil)
	assert.False(t, ok, "least recently used entry should be evicted")

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestContentCache_RejectedIsEvicted(t *testing.T) {
	c, err := NewContentCache(4)
	require.NoError(t, err)

	a := &ir.File{Path: "/p/a.js", Contents: []byte("a")}
	c.Add(a, &ir.Module{ID: "a"})

	_, ok := c.Get(a, func(*ir.Module) bool { return false })
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	hits, misses := c.Stats()
	assert.Zero(t, hits)
	assert.Equal(t, int64(1), misses)
}

func TestContentCache_Disabled(t *testing.T) {
	c, err := NewContentCache(0)
	require.NoError(t, err)
	assert.Nil(t, c)

	c.Add(&ir.File{}, &ir.Module{})
	_, ok := c.Get(&ir.File{}, nil)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

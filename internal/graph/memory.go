package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/efebarandurmaz/modwrap/internal/depgraph"
)

// MemoryRepository keeps graphs in process memory. It backs the graph
// command when no database is configured.
type MemoryRepository struct {
	mu     sync.RWMutex
	graphs map[string]*depgraph.Graph
}

func NewMemory() *MemoryRepository {
	return &MemoryRepository{graphs: make(map[string]*depgraph.Graph)}
}

func (r *MemoryRepository) StoreGraph(_ context.Context, g *depgraph.Graph) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graphs[g.Entry] = g
	return nil
}

func (r *MemoryRepository) LoadGraph(_ context.Context, entry string) (*depgraph.Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.graphs[entry]
	if !ok {
		return nil, fmt.Errorf("no graph stored for %s", entry)
	}
	return g, nil
}

func (r *MemoryRepository) Dependents(_ context.Context, id string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	for _, g := range r.graphs {
		for _, e := range g.Edges {
			if e.To == id {
				seen[e.From] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for from := range seen {
		out = append(out, from)
	}
	sort.Strings(out)
	return out, nil
}

func (r *MemoryRepository) Close(context.Context) error { return nil }

var _ Repository = (*MemoryRepository)(nil)

// Package graph stores analyzed dependency graphs so they can be queried
// across builds.
package graph

import (
	"context"

	"github.com/efebarandurmaz/modwrap/internal/depgraph"
)

// Repository provides storage for entry dependency graphs.
type Repository interface {
	// StoreGraph persists the graph of one entry, replacing the previous one.
	StoreGraph(ctx context.Context, g *depgraph.Graph) error
	// LoadGraph retrieves the graph stored for an entry path.
	LoadGraph(ctx context.Context, entry string) (*depgraph.Graph, error)
	// Dependents returns the identifiers of modules that reference id, in
	// any stored graph.
	Dependents(ctx context.Context, id string) ([]string, error)
	// Close releases resources.
	Close(ctx context.Context) error
}

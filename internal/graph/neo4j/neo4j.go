package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/modwrap/internal/depgraph"
	"github.com/efebarandurmaz/modwrap/internal/graph"
)

// Neo4jRepository implements graph.Repository using Neo4j. Modules are
// shared between entries by identifier; each entry links the modules it
// includes.
type Neo4jRepository struct {
	driver neo4j.DriverWithContext
}

// NewNeo4j creates a Neo4j-backed repository.
func NewNeo4j(ctx context.Context, uri, username, password string) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jRepository{driver: driver}, nil
}

func (r *Neo4jRepository) StoreGraph(ctx context.Context, g *depgraph.Graph) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			"MERGE (e:Entry {path: $entry}) "+
				"WITH e OPTIONAL MATCH (e)-[old:INCLUDES]->() DELETE old",
			map[string]any{"entry": g.Entry})
		if err != nil {
			return nil, err
		}
		for _, n := range g.Nodes {
			_, err := tx.Run(ctx,
				"MERGE (m:Module {id: $id}) "+
					"SET m.name = $name, m.kind = $kind, m.path = $path, m.bytes = $bytes, m.reason = $reason "+
					"WITH m MATCH (e:Entry {path: $entry}) MERGE (e)-[:INCLUDES]->(m)",
				map[string]any{
					"id":     n.ID,
					"name":   n.Name,
					"kind":   string(n.Kind),
					"path":   n.Path,
					"bytes":  int64(n.Bytes),
					"reason": n.Metadata["reason"],
					"entry":  g.Entry,
				})
			if err != nil {
				return nil, fmt.Errorf("module %s: %w", n.ID, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store modules of %s: %w", g.Entry, err)
	}

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, e := range g.Edges {
			_, err := tx.Run(ctx,
				"MATCH (a:Module {id: $from}), (b:Module {id: $to}) "+
					"MERGE (a)-[d:DEPENDS_ON {kind: $kind}]->(b) "+
					"SET d.label = $label",
				map[string]any{"from": e.From, "to": e.To, "kind": string(e.Kind), "label": e.Label})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store edges of %s: %w", g.Entry, err)
	}
	return nil
}

func (r *Neo4jRepository) LoadGraph(ctx context.Context, entry string) (*depgraph.Graph, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (:Entry {path: $entry})-[:INCLUDES]->(m:Module) "+
				"OPTIONAL MATCH (m)-[d:DEPENDS_ON]->(t:Module)<-[:INCLUDES]-(:Entry {path: $entry}) "+
				"RETURN m.id AS id, m.name AS name, m.kind AS kind, m.path AS path, m.bytes AS bytes, m.reason AS reason, "+
				"collect({to: t.id, kind: d.kind, label: d.label}) AS deps",
			map[string]any{"entry": entry})
		if err != nil {
			return nil, err
		}

		var nodes []depgraph.Node
		var edges []depgraph.Edge
		for records.Next(ctx) {
			rec := records.Record()
			id, _ := rec.Get("id")
			n := depgraph.Node{
				ID:   str(id),
				Name: str(get(rec, "name")),
				Kind: depgraph.NodeKind(str(get(rec, "kind"))),
				Path: str(get(rec, "path")),
			}
			if b, ok := get(rec, "bytes").(int64); ok {
				n.Bytes = int(b)
			}
			if reason := str(get(rec, "reason")); reason != "" {
				n.Metadata = map[string]string{"reason": reason}
			}
			nodes = append(nodes, n)

			deps, _ := get(rec, "deps").([]any)
			for _, d := range deps {
				dep, ok := d.(map[string]any)
				if !ok || dep["to"] == nil {
					continue
				}
				edges = append(edges, depgraph.Edge{
					From:  n.ID,
					To:    str(dep["to"]),
					Kind:  depgraph.EdgeKind(str(dep["kind"])),
					Label: str(dep["label"]),
				})
			}
		}
		if err := records.Err(); err != nil {
			return nil, err
		}
		if len(nodes) == 0 {
			return nil, fmt.Errorf("no graph stored for %s", entry)
		}
		return depgraph.Build(entry, nodes, edges), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*depgraph.Graph), nil
}

func (r *Neo4jRepository) Dependents(ctx context.Context, id string) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (a:Module)-[:DEPENDS_ON]->(:Module {id: $id}) RETURN DISTINCT a.id AS id ORDER BY id",
			map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		ids := []string{}
		for records.Next(ctx) {
			v, _ := records.Record().Get("id")
			ids = append(ids, str(v))
		}
		return ids, records.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

func get(rec *neo4j.Record, key string) any {
	v, _ := rec.Get(key)
	return v
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

var _ graph.Repository = (*Neo4jRepository)(nil)

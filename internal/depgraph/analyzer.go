package depgraph

import (
	"path"
	"sort"

	"github.com/efebarandurmaz/modwrap/internal/ir"
)

// Analyze builds the dependency graph of a walked bundle. References that
// were not walked become external nodes so the graph shows every identifier
// a module declares.
func Analyze(b *ir.Bundle) *Graph {
	g := &Graph{Entry: b.Entry}
	nodeMap := make(map[string]bool)

	// Loaders are listed first among the edges of the modules using them.
	loaders := make(map[string]bool)
	for _, m := range b.Modules {
		for i := 0; i < len(m.Loaders) && i < len(m.Edges); i++ {
			loaders[m.Edges[i].Path] = true
		}
	}

	for _, m := range b.Modules {
		kind := NodeKind(m.Kind)
		if loaders[m.Path] {
			kind = NodeLoader
		}
		g.Nodes = append(g.Nodes, Node{
			ID:    m.ID,
			Name:  path.Base(m.ID),
			Kind:  kind,
			Path:  m.Path,
			Bytes: len(m.Content),
		})
		nodeMap[m.ID] = true
	}

	for _, m := range b.Modules {
		for _, e := range m.Edges {
			to := e.ID
			if to == "" {
				to = e.Ref
			}
			if !nodeMap[to] {
				g.Nodes = append(g.Nodes, Node{
					ID:       to,
					Name:     path.Base(to),
					Kind:     NodeExternal,
					Path:     e.Path,
					Metadata: map[string]string{"reason": externalReason(e)},
				})
				nodeMap[to] = true
			}

			edge := Edge{From: m.ID, To: to, Kind: edgeKind(m, e, loaders)}
			if e.Missing {
				edge.Label = "missing"
			}
			if !hasEdge(g, edge.From, edge.To, edge.Kind) {
				g.Edges = append(g.Edges, edge)
			}
		}
	}

	g.computeStats()
	return g
}

func edgeKind(m *ir.Module, e ir.Edge, loaders map[string]bool) EdgeKind {
	switch {
	case e.Path != "" && loaders[e.Path]:
		return EdgeLoader
	case NodeKind(m.Kind) == NodeStylesheet:
		return EdgeImports
	case e.Flag != ir.FlagNone:
		return EdgeAsync
	default:
		return EdgeRequires
	}
}

func externalReason(e ir.Edge) string {
	switch {
	case e.Missing:
		return "missing"
	case e.Path == "":
		return "remote"
	case e.Flag != ir.FlagNone:
		return "deferred"
	default:
		return "ignored"
	}
}

func hasEdge(g *Graph, from, to string, kind EdgeKind) bool {
	for _, e := range g.Edges {
		if e.From == from && e.To == to && e.Kind == kind {
			return true
		}
	}
	return false
}

// computeStats computes graph metrics
func (g *Graph) computeStats() {
	g.Stats.TotalNodes = len(g.Nodes)
	g.Stats.TotalEdges = len(g.Edges)
	g.Stats.KindCounts = make(map[string]int)

	fanOut := make(map[string]int)
	fanIn := make(map[string]int)

	for _, n := range g.Nodes {
		g.Stats.KindCounts[string(n.Kind)]++
		switch n.Kind {
		case NodeExternal:
			g.Stats.ExternalCount++
		case NodeLoader:
			g.Stats.LoaderCount++
			g.Stats.ModuleCount++
		default:
			g.Stats.ModuleCount++
		}
		g.Stats.TotalBytes += n.Bytes
	}

	for _, e := range g.Edges {
		fanOut[e.From]++
		fanIn[e.To]++
		if e.Label == "missing" {
			g.Stats.MissingCount++
		}
		if e.Kind == EdgeAsync {
			g.Stats.AsyncCount++
		}
	}

	// Node order keeps ties deterministic.
	for _, n := range g.Nodes {
		if c := fanOut[n.ID]; c > g.Stats.MaxFanOut {
			g.Stats.MaxFanOut = c
		}
		if c := fanIn[n.ID]; c > g.Stats.MaxFanIn {
			g.Stats.MaxFanIn = c
			g.Stats.HotspotNode = n.ID
		}
	}

	g.Stats.Depth = g.depth()
	g.Stats.ConnectedComponents = g.countComponents()
	g.Stats.CyclicDeps = g.detectCycles()
}

// walked returns the adjacency of bundled modules over walked edges.
func (g *Graph) walked() map[string][]string {
	bundled := make(map[string]bool)
	for _, n := range g.Nodes {
		if n.Kind != NodeExternal {
			bundled[n.ID] = true
		}
	}
	adj := make(map[string][]string)
	for _, e := range g.Edges {
		if e.Kind == EdgeAsync || !bundled[e.From] || !bundled[e.To] {
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
	}
	return adj
}

// depth is the number of levels below the entry, by shortest chain.
func (g *Graph) depth() int {
	if len(g.Nodes) == 0 {
		return 0
	}
	adj := g.walked()
	root := g.Nodes[0].ID
	level := map[string]int{root: 0}
	queue := []string{root}
	deepest := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if _, seen := level[next]; seen {
				continue
			}
			level[next] = level[cur] + 1
			deepest = max(deepest, level[next])
			queue = append(queue, next)
		}
	}
	return deepest
}

// countComponents counts connected components via union-find
func (g *Graph) countComponents() int {
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		fa, fb := find(a), find(b)
		if fa != fb {
			parent[fa] = fb
		}
	}

	for _, n := range g.Nodes {
		find(n.ID)
	}
	for _, e := range g.Edges {
		union(e.From, e.To)
	}

	roots := make(map[string]bool)
	for _, n := range g.Nodes {
		roots[find(n.ID)] = true
	}
	return len(roots)
}

// detectCycles finds cycles with a DFS over walked edges between modules.
func (g *Graph) detectCycles() [][]string {
	adj := g.walked()

	var cycles [][]string
	visited := make(map[string]int) // 0=unvisited, 1=in-progress, 2=done
	stack := make([]string, 0)

	var dfs func(node string)
	dfs = func(node string) {
		if visited[node] == 2 {
			return
		}
		if visited[node] == 1 {
			cycle := make([]string, 0)
			for i := len(stack) - 1; i >= 0; i-- {
				cycle = append(cycle, stack[i])
				if stack[i] == node {
					break
				}
			}
			for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
				cycle[i], cycle[j] = cycle[j], cycle[i]
			}
			cycles = append(cycles, cycle)
			return
		}
		visited[node] = 1
		stack = append(stack, node)
		for _, next := range adj[node] {
			dfs(next)
		}
		stack = stack[:len(stack)-1]
		visited[node] = 2
	}

	nodes := make([]string, 0, len(adj))
	for id := range adj {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	for _, id := range nodes {
		if visited[id] == 0 {
			dfs(id)
		}
	}
	return cycles
}

// Build assembles a graph from stored nodes and edges and recomputes its
// statistics. The node at the entry path is moved first.
func Build(entry string, nodes []Node, edges []Edge) *Graph {
	for i, n := range nodes {
		if n.Path == entry && n.Kind != NodeExternal {
			nodes[0], nodes[i] = nodes[i], nodes[0]
			break
		}
	}
	g := &Graph{Entry: entry, Nodes: nodes, Edges: edges}
	g.computeStats()
	return g
}

package depgraph

// Node is a module, or a reference target that was not bundled.
type Node struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Kind     NodeKind          `json:"kind"`
	Path     string            `json:"path,omitempty"`
	Bytes    int               `json:"bytes,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NodeKind classifies graph nodes
type NodeKind string

const (
	NodeScript     NodeKind = "script"
	NodeStylesheet NodeKind = "stylesheet"
	NodeJSON       NodeKind = "json"
	NodeMarkup     NodeKind = "markup"
	NodeLoader     NodeKind = "loader"
	// NodeExternal is a reference that was not walked: remote, ignored,
	// deferred or missing.
	NodeExternal NodeKind = "external"
)

// Edge represents a directed edge between two nodes
type Edge struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Kind  EdgeKind `json:"kind"`
	Label string   `json:"label,omitempty"`
}

// EdgeKind classifies relationships
type EdgeKind string

const (
	EdgeRequires EdgeKind = "requires" // script require()
	EdgeAsync    EdgeKind = "async"    // require.async, not walked
	EdgeImports  EdgeKind = "imports"  // stylesheet @import
	EdgeLoader   EdgeKind = "loader"   // module on its runtime loader
)

// Graph is the dependency graph of one entry.
type Graph struct {
	Entry string     `json:"entry"`
	Nodes []Node     `json:"nodes"`
	Edges []Edge     `json:"edges"`
	Stats GraphStats `json:"stats"`
}

// GraphStats holds computed metrics about the graph
type GraphStats struct {
	TotalNodes          int            `json:"total_nodes"`
	TotalEdges          int            `json:"total_edges"`
	ModuleCount         int            `json:"module_count"`
	LoaderCount         int            `json:"loader_count"`
	ExternalCount       int            `json:"external_count"`
	MissingCount        int            `json:"missing_count"`
	AsyncCount          int            `json:"async_count"`
	TotalBytes          int            `json:"total_bytes"`
	Depth               int            `json:"depth"`              // longest walked chain from the entry
	MaxFanOut           int            `json:"max_fan_out"`        // most outgoing edges
	MaxFanIn            int            `json:"max_fan_in"`         // most incoming edges
	HotspotNode         string         `json:"hotspot_node"`       // node most depended on
	ConnectedComponents int            `json:"connected_components"`
	CyclicDeps          [][]string     `json:"cyclic_deps,omitempty"`
	KindCounts          map[string]int `json:"kind_counts"`
}

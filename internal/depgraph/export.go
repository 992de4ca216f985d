package depgraph

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
)

// ExportDOT generates a Graphviz DOT representation of the graph, one cluster
// per identifier directory.
func ExportDOT(g *Graph) string {
	var b strings.Builder
	b.WriteString("digraph dependencies {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\" fontsize=10];\n\n")

	dirs, groups := groupByDir(g)
	for _, dir := range dirs {
		b.WriteString(fmt.Sprintf("  subgraph cluster_%s {\n", sanitizeID(dir)))
		b.WriteString(fmt.Sprintf("    label=%q;\n", dir))
		b.WriteString("    style=dashed;\n")
		b.WriteString("    color=\"#58a6ff\";\n")
		for _, n := range groups[dir] {
			b.WriteString(fmt.Sprintf("    %q [label=%q shape=%s style=filled fillcolor=\"%s\"];\n",
				n.ID, n.Name, nodeShape(n.Kind), nodeColor(n.Kind)))
		}
		b.WriteString("  }\n\n")
	}

	for _, e := range g.Edges {
		label := ""
		if e.Label != "" {
			label = fmt.Sprintf(" label=%q", e.Label)
		}
		b.WriteString(fmt.Sprintf("  %q -> %q [style=%s color=\"%s\"%s];\n",
			e.From, e.To, edgeStyle(e.Kind), edgeColor(e.Kind), label))
	}

	b.WriteString("}\n")
	return b.String()
}

// ExportMermaid generates a Mermaid diagram of the graph.
func ExportMermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	dirs, groups := groupByDir(g)
	for _, dir := range dirs {
		b.WriteString(fmt.Sprintf("  subgraph %s[\"%s\"]\n", sanitizeID("dir_"+dir), dir))
		for _, n := range groups[dir] {
			b.WriteString(fmt.Sprintf("    %s%s\n", sanitizeID(n.ID), mermaidNodeShape(n)))
		}
		b.WriteString("  end\n")
	}

	for _, e := range g.Edges {
		label := ""
		if e.Label != "" {
			label = "|" + e.Label + "|"
		}
		b.WriteString(fmt.Sprintf("  %s %s%s %s\n",
			sanitizeID(e.From), mermaidArrow(e.Kind), label, sanitizeID(e.To)))
	}

	return b.String()
}

// ExportJSON serializes the graph to JSON.
func ExportJSON(g *Graph) ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

// FormatStats returns a human-readable summary of graph statistics.
func FormatStats(g *Graph) string {
	var b strings.Builder
	b.WriteString("Dependency Graph Statistics\n")
	b.WriteString("==========================\n\n")
	b.WriteString(fmt.Sprintf("Entry:       %s\n", g.Entry))
	b.WriteString(fmt.Sprintf("Nodes:       %d total\n", g.Stats.TotalNodes))
	b.WriteString(fmt.Sprintf("  Modules:   %d (%d bytes)\n", g.Stats.ModuleCount, g.Stats.TotalBytes))
	b.WriteString(fmt.Sprintf("  Loaders:   %d\n", g.Stats.LoaderCount))
	b.WriteString(fmt.Sprintf("  External:  %d\n", g.Stats.ExternalCount))
	b.WriteString(fmt.Sprintf("Edges:       %d total\n", g.Stats.TotalEdges))
	b.WriteString(fmt.Sprintf("  Async:     %d\n", g.Stats.AsyncCount))
	b.WriteString(fmt.Sprintf("  Missing:   %d\n", g.Stats.MissingCount))
	b.WriteString(fmt.Sprintf("Depth:       %d\n", g.Stats.Depth))
	b.WriteString(fmt.Sprintf("Max Fan-Out: %d\n", g.Stats.MaxFanOut))
	b.WriteString(fmt.Sprintf("Max Fan-In:  %d (%s)\n", g.Stats.MaxFanIn, g.Stats.HotspotNode))
	b.WriteString(fmt.Sprintf("Components:  %d\n", g.Stats.ConnectedComponents))

	if len(g.Stats.CyclicDeps) > 0 {
		b.WriteString(fmt.Sprintf("\nCyclic Dependencies: %d\n", len(g.Stats.CyclicDeps)))
		for i, cycle := range g.Stats.CyclicDeps {
			b.WriteString(fmt.Sprintf("  %d: %s\n", i+1, strings.Join(cycle, " -> ")))
		}
	}

	if len(g.Stats.KindCounts) > 0 {
		kinds := make([]string, 0, len(g.Stats.KindCounts))
		for k := range g.Stats.KindCounts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		b.WriteString("\nBy Kind:\n")
		for _, k := range kinds {
			b.WriteString(fmt.Sprintf("  %s: %d\n", k, g.Stats.KindCounts[k]))
		}
	}

	return b.String()
}

func groupByDir(g *Graph) ([]string, map[string][]Node) {
	groups := make(map[string][]Node)
	for _, n := range g.Nodes {
		dir := "external"
		if n.Kind != NodeExternal {
			dir = path.Dir(n.ID)
		}
		groups[dir] = append(groups[dir], n)
	}
	dirs := make([]string, 0, len(groups))
	for dir := range groups {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs, groups
}

func sanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, s)
}

func nodeShape(kind NodeKind) string {
	switch kind {
	case NodeScript:
		return "box"
	case NodeStylesheet:
		return "note"
	case NodeJSON, NodeMarkup:
		return "ellipse"
	case NodeLoader:
		return "box3d"
	case NodeExternal:
		return "diamond"
	default:
		return "box"
	}
}

func nodeColor(kind NodeKind) string {
	switch kind {
	case NodeScript:
		return "#238636"
	case NodeStylesheet:
		return "#1f6feb"
	case NodeJSON, NodeMarkup:
		return "#8957e5"
	case NodeLoader:
		return "#d29922"
	case NodeExternal:
		return "#30363d"
	default:
		return "#8b949e"
	}
}

func edgeStyle(kind EdgeKind) string {
	switch kind {
	case EdgeRequires:
		return "solid"
	case EdgeAsync:
		return "dashed"
	case EdgeImports:
		return "bold"
	case EdgeLoader:
		return "dotted"
	default:
		return "solid"
	}
}

func edgeColor(kind EdgeKind) string {
	switch kind {
	case EdgeRequires:
		return "#3fb950"
	case EdgeAsync:
		return "#8b949e"
	case EdgeImports:
		return "#58a6ff"
	case EdgeLoader:
		return "#d29922"
	default:
		return "#c9d1d9"
	}
}

func mermaidNodeShape(n Node) string {
	switch n.Kind {
	case NodeLoader:
		return fmt.Sprintf("[[\"%s\"]]", n.Name)
	case NodeStylesheet:
		return fmt.Sprintf("[/\"%s\"/]", n.Name)
	case NodeJSON, NodeMarkup:
		return fmt.Sprintf("([\"%s\"])", n.Name)
	case NodeExternal:
		return fmt.Sprintf("{\"%s\"}", n.Name)
	default:
		return fmt.Sprintf("[\"%s\"]", n.Name)
	}
}

func mermaidArrow(kind EdgeKind) string {
	switch kind {
	case EdgeAsync:
		return "-.->"
	case EdgeImports:
		return "==>"
	case EdgeLoader:
		return "-..->"
	default:
		return "-->"
	}
}

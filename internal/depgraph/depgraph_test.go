package depgraph

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/efebarandurmaz/modwrap/internal/ir"
)

// Helper types for building test bundles
type testModule struct {
	id      string
	kind    string
	edges   []ir.Edge
	loaders []string
	content string
}

func makeTestBundle(modules ...testModule) *ir.Bundle {
	b := &ir.Bundle{}
	for _, m := range modules {
		mod := &ir.Module{
			ID:      m.id,
			Path:    "/p/src/" + m.id,
			Kind:    m.kind,
			Edges:   m.edges,
			Loaders: m.loaders,
			Content: []byte(m.content),
		}
		if mod.Kind == "" {
			mod.Kind = "script"
		}
		b.Modules = append(b.Modules, mod)
	}
	if len(b.Modules) > 0 {
		b.Entry = b.Modules[0].Path
	}
	return b
}

func req(id string) ir.Edge {
	return ir.Edge{Ref: "./" + id, ID: id, Path: "/p/src/" + id}
}

func countEdgesByKind(g *Graph, kind EdgeKind) int {
	count := 0
	for _, e := range g.Edges {
		if e.Kind == kind {
			count++
		}
	}
	return count
}

func findNode(g *Graph, id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Analyzer Tests

func TestAnalyze_EmptyBundle(t *testing.T) {
	g := Analyze(&ir.Bundle{})

	if len(g.Nodes) != 0 {
		t.Errorf("expected 0 nodes, got %d", len(g.Nodes))
	}
	if len(g.Edges) != 0 {
		t.Errorf("expected 0 edges, got %d", len(g.Edges))
	}
	if g.Stats.ConnectedComponents != 0 {
		t.Errorf("expected 0 components, got %d", g.Stats.ConnectedComponents)
	}
	if g.Stats.Depth != 0 {
		t.Errorf("expected depth 0, got %d", g.Stats.Depth)
	}
}

func TestAnalyze_RequireChain(t *testing.T) {
	g := Analyze(makeTestBundle(
		testModule{id: "a", edges: []ir.Edge{req("b")}, content: "aaaa"},
		testModule{id: "b", edges: []ir.Edge{req("c")}, content: "bb"},
		testModule{id: "c"},
	))

	if g.Stats.ModuleCount != 3 {
		t.Errorf("expected 3 modules, got %d", g.Stats.ModuleCount)
	}
	if n := countEdgesByKind(g, EdgeRequires); n != 2 {
		t.Errorf("expected 2 requires edges, got %d", n)
	}
	if g.Stats.Depth != 2 {
		t.Errorf("expected depth 2, got %d", g.Stats.Depth)
	}
	if g.Stats.TotalBytes != 6 {
		t.Errorf("expected 6 bytes, got %d", g.Stats.TotalBytes)
	}
	if g.Stats.ConnectedComponents != 1 {
		t.Errorf("expected 1 component, got %d", g.Stats.ConnectedComponents)
	}
	if g.Entry != "/p/src/a" {
		t.Errorf("unexpected entry %q", g.Entry)
	}
}

func TestAnalyze_StylesheetLoader(t *testing.T) {
	loaderEdge := ir.Edge{Ref: "css-loader", ID: "css-loader", Path: "/p/src/css-loader"}
	g := Analyze(makeTestBundle(
		testModule{id: "style.css.js", kind: "stylesheet", loaders: []string{"css"}, edges: []ir.Edge{loaderEdge, req("reset.css.js")}},
		testModule{id: "css-loader"},
		testModule{id: "reset.css.js", kind: "stylesheet", loaders: []string{"css"}, edges: []ir.Edge{loaderEdge}},
	))

	if n := findNode(g, "css-loader"); n == nil || n.Kind != NodeLoader {
		t.Fatalf("expected css-loader to be a loader node, got %+v", n)
	}
	if g.Stats.LoaderCount != 1 {
		t.Errorf("expected 1 loader, got %d", g.Stats.LoaderCount)
	}
	if n := countEdgesByKind(g, EdgeLoader); n != 2 {
		t.Errorf("expected 2 loader edges, got %d", n)
	}
	if n := countEdgesByKind(g, EdgeImports); n != 1 {
		t.Errorf("expected 1 imports edge, got %d", n)
	}
	if g.Stats.HotspotNode != "css-loader" {
		t.Errorf("expected css-loader as hotspot, got %s", g.Stats.HotspotNode)
	}
	if g.Stats.MaxFanIn != 2 {
		t.Errorf("expected max fan-in 2, got %d", g.Stats.MaxFanIn)
	}
}

func TestAnalyze_ExternalNodes(t *testing.T) {
	g := Analyze(makeTestBundle(testModule{id: "a", edges: []ir.Edge{
		{Ref: "https://cdn.example.com/lib.js", ID: "https://cdn.example.com/lib.js"},
		{Ref: "./gone", ID: "gone", Path: "/p/src/gone", Missing: true},
		{Ref: "./later", ID: "later", Path: "/p/src/later.js", Flag: ir.FlagAsync},
		{Ref: "vendor/x", ID: "vendor/x", Path: "/p/src/vendor/x.js"},
	}}))

	if g.Stats.ExternalCount != 4 {
		t.Fatalf("expected 4 external nodes, got %d", g.Stats.ExternalCount)
	}
	tests := []struct {
		id, reason string
	}{
		{"https://cdn.example.com/lib.js", "remote"},
		{"gone", "missing"},
		{"later", "deferred"},
		{"vendor/x", "ignored"},
	}
	for _, tt := range tests {
		n := findNode(g, tt.id)
		if n == nil {
			t.Errorf("node %s not found", tt.id)
			continue
		}
		if n.Metadata["reason"] != tt.reason {
			t.Errorf("%s: expected reason %s, got %s", tt.id, tt.reason, n.Metadata["reason"])
		}
	}
	if g.Stats.MissingCount != 1 {
		t.Errorf("expected 1 missing edge, got %d", g.Stats.MissingCount)
	}
	if g.Stats.AsyncCount != 1 {
		t.Errorf("expected 1 async edge, got %d", g.Stats.AsyncCount)
	}
	if g.Stats.Depth != 0 {
		t.Errorf("external nodes do not count toward depth, got %d", g.Stats.Depth)
	}
}

func TestAnalyze_CycleDetection(t *testing.T) {
	g := Analyze(makeTestBundle(
		testModule{id: "a", edges: []ir.Edge{req("b")}},
		testModule{id: "b", edges: []ir.Edge{req("c")}},
		testModule{id: "c", edges: []ir.Edge{req("a")}},
	))

	if len(g.Stats.CyclicDeps) != 1 {
		t.Fatalf("expected 1 cycle, got %d: %v", len(g.Stats.CyclicDeps), g.Stats.CyclicDeps)
	}
	if got := strings.Join(g.Stats.CyclicDeps[0], ","); got != "a,b,c" {
		t.Errorf("expected cycle a,b,c, got %s", got)
	}
}

func TestAnalyze_AsyncEdgesDoNotFormCycles(t *testing.T) {
	back := req("a")
	back.Flag = ir.FlagAsync
	g := Analyze(makeTestBundle(
		testModule{id: "a", edges: []ir.Edge{req("b")}},
		testModule{id: "b", edges: []ir.Edge{back}},
	))

	if len(g.Stats.CyclicDeps) != 0 {
		t.Errorf("expected no cycles, got %v", g.Stats.CyclicDeps)
	}
	if n := countEdgesByKind(g, EdgeAsync); n != 1 {
		t.Errorf("expected 1 async edge, got %d", n)
	}
}

func TestAnalyze_DuplicateReferences(t *testing.T) {
	g := Analyze(makeTestBundle(
		testModule{id: "a", edges: []ir.Edge{req("b"), req("b")}},
		testModule{id: "b"},
	))
	if g.Stats.TotalEdges != 1 {
		t.Errorf("expected duplicate references to collapse, got %d edges", g.Stats.TotalEdges)
	}
}

func TestAnalyze_ConnectedComponents(t *testing.T) {
	g := Analyze(makeTestBundle(
		testModule{id: "a"},
		testModule{id: "b"},
	))
	if g.Stats.ConnectedComponents != 2 {
		t.Errorf("expected 2 components, got %d", g.Stats.ConnectedComponents)
	}
}

// Export Tests

func sampleGraph() *Graph {
	return Analyze(makeTestBundle(
		testModule{id: "app/main", edges: []ir.Edge{req("app/view"), {Ref: "./gone", ID: "app/gone", Path: "/p/src/app/gone", Missing: true}}},
		testModule{id: "app/view", edges: []ir.Edge{req("style.css.js")}},
		testModule{id: "style.css.js", kind: "stylesheet"},
	))
}

func TestExportDOT(t *testing.T) {
	dot := ExportDOT(sampleGraph())

	for _, want := range []string{
		"digraph dependencies {",
		"subgraph cluster_app {",
		`"app/main" -> "app/view" [style=solid`,
		`label="missing"`,
		"shape=note",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
	if !strings.HasSuffix(dot, "}\n") {
		t.Error("DOT output should end with closing brace")
	}
}

func TestExportMermaid(t *testing.T) {
	out := ExportMermaid(sampleGraph())

	if !strings.HasPrefix(out, "graph LR\n") {
		t.Errorf("unexpected header: %q", out)
	}
	for _, want := range []string{
		"app_main --> app_view",
		"app_main -->|missing| app_gone",
		`style_css_js[/"style.css.js"/]`,
		`app_gone{"gone"}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Mermaid output missing %q:\n%s", want, out)
		}
	}
}

func TestExportJSON(t *testing.T) {
	data, err := ExportJSON(sampleGraph())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded Graph
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded.Nodes) != 4 {
		t.Errorf("expected 4 nodes, got %d", len(decoded.Nodes))
	}
	if decoded.Stats.ModuleCount != 3 {
		t.Errorf("expected 3 modules, got %d", decoded.Stats.ModuleCount)
	}
}

func TestFormatStats(t *testing.T) {
	out := FormatStats(Analyze(makeTestBundle(
		testModule{id: "a", edges: []ir.Edge{req("b")}},
		testModule{id: "b", edges: []ir.Edge{req("a")}},
	)))

	for _, want := range []string{
		"Dependency Graph Statistics",
		"Modules:   2",
		"Depth:       1",
		"Cyclic Dependencies: 1",
		"a -> b",
		"script: 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}
}

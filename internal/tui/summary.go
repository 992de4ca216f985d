package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/efebarandurmaz/modwrap/internal/depgraph"
	"github.com/efebarandurmaz/modwrap/internal/metrics"
	"github.com/efebarandurmaz/modwrap/internal/pipeline"
)

// maxListed caps the warnings and errors shown in a summary.
const maxListed = 10

// RenderBuild renders a bordered summary of a build. Paths are shown
// relative to root.
func RenderBuild(s *Styles, root string, r *pipeline.Report, written []string) string {
	m := metrics.FromReport(r)

	var b strings.Builder
	b.WriteString(s.Title.Render("modwrap build"))
	b.WriteString("  ")
	b.WriteString(s.StatusBadge(m.Entries.Failed, m.WarningCount()))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(s.Label.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	row("Entries", fmt.Sprintf("%d built, %d failed", m.Entries.Built, m.Entries.Failed))
	row("Modules", fmt.Sprintf("%d (%d parsed, %d cached)", m.Modules.Distinct, m.Modules.Parsed, m.Modules.CacheHits))
	row("Outputs", fmt.Sprintf("%d files, %d loaders", m.Output.Files, m.Output.Loaders))
	row("Duration", m.Duration.Round(time.Millisecond).String())

	if len(written) > 0 {
		b.WriteString("\n")
		b.WriteString(s.Subtitle.Render("Written"))
		b.WriteString("\n")
		for _, p := range limit(written) {
			b.WriteString("  " + relative(root, p) + "\n")
		}
		if n := len(written) - maxListed; n > 0 {
			b.WriteString(s.Muted.Render(fmt.Sprintf("  ... %d more", n)) + "\n")
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n")
		b.WriteString(s.Subtitle.Render(fmt.Sprintf("Warnings (%d)", len(r.Warnings))))
		b.WriteString("\n")
		for i, w := range r.Warnings {
			if i == maxListed {
				b.WriteString(s.Muted.Render(fmt.Sprintf("  ... %d more", len(r.Warnings)-maxListed)) + "\n")
				break
			}
			line := fmt.Sprintf("  %s %s", w.Kind, relative(root, w.Path))
			if w.Referrer != "" {
				line += s.Muted.Render(" from " + relative(root, w.Referrer))
			}
			b.WriteString(line + "\n")
		}
	}

	if failed := r.Failed(); len(failed) > 0 {
		b.WriteString("\n")
		b.WriteString(s.Subtitle.Render("Errors"))
		b.WriteString("\n")
		for _, res := range failed {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)).
				Render(fmt.Sprintf("  %s: %v", relative(root, res.Source), res.Err)))
			b.WriteString("\n")
		}
	}

	return s.Border.Render(strings.TrimRight(b.String(), "\n"))
}

// RenderGraph renders the headline statistics of a dependency graph.
func RenderGraph(s *Styles, root string, g *depgraph.Graph) string {
	var b strings.Builder
	b.WriteString(s.Title.Render("dependency graph"))
	b.WriteString("  ")
	b.WriteString(s.Muted.Render(relative(root, g.Entry)))
	b.WriteString("\n\n")

	row := func(label string, value any) {
		b.WriteString(s.Label.Render(label))
		b.WriteString(fmt.Sprint(value))
		b.WriteString("\n")
	}
	row("Modules", g.Stats.ModuleCount)
	row("Loaders", g.Stats.LoaderCount)
	row("External", g.Stats.ExternalCount)
	row("Edges", g.Stats.TotalEdges)
	row("Depth", g.Stats.Depth)
	if g.Stats.HotspotNode != "" {
		row("Hotspot", fmt.Sprintf("%s (%d dependents)", g.Stats.HotspotNode, g.Stats.MaxFanIn))
	}
	if n := len(g.Stats.CyclicDeps); n > 0 {
		b.WriteString(s.StatusWarning.Render(fmt.Sprintf("%d cycles", n)))
		b.WriteString("\n")
	}
	return s.Border.Render(strings.TrimRight(b.String(), "\n"))
}

func limit(items []string) []string {
	if len(items) > maxListed {
		return items[:maxListed]
	}
	return items
}

func relative(root, p string) string {
	if root == "" || p == "" {
		return p
	}
	if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return p
}

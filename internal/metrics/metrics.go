package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/efebarandurmaz/modwrap/internal/diag"
	"github.com/efebarandurmaz/modwrap/internal/pipeline"
)

// BuildMetrics collects statistics for one build run.
type BuildMetrics struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
	Duration   time.Duration  `json:"duration_ms,omitempty"`
	Entries    EntryMetrics   `json:"entries"`
	Output     OutputMetrics  `json:"output"`
	Modules    ModuleMetrics  `json:"modules"`
	Warnings   map[string]int `json:"warnings,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
}

type EntryMetrics struct {
	Total  int `json:"total"`
	Built  int `json:"built"`
	Failed int `json:"failed"`
}

type OutputMetrics struct {
	Files      int `json:"files"`
	Loaders    int `json:"loaders"`
	TotalBytes int `json:"total_bytes"`
}

type ModuleMetrics struct {
	Distinct  int   `json:"distinct"`
	Parsed    int64 `json:"parsed"`
	CacheHits int64 `json:"cache_hits"`
}

// New starts tracking a build run.
func New() *BuildMetrics {
	return &BuildMetrics{StartedAt: time.Now(), Warnings: make(map[string]int)}
}

// Collect records the counts of a finished build report.
func (m *BuildMetrics) Collect(r *pipeline.Report) {
	m.Entries.Total = len(r.Results)
	for _, res := range r.Results {
		if res.Err != nil {
			m.Entries.Failed++
			m.Errors = append(m.Errors, res.Err.Error())
			continue
		}
		m.Entries.Built++
	}

	m.Output.Files = len(r.Outputs)
	for _, f := range r.Outputs {
		m.Output.TotalBytes += len(f.Contents)
	}
	// Outputs beyond the entry results are loader files emitted at finish.
	m.Output.Loaders = m.Output.Files - m.Entries.Built
	if m.Output.Loaders < 0 {
		m.Output.Loaders = 0
	}

	m.Modules.Distinct = r.Modules
	m.Modules.Parsed = r.Parsed
	m.Modules.CacheHits = r.CacheHits

	for _, w := range r.Warnings {
		m.Warnings[string(w.Kind)]++
	}
	if r.Duration > 0 {
		m.Duration = r.Duration
	}
}

// FromReport builds metrics for a report that has already finished.
func FromReport(r *pipeline.Report) *BuildMetrics {
	m := New()
	m.Collect(r)
	m.FinishedAt = m.StartedAt.Add(r.Duration)
	return m
}

// Finish marks the build as complete.
func (m *BuildMetrics) Finish() {
	m.FinishedAt = time.Now()
	if m.Duration == 0 {
		m.Duration = m.FinishedAt.Sub(m.StartedAt)
	}
}

// WarningCount returns the total number of warnings.
func (m *BuildMetrics) WarningCount() int {
	n := 0
	for _, c := range m.Warnings {
		n += c
	}
	return n
}

// PrintSummary writes a human-readable summary.
func (m *BuildMetrics) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║         MODWRAP BUILD REPORT         ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-24s║\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Entries:     %-24s║\n", fmt.Sprintf("%d built, %d failed", m.Entries.Built, m.Entries.Failed))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ MODULES\n")
	fmt.Fprintf(w, "║   Distinct:    %d\n", m.Modules.Distinct)
	fmt.Fprintf(w, "║   Parsed:      %d\n", m.Modules.Parsed)
	fmt.Fprintf(w, "║   Cache Hits:  %d\n", m.Modules.CacheHits)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ OUTPUT\n")
	fmt.Fprintf(w, "║   Files:       %d\n", m.Output.Files)
	fmt.Fprintf(w, "║   Loaders:     %d\n", m.Output.Loaders)
	fmt.Fprintf(w, "║   Total Size:  %s\n", formatBytes(m.Output.TotalBytes))
	if len(m.Warnings) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ WARNINGS\n")
		kinds := make([]string, 0, len(m.Warnings))
		for k := range m.Warnings {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "║   %-22s %d\n", k, m.Warnings[k])
		}
	}
	if len(m.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range m.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the metrics as formatted JSON.
func (m *BuildMetrics) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Unresolved is a shortcut for the unresolved dependency count.
func (m *BuildMetrics) Unresolved() int {
	return m.Warnings[string(diag.KindUnresolved)]
}

func formatBytes(b int) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

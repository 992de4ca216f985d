package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/modwrap/internal/diag"
	"github.com/efebarandurmaz/modwrap/internal/ir"
	"github.com/efebarandurmaz/modwrap/internal/observability"
	"github.com/efebarandurmaz/modwrap/internal/resolve"
)

// Result is the outcome of processing one entry file.
type Result struct {
	Source string   `json:"source"`
	Output *ir.File `json:"output,omitempty"`
	Err    error    `json:"-"`
}

// Report summarizes a Run.
type Report struct {
	Outputs  []*ir.File     `json:"outputs"`
	Results  []Result       `json:"results"`
	Warnings []diag.Warning `json:"warnings,omitempty"`
	// Modules is the number of distinct modules packaged or reused.
	Modules   int           `json:"modules"`
	Parsed    int64         `json:"parsed"`
	CacheHits int64         `json:"cache_hits"`
	Duration  time.Duration `json:"duration_ms"`
}

// Failed returns the results that carry an error.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err joins the errors of every failed entry.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}

// ProcessAll runs Process for every file. A failing file does not stop the
// others; results are returned in input order.
func (b *Builder) ProcessAll(ctx context.Context, files []*ir.File) []Result {
	results := make([]Result, len(files))
	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			out, err := b.Process(ctx, f)
			results[i] = Result{Source: f.Path, Output: out, Err: err}
			if err != nil {
				b.logger.ErrorContext(ctx, "entry failed", "path", f.Path, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Run builds every entry path, then emits the pending loaders and clears the
// build state.
func (b *Builder) Run(ctx context.Context, entries []string) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := observability.StartBuildSpan(ctx, len(entries))
	defer span.End()

	b.reporter.Reset()
	parsed := b.parses.Load()
	hits, _ := b.content.Stats()

	report := &Report{}
	files := make([]*ir.File, 0, len(entries))
	for _, entry := range entries {
		f, err := b.Read(entry)
		if err != nil {
			report.Results = append(report.Results, Result{Source: entry, Err: err})
			continue
		}
		files = append(files, f)
	}

	for _, res := range b.ProcessAll(ctx, files) {
		report.Results = append(report.Results, res)
		if res.Err == nil {
			report.Outputs = append(report.Outputs, res.Output)
		}
	}
	report.Modules = b.modules.Len()
	report.Outputs = append(report.Outputs, b.Finish(ctx)...)
	report.Warnings = b.reporter.Warnings()
	report.Parsed = b.parses.Load() - parsed
	nowHits, _ := b.content.Stats()
	report.CacheHits = nowHits - hits
	report.Duration = time.Since(start)

	failed := len(report.Failed())
	observability.RecordBuildResult(span, len(report.Outputs), failed, len(report.Warnings))
	b.logger.InfoContext(ctx, "build finished",
		"entries", len(entries),
		"outputs", len(report.Outputs),
		"failed", failed,
		"warnings", len(report.Warnings),
		"duration", report.Duration,
	)
	return report, ctx.Err()
}

// WriteOutputs writes files under out, keeping their position relative to
// root, and returns the written paths.
func WriteOutputs(fs afero.Fs, root, out string, files []*ir.File) ([]string, error) {
	written := make([]string, 0, len(files))
	for _, f := range files {
		if !resolve.Within(root, f.Path) {
			return written, &resolve.OutOfBoundsError{Path: f.Path, Root: root}
		}
		rel, err := filepath.Rel(root, f.Path)
		if err != nil {
			return written, err
		}
		dest := filepath.Join(out, rel)
		if err := fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return written, fmt.Errorf("create output directory: %w", err)
		}
		if err := afero.WriteFile(fs, dest, f.Contents, os.FileMode(0o644)); err != nil {
			return written, fmt.Errorf("write %s: %w", dest, err)
		}
		written = append(written, dest)
	}
	return written, nil
}

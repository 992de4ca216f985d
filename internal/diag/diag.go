// Package diag collects the non-fatal problems found while building.
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Kind classifies a warning.
type Kind string

const (
	KindUnresolved  Kind = "unresolved-dependency"
	KindUnsupported Kind = "unsupported-feature"
	KindCycle       Kind = "cycle"
	KindConfig      Kind = "config"
)

// Warning is a problem that does not stop the build.
type Warning struct {
	Kind     Kind   `json:"kind"`
	Path     string `json:"path"`
	Referrer string `json:"referrer,omitempty"`
	Message  string `json:"message"`
}

func (w Warning) String() string {
	if w.Referrer != "" {
		return fmt.Sprintf("%s: %s (in %s): %s", w.Kind, w.Path, w.Referrer, w.Message)
	}
	return fmt.Sprintf("%s: %s: %s", w.Kind, w.Path, w.Message)
}

// Unresolved reports a reference whose file could not be read.
func Unresolved(path, referrer string) Warning {
	return Warning{Kind: KindUnresolved, Path: path, Referrer: referrer, Message: "dependency not found, not bundled"}
}

// Unsupported reports a construct the packagers do not handle.
func Unsupported(path, referrer, message string) Warning {
	return Warning{Kind: KindUnsupported, Path: path, Referrer: referrer, Message: message}
}

// Cycle reports an edge back into a module that is still being walked.
func Cycle(path, referrer string) Warning {
	return Warning{Kind: KindCycle, Path: path, Referrer: referrer, Message: "circular dependency, not followed"}
}

// Reporter logs warnings and keeps them for the build report. It is safe for
// concurrent use.
type Reporter struct {
	logger *slog.Logger

	mu       sync.Mutex
	warnings []Warning
}

// NewReporter returns a Reporter logging through logger, or slog.Default
// when logger is nil.
func NewReporter(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{logger: logger}
}

// Report logs w at warn level and records it.
func (r *Reporter) Report(ctx context.Context, w Warning) {
	r.logger.WarnContext(ctx, w.Message,
		"kind", string(w.Kind),
		"path", w.Path,
		"referrer", w.Referrer,
	)

	r.mu.Lock()
	r.warnings = append(r.warnings, w)
	r.mu.Unlock()
}

// Warnings returns the recorded warnings in report order.
func (r *Reporter) Warnings() []Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Warning, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// Count returns how many warnings of kind were recorded.
func (r *Reporter) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, w := range r.warnings {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

// Referring returns how many warnings were raised while processing referrer.
func (r *Reporter) Referring(referrer string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, w := range r.warnings {
		if w.Referrer == referrer {
			n++
		}
	}
	return n
}

func (r *Reporter) Reset() {
	r.mu.Lock()
	r.warnings = nil
	r.mu.Unlock()
}

package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/modwrap/internal/config"
	"github.com/efebarandurmaz/modwrap/internal/pipeline"
)

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Fs     afero.Fs
	Logger *slog.Logger
}

var (
	deps     *Dependencies
	builders = newBuilderPool()
)

// SetDependencies injects shared resources (called during worker setup).
// Builders kept from earlier activities are dropped.
func SetDependencies(d *Dependencies) {
	deps = d
	builders = newBuilderPool()
}

// builderPool keeps one Builder per project configuration so that repeated
// builds on a worker reuse the modules packaged before.
type builderPool struct {
	mu       sync.Mutex
	builders map[string]*pooledBuilder
}

// pooledBuilder serializes runs, since a Builder holds one build at a time.
type pooledBuilder struct {
	mu sync.Mutex
	b  *pipeline.Builder
}

func newBuilderPool() *builderPool {
	return &builderPool{builders: make(map[string]*pooledBuilder)}
}

func (p *builderPool) get(cfg *config.Config, create func() (*pipeline.Builder, error)) (*pooledBuilder, error) {
	key := fmt.Sprintf("%#v", *cfg)
	p.mu.Lock()
	defer p.mu.Unlock()
	if pb, ok := p.builders[key]; ok {
		return pb, nil
	}
	b, err := create()
	if err != nil {
		return nil, err
	}
	pb := &pooledBuilder{b: b}
	p.builders[key] = pb
	return pb, nil
}

func (p *builderPool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.builders)
}

func dependencies() (afero.Fs, *slog.Logger) {
	fs, logger := afero.Fs(nil), slog.Default()
	if deps != nil {
		fs = deps.Fs
		if deps.Logger != nil {
			logger = deps.Logger
		}
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return fs, logger
}

// BuildActivity runs one full build of a project directory on the worker
// and writes the outputs under Out.
func BuildActivity(ctx context.Context, input BuildInput) (BuildOutput, error) {
	fs, logger := dependencies()

	cfg := config.Default()
	if input.ConfigPath != "" {
		loaded, err := config.Load(input.ConfigPath)
		if err != nil {
			return BuildOutput{}, sdktemporal.NewNonRetryableApplicationError("load config", "ConfigError", err)
		}
		cfg = loaded
	}
	if input.Root != "" {
		cfg.Root = input.Root
	}
	if input.Base != "" {
		cfg.Base = input.Base
	}

	pb, err := builders.get(cfg, func() (*pipeline.Builder, error) {
		opts, err := cfg.Options()
		if err != nil {
			return nil, err
		}
		return pipeline.New(opts, fs, pipeline.Options{Logger: logger, CacheSize: cfg.Cache.Size})
	})
	if err != nil {
		return BuildOutput{}, nonRetryable(err)
	}
	opts := pb.b.Options()

	entries, err := pipeline.ExpandEntries(fs, opts.Root, input.Entries)
	if err != nil {
		return BuildOutput{}, sdktemporal.NewNonRetryableApplicationError("expand entries", "EntryError", err)
	}
	pb.mu.Lock()
	report, err := pb.b.Run(ctx, entries)
	pb.mu.Unlock()
	if err != nil {
		return BuildOutput{}, err
	}

	out := input.Out
	if out == "" {
		out = cfg.Out
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(opts.Root, out)
	}
	written, err := pipeline.WriteOutputs(fs, opts.Root, out, report.Outputs)
	if err != nil {
		return BuildOutput{}, fmt.Errorf("write outputs: %w", err)
	}

	result := BuildOutput{
		OutputPath: out,
		Written:    written,
		Modules:    report.Modules,
		Parsed:     report.Parsed,
		CacheHits:  report.CacheHits,
	}
	for _, w := range report.Warnings {
		result.Warnings = append(result.Warnings, w.String())
	}
	for _, res := range report.Failed() {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", res.Source, res.Err))
	}
	return result, nil
}

func nonRetryable(err error) error {
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		return sdktemporal.NewNonRetryableApplicationError(cfgErr.Error(), "ConfigError", err)
	}
	return err
}

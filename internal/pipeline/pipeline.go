// Package pipeline drives a build: it dispatches each file to its packager,
// runs the plugin hooks between stages, walks entry graphs and collects the
// output files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/efebarandurmaz/modwrap/internal/bundle"
	"github.com/efebarandurmaz/modwrap/internal/cache"
	"github.com/efebarandurmaz/modwrap/internal/config"
	"github.com/efebarandurmaz/modwrap/internal/diag"
	"github.com/efebarandurmaz/modwrap/internal/envelope"
	"github.com/efebarandurmaz/modwrap/internal/ir"
	"github.com/efebarandurmaz/modwrap/internal/lifecycle"
	"github.com/efebarandurmaz/modwrap/internal/loader"
	"github.com/efebarandurmaz/modwrap/internal/observability"
	"github.com/efebarandurmaz/modwrap/internal/packager"
	"github.com/efebarandurmaz/modwrap/internal/packager/jsondata"
	"github.com/efebarandurmaz/modwrap/internal/packager/markup"
	"github.com/efebarandurmaz/modwrap/internal/packager/script"
	"github.com/efebarandurmaz/modwrap/internal/packager/stylesheet"
	"github.com/efebarandurmaz/modwrap/internal/resolve"
)

var (
	// ErrStreamingUnsupported is returned for files handed over as an
	// unbuffered stream.
	ErrStreamingUnsupported = errors.New("streaming input is not supported")

	ErrNoPackager = errors.New("no packager for file type")
)

// Options configures a Builder beyond the Build Configuration.
type Options struct {
	// Packagers are registered after the builtin ones and may replace them,
	// except for the script packager.
	Packagers []packager.Packager
	Plugins   []lifecycle.Plugin
	Logger    *slog.Logger
	// CacheSize bounds the content cache kept across builds. Zero disables it.
	CacheSize int
	// Concurrency limits how many entries ProcessAll packages at once.
	// Defaults to GOMAXPROCS, and is forced to 1 for order-dependent ids.
	Concurrency int
}

// Builder packages files for one project. Build state is shared by every
// entry processed until Finish.
type Builder struct {
	opts        *config.Options
	fs          afero.Fs
	logger      *slog.Logger
	packagers   *packager.Registry
	plugins     *lifecycle.Pipeline
	modules     *cache.BuildCache
	content     *cache.ContentCache
	loaders     *loader.Registry
	reporter    *diag.Reporter
	concurrency int

	parses atomic.Int64

	mu      sync.Mutex
	combine map[string]bool
}

var _ packager.Env = (*Builder)(nil)

// New validates opts and returns a Builder reading from fs.
func New(opts *config.Options, fs afero.Fs, o Options) (*Builder, error) {
	if err := opts.Normalize(); err != nil {
		return nil, err
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	content, err := cache.NewContentCache(o.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create content cache: %w", err)
	}
	concurrency := o.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	if opts.OrderedIDs && concurrency > 1 {
		logger.Debug("identifiers depend on discovery order, entries are built one at a time")
		concurrency = 1
	}

	b := &Builder{
		opts:        opts,
		fs:          fs,
		logger:      logger,
		packagers:   packager.NewRegistry(),
		plugins:     lifecycle.New(o.Plugins...),
		modules:     cache.NewBuildCache(),
		content:     content,
		reporter:    diag.NewReporter(logger),
		concurrency: concurrency,
		combine:     make(map[string]bool),
	}
	b.loaders = loader.NewRegistry(opts, b, b.modules)

	builtins := []packager.Packager{script.New(), stylesheet.New(), jsondata.New(), markup.New()}
	for _, p := range append(builtins, o.Packagers...) {
		if err := b.packagers.Register(p); err != nil {
			logger.Warn("packager not registered", "kind", p.Kind(), "error", err)
		}
	}
	for ext, kind := range opts.Packagers {
		if err := b.packagers.Map(ext, kind); err != nil {
			logger.Warn("packager mapping ignored", "ext", ext, "kind", kind, "error", err)
		}
	}
	return b, nil
}

func (b *Builder) Options() *config.Options { return b.opts }

func (b *Builder) Space() resolve.Space { return b.opts.Space() }

func (b *Builder) Exists(path string) bool {
	info, err := b.fs.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (b *Builder) Handles(path string) bool {
	_, ok := b.packagers.Lookup(path)
	return ok
}

func (b *Builder) Loader(ctx context.Context, kind, identifier string) (*ir.Loader, error) {
	return b.loaders.Register(ctx, kind, identifier)
}

func (b *Builder) Report(ctx context.Context, w diag.Warning) {
	b.reporter.Report(ctx, w)
}

// Warnings returns the warnings reported since the last Run.
func (b *Builder) Warnings() []diag.Warning { return b.reporter.Warnings() }

// Parses returns how many files were parsed by this Builder.
func (b *Builder) Parses() int64 { return b.parses.Load() }

// Read loads the file at path with its stat data.
func (b *Builder) Read(path string) (*ir.File, error) {
	path = b.abs(path)
	info, err := b.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file", path)
	}
	data, err := afero.ReadFile(b.fs, path)
	if err != nil {
		return nil, err
	}
	return &ir.File{Path: path, Contents: data, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (b *Builder) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(b.opts.Root, path)
}

// Compile packages one file: it runs the load hooks, parses, transforms and
// wraps it. Results are reused across builds while the file is unchanged.
func (b *Builder) Compile(ctx context.Context, f *ir.File) (*ir.Module, error) {
	p, ok := b.packagers.Lookup(f.Path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", f.Path, ErrNoPackager)
	}
	if m, ok := b.content.Get(f, b.fresh); ok {
		if err := b.restoreLoaders(ctx, m); err != nil {
			return nil, err
		}
		b.logger.DebugContext(ctx, "module reused", "path", f.Path, "id", m.ID)
		return m, nil
	}

	ctx, span := observability.StartModuleSpan(ctx, f.Path, p.Kind())
	defer span.End()

	warned := b.reporter.Referring(f.Path)
	m, err := b.compile(ctx, p, f)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if m.Complete() && b.reporter.Referring(f.Path) == warned {
		b.content.Add(f, m)
	}
	b.logger.DebugContext(ctx, "module packaged",
		"path", f.Path,
		"id", m.ID,
		"dependencies", m.Dependencies.Len(),
	)
	return m, nil
}

func (b *Builder) compile(ctx context.Context, p packager.Packager, f *ir.File) (*ir.Module, error) {
	loaded, err := b.plugins.Run(ctx, lifecycle.Loaded, f, f.Contents)
	if err != nil {
		return nil, err
	}
	src := *f
	src.Contents = loaded

	m, err := p.Parse(ctx, b, &src)
	if err != nil {
		return nil, err
	}
	b.parses.Add(1)

	if m.Content, err = b.plugins.Run(ctx, lifecycle.Parsed, f, m.Content); err != nil {
		return nil, err
	}
	body, err := p.Transform(ctx, b, m)
	if err != nil {
		return nil, err
	}
	if body, err = b.plugins.Run(ctx, lifecycle.Transformed, f, body); err != nil {
		return nil, err
	}
	if packager.EmitsEnvelope(p) {
		body, err = envelope.Wrap(m.ID, m.Dependencies.Values(), body, envelope.Options{
			Indent: b.opts.Indent,
			Strict: b.opts.Strict,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
	}
	if body, err = b.plugins.Run(ctx, lifecycle.Completed, f, body); err != nil {
		return nil, err
	}

	m.Content = body
	m.Output = p.Resolve(f.Path)
	return m, nil
}

// fresh reports whether the dependencies of a cached module still resolve
// the way they did when it was parsed: followed targets exist, missing ones
// are still missing and no extension fallback is shadowed by the literal path.
func (b *Builder) fresh(m *ir.Module) bool {
	virtual := make(map[string]bool, len(m.Loaders))
	for _, kind := range m.Loaders {
		if p, err := b.loaders.Path(b.loaderIdentifier(kind)); err == nil {
			virtual[p] = true
		}
	}
	for _, e := range m.Edges {
		if e.Path == "" || e.Flag != ir.FlagNone || virtual[e.Path] {
			continue
		}
		if e.Missing {
			if b.Exists(e.Path) || b.Exists(e.Path+resolve.ScriptExt) {
				return false
			}
			continue
		}
		if !b.Exists(e.Path) {
			return false
		}
		if e.Extended && b.Exists(strings.TrimSuffix(e.Path, resolve.ScriptExt)) {
			return false
		}
	}
	return true
}

func (b *Builder) loaderIdentifier(kind string) string {
	if kind == stylesheet.LoaderKind {
		return b.opts.CSS.Loader
	}
	return kind
}

// restoreLoaders registers the loaders a reused module depends on, since the
// parse that registered them originally did not run in this build.
func (b *Builder) restoreLoaders(ctx context.Context, m *ir.Module) error {
	for _, kind := range m.Loaders {
		if _, err := b.loaders.Register(ctx, kind, b.loaderIdentifier(kind)); err != nil {
			return fmt.Errorf("%s: %w", m.Path, err)
		}
	}
	return nil
}

// module returns the packaged module for path, at most once per build. The
// entry file is used as is instead of being read again.
func (b *Builder) module(ctx context.Context, path string, entry *ir.File) (*ir.Module, error) {
	m, _, err := b.modules.Do(ctx, path, func(ctx context.Context) (*ir.Module, error) {
		f := entry
		if f == nil || f.Path != path {
			var err error
			if f, err = b.Read(path); err != nil {
				return nil, err
			}
		}
		return b.Compile(ctx, f)
	})
	return m, err
}

func (b *Builder) shouldCombine(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	combine, ok := b.combine[path]
	if !ok {
		combine = b.opts.ShouldCombine(path)
		b.combine[path] = combine
	}
	return combine
}

// Process packages the entry file f. Files without a packager pass through
// unchanged. When the combine predicate selects f, the result holds every
// module reachable from it.
func (b *Builder) Process(ctx context.Context, f *ir.File) (*ir.File, error) {
	if f.IsStream() {
		return nil, fmt.Errorf("%s: %w", f.Path, ErrStreamingUnsupported)
	}
	entry := *f
	entry.Path = b.abs(f.Path)
	if !b.Handles(entry.Path) {
		return f, nil
	}

	combine := b.shouldCombine(entry.Path)
	ctx, span := observability.StartEntrySpan(ctx, entry.Path, combine)
	defer span.End()

	if !combine {
		m, err := b.module(ctx, entry.Path, &entry)
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		observability.RecordEntryResult(span, 1, 0, len(m.Content))
		return output(m.Output, m.Content, f), nil
	}

	bnd, err := b.walk(ctx, &entry)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	for _, path := range bnd.Paths() {
		b.loaders.Fold(path)
	}
	data := bundle.Combine(bnd.Modules)
	observability.RecordEntryResult(span, len(bnd.Modules), len(bnd.Cycles), len(data))
	b.logger.InfoContext(ctx, "entry combined",
		"entry", entry.Path,
		"modules", len(bnd.Modules),
		"cycles", len(bnd.Cycles),
		"bytes", len(data),
	)
	return output(bnd.Modules[0].Output, data, f), nil
}

func output(path string, data []byte, src *ir.File) *ir.File {
	return &ir.File{Path: path, Contents: data, Size: int64(len(data)), ModTime: src.ModTime}
}

// Graph walks every module reachable from the entry at path, regardless of
// the combine predicate.
func (b *Builder) Graph(ctx context.Context, path string) (*ir.Bundle, error) {
	f, err := b.Read(path)
	if err != nil {
		return nil, err
	}
	if !b.Handles(f.Path) {
		return nil, fmt.Errorf("%s: %w", f.Path, ErrNoPackager)
	}
	return b.walk(ctx, f)
}

// Finish returns the loader files that were not folded into a combined
// artifact and clears the build state. Reused content stays cached.
func (b *Builder) Finish(ctx context.Context) []*ir.File {
	var out []*ir.File
	for _, l := range b.loaders.Pending() {
		b.logger.DebugContext(ctx, "emitting loader", "kind", l.Kind, "path", l.File.Path)
		out = append(out, l.File)
	}
	b.modules.Reset()
	b.loaders.Reset()
	b.mu.Lock()
	b.combine = make(map[string]bool)
	b.mu.Unlock()
	return out
}

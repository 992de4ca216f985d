package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/modwrap/internal/config"
	"github.com/efebarandurmaz/modwrap/internal/diag"
	"github.com/efebarandurmaz/modwrap/internal/ir"
	"github.com/efebarandurmaz/modwrap/internal/lifecycle"
	"github.com/efebarandurmaz/modwrap/internal/packager"
	"github.com/efebarandurmaz/modwrap/internal/packager/jsondata"
	"github.com/efebarandurmaz/modwrap/internal/resolve"
)

func abs(p string) string { return filepath.FromSlash(p) }

type fixture struct {
	fs afero.Fs
	b  *Builder
}

// newFixture writes files (slash paths under /proj) and builds with base src.
func newFixture(t *testing.T, files map[string]string, combine bool, mutate ...func(*config.Options, *Options)) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, abs(name), []byte(content), 0o644))
	}
	opts := config.NewOptions(abs("/proj"), "src")
	if combine {
		opts.Combine = func(string) bool { return true }
	}
	o := Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, fn := range mutate {
		fn(opts, &o)
	}
	b, err := New(opts, fs, o)
	require.NoError(t, err)
	return &fixture{fs: fs, b: b}
}

func (fx *fixture) process(t *testing.T, name string) *ir.File {
	t.Helper()
	f, err := fx.b.Read(abs(name))
	require.NoError(t, err)
	out, err := fx.b.Process(context.Background(), f)
	require.NoError(t, err)
	return out
}

func TestProcess_CombinesInDiscoveryOrder(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/a.js": "var b = require('./b');\n",
		"/proj/src/b.js": "module.exports = 1;\n",
	}, true)

	out := fx.process(t, "/proj/src/a.js")

	assert.Equal(t, abs("/proj/src/a.js"), out.Path)
	want := "define(\"a\", [\"b\"], function(require, exports, module){\n" +
		"  'use strict';\n" +
		"\n" +
		"  var b = require('b');\n" +
		"});\n" +
		"define(\"b\", [], function(require, exports, module){\n" +
		"  'use strict';\n" +
		"\n" +
		"  module.exports = 1;\n" +
		"});\n"
	assert.Equal(t, want, string(out.Contents))
	assert.Empty(t, fx.b.Finish(context.Background()))
}

func TestProcess_WithoutCombineEmitsEntryOnly(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/a.js": "require('./b');\n",
		"/proj/src/b.js": "module.exports = 1;\n",
	}, false)

	out := fx.process(t, "/proj/src/a.js")
	assert.Equal(t, 1, strings.Count(string(out.Contents), "define("))
	assert.Contains(t, string(out.Contents), `define("a", ["b"]`)
	assert.Equal(t, int64(1), fx.b.Parses(), "dependencies are not walked")
}

func TestProcess_Stylesheet(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/style.css": "body { color: red; }\n",
	}, true)

	out := fx.process(t, "/proj/src/style.css")
	content := string(out.Contents)

	assert.Equal(t, abs("/proj/src/style.css.js"), out.Path)
	assert.Equal(t, 2, strings.Count(content, "define("))
	assert.Contains(t, content, `define("style.css.js", ["css-loader"]`)
	assert.Contains(t, content, `require("css-loader")("body { color: red; }\n");`)
	assert.Contains(t, content, `define("css-loader", []`)
	assert.Less(t, strings.Index(content, `define("style.css.js"`), strings.Index(content, `define("css-loader"`))
	assert.Empty(t, fx.b.Finish(context.Background()), "the loader was folded into the combined file")
}

func TestProcess_StylesheetLoaderEmittedSeparately(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/a.css": "a {}\n",
		"/proj/src/b.css": "b {}\n",
	}, false)

	fx.process(t, "/proj/src/a.css")
	fx.process(t, "/proj/src/b.css")

	loaders := fx.b.Finish(context.Background())
	require.Len(t, loaders, 1, "one loader per build")
	assert.Equal(t, abs("/proj/src/css-loader.js"), loaders[0].Path)
	assert.True(t, bytes.HasPrefix(loaders[0].Contents, []byte(`define("css-loader", []`)))
}

func TestProcess_CustomLoaderIgnored(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/a.css": "a {}\n",
	}, true, func(o *config.Options, _ *Options) {
		o.CSS.Loader = "vendor/styles"
		o.Ignore = []string{"src/vendor/**"}
	})

	out := fx.process(t, "/proj/src/a.css")
	assert.Equal(t, 1, strings.Count(string(out.Contents), "define("))
	assert.Contains(t, string(out.Contents), `define("a.css.js", ["vendor/styles"]`)
	assert.Empty(t, fx.b.Finish(context.Background()), "ignored loaders are not emitted")
}

func TestProcess_OutsideBaseIsRootRelative(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/a.js": "require('/lib/x');\n",
		"/proj/lib/x.js": "module.exports = 'x';\n",
	}, true)

	out := fx.process(t, "/proj/src/a.js")
	assert.Contains(t, string(out.Contents), `define("a", ["/lib/x"]`)
	assert.Contains(t, string(out.Contents), `define("/lib/x", []`)
}

func TestProcess_RemoteStylesheetImport(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/style.css": "@import 'http://cdn.example.com/x.css';\nh1 {}\n",
	}, true)

	out := fx.process(t, "/proj/src/style.css")
	assert.Contains(t, string(out.Contents), `define("style.css.js", ["css-loader"]`)

	warnings := fx.b.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, diag.KindUnsupported, warnings[0].Kind)
}

func TestProcess_AtMostOncePerBuild(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/a.js": "require('./b'); require('./c');\n",
		"/proj/src/b.js": "require('./d');\n",
		"/proj/src/c.js": "require('./d'); require('./b');\n",
		"/proj/src/d.js": "module.exports = 'd';\n",
	}, true)

	out := fx.process(t, "/proj/src/a.js")
	assert.Equal(t, int64(4), fx.b.Parses())
	assert.Equal(t, 1, strings.Count(string(out.Contents), `define("d"`))

	fx.process(t, "/proj/src/c.js")
	assert.Equal(t, int64(4), fx.b.Parses(), "a second entry reuses the build cache")

	fx.b.Finish(context.Background())
	fx.process(t, "/proj/src/c.js")
	assert.Equal(t, int64(7), fx.b.Parses(), "Finish clears the build cache")
}

func TestProcess_Cycle(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/a.js": "require('./b');\n",
		"/proj/src/b.js": "require('./a');\n",
	}, true)

	out := fx.process(t, "/proj/src/a.js")
	assert.Equal(t, 2, strings.Count(string(out.Contents), "define("))
	require.Len(t, fx.b.Warnings(), 1)
	w := fx.b.Warnings()[0]
	assert.Equal(t, diag.KindCycle, w.Kind)
	assert.Equal(t, abs("/proj/src/a.js"), w.Path)
	assert.Equal(t, abs("/proj/src/b.js"), w.Referrer)
}

func TestProcess_Unresolved(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/a.js": "require('./gone');\n",
	}, true)

	out := fx.process(t, "/proj/src/a.js")
	assert.Contains(t, string(out.Contents), `define("a", ["gone"]`)
	require.Len(t, fx.b.Warnings(), 1)
	assert.Equal(t, diag.KindUnresolved, fx.b.Warnings()[0].Kind)
}

func TestProcess_StreamUnsupported(t *testing.T) {
	fx := newFixture(t, nil, true)
	_, err := fx.b.Process(context.Background(), &ir.File{
		Path:   abs("/proj/src/a.js"),
		Stream: strings.NewReader("require('./b');"),
	})
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
}

func TestProcess_PassesThroughUnknownTypes(t *testing.T) {
	fx := newFixture(t, map[string]string{"/proj/src/README.md": "# hi\n"}, true)
	f, err := fx.b.Read(abs("/proj/src/README.md"))
	require.NoError(t, err)

	out, err := fx.b.Process(context.Background(), f)
	require.NoError(t, err)
	assert.Same(t, f, out)
	assert.Zero(t, fx.b.Parses())
}

func TestProcess_Plugins(t *testing.T) {
	var seen []lifecycle.Event
	record := func(ev lifecycle.Event, edit func([]byte) []byte) lifecycle.Plugin {
		return lifecycle.On(string(ev), ev, func(_ context.Context, f *ir.File, c []byte) ([]byte, error) {
			if filepath.Base(f.Path) == "a.js" {
				seen = append(seen, ev)
			}
			return edit(c), nil
		})
	}
	fx := newFixture(t, map[string]string{
		"/proj/src/a.js": "var x = 1;\n",
	}, false, func(_ *config.Options, o *Options) {
		o.Concurrency = 1
		o.Plugins = []lifecycle.Plugin{
			record(lifecycle.Loaded, func(c []byte) []byte { return bytes.ReplaceAll(c, []byte("1"), []byte("2")) }),
			record(lifecycle.Parsed, func(c []byte) []byte { return c }),
			record(lifecycle.Transformed, func(c []byte) []byte { return append(c, "x++;"...) }),
			record(lifecycle.Completed, func(c []byte) []byte { return append([]byte("/* built */\n"), c...) }),
		}
	})

	out := fx.process(t, "/proj/src/a.js")
	assert.Equal(t, lifecycle.Events, seen)
	content := string(out.Contents)
	assert.True(t, strings.HasPrefix(content, "/* built */\ndefine(\"a\""))
	assert.Contains(t, content, "  var x = 2;\n  x++;\n")
}

func TestProcess_PluginError(t *testing.T) {
	boom := errors.New("boom")
	fx := newFixture(t, map[string]string{"/proj/src/a.js": "1;"}, false, func(_ *config.Options, o *Options) {
		o.Plugins = []lifecycle.Plugin{lifecycle.On("fail", lifecycle.Parsed, func(context.Context, *ir.File, []byte) ([]byte, error) {
			return nil, boom
		})}
	})
	f, err := fx.b.Read(abs("/proj/src/a.js"))
	require.NoError(t, err)
	_, err = fx.b.Process(context.Background(), f)
	assert.ErrorIs(t, err, boom)
}

func TestProcessAll_MalformedJSONFailsOnlyThatFile(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/bad.json":  "{\"a\": ",
		"/proj/src/good.json": "{\"a\": 1}\n",
	}, false)

	var files []*ir.File
	for _, name := range []string{"/proj/src/bad.json", "/proj/src/good.json"} {
		f, err := fx.b.Read(abs(name))
		require.NoError(t, err)
		files = append(files, f)
	}

	results := fx.b.ProcessAll(context.Background(), files)
	require.Len(t, results, 2)

	var malformed *jsondata.MalformedError
	assert.ErrorAs(t, results[0].Err, &malformed)
	require.NoError(t, results[1].Err)
	assert.Equal(t, abs("/proj/src/good.json.js"), results[1].Output.Path)
	assert.Contains(t, string(results[1].Output.Contents), `module.exports = {"a": 1};`)
}

func TestRun_Report(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/a.js":    "require('./b');\n",
		"/proj/src/b.js":    "1;\n",
		"/proj/src/s.css":   "p {}\n",
		"/proj/src/x.json":  "nope",
	}, false)

	report, err := fx.b.Run(context.Background(), []string{"src/a.js", "src/s.css", "src/x.json", "src/missing.js"})
	require.NoError(t, err)

	require.Len(t, report.Results, 4)
	assert.Len(t, report.Failed(), 2)
	assert.Error(t, report.Err())

	var paths []string
	for _, f := range report.Outputs {
		paths = append(paths, f.Path)
	}
	assert.ElementsMatch(t, []string{
		abs("/proj/src/a.js"),
		abs("/proj/src/s.css.js"),
		abs("/proj/src/css-loader.js"),
	}, paths)
	assert.Equal(t, int64(3), report.Parsed, "a, s.css and the loader")
}

func TestRun_ContentCacheAcrossBuilds(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/a.js":  "require('./b');\n",
		"/proj/src/b.js":  "1;\n",
		"/proj/src/s.css": "p {}\n",
	}, true, func(_ *config.Options, o *Options) {
		o.CacheSize = 16
	})
	entries := []string{"src/a.js", "src/s.css"}

	first, err := fx.b.Run(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, int64(4), first.Parsed)
	assert.Zero(t, first.CacheHits)

	second, err := fx.b.Run(context.Background(), entries)
	require.NoError(t, err)
	assert.Zero(t, second.Parsed)
	assert.Equal(t, int64(4), second.CacheHits)
	require.Len(t, second.Outputs, 2)
	for i := range first.Outputs {
		assert.Equal(t, string(first.Outputs[i].Contents), string(second.Outputs[i].Contents))
	}

	require.NoError(t, afero.WriteFile(fx.fs, abs("/proj/src/b.js"), []byte("2;\n"), 0o644))
	third, err := fx.b.Run(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, int64(1), third.Parsed, "only the changed file is parsed again")
}

func TestRun_UnresolvedModulesAreNotReused(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/a.js": "require('./b');\n",
	}, true, func(_ *config.Options, o *Options) {
		o.CacheSize = 16
	})

	_, err := fx.b.Run(context.Background(), []string{"src/a.js"})
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fx.fs, abs("/proj/src/b.js"), []byte("1;\n"), 0o644))
	report, err := fx.b.Run(context.Background(), []string{"src/a.js"})
	require.NoError(t, err)
	assert.Empty(t, report.Warnings)
	assert.Contains(t, string(report.Outputs[0].Contents), `define("b", []`)
}

func TestRun_DeletedDependencyIsReportedAfterReuse(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/a.js": "require('./b');\n",
		"/proj/src/b.js": "1;\n",
	}, true, func(_ *config.Options, o *Options) {
		o.CacheSize = 16
	})

	_, err := fx.b.Run(context.Background(), []string{"src/a.js"})
	require.NoError(t, err)

	require.NoError(t, fx.fs.Remove(abs("/proj/src/b.js")))
	report, err := fx.b.Run(context.Background(), []string{"src/a.js"})
	require.NoError(t, err)
	require.Empty(t, report.Failed())
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, diag.KindUnresolved, report.Warnings[0].Kind)
	assert.Equal(t, int64(1), report.Parsed)

	out := string(report.Outputs[0].Contents)
	assert.Contains(t, out, `define("a", ["b"]`, "the reference is still emitted")
	assert.NotContains(t, out, `define("b", []`)
}

func TestRun_LiteralFileShadowsExtensionFallback(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/a.js":     "require('./b.tpl');\n",
		"/proj/src/b.tpl.js": "1;\n",
	}, true, func(_ *config.Options, o *Options) {
		o.CacheSize = 16
	})

	first, err := fx.b.Run(context.Background(), []string{"src/a.js"})
	require.NoError(t, err)
	assert.Contains(t, string(first.Outputs[0].Contents), `define("a", ["b.tpl"]`)

	require.NoError(t, afero.WriteFile(fx.fs, abs("/proj/src/b.tpl"), []byte("<p></p>"), 0o644))
	second, err := fx.b.Run(context.Background(), []string{"src/a.js"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Parsed, "a.js and the template are parsed")
	assert.Contains(t, string(second.Outputs[0].Contents), `define("b.tpl", []`)
	assert.Contains(t, string(second.Outputs[0].Contents), `module.exports = "<p></p>"`)
}

func TestRun_NumericIDsIndependentOfConcurrency(t *testing.T) {
	files := map[string]string{"/proj/src/shared.js": "1;\n"}
	var entries []string
	for i := 0; i < 16; i++ {
		name := fmt.Sprintf("src/e%02d.js", i)
		files["/proj/"+name] = "require('./shared');\n"
		entries = append(entries, name)
	}

	build := func(concurrency int) []string {
		fx := newFixture(t, files, true, func(c *config.Options, o *Options) {
			c.Map = resolve.NumericIDs()
			c.OrderedIDs = true
			o.Concurrency = concurrency
		})
		report, err := fx.b.Run(context.Background(), entries)
		require.NoError(t, err)
		require.Empty(t, report.Failed())
		var out []string
		for _, f := range report.Outputs {
			out = append(out, string(f.Contents))
		}
		return out
	}

	serial := build(1)
	require.Len(t, serial, 16)
	assert.Equal(t, serial, build(8))
	assert.True(t, strings.HasPrefix(serial[0], `define("0", ["1"]`), serial[0])
	assert.True(t, strings.HasPrefix(serial[1], `define("2", ["1"]`), serial[1])
}

type textPackager struct{}

func (textPackager) Kind() string { return "text" }
func (textPackager) Extensions() []string { return []string{".txt"} }
func (textPackager) Resolve(path string) string { return path }
func (textPackager) EmitsEnvelope() bool { return false }
func (textPackager) Transform(_ context.Context, _ packager.Env, m *ir.Module) ([]byte, error) {
	return bytes.ToUpper(m.Content), nil
}
func (textPackager) Parse(_ context.Context, _ packager.Env, f *ir.File) (*ir.Module, error) {
	return &ir.Module{Path: f.Path, Content: f.Contents}, nil
}

// hijack tries to claim script files.
type hijack struct{ textPackager }

func (hijack) Extensions() []string { return []string{".js"} }

func TestNew_CustomPackagers(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"/proj/src/a.js":    "module.exports = 1;\n",
		"/proj/src/n.txt":   "hello\n",
		"/proj/src/v.jsonc": "{}",
	}, false, func(c *config.Options, o *Options) {
		o.Packagers = []packager.Packager{textPackager{}, hijack{}}
		c.Packagers = map[string]string{".jsonc": config.KindJSON, ".mjs": config.KindScript}
	})

	out := fx.process(t, "/proj/src/n.txt")
	assert.Equal(t, "HELLO\n", string(out.Contents), "no envelope")

	out = fx.process(t, "/proj/src/a.js")
	assert.True(t, strings.HasPrefix(string(out.Contents), `define("a"`), "the script packager is never replaced")

	out = fx.process(t, "/proj/src/v.jsonc")
	assert.Equal(t, abs("/proj/src/v.jsonc.js"), out.Path)
}

func TestNew_ConfigError(t *testing.T) {
	_, err := New(config.NewOptions(abs("/proj"), ""), afero.NewMemMapFs(), Options{})
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "base", cfgErr.Field)
}

func TestWriteOutputs(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := []*ir.File{
		{Path: abs("/proj/src/a.js"), Contents: []byte("a")},
		{Path: abs("/proj/src/css/s.css.js"), Contents: []byte("s")},
	}
	written, err := WriteOutputs(fs, abs("/proj"), abs("/out"), files)
	require.NoError(t, err)
	assert.Equal(t, []string{abs("/out/src/a.js"), abs("/out/src/css/s.css.js")}, written)

	data, err := afero.ReadFile(fs, abs("/out/src/css/s.css.js"))
	require.NoError(t, err)
	assert.Equal(t, "s", string(data))

	_, err = WriteOutputs(fs, abs("/proj"), abs("/out"), []*ir.File{{Path: abs("/etc/passwd")}})
	assert.Error(t, err)
}

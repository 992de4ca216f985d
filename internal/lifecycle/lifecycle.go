// Package lifecycle runs user plugins between the stages of packaging a file.
// Every hook receives the current content and returns the content handed to
// the next hook.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/modwrap/internal/ir"
)

// Event names a stage after which hooks run.
type Event string

const (
	Loaded      Event = "loaded"
	Parsed      Event = "parsed"
	Transformed Event = "transformed"
	Completed   Event = "completed"
)

// Events lists the stages in the order a file passes through them.
var Events = []Event{Loaded, Parsed, Transformed, Completed}

// Plugin is a named hook handler. It implements any subset of the After*
// interfaces below.
type Plugin interface {
	Name() string
}

// HookFunc rewrites the content of f.
type HookFunc func(ctx context.Context, f *ir.File, content []byte) ([]byte, error)

type AfterLoad interface {
	AfterLoad(ctx context.Context, f *ir.File, content []byte) ([]byte, error)
}

type AfterParse interface {
	AfterParse(ctx context.Context, f *ir.File, content []byte) ([]byte, error)
}

type AfterTransform interface {
	AfterTransform(ctx context.Context, f *ir.File, content []byte) ([]byte, error)
}

type AfterComplete interface {
	AfterComplete(ctx context.Context, f *ir.File, content []byte) ([]byte, error)
}

// Pipeline is an ordered list of plugins.
type Pipeline struct {
	plugins []Plugin
}

func New(plugins ...Plugin) *Pipeline {
	return &Pipeline{plugins: plugins}
}

// Len returns the number of plugins.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.plugins)
}

// Run passes content through every plugin hook registered for ev, in plugin
// order. A nil Pipeline returns content unchanged.
func (p *Pipeline) Run(ctx context.Context, ev Event, f *ir.File, content []byte) ([]byte, error) {
	if p == nil {
		return content, nil
	}
	for _, plugin := range p.plugins {
		hook := hookFor(plugin, ev)
		if hook == nil {
			continue
		}
		out, err := hook(ctx, f, content)
		if err != nil {
			return nil, fmt.Errorf("plugin %s %s hook on %s: %w", plugin.Name(), ev, f.Path, err)
		}
		if out != nil {
			content = out
		}
	}
	return content, nil
}

func hookFor(plugin Plugin, ev Event) HookFunc {
	switch ev {
	case Loaded:
		if h, ok := plugin.(AfterLoad); ok {
			return h.AfterLoad
		}
	case Parsed:
		if h, ok := plugin.(AfterParse); ok {
			return h.AfterParse
		}
	case Transformed:
		if h, ok := plugin.(AfterTransform); ok {
			return h.AfterTransform
		}
	case Completed:
		if h, ok := plugin.(AfterComplete); ok {
			return h.AfterComplete
		}
	}
	return nil
}

// On adapts a single function into a Plugin hooked on one event.
func On(name string, ev Event, fn HookFunc) Plugin {
	return &funcPlugin{name: name, ev: ev, fn: fn}
}

type funcPlugin struct {
	name string
	ev   Event
	fn   HookFunc
}

func (p *funcPlugin) Name() string { return p.name }

func (p *funcPlugin) hook(ev Event) HookFunc {
	if ev != p.ev {
		return nil
	}
	return p.fn
}

func (p *funcPlugin) AfterLoad(ctx context.Context, f *ir.File, c []byte) ([]byte, error) {
	return p.call(ctx, Loaded, f, c)
}

func (p *funcPlugin) AfterParse(ctx context.Context, f *ir.File, c []byte) ([]byte, error) {
	return p.call(ctx, Parsed, f, c)
}

func (p *funcPlugin) AfterTransform(ctx context.Context, f *ir.File, c []byte) ([]byte, error) {
	return p.call(ctx, Transformed, f, c)
}

func (p *funcPlugin) AfterComplete(ctx context.Context, f *ir.File, c []byte) ([]byte, error) {
	return p.call(ctx, Completed, f, c)
}

func (p *funcPlugin) call(ctx context.Context, ev Event, f *ir.File, c []byte) ([]byte, error) {
	if fn := p.hook(ev); fn != nil {
		return fn(ctx, f, c)
	}
	return c, nil
}

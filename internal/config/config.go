package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/efebarandurmaz/modwrap/internal/cache"
	"github.com/efebarandurmaz/modwrap/internal/resolve"
)

// Config holds everything read from a configuration file and the environment.
type Config struct {
	Root      string            `mapstructure:"root"`
	Base      string            `mapstructure:"base"`
	Out       string            `mapstructure:"out"`
	Alias     map[string]string `mapstructure:"alias"`
	Ignore    []string          `mapstructure:"ignore"`
	Map       string            `mapstructure:"map"`
	Indent    int               `mapstructure:"indent"`
	Strict    bool              `mapstructure:"strict"`
	Combine   any               `mapstructure:"combine"` // bool or list of entry globs
	Packagers map[string]string `mapstructure:"packagers"`
	CSS       CSSConfig         `mapstructure:"css"`
	Cache     CacheConfig       `mapstructure:"cache"`

	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Temporal TemporalConfig `mapstructure:"temporal"`
}

type CSSConfig struct {
	Loader string `mapstructure:"loader"`
	// RootURLs rewrites relative url() references to root-relative ones.
	RootURLs bool `mapstructure:"root_urls"`
}

// CacheConfig bounds the content cache a Builder keeps across builds.
// Zero disables it.
type CacheConfig struct {
	Size int `mapstructure:"size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
	Insecure   bool    `mapstructure:"insecure"`
}

type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// Defaults applied before the file is read.
const (
	DefaultIndent    = 2
	DefaultCSSLoader = "css-loader"
	DefaultOut       = "dist"
	DefaultTaskQueue = "modwrap-builds"
)

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if _, ok := resolve.Mapping(c.Map, ""); !ok {
		warnings = append(warnings, fmt.Sprintf("unknown map strategy %q, identifiers are not remapped", c.Map))
	}

	if c.Indent > 8 {
		warnings = append(warnings, fmt.Sprintf("indent %d is unusually large", c.Indent))
	}

	for ext, kind := range c.Packagers {
		if normalizeExt(ext) == resolve.ScriptExt {
			warnings = append(warnings, fmt.Sprintf("packager for %q ignored: the script packager cannot be overridden", ext))
			continue
		}
		if !isBuiltinKind(kind) {
			warnings = append(warnings, fmt.Sprintf("packager %q for %q is not a builtin kind", kind, ext))
		}
	}

	for name, target := range c.Alias {
		if resolve.IsRelative(target) {
			warnings = append(warnings, fmt.Sprintf("alias %s points at relative path %q; aliases resolve against base", name, target))
		}
	}

	if c.Cache.Size < 0 {
		warnings = append(warnings, fmt.Sprintf("cache size %d is negative, the content cache is disabled", c.Cache.Size))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

// Load reads configuration from file and environment. A .env file in the
// working directory is applied to the environment first, when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("MODWRAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if raw := v.Get("base"); raw != nil {
		if _, ok := raw.(string); !ok {
			return nil, &ConfigError{Field: "base", Reason: fmt.Sprintf("must be a string, got %T", raw)}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("out", DefaultOut)
	v.SetDefault("map", resolve.MapNone)
	v.SetDefault("indent", DefaultIndent)
	v.SetDefault("strict", true)
	v.SetDefault("combine", true)
	v.SetDefault("css.loader", DefaultCSSLoader)
	v.SetDefault("cache.size", cache.DefaultContentSize)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", DefaultTaskQueue)
}

// combinePatterns interprets the combine setting: a boolean enables or
// disables combining for every entry, a list selects entries by glob.
func (c *Config) combinePatterns() (all bool, patterns []string, err error) {
	switch v := c.Combine.(type) {
	case nil:
		return false, nil, nil
	case bool:
		return v, nil, nil
	case string:
		if b, perr := strconv.ParseBool(v); perr == nil {
			return b, nil, nil
		}
		return false, strings.Fields(strings.ReplaceAll(v, ",", " ")), nil
	case []string:
		return false, v, nil
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return false, nil, &ConfigError{Field: "combine", Reason: fmt.Sprintf("list entries must be strings, got %T", item)}
			}
			patterns = append(patterns, s)
		}
		return false, patterns, nil
	}
	return false, nil, &ConfigError{Field: "combine", Reason: fmt.Sprintf("must be a boolean or a list of globs, got %T", c.Combine)}
}

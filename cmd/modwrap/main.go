package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/modwrap/internal/config"
	"github.com/efebarandurmaz/modwrap/internal/observability"
)

var version = "dev"

// defaultConfig is read when --config is not given and the file exists.
const defaultConfig = "modwrap.yaml"

// errFailed signals that the failure was already reported.
var errFailed = errors.New("build failed")

type globalFlags struct {
	configPath string
	root       string
	base       string
	logLevel   string
	auditPath  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:           "modwrap",
		Short:         "Wrap scripts, stylesheets and data files as AMD-style modules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file path (default ./"+defaultConfig+" when present)")
	rootCmd.PersistentFlags().StringVar(&g.root, "root", "", "Project root, overrides the config file")
	rootCmd.PersistentFlags().StringVar(&g.base, "base", "", "Module base directory, relative to root")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&g.auditPath, "audit", "", "Append build events as JSON lines to this file (or stdout/stderr)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "modwrap %s\n", version)
		},
	}

	rootCmd.AddCommand(newBuildCmd(&g), newGraphCmd(&g), versionCmd)
	return rootCmd
}

// session is the state shared by the commands of one invocation.
type session struct {
	cfg    *config.Config
	opts   *config.Options
	fs     afero.Fs
	logger *slog.Logger
	tp     *observability.TracerProvider
	audit  *observability.AuditLogger
}

func openSession(ctx context.Context, g *globalFlags) (*session, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}

	tcfg := observability.DefaultTracingConfig()
	tcfg.ServiceVersion = version
	tcfg.OTLPEndpoint = cfg.Tracing.Endpoint
	tcfg.SampleRate = cfg.Tracing.SampleRate
	tcfg.Insecure = cfg.Tracing.Insecure
	tp, err := observability.InitTracing(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	audit, err := observability.NewAuditLogger(&observability.AuditConfig{
		Enabled:    g.auditPath != "",
		OutputPath: g.auditPath,
	})
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	return &session{cfg: cfg, opts: opts, fs: afero.NewOsFs(), logger: logger, tp: tp, audit: audit}, nil
}

func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.tp.Shutdown(ctx); err != nil {
		s.logger.Warn("tracing shutdown", "error", err)
	}
	if err := s.audit.Close(); err != nil {
		s.logger.Warn("audit log close", "error", err)
	}
}

func loadConfig(g *globalFlags) (*config.Config, error) {
	path := g.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfig); err == nil {
			path = defaultConfig
		}
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if g.root != "" {
		cfg.Root = g.root
	}
	if g.base != "" {
		cfg.Base = g.base
	}
	return cfg, nil
}

// newLogger returns a slog logger backed by a charmbracelet/log handler.
func newLogger(c config.LogConfig) (*slog.Logger, error) {
	level := log.InfoLevel
	if c.Level != "" {
		l, err := log.ParseLevel(c.Level)
		if err != nil {
			return nil, &config.ConfigError{Field: "log.level", Reason: fmt.Sprintf("unknown level %q", c.Level), Err: err}
		}
		level = l
	}

	var formatter log.Formatter
	switch c.Format {
	case "", "text":
		formatter = log.TextFormatter
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return nil, &config.ConfigError{Field: "log.format", Reason: fmt.Sprintf("unknown format %q", c.Format)}
	}

	handler := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "modwrap",
	})
	return slog.New(handler), nil
}

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/modwrap/internal/metrics"
	"github.com/efebarandurmaz/modwrap/internal/pipeline"
	"github.com/efebarandurmaz/modwrap/internal/tui"
)

type buildFlags struct {
	out         string
	jsonReport  bool
	plain       bool
	dryRun      bool
	concurrency int
}

func newBuildCmd(g *globalFlags) *cobra.Command {
	var f buildFlags

	cmd := &cobra.Command{
		Use:   "build <entry>...",
		Short: "Package entry files and write them to the output directory",
		Long: "Package entry files and write them to the output directory.\n\n" +
			"Entries are paths or doublestar globs relative to the project root,\n" +
			"for example 'src/pages/*.js' or 'src/**/*.css'.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, g, f, args)
		},
	}
	cmd.Flags().StringVar(&f.out, "out", "", "Output directory (default from config, relative to root)")
	cmd.Flags().BoolVar(&f.jsonReport, "json", false, "Output build metrics as JSON")
	cmd.Flags().BoolVar(&f.plain, "plain", false, "Print an unstyled summary")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Build without writing outputs")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "Entries packaged at once (default GOMAXPROCS)")
	return cmd
}

func runBuild(cmd *cobra.Command, g *globalFlags, f buildFlags, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, g)
	if err != nil {
		return err
	}
	defer s.Close()

	m := metrics.New()

	b, err := pipeline.New(s.opts, s.fs, pipeline.Options{
		Logger:      s.logger,
		CacheSize:   s.cfg.Cache.Size,
		Concurrency: f.concurrency,
	})
	if err != nil {
		return err
	}

	entries, err := pipeline.ExpandEntries(s.fs, s.opts.Root, args)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no entries match %v", args)
	}

	s.audit.LogBuildStart(ctx, s.opts.Root, entries)
	report, err := b.Run(ctx, entries)
	if err != nil {
		return err
	}
	m.Collect(report)
	for _, w := range report.Warnings {
		s.audit.LogWarning(ctx, string(w.Kind), w.Path, w.Referrer, w.Message)
	}
	for _, res := range report.Failed() {
		s.audit.LogEntryFailed(ctx, res.Source, res.Err)
	}

	var written []string
	if !f.dryRun {
		out := f.out
		if out == "" {
			out = s.cfg.Out
		}
		if !filepath.IsAbs(out) {
			out = filepath.Join(s.opts.Root, out)
		}
		written, err = pipeline.WriteOutputs(s.fs, s.opts.Root, out, report.Outputs)
		if err != nil {
			return err
		}
		for i, p := range written {
			s.audit.LogFileWrite(ctx, p, len(report.Outputs[i].Contents))
		}
	}
	m.Finish()
	s.audit.LogBuildEnd(ctx, s.opts.Root, m.Duration, m.Output.Files, m.Entries.Failed, m.WarningCount())

	w := cmd.OutOrStdout()
	switch {
	case f.jsonReport:
		data, err := m.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	case f.plain:
		m.PrintSummary(w)
	default:
		fmt.Fprintln(w, tui.RenderBuild(tui.DefaultStyles(), s.opts.Root, report, written))
	}

	if len(report.Failed()) > 0 {
		return errFailed
	}
	return nil
}

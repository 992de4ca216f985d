package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/modwrap/internal/depgraph"
	"github.com/efebarandurmaz/modwrap/internal/graph"
	"github.com/efebarandurmaz/modwrap/internal/graph/neo4j"
	"github.com/efebarandurmaz/modwrap/internal/observability"
	"github.com/efebarandurmaz/modwrap/internal/pipeline"
	"github.com/efebarandurmaz/modwrap/internal/tui"
)

type graphFlags struct {
	format     string
	store      bool
	dependents string
}

func newGraphCmd(g *globalFlags) *cobra.Command {
	var f graphFlags

	cmd := &cobra.Command{
		Use:   "graph <entry>",
		Short: "Walk an entry and print its dependency graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, g, f, args[0])
		},
	}
	cmd.Flags().StringVar(&f.format, "format", "summary", "Output format (summary, stats, dot, mermaid, json)")
	cmd.Flags().BoolVar(&f.store, "neo4j", false, "Store the graph in the configured Neo4j database")
	cmd.Flags().StringVar(&f.dependents, "dependents", "", "List the modules depending on this identifier")
	return cmd
}

func runGraph(cmd *cobra.Command, g *globalFlags, f graphFlags, entry string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, g)
	if err != nil {
		return err
	}
	defer s.Close()

	b, err := pipeline.New(s.opts, s.fs, pipeline.Options{
		Logger:    s.logger,
		CacheSize: s.cfg.Cache.Size,
	})
	if err != nil {
		return err
	}
	entries, err := pipeline.ExpandEntries(s.fs, s.opts.Root, []string{entry})
	if err != nil {
		return err
	}
	if len(entries) != 1 {
		return fmt.Errorf("%s must name exactly one file, matched %d", entry, len(entries))
	}

	ctx, span := observability.StartGraphSpan(ctx, entries[0], f.format)
	defer span.End()

	bundle, err := b.Graph(ctx, entries[0])
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	dg := depgraph.Analyze(bundle)

	repo, err := openRepository(ctx, s, f.store)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	defer repo.Close(ctx)
	err = repo.StoreGraph(ctx, dg)
	if f.store {
		s.audit.LogGraphStore(ctx, dg.Entry, len(dg.Nodes), len(dg.Edges), err)
	}
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("store graph: %w", err)
	}
	if f.store {
		s.logger.InfoContext(ctx, "graph stored", "entry", dg.Entry, "nodes", len(dg.Nodes), "edges", len(dg.Edges))
	}

	w := cmd.OutOrStdout()
	if f.dependents != "" {
		ids, err := repo.Dependents(ctx, f.dependents)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(w, id)
		}
		return nil
	}

	switch f.format {
	case "summary":
		fmt.Fprintln(w, tui.RenderGraph(tui.DefaultStyles(), s.opts.Root, dg))
	case "stats":
		fmt.Fprint(w, depgraph.FormatStats(dg))
	case "dot":
		fmt.Fprint(w, depgraph.ExportDOT(dg))
	case "mermaid":
		fmt.Fprint(w, depgraph.ExportMermaid(dg))
	case "json":
		data, err := depgraph.ExportJSON(dg)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	default:
		return fmt.Errorf("unknown format %q", f.format)
	}
	return nil
}

// openRepository connects to Neo4j when asked to, and keeps the graph in
// memory otherwise.
func openRepository(ctx context.Context, s *session, useNeo4j bool) (graph.Repository, error) {
	if !useNeo4j {
		return graph.NewMemory(), nil
	}
	if s.cfg.Graph.URI == "" {
		return nil, fmt.Errorf("--neo4j needs graph.uri in the config")
	}
	repo, err := neo4j.NewNeo4j(ctx, s.cfg.Graph.URI, s.cfg.Graph.Username, s.cfg.Graph.Password)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/codegraph/internal/export"
	"github.com/dusk-indust/codegraph/internal/graph"
)

var (
	cyclesScope  string
	cyclesFormat string
	depsDir      string
	depsDepth    int
	depsFormat   string
	exportFormat string
	exportKind   string
)

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Report circular imports and call cycles",
	RunE:  withApp(runCycles),
}

var impactCmd = &cobra.Command{
	Use:   "impact <file>...",
	Short: "List files affected by changing the given files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withApp(runImpact),
}

var depsCmd = &cobra.Command{
	Use:   "deps <file|symbol>",
	Short: "Walk dependencies or dependents of a file or symbol",
	Long: `Walk dependencies or dependents of a file or symbol.

Symbols are addressed as path#name:line, the form printed by cycles.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runDeps),
}

var usagesCmd = &cobra.Command{
	Use:   "usages <name>",
	Short: "List references to a name",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runUsages),
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index counts",
	RunE:  withApp(runStats),
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List indexed files",
	RunE:  withApp(runFiles),
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the index as JSON or a Mermaid diagram",
	RunE:  withApp(runExport),
}

func init() {
	cyclesCmd.Flags().StringVar(&cyclesScope, "scope", "", "only cycles through this file")
	cyclesCmd.Flags().StringVar(&cyclesFormat, "format", "text", "output format: text, mermaid")
	depsCmd.Flags().StringVar(&depsDir, "direction", string(graph.DirectionDependencies), "dependencies or dependents")
	depsCmd.Flags().IntVar(&depsDepth, "depth", 3, "maximum hops")
	depsCmd.Flags().StringVar(&depsFormat, "format", "text", "output format: text, mermaid")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "output format: json, mermaid")
	exportCmd.Flags().StringVar(&exportKind, "kind", string(graph.EdgeKindFileImport), "edge kind for mermaid: file_import, symbol_usage")
	rootCmd.AddCommand(cyclesCmd, impactCmd, depsCmd, usagesCmd, statsCmd, filesCmd, exportCmd)
}

func runCycles(ctx context.Context, a *app, _ []string) error {
	cycles, err := a.ix.FindCycles(ctx, a.root, cyclesScope)
	if err != nil {
		return err
	}
	switch {
	case jsonOutput:
		return export.WriteJSON(os.Stdout, cycles)
	case cyclesFormat == "mermaid":
		fmt.Print(export.CyclesMermaid(cycles))
		return nil
	}
	if len(cycles) == 0 {
		fmt.Println("No cycles found.")
		return nil
	}
	for _, c := range cycles {
		fmt.Printf("[%s] %s\n", c.Kind, strings.Join(c.Nodes, " -> "))
	}
	return nil
}

func runImpact(ctx context.Context, a *app, args []string) error {
	paths := make([]string, len(args))
	for i, p := range args {
		rel, err := relPath(a.root, p)
		if err != nil {
			return err
		}
		paths[i] = rel
	}
	s, err := openGraph(a)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := a.ix.Impact(ctx, a.root, s, paths)
	if err != nil {
		return err
	}
	if jsonOutput {
		return export.WriteJSON(os.Stdout, res)
	}
	fmt.Printf("Directly affected (%d):\n", len(res.DirectlyAffected))
	for _, f := range res.DirectlyAffected {
		fmt.Printf("  %s\n", f)
	}
	fmt.Printf("Transitively affected (%d):\n", len(res.TransitivelyAffected))
	for _, f := range res.TransitivelyAffected {
		fmt.Printf("  %s\n", f)
	}
	fmt.Printf("Risk: %.2f\n", res.RiskScore)
	return nil
}

func runDeps(ctx context.Context, a *app, args []string) error {
	dir, err := graph.ParseDirection(depsDir)
	if err != nil {
		return err
	}
	node := args[0]
	if _, ok := graph.ParseSymbolKey(node); !ok {
		if node, err = relPath(a.root, node); err != nil {
			return err
		}
	}
	s, err := openGraph(a)
	if err != nil {
		return err
	}
	defer s.Close()

	chains, err := a.ix.Dependencies(ctx, a.root, s, node, dir, depsDepth)
	if err != nil {
		return err
	}
	switch {
	case jsonOutput:
		return export.WriteJSON(os.Stdout, chains)
	case depsFormat == "mermaid":
		fmt.Print(export.ChainsMermaid(chains))
		return nil
	}
	if len(chains) == 0 {
		fmt.Printf("No %s of %s.\n", dir, node)
		return nil
	}
	for _, c := range chains {
		fmt.Printf("%s%s\n", strings.Repeat("  ", c.Depth-1), c.Nodes[len(c.Nodes)-1])
	}
	return nil
}

func runUsages(ctx context.Context, a *app, args []string) error {
	refs, err := a.ix.FindUsages(ctx, a.root, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return export.WriteJSON(os.Stdout, refs)
	}
	if len(refs) == 0 {
		fmt.Printf("No usages of %s.\n", args[0])
		return nil
	}
	for _, r := range refs {
		fmt.Printf("%s:%d:%d  %s", r.FilePath, r.Line, r.Column, r.Kind)
		if r.Metadata.ImportSource != "" {
			fmt.Printf(" from %q", r.Metadata.ImportSource)
		}
		fmt.Println()
	}
	return nil
}

func runStats(ctx context.Context, a *app, _ []string) error {
	st, err := a.ix.Stats(ctx, a.root)
	if err != nil {
		return err
	}
	if jsonOutput {
		return export.WriteJSON(os.Stdout, st)
	}
	fmt.Printf("Files:      %d\n", st.FileCount)
	fmt.Printf("Symbols:    %d\n", st.SymbolCount)
	fmt.Printf("References: %d\n", st.ReferenceCount)
	fmt.Printf("Edges:      %d\n", st.EdgeCount)
	return nil
}

func runFiles(ctx context.Context, a *app, _ []string) error {
	files, err := a.ix.Files(ctx, a.root)
	if err != nil {
		return err
	}
	if jsonOutput {
		return export.WriteJSON(os.Stdout, files)
	}
	for _, f := range files {
		marker := ""
		switch {
		case f.Degraded():
			marker = "  [regex]"
		case f.Partial:
			marker = "  [partial]"
		}
		fmt.Printf("%-12s %s%s\n", f.Language, f.Path, marker)
	}
	return nil
}

func runExport(ctx context.Context, a *app, _ []string) error {
	switch exportFormat {
	case "json":
		out, err := export.ExportIndex(ctx, a.db, a.root, time.Now())
		if err != nil {
			return err
		}
		return export.WriteJSON(os.Stdout, out)
	case "mermaid":
		s, err := openGraph(a)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := a.ix.Project(ctx, a.root, s); err != nil {
			return err
		}
		if graph.EdgeKind(exportKind) == graph.EdgeKindFileImport {
			out, err := export.GenerateMermaid(ctx, s)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		}
		edges, err := s.GetAllEdges(ctx)
		if err != nil {
			return err
		}
		fmt.Print(export.EdgesMermaid(edges, graph.EdgeKind(exportKind)))
		return nil
	}
	return fmt.Errorf("unknown format %q (want json or mermaid)", exportFormat)
}

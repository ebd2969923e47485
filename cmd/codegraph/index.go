package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/codegraph/internal/changes"
	"github.com/dusk-indust/codegraph/internal/export"
	"github.com/dusk-indust/codegraph/internal/indexer"
)

var watchDebounce time.Duration

var indexCmd = &cobra.Command{
	Use:   "index [file...]",
	Short: "Index the whole project, or only the given files",
	Long: `Index the whole project, or only the given files.

Without arguments every discoverable file is parsed, stale entries are
removed and the HEAD commit is recorded. With arguments only those files
are re-extracted and the edges around them rebuilt.`,
	RunE: withApp(runIndex),
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Apply changes since the last index run",
	RunE:  withApp(runSync),
}

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "List files changed since the last index run",
	RunE:  withApp(runChanges),
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reindex files as they change",
	RunE:  withApp(runWatch),
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", indexer.DefaultDebounce, "quiet period before a batch is indexed")
	rootCmd.AddCommand(indexCmd, syncCmd, changesCmd, watchCmd)
}

func runIndex(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		res, err := a.ix.IndexRepository(ctx, a.root)
		if err != nil {
			return err
		}
		return printResult(res)
	}

	results := make([]*indexer.FileResult, 0, len(args))
	for _, p := range args {
		rel, err := relPath(a.root, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(filepath.Join(a.root, filepath.FromSlash(rel)))
		if err != nil {
			return err
		}
		res, err := a.ix.IndexFile(ctx, a.root, rel, content)
		if err != nil {
			return err
		}
		results = append(results, res)
		if !jsonOutput {
			fmt.Printf("%s: %d symbols, %d references, %d edges\n",
				rel, res.SymbolsExtracted, res.ReferencesFound, res.EdgesExtracted)
		}
	}
	if jsonOutput {
		return export.WriteJSON(os.Stdout, results)
	}
	return nil
}

func runSync(ctx context.Context, a *app, _ []string) error {
	res, err := a.ix.Sync(ctx, a.root)
	if err != nil {
		return err
	}
	if jsonOutput {
		return export.WriteJSON(os.Stdout, res)
	}
	if res.Full {
		fmt.Println("No previous index; indexed from scratch.")
	} else {
		fmt.Printf("%d changed files (%s)\n", len(res.Changes), res.Mode)
	}
	return printResult(res.Result)
}

func runChanges(ctx context.Context, a *app, _ []string) error {
	mode, changed, err := a.ix.DetectChanges(ctx, a.root)
	if err != nil {
		return err
	}
	if jsonOutput {
		return export.WriteJSON(os.Stdout, struct {
			Mode    changes.Mode          `json:"mode"`
			Changes []changes.ChangedFile `json:"changes"`
		}{mode, changed})
	}
	if len(changed) == 0 {
		fmt.Printf("No changes (%s)\n", mode)
		return nil
	}
	for _, c := range changed {
		fmt.Printf("%s %s\n", statusPrefix(c.Status), c.Path)
	}
	return nil
}

func runWatch(ctx context.Context, a *app, _ []string) error {
	if _, err := a.ix.Sync(ctx, a.root); err != nil {
		return err
	}
	return a.ix.Watch(ctx, a.root, watchDebounce, func(changed []changes.ChangedFile, res *indexer.IncrementalResult, err error) {
		if err != nil || res == nil {
			return
		}
		for _, c := range changed {
			fmt.Printf("%s %s\n", statusPrefix(c.Status), c.Path)
		}
		for _, fe := range res.Errors {
			fmt.Printf("  error: %v\n", fe)
		}
	})
}

func printResult(res *indexer.IncrementalResult) error {
	if res == nil {
		return nil
	}
	if jsonOutput {
		return export.WriteJSON(os.Stdout, res)
	}
	fmt.Printf("Files updated: %d\n", res.FilesUpdated)
	fmt.Printf("Files deleted: %d\n", res.FilesDeleted)
	fmt.Printf("Symbols:       %d\n", res.SymbolsExtracted)
	fmt.Printf("References:    %d\n", res.ReferencesExtracted)
	fmt.Printf("Edges:         %d\n", res.EdgesExtracted)
	if len(res.Errors) > 0 {
		fmt.Printf("Errors:        %d\n", len(res.Errors))
		for _, fe := range res.Errors {
			fmt.Printf("  %v\n", fe)
		}
	}
	return nil
}

func statusPrefix(s changes.Status) string {
	switch s {
	case changes.StatusAdded:
		return "A"
	case changes.StatusDeleted:
		return "D"
	default:
		return "M"
	}
}

// relPath turns a command-line path into a project-relative one. Relative
// arguments are taken from the working directory, like any other CLI.
func relPath(root, p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", p, root)
	}
	return filepath.ToSlash(rel), nil
}

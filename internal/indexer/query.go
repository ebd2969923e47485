package indexer

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/store"
)

func (ix *Indexer) lookup(ctx context.Context, root string) (*store.Repository, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	repo, err := ix.db.GetRepository(ctx, abs)
	if err != nil {
		return nil, errNotIndexed(abs, err)
	}
	return repo, nil
}

// FindCycles detects import and call cycles over the stored edges. A
// non-empty scope keeps only cycles passing through that file or one of
// its symbols.
func (ix *Indexer) FindCycles(ctx context.Context, root, scope string) ([]graph.CircularChain, error) {
	repo, err := ix.lookup(ctx, root)
	if err != nil {
		return nil, err
	}
	edges, err := ix.db.Edges(ctx, repo.ID)
	if err != nil {
		return nil, err
	}
	chains := graph.DetectCycles(edges)
	if scope == "" {
		return chains, nil
	}
	scope = graph.NormalizePath(scope)
	var out []graph.CircularChain
	for _, c := range chains {
		for _, n := range c.Nodes {
			if n == scope || strings.HasPrefix(n, scope+"#") {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

// Project loads the stored files, symbols and edges into a graph store
// for traversal queries.
func (ix *Indexer) Project(ctx context.Context, root string, s graph.Store) error {
	repo, err := ix.lookup(ctx, root)
	if err != nil {
		return err
	}
	records, err := ix.db.ListFiles(ctx, repo.ID)
	if err != nil {
		return err
	}
	files := make([]graph.SourceFile, len(records))
	for i, r := range records {
		files[i] = r.SourceFile
	}
	symbols, err := ix.db.Symbols(ctx, repo.ID)
	if err != nil {
		return err
	}
	edges, err := ix.db.Edges(ctx, repo.ID)
	if err != nil {
		return err
	}
	if err := s.InitSchema(ctx); err != nil {
		return err
	}
	return graph.Project(ctx, s, files, symbols, edges)
}

// Dependencies projects the index into s and walks it from node.
func (ix *Indexer) Dependencies(ctx context.Context, root string, s graph.Store, node string, dir graph.Direction, depth int) ([]graph.DependencyChain, error) {
	if err := ix.Project(ctx, root, s); err != nil {
		return nil, err
	}
	return s.GetDependencies(ctx, node, dir, depth)
}

// Impact projects the index into s and reports what depends on paths.
func (ix *Indexer) Impact(ctx context.Context, root string, s graph.Store, paths []string) (*graph.ImpactResult, error) {
	if err := ix.Project(ctx, root, s); err != nil {
		return nil, err
	}
	normalized := make([]string, len(paths))
	for i, p := range paths {
		normalized[i] = graph.NormalizePath(p)
	}
	return s.AssessImpact(ctx, normalized)
}

// FindUsages returns references to name across the repository.
func (ix *Indexer) FindUsages(ctx context.Context, root, name string) ([]graph.Reference, error) {
	repo, err := ix.lookup(ctx, root)
	if err != nil {
		return nil, err
	}
	return ix.db.FindUsages(ctx, repo.ID, name)
}

// Stats counts the stored rows of the repository.
func (ix *Indexer) Stats(ctx context.Context, root string) (*graph.GraphStats, error) {
	repo, err := ix.lookup(ctx, root)
	if err != nil {
		return nil, err
	}
	return ix.db.Stats(ctx, repo.ID)
}

// Files lists the stored files of the repository.
func (ix *Indexer) Files(ctx context.Context, root string) ([]store.FileRecord, error) {
	repo, err := ix.lookup(ctx, root)
	if err != nil {
		return nil, err
	}
	return ix.db.ListFiles(ctx, repo.ID)
}

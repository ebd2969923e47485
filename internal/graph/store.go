package graph

import (
	"context"
	"fmt"
	"io"
)

// Store is a traversal projection of the index: files, symbols and
// dependency edges loaded from the relational index for graph queries.
// Implementations: KuzuStore (persistent, cgo), MemStore (default).
type Store interface {
	io.Closer

	// Schema setup, called once before any data is inserted.
	InitSchema(ctx context.Context) error
	// Reset removes all nodes and edges.
	Reset(ctx context.Context) error

	// Write operations.
	AddFile(ctx context.Context, file SourceFile) error
	AddSymbol(ctx context.Context, sym Symbol) error
	AddEdge(ctx context.Context, edge Edge) error

	// Graph traversal. Node ids are file paths or SymbolKey strings.
	GetDependencies(ctx context.Context, nodeID string, direction Direction, maxDepth int) ([]DependencyChain, error)
	AssessImpact(ctx context.Context, changedFiles []string) (*ImpactResult, error)
	GetAllEdges(ctx context.Context) ([]Edge, error)

	// Stats.
	Stats(ctx context.Context) (*GraphStats, error)
}

// Direction controls dependency traversal direction.
type Direction string

const (
	DirectionDependencies Direction = "dependencies" // what does this depend on?
	DirectionDependents   Direction = "dependents"   // what depends on this?
)

// ParseDirection validates a user-supplied direction.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case DirectionDependencies, DirectionDependents:
		return d, nil
	}
	return "", fmt.Errorf("unknown direction %q (want %q or %q)", s, DirectionDependencies, DirectionDependents)
}

// Project replaces the contents of s with the given snapshot. Symbols are
// added before edges because symbol edges reference them.
func Project(ctx context.Context, s Store, files []SourceFile, symbols []Symbol, edges []Edge) error {
	if err := s.Reset(ctx); err != nil {
		return fmt.Errorf("reset projection: %w", err)
	}
	for _, f := range files {
		if err := s.AddFile(ctx, f); err != nil {
			return fmt.Errorf("project file %s: %w", f.Path, err)
		}
	}
	for _, sym := range symbols {
		if err := s.AddSymbol(ctx, sym); err != nil {
			return fmt.Errorf("project symbol %s: %w", sym.Key(), err)
		}
	}
	for _, e := range edges {
		if err := s.AddEdge(ctx, e); err != nil {
			from, to := e.Endpoints()
			return fmt.Errorf("project edge %s -> %s: %w", from, to, err)
		}
	}
	return nil
}

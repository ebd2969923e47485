package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/store"
)

// IndexExport is the top-level JSON export structure.
type IndexExport struct {
	Root       string                `json:"root"`
	LastCommit string                `json:"lastCommit,omitempty"`
	IndexedAt  string                `json:"indexedAt,omitempty"`
	ExportedAt string                `json:"exportedAt"`
	Stats      *graph.GraphStats     `json:"stats"`
	Files      []store.FileRecord    `json:"files"`
	Symbols    []graph.Symbol        `json:"symbols"`
	Edges      []graph.Edge          `json:"edges"`
	Cycles     []graph.CircularChain `json:"cycles,omitempty"`
}

// ExportIndex builds an IndexExport of the repository rooted at root.
func ExportIndex(ctx context.Context, db *store.DB, root string, now time.Time) (*IndexExport, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	repo, err := db.GetRepository(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", abs, err)
	}

	out := &IndexExport{
		Root:       repo.Root,
		LastCommit: repo.LastCommit,
		ExportedAt: now.UTC().Format(time.RFC3339),
	}
	if !repo.IndexedAt.IsZero() {
		out.IndexedAt = repo.IndexedAt.UTC().Format(time.RFC3339)
	}
	if out.Stats, err = db.Stats(ctx, repo.ID); err != nil {
		return nil, err
	}
	if out.Files, err = db.ListFiles(ctx, repo.ID); err != nil {
		return nil, err
	}
	if out.Symbols, err = db.Symbols(ctx, repo.ID); err != nil {
		return nil, err
	}
	if out.Edges, err = db.Edges(ctx, repo.ID); err != nil {
		return nil, err
	}
	out.Cycles = graph.DetectCycles(out.Edges)
	return out, nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

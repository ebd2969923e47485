package indexer

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/dusk-indust/codegraph/internal/changes"
	"github.com/dusk-indust/codegraph/internal/discover"
	"github.com/dusk-indust/codegraph/internal/store"
)

// SyncResult reports what Sync did.
type SyncResult struct {
	// Full is set when the repository had never been indexed and was
	// indexed from scratch.
	Full    bool                  `json:"full"`
	Mode    changes.Mode          `json:"mode,omitempty"`
	Changes []changes.ChangedFile `json:"changes"`
	Result  *IncrementalResult    `json:"result"`
}

// DetectChanges classifies files changed since the last index run. Inside
// a git working copy the recorded commit (or the configured base ref) is
// diffed against HEAD and the worktree; elsewhere modification times are
// compared with the stored index times.
func (ix *Indexer) DetectChanges(ctx context.Context, root string) (changes.Mode, []changes.ChangedFile, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", nil, err
	}

	indexed := make(map[string]changes.Indexed)
	base := ix.baseRef
	repo, err := ix.db.GetRepository(ctx, abs)
	switch {
	case errors.Is(err, store.ErrRepositoryNotFound):
	case err != nil:
		return "", nil, err
	default:
		files, err := ix.db.ListFiles(ctx, repo.ID)
		if err != nil {
			return "", nil, err
		}
		for _, f := range files {
			indexed[f.Path] = changes.Indexed{IndexedAt: f.IndexedAt, ContentHash: f.ContentHash}
		}
		if base == "" {
			base = repo.LastCommit
		}
	}

	d := changes.New(abs, changes.WithFilter(ix.filter), changes.WithLogger(ix.logger))
	return d.Detect(ctx, base, indexed)
}

// IndexRepository indexes every discoverable file, removes stored files
// that are no longer discoverable and records the HEAD commit.
func (ix *Indexer) IndexRepository(ctx context.Context, root string) (*IncrementalResult, error) {
	repo, abs, err := ix.repository(ctx, root)
	if err != nil {
		return nil, err
	}
	stored, err := ix.db.ListFiles(ctx, repo.ID)
	if err != nil {
		return nil, err
	}

	var jobs []job
	seen := make(map[string]bool)
	for f, err := range discover.Files(ctx, abs, ix.filter) {
		if err != nil {
			return nil, err
		}
		seen[f.Path] = true
		jobs = append(jobs, job{path: f.Path, added: true})
	}
	var deleted []string
	for _, f := range stored {
		if !seen[f.Path] {
			deleted = append(deleted, f.Path)
		}
	}

	ix.logger.Info("indexing repository", "root", abs, "files", len(jobs), "stale", len(deleted))
	res, err := ix.run(ctx, repo.ID, abs, jobs, deleted)
	if err != nil {
		return res, err
	}
	if err := ix.db.MarkIndexed(ctx, repo.ID, changes.Head(abs), ix.now()); err != nil {
		return res, err
	}
	ix.logResult("repository indexed", abs, res)
	return res, nil
}

// Sync brings the index up to date: a never-indexed repository is indexed
// in full, otherwise only detected changes are applied.
func (ix *Indexer) Sync(ctx context.Context, root string) (*SyncResult, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	repo, err := ix.db.GetRepository(ctx, abs)
	if errors.Is(err, store.ErrRepositoryNotFound) || (err == nil && repo.IndexedAt.IsZero()) {
		res, err := ix.IndexRepository(ctx, abs)
		return &SyncResult{Full: true, Result: res}, err
	}
	if err != nil {
		return nil, err
	}

	mode, changed, err := ix.DetectChanges(ctx, abs)
	if err != nil {
		return nil, err
	}
	out := &SyncResult{Mode: mode, Changes: changed}
	res, err := ix.IndexChanged(ctx, abs, changed)
	out.Result = res
	if err != nil {
		return out, err
	}
	if err := ix.db.MarkIndexed(ctx, repo.ID, changes.Head(abs), ix.now()); err != nil {
		return out, err
	}
	ix.logResult("repository synced", abs, res)
	return out, nil
}

func (ix *Indexer) logResult(msg, root string, res *IncrementalResult) {
	ix.logger.Info(msg, "root", root,
		"updated", res.FilesUpdated, "deleted", res.FilesDeleted,
		"symbols", res.SymbolsExtracted, "references", res.ReferencesExtracted,
		"edges", res.EdgesExtracted, "errors", len(res.Errors))
}

package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dusk-indust/codegraph/internal/changes"
	"github.com/dusk-indust/codegraph/internal/discover"
	"github.com/dusk-indust/codegraph/internal/store"
)

// DefaultDebounce is the quiet period Watch waits for before indexing.
const DefaultDebounce = 300 * time.Millisecond

// BatchFunc receives the outcome of each debounced batch.
type BatchFunc func(changed []changes.ChangedFile, res *IncrementalResult, err error)

// Watch reindexes files under root as they change until ctx is done.
// Events are collected until debounce passes without a new one, then the
// batch is applied with IndexChanged.
func (ix *Indexer) Watch(ctx context.Context, root string, debounce time.Duration, onBatch BatchFunc) error {
	repo, abs, err := ix.repository(ctx, root)
	if err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()
	if err := addRecursive(w, abs); err != nil {
		return err
	}

	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	ix.logger.Info("watching", "root", abs)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if !discover.SkipDir(info.Name()) {
						ix.watchNewDir(w, abs, ev.Name, pending)
						timer.Reset(debounce)
					}
					continue
				}
			}
			rel, err := filepath.Rel(abs, ev.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if !ix.filter.Wanted(rel) {
				continue
			}
			pending[rel] = true
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			ix.logger.Warn("watch error", "err", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := ix.classify(ctx, repo.ID, abs, pending)
			clear(pending)
			res, err := ix.IndexChanged(ctx, abs, changed)
			if err == nil {
				err = ix.db.MarkIndexed(ctx, repo.ID, changes.Head(abs), ix.now())
			}
			if err != nil && ctx.Err() == nil {
				ix.logger.Error("watch batch failed", "err", err)
			} else if res != nil {
				ix.logResult("watch batch indexed", abs, res)
			}
			if onBatch != nil {
				onBatch(changed, res, err)
			}
		}
	}
}

// classify turns pending paths into a change set by checking the disk and
// the index.
func (ix *Indexer) classify(ctx context.Context, repoID, root string, pending map[string]bool) []changes.ChangedFile {
	out := make([]changes.ChangedFile, 0, len(pending))
	for rel := range pending {
		_, statErr := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		_, getErr := ix.db.GetFile(ctx, repoID, rel)
		indexed := getErr == nil
		switch {
		case statErr != nil && indexed:
			out = append(out, changes.ChangedFile{Path: rel, Status: changes.StatusDeleted})
		case statErr != nil:
			// Created and removed within one batch.
		case indexed:
			out = append(out, changes.ChangedFile{Path: rel, Status: changes.StatusModified})
		case errors.Is(getErr, store.ErrFileNotFound):
			out = append(out, changes.ChangedFile{Path: rel, Status: changes.StatusAdded})
		}
	}
	slices.SortFunc(out, func(a, b changes.ChangedFile) int { return strings.Compare(a.Path, b.Path) })
	return out
}

// watchNewDir watches a directory that appeared after Watch began and
// queues its files. A directory that cannot be watched is still queued.
func (ix *Indexer) watchNewDir(w *fsnotify.Watcher, root, dir string, pending map[string]bool) {
	if err := addRecursive(w, dir); err != nil {
		ix.logger.Warn("watch directory failed", "dir", dir, "err", err)
	}
	ix.queueDir(root, dir, pending)
}

// queueDir queues the files of a directory that appeared after watching
// began, since their create events may predate the watch on it.
func (ix *Indexer) queueDir(root, dir string, pending map[string]bool) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if ix.filter.Wanted(rel) {
			pending[rel] = true
		}
		return nil
	})
}

func addRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && discover.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

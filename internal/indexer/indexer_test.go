package indexer

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/changes"
	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/store"
)

const (
	srcA = "import { bar } from './b';\n\nexport function foo() {\n  bar();\n}\n"
	srcB = "export function bar() {}\n"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// newIndexer opens a fresh index outside root so the database never shows
// up as a project file.
func newIndexer(t *testing.T, opts ...Option) (*Indexer, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	parser := graph.NewTreeSitterParser()
	t.Cleanup(func() { _ = parser.Close() })
	return New(db, parser, append([]Option{WithWorkers(2)}, opts...)...), db
}

func repoID(t *testing.T, db *store.DB, root string) string {
	t.Helper()
	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	repo, err := db.GetRepository(context.Background(), abs)
	require.NoError(t, err)
	return repo.ID
}

func edgeSummary(edges []graph.Edge) []string {
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		from, to := e.Endpoints()
		out = append(out, from+" -> "+to)
	}
	return out
}

func TestIndexRepository_EndToEnd(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", srcA)
	writeFile(t, root, "b.ts", srcB)
	ix, db := newIndexer(t)
	ctx := context.Background()

	res, err := ix.IndexRepository(ctx, root)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.FilesUpdated)
	assert.Equal(t, 2, res.SymbolsExtracted)
	assert.Equal(t, 2, res.EdgesExtracted)

	id := repoID(t, db, root)
	edges, err := db.Edges(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.ts -> b.ts", "a.ts#foo:3 -> b.ts#bar:1"}, edgeSummary(edges))

	refs, err := db.FileReferences(ctx, id, "a.ts")
	require.NoError(t, err)
	var imports int
	for _, r := range refs {
		if r.Kind == graph.ReferenceKindImport {
			imports++
		}
	}
	assert.GreaterOrEqual(t, imports, 1)

	cycles, err := ix.FindCycles(ctx, root, "")
	require.NoError(t, err)
	assert.Empty(t, cycles)
}

func TestIndexChanged_DeletedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", srcA)
	writeFile(t, root, "b.ts", srcB)
	ix, db := newIndexer(t)
	ctx := context.Background()

	_, err := ix.IndexRepository(ctx, root)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "b.ts")))
	res, err := ix.IndexChanged(ctx, root, []changes.ChangedFile{{Path: "b.ts", Status: changes.StatusDeleted}})
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.FilesDeleted)

	id := repoID(t, db, root)
	bar, err := db.FindSymbols(ctx, id, "bar")
	require.NoError(t, err)
	assert.Empty(t, bar)

	foo, err := db.FindSymbols(ctx, id, "foo")
	require.NoError(t, err)
	require.Len(t, foo, 1)
	assert.Equal(t, "a.ts", foo[0].FilePath)

	edges, err := db.Edges(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestIndexChanged_AddedFileResolvesImporters(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", "import { baz } from './c';\n\nexport function foo() {\n  baz();\n}\n")
	ix, db := newIndexer(t)
	ctx := context.Background()

	res, err := ix.IndexRepository(ctx, root)
	require.NoError(t, err)
	assert.Zero(t, res.EdgesExtracted)

	writeFile(t, root, "c.ts", "export function baz() {}\n")
	res, err = ix.IndexChanged(ctx, root, []changes.ChangedFile{{Path: "c.ts", Status: changes.StatusAdded}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesUpdated)
	assert.Equal(t, 2, res.EdgesExtracted)

	edges, err := db.Edges(ctx, repoID(t, db, root))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.ts -> c.ts", "a.ts#foo:3 -> c.ts#baz:1"}, edgeSummary(edges))
}

func TestIndexChanged_ModifiedCalleeKeepsCallerEdges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", srcA)
	writeFile(t, root, "b.ts", srcB)
	ix, db := newIndexer(t)
	ctx := context.Background()

	_, err := ix.IndexRepository(ctx, root)
	require.NoError(t, err)

	// bar moves down a line, so its key changes.
	writeFile(t, root, "b.ts", "// helpers\nexport function bar() {}\n")
	res, err := ix.IndexChanged(ctx, root, []changes.ChangedFile{{Path: "b.ts", Status: changes.StatusModified}})
	require.NoError(t, err)
	assert.Empty(t, res.Errors)

	edges, err := db.Edges(ctx, repoID(t, db, root))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.ts -> b.ts", "a.ts#foo:3 -> b.ts#bar:2"}, edgeSummary(edges))
}

func TestIndexChanged_PerFileErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.ts", srcB)
	ix, _ := newIndexer(t)

	res, err := ix.IndexChanged(context.Background(), root, []changes.ChangedFile{
		{Path: "missing.ts", Status: changes.StatusModified},
		{Path: "b.ts", Status: changes.StatusAdded},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesUpdated)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "missing.ts", res.Errors[0].Path)
	assert.ErrorIs(t, res.Errors[0], os.ErrNotExist)
}

func TestIndexChanged_UnknownStatus(t *testing.T) {
	ix, _ := newIndexer(t)
	_, err := ix.IndexChanged(context.Background(), t.TempDir(), []changes.ChangedFile{{Path: "a.ts", Status: "renamed"}})
	assert.Error(t, err)
}

func TestIndexRepository_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", srcA)
	writeFile(t, root, "b.ts", srcB)
	ix, db := newIndexer(t)
	ctx := context.Background()

	_, err := ix.IndexRepository(ctx, root)
	require.NoError(t, err)
	id := repoID(t, db, root)
	before, err := db.Stats(ctx, id)
	require.NoError(t, err)
	edgesBefore, err := db.Edges(ctx, id)
	require.NoError(t, err)

	_, err = ix.IndexRepository(ctx, root)
	require.NoError(t, err)
	after, err := db.Stats(ctx, id)
	require.NoError(t, err)
	edgesAfter, err := db.Edges(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, edgesBefore, edgesAfter)
}

func TestIndexRepository_RemovesVanishedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", srcA)
	writeFile(t, root, "b.ts", srcB)
	ix, _ := newIndexer(t)
	ctx := context.Background()

	_, err := ix.IndexRepository(ctx, root)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, "a.ts")))

	res, err := ix.IndexRepository(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesDeleted)

	files, err := ix.Files(ctx, root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "b.ts", files[0].Path)
}

func TestIndexFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.ts", srcB)
	ix, _ := newIndexer(t)
	ctx := context.Background()

	_, err := ix.IndexRepository(ctx, root)
	require.NoError(t, err)

	// The content is taken from the caller, not the disk.
	res, err := ix.IndexFile(ctx, root, "./a.ts", []byte(srcA))
	require.NoError(t, err)
	assert.Equal(t, &FileResult{FilesIndexed: 1, SymbolsExtracted: 1, ReferencesFound: 2, EdgesExtracted: 2}, res)

	_, err = ix.IndexFile(ctx, root, "notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, graph.ErrUnsupportedLanguage)
}

func TestFindCycles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", "import { b } from './b';\nexport function a() { b(); }\n")
	writeFile(t, root, "b.ts", "import { a } from './a';\nexport function b() { a(); }\n")
	writeFile(t, root, "c.ts", "export const c = 1;\n")
	ix, _ := newIndexer(t)
	ctx := context.Background()

	_, err := ix.IndexRepository(ctx, root)
	require.NoError(t, err)

	cycles, err := ix.FindCycles(ctx, root, "")
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, graph.EdgeKindFileImport, cycles[0].Kind)
	assert.Equal(t, []string{"a.ts", "b.ts", "a.ts"}, cycles[0].Nodes)
	assert.Equal(t, graph.EdgeKindSymbolUsage, cycles[1].Kind)

	scoped, err := ix.FindCycles(ctx, root, "b.ts")
	require.NoError(t, err)
	assert.Len(t, scoped, 2)

	scoped, err = ix.FindCycles(ctx, root, "c.ts")
	require.NoError(t, err)
	assert.Empty(t, scoped)
}

func TestQueries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", srcA)
	writeFile(t, root, "b.ts", srcB)
	writeFile(t, root, "main.ts", "import { foo } from './a';\nfoo();\n")
	ix, _ := newIndexer(t)
	ctx := context.Background()

	_, err := ix.Stats(ctx, root)
	assert.ErrorIs(t, err, store.ErrRepositoryNotFound)

	_, err = ix.IndexRepository(ctx, root)
	require.NoError(t, err)

	stats, err := ix.Stats(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.FileCount)

	usages, err := ix.FindUsages(ctx, root, "bar")
	require.NoError(t, err)
	assert.Len(t, usages, 2)

	chains, err := ix.Dependencies(ctx, root, graph.NewMemStore(), "main.ts", graph.DirectionDependencies, 3)
	require.NoError(t, err)
	var nodes [][]string
	for _, c := range chains {
		nodes = append(nodes, c.Nodes)
	}
	assert.Equal(t, [][]string{{"main.ts", "a.ts"}, {"main.ts", "a.ts", "b.ts"}}, nodes)

	impact, err := ix.Impact(ctx, root, graph.NewMemStore(), []string{"./b.ts"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.ts"}, impact.DirectlyAffected)
	assert.Equal(t, []string{"a.ts", "main.ts"}, impact.TransitivelyAffected)
}

func TestSync_Mtime(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", srcA)
	writeFile(t, root, "b.ts", srcB)
	ix, _ := newIndexer(t)
	ctx := context.Background()

	first, err := ix.Sync(ctx, root)
	require.NoError(t, err)
	assert.True(t, first.Full)
	assert.Equal(t, 2, first.Result.FilesUpdated)

	writeFile(t, root, "b.ts", "export function bar() { return 1; }\n")
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "b.ts"), later, later))

	second, err := ix.Sync(ctx, root)
	require.NoError(t, err)
	assert.False(t, second.Full)
	assert.Equal(t, changes.ModeMtime, second.Mode)
	assert.Equal(t, []changes.ChangedFile{{Path: "b.ts", Status: changes.StatusModified}}, second.Changes)
	assert.Equal(t, 1, second.Result.FilesUpdated)
}

func TestSync_VCS(t *testing.T) {
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	commit := func(msg string) {
		require.NoError(t, wt.AddWithOptions(&git.AddOptions{All: true}))
		_, err := wt.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
		})
		require.NoError(t, err)
	}

	writeFile(t, root, "a.ts", srcA)
	writeFile(t, root, "b.ts", srcB)
	commit("initial")

	// The index lives outside the working copy so it never shows in status.
	ix, db := newIndexer(t)
	ctx := context.Background()
	_, err = ix.Sync(ctx, root)
	require.NoError(t, err)

	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	rec, err := db.GetRepository(ctx, abs)
	require.NoError(t, err)
	assert.Equal(t, changes.Head(root), rec.LastCommit)

	writeFile(t, root, "b.ts", "export function bar() {}\nexport function qux() {}\n")
	commit("add qux")

	res, err := ix.Sync(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, changes.ModeVCS, res.Mode)
	assert.Equal(t, []changes.ChangedFile{{Path: "b.ts", Status: changes.StatusModified}}, res.Changes)
	assert.Equal(t, 2, res.Result.SymbolsExtracted)

	mode, changed, err := ix.DetectChanges(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, changes.ModeVCS, mode)
	assert.Empty(t, changed)
}

func TestWatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.ts", srcB)
	ix, db := newIndexer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := ix.IndexRepository(ctx, root)
	require.NoError(t, err)

	batches := make(chan []changes.ChangedFile, 4)
	done := make(chan error, 1)
	go func() {
		done <- ix.Watch(ctx, root, 50*time.Millisecond, func(changed []changes.ChangedFile, _ *IncrementalResult, err error) {
			assert.NoError(t, err)
			select {
			case batches <- changed:
			default:
			}
		})
	}()

	// Give the watcher time to register the root.
	time.Sleep(200 * time.Millisecond)
	// Renaming in delivers the whole file in one event.
	staging := t.TempDir()
	writeFile(t, staging, "a.ts", srcA)
	require.NoError(t, os.Rename(filepath.Join(staging, "a.ts"), filepath.Join(root, "a.ts")))

	select {
	case changed := <-batches:
		assert.Contains(t, changed, changes.ChangedFile{Path: "a.ts", Status: changes.StatusAdded})
	case <-time.After(5 * time.Second):
		t.Fatal("no batch indexed")
	}

	edges, err := db.Edges(context.Background(), repoID(t, db, root))
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	cancel()
	assert.NoError(t, <-done)
}

func TestWatchNewDir_LogsWatchFailure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pkg/a.ts", srcA)
	var logs bytes.Buffer
	ix, _ := newIndexer(t, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	require.NoError(t, w.Close())

	pending := make(map[string]bool)
	ix.watchNewDir(w, root, filepath.Join(root, "pkg"), pending)

	assert.Contains(t, logs.String(), "watch directory failed")
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Equal(t, map[string]bool{"pkg/a.ts": true}, pending, "files are queued even when the watch fails")
}

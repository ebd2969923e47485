package export

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/store"
)

func TestExportIndex(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	root := t.TempDir()
	repo, err := db.EnsureRepository(ctx, root)
	require.NoError(t, err)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.StoreFile(ctx, repo.ID, &graph.Extraction{
		File: graph.SourceFile{Path: "a.ts", Language: graph.LangTypeScript, IndexedAt: at, Method: graph.ExtractionAST},
		Symbols: []graph.Symbol{
			{Name: "foo", Kind: graph.SymbolKindFunction, FilePath: "a.ts", LineStart: 1, LineEnd: 1, Method: graph.ExtractionAST},
		},
	}))
	require.NoError(t, db.MarkIndexed(ctx, repo.ID, "abc123", at))

	out, err := ExportIndex(ctx, db, root, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, root, out.Root)
	assert.Equal(t, "abc123", out.LastCommit)
	assert.Equal(t, "2026-03-01T12:00:00Z", out.IndexedAt)
	assert.Equal(t, "2026-03-01T13:00:00Z", out.ExportedAt)
	assert.Equal(t, 1, out.Stats.FileCount)
	require.Len(t, out.Files, 1)
	require.Len(t, out.Symbols, 1)
	assert.Empty(t, out.Edges)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, out))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "abc123", decoded["lastCommit"])
	files := decoded["files"].([]any)
	assert.Equal(t, "a.ts", files[0].(map[string]any)["path"])
}

func TestExportIndex_NotIndexed(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = ExportIndex(context.Background(), db, t.TempDir(), time.Now())
	assert.ErrorIs(t, err, store.ErrRepositoryNotFound)
}

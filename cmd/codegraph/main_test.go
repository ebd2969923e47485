package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/changes"
	"github.com/dusk-indust/codegraph/internal/config"
	"github.com/dusk-indust/codegraph/internal/graph"
)

func TestRelPath(t *testing.T) {
	root := t.TempDir()

	rel, err := relPath(root, filepath.Join(root, "src", "a.ts"))
	require.NoError(t, err)
	assert.Equal(t, "src/a.ts", rel)

	_, err = relPath(root, filepath.Dir(root))
	assert.Error(t, err)
	_, err = relPath(root, filepath.Join(filepath.Dir(root), "other.ts"))
	assert.Error(t, err)
}

func TestStatusPrefix(t *testing.T) {
	assert.Equal(t, "A", statusPrefix(changes.StatusAdded))
	assert.Equal(t, "M", statusPrefix(changes.StatusModified))
	assert.Equal(t, "D", statusPrefix(changes.StatusDeleted))
}

func TestOpenApp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "codegraph.yml"), []byte("database: idx/test.db\nworkers: 2\n"), 0o644))

	rootDir, configPath, dbPath = root, "", ""
	t.Cleanup(func() { rootDir = "." })

	a, err := openApp()
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, 2, a.cfg.Workers)
	assert.Equal(t, filepath.Join(root, "idx", "test.db"), a.db.Path())
}

func TestOpenGraph(t *testing.T) {
	root := t.TempDir()
	a := &app{root: root, cfg: &config.ProjectConfig{}}

	s, err := openGraph(a)
	require.NoError(t, err)
	assert.IsType(t, &graph.MemStore{}, s)
	require.NoError(t, s.Close())

	a.cfg.GraphDir = ".codegraph/graph"
	s, err = openGraph(a)
	require.NoError(t, err)
	assert.IsType(t, &graph.KuzuStore{}, s)
	require.NoError(t, s.Close())
	assert.DirExists(t, filepath.Join(root, ".codegraph"))
}

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/graph"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, int64(DefaultMaxFileSize), cfg.MaxFileSize)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.Workers)
	assert.Empty(t, cfg.GraphDir)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "codegraph.yaml"), []byte(`
database: /var/lib/codegraph/app.db
graphDir: .codegraph/graph
include: ["src/**"]
exclude: ["**/*.test.ts"]
languages: [ts, python]
workers: 3
maxFileSize: 1024
baseRef: main
tsconfig: tsconfig.app.json
`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/codegraph/app.db", cfg.Database)
	assert.Equal(t, ".codegraph/graph", cfg.GraphDir)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, int64(1024), cfg.MaxFileSize)
	assert.Equal(t, "main", cfg.BaseRef)
	assert.Equal(t, "tsconfig.app.json", cfg.TSConfig)

	opts := cfg.DiscoverOptions()
	assert.Equal(t, []string{"src/**"}, opts.Include)
	assert.Equal(t, []string{"**/*.test.ts"}, opts.Exclude)
	assert.Equal(t, []graph.Language{graph.LangTypeScript, graph.LangPython}, opts.Languages)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"malformed yaml":   "workers: [",
		"unknown language": "languages: [cobol]",
		"bad glob":         "exclude: ['src/[a']",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "codegraph.yml"), []byte(body), 0o644))
			_, err := Load(dir)
			assert.Error(t, err)
		})
	}
}

func TestResolve(t *testing.T) {
	assert.Equal(t, filepath.Join("/repo", ".codegraph", "index.db"), Resolve("/repo", DefaultDatabase))
	assert.Equal(t, filepath.Join("/repo", "graph"), Resolve("/repo", "./graph"))
	assert.Equal(t, "/abs/index.db", Resolve("/repo", "/abs/index.db"))
	assert.Empty(t, Resolve("/repo", ""))
}

func TestLoadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "ci.yml")
	require.NoError(t, os.WriteFile(p, []byte("workers: 1\n"), 0o644))

	cfg, err := LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, DefaultDatabase, cfg.Database)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

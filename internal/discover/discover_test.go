package discover

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/graph"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func paths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestFiles_FiltersAndOrders(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	writeFile(t, dir, "src/index.ts", "export {}")
	writeFile(t, dir, "src/app.tsx", "export {}")
	writeFile(t, dir, "main.go", "package main")
	writeFile(t, dir, "README.md", "# readme")
	writeFile(t, dir, ".hidden.ts", "")
	writeFile(t, dir, "node_modules/pkg/index.js", "")
	writeFile(t, dir, ".codegraph/cache.ts", "")
	writeFile(t, dir, "gen/out.ts", "")
	writeFile(t, dir, "logs/debug.ts", "")
	writeFile(t, dir, ".gitignore", "gen/\n*.log\nlogs\n")

	files, err := Collect(Files(context.Background(), dir, Options{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go", "src/app.tsx", "src/index.ts"}, paths(files))

	assert.Equal(t, graph.LangGo, files[0].Language)
	assert.Equal(t, filepath.Join(dir, "main.go"), files[0].AbsPath)
	assert.Equal(t, int64(len("package main")), files[0].Size)
	assert.False(t, files[0].ModTime.IsZero())
}

func TestFiles_Options(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	writeFile(t, dir, "src/a.ts", "")
	writeFile(t, dir, "src/a.test.ts", "")
	writeFile(t, dir, "src/b.py", "")
	writeFile(t, dir, "scripts/c.ts", "")

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"all", Options{}, []string{"scripts/c.ts", "src/a.test.ts", "src/a.ts", "src/b.py"}},
		{"include", Options{Include: []string{"src/**"}}, []string{"src/a.test.ts", "src/a.ts", "src/b.py"}},
		{"exclude", Options{Exclude: []string{"**/*.test.ts"}}, []string{"scripts/c.ts", "src/a.ts", "src/b.py"}},
		{"languages", Options{Languages: []graph.Language{graph.LangPython}}, []string{"src/b.py"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := Collect(Files(context.Background(), dir, tt.opts))
			require.NoError(t, err)
			assert.Equal(t, tt.want, paths(files))
		})
	}
}

func TestFiles_StopsEarly(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", "")
	writeFile(t, dir, "b.ts", "")
	writeFile(t, dir, "c.ts", "")

	var seen []string
	for f, err := range Files(context.Background(), dir, Options{}) {
		require.NoError(t, err)
		seen = append(seen, f.Path)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a.ts", "b.ts"}, seen)
}

func TestFiles_Cancelled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Collect(Files(ctx, dir, Options{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFiles_MissingRoot(t *testing.T) {
	t.Parallel()
	_, err := Collect(Files(context.Background(), filepath.Join(t.TempDir(), "nope"), Options{}))
	assert.Error(t, err)
}

func TestOptions_Validate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Options{Include: []string{"src/**/*.ts"}}.Validate())
	assert.Error(t, Options{Exclude: []string{"src/[a"}}.Validate())
}

func TestSkipDir(t *testing.T) {
	t.Parallel()
	assert.True(t, SkipDir("node_modules"))
	assert.True(t, SkipDir(".git"))
	assert.False(t, SkipDir("src"))
}

func TestOptions_Wanted(t *testing.T) {
	t.Parallel()
	opts := Options{Exclude: []string{"gen/**"}}
	tests := map[string]bool{
		"src/a.ts":            true,
		"src/.a.ts":           false,
		"node_modules/x/a.ts": false,
		"src/.cache/a.ts":     false,
		"gen/a.ts":            false,
		"docs/readme.md":      false,
		"pkg/sub/service.go":  true,
	}
	for rel, want := range tests {
		assert.Equal(t, want, opts.Wanted(rel), rel)
	}
}

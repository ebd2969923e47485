//go:build e2e

package e2e

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/indexer"
	"github.com/dusk-indust/codegraph/internal/store"
)

func fixtureRoot(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}

// indexFixture indexes a fixture project into a fresh database kept outside
// the fixture tree.
func indexFixture(t *testing.T, name string) (*indexer.Indexer, *store.DB, string) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	parser := graph.NewTreeSitterParser()
	t.Cleanup(func() { _ = parser.Close() })

	ix := indexer.New(db, parser, indexer.WithWorkers(4))
	root := fixtureRoot(name)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	res, err := ix.IndexRepository(ctx, root)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	return ix, db, root
}

func repoID(t *testing.T, db *store.DB, root string) string {
	t.Helper()
	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	repo, err := db.GetRepository(context.Background(), abs)
	require.NoError(t, err)
	return repo.ID
}

// TestPipeline_E2E_TSProject indexes the TypeScript fixture and checks the
// resolved graph, including tsconfig aliases inherited through extends.
func TestPipeline_E2E_TSProject(t *testing.T) {
	ix, db, root := indexFixture(t, "ts_project")
	ctx := context.Background()

	edges, err := db.Edges(ctx, repoID(t, db, root))
	require.NoError(t, err)

	var files, symbols []string
	for _, e := range edges {
		from, to := e.Endpoints()
		if e.Kind == graph.EdgeKindFileImport {
			files = append(files, from+" -> "+to)
		} else {
			symbols = append(symbols, e.FromSymbol.Name+" -> "+e.ToSymbol.Name)
		}
	}
	sort.Strings(files)
	sort.Strings(symbols)
	assert.Equal(t, []string{
		"src/index.ts -> src/lib/format.ts",
		"src/index.ts -> src/polyfills.ts",
		"src/index.ts -> src/services/user.ts",
		"src/services/user.ts -> src/lib/format.ts",
		"src/services/user.ts -> src/types.ts",
	}, files)
	assert.Equal(t, []string{
		"formatName -> capitalize",
		"load -> formatName",
		"main -> formatName",
		"main -> load",
	}, symbols)

	cycles, err := ix.FindCycles(ctx, root, "")
	require.NoError(t, err)
	assert.Empty(t, cycles)

	impact, err := ix.Impact(ctx, root, graph.NewMemStore(), []string{"src/lib/format.ts"})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/index.ts", "src/services/user.ts"}, impact.DirectlyAffected)
}

// TestPipeline_E2E_GoProject indexes the Go fixture.
func TestPipeline_E2E_GoProject(t *testing.T) {
	ix, _, root := indexFixture(t, "go_project")

	st, err := ix.Stats(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, st.FileCount)
	assert.Positive(t, st.SymbolCount)
}

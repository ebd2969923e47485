package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedStore projects a small graph: a imports b and c, b imports c, d
// imports a; symbol foo (a) calls bar (b).
func seedStore(t *testing.T, s Store) (foo, bar Symbol) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InitSchema(ctx))

	files := []SourceFile{
		{Path: "a.ts", Language: LangTypeScript, Method: ExtractionAST},
		{Path: "b.ts", Language: LangTypeScript, Method: ExtractionAST},
		{Path: "c.ts", Language: LangTypeScript, Method: ExtractionRegex},
		{Path: "d.ts", Language: LangTypeScript, Method: ExtractionAST},
	}
	foo = Symbol{Name: "foo", Kind: SymbolKindFunction, FilePath: "a.ts", LineStart: 1, LineEnd: 3, Exported: true, Method: ExtractionAST}
	bar = Symbol{Name: "bar", Kind: SymbolKindFunction, FilePath: "b.ts", LineStart: 1, LineEnd: 1, Exported: true, Method: ExtractionAST}
	edges := []Edge{
		FileEdge("a.ts", "b.ts", EdgeMetadata{ImportSource: "./b", ImportForm: ImportFormNamed}),
		FileEdge("a.ts", "c.ts", EdgeMetadata{ImportSource: "./c", ImportForm: ImportFormDefault}),
		FileEdge("b.ts", "c.ts", EdgeMetadata{ImportSource: "./c", ImportForm: ImportFormNamed}),
		FileEdge("d.ts", "a.ts", EdgeMetadata{ImportSource: "./a", ImportForm: ImportFormNamespace, Alias: "a"}),
		SymbolEdge(foo.Key(), bar.Key(), EdgeMetadata{Calls: 2, IsMethodCall: true}),
	}
	require.NoError(t, Project(ctx, s, files, []Symbol{foo, bar}, edges))
	return foo, bar
}

func chainNodes(chains []DependencyChain) [][]string {
	out := make([][]string, 0, len(chains))
	for _, c := range chains {
		out = append(out, c.Nodes)
	}
	return out
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestMemStore_Stats(t *testing.T) {
	s := NewMemStore()
	seedStore(t, s)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.FileCount)
	assert.Equal(t, 2, stats.SymbolCount)
	assert.Equal(t, 5, stats.EdgeCount)
}

func TestMemStore_GetDependencies(t *testing.T) {
	s := NewMemStore()
	foo, bar := seedStore(t, s)
	ctx := context.Background()

	tests := []struct {
		name      string
		node      string
		direction Direction
		depth     int
		want      [][]string
	}{
		{"direct dependencies", "a.ts", DirectionDependencies, 1, [][]string{{"a.ts", "b.ts"}, {"a.ts", "c.ts"}}},
		{"visited once", "a.ts", DirectionDependencies, 5, [][]string{{"a.ts", "b.ts"}, {"a.ts", "c.ts"}}},
		{"dependents", "c.ts", DirectionDependents, 1, [][]string{{"c.ts", "a.ts"}, {"c.ts", "b.ts"}}},
		{"transitive dependents", "c.ts", DirectionDependents, 2, [][]string{{"c.ts", "a.ts"}, {"c.ts", "b.ts"}, {"c.ts", "a.ts", "d.ts"}}},
		{"leaf", "c.ts", DirectionDependencies, 3, [][]string{}},
		{"zero depth", "a.ts", DirectionDependencies, 0, [][]string{}},
		{"symbol callees", foo.Key().String(), DirectionDependencies, 1, [][]string{{foo.Key().String(), bar.Key().String()}}},
		{"symbol callers", bar.Key().String(), DirectionDependents, 1, [][]string{{bar.Key().String(), foo.Key().String()}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chains, err := s.GetDependencies(ctx, tt.node, tt.direction, tt.depth)
			require.NoError(t, err)
			assert.Equal(t, tt.want, chainNodes(chains))
			for _, c := range chains {
				assert.Equal(t, len(c.Nodes)-1, c.Depth)
			}
		})
	}
}

func TestMemStore_AssessImpact(t *testing.T) {
	s := NewMemStore()
	seedStore(t, s)

	res, err := s.AssessImpact(context.Background(), []string{"c.ts"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.ts", "b.ts"}, res.DirectlyAffected)
	assert.Equal(t, []string{"a.ts", "b.ts", "d.ts"}, res.TransitivelyAffected)
	assert.InDelta(t, 0.75, res.RiskScore, 1e-9)

	res, err = s.AssessImpact(context.Background(), []string{"d.ts"})
	require.NoError(t, err)
	assert.Empty(t, res.DirectlyAffected)
	assert.Empty(t, res.TransitivelyAffected)
	assert.Zero(t, res.RiskScore)
}

func TestMemStore_GetAllEdgesAndReset(t *testing.T) {
	s := NewMemStore()
	seedStore(t, s)
	ctx := context.Background()

	edges, err := s.GetAllEdges(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 5)
	assert.Empty(t, DetectCycles(edges))

	require.NoError(t, s.Reset(ctx))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &GraphStats{}, stats)
}

func TestMemStore_RejectsInvalidEdge(t *testing.T) {
	s := NewMemStore()
	err := s.AddEdge(context.Background(), Edge{Kind: EdgeKindFileImport, FromFile: "a.ts"})
	assert.Error(t, err)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("dependents")
	require.NoError(t, err)
	assert.Equal(t, DirectionDependents, d)

	_, err = ParseDirection("upstream")
	assert.Error(t, err)
}

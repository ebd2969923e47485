package export

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/graph"
)

var (
	mainKey = graph.SymbolKey{FilePath: "main.ts", Name: "run", Line: 3}
	helpKey = graph.SymbolKey{FilePath: "lib/help.ts", Name: "help", Line: 1}
)

func TestEdgesMermaid(t *testing.T) {
	edges := []graph.Edge{
		graph.FileEdge("main.ts", "lib/help.ts", graph.EdgeMetadata{}),
		graph.SymbolEdge(mainKey, helpKey, graph.EdgeMetadata{Calls: 1}),
	}

	assert.Equal(t, "graph TD\n"+
		"  N0[\"main.ts\"]\n"+
		"  subgraph D1[\"lib\"]\n"+
		"    N1[\"help.ts\"]\n"+
		"  end\n"+
		"  N0 --> N1\n", EdgesMermaid(edges, graph.EdgeKindFileImport))

	assert.Equal(t, "graph TD\n"+
		"  N0[\"main.ts#run:3\"]\n"+
		"  subgraph D1[\"lib\"]\n"+
		"    N1[\"help.ts#help:1\"]\n"+
		"  end\n"+
		"  N0 --> N1\n", EdgesMermaid(edges, graph.EdgeKindSymbolUsage))
}

func TestChainsMermaid_DedupesArrows(t *testing.T) {
	out := ChainsMermaid([]graph.DependencyChain{
		{Nodes: []string{"a.ts", "b.ts"}, Depth: 1},
		{Nodes: []string{"a.ts", "b.ts", "c.ts"}, Depth: 2},
	})
	assert.Equal(t, "graph TD\n"+
		"  N0[\"a.ts\"]\n"+
		"  N1[\"b.ts\"]\n"+
		"  N2[\"c.ts\"]\n"+
		"  N0 --> N1\n"+
		"  N1 --> N2\n", out)
}

func TestCyclesMermaid(t *testing.T) {
	out := CyclesMermaid([]graph.CircularChain{
		{Kind: graph.EdgeKindFileImport, Nodes: []string{"a.ts", "b.ts", "a.ts"}},
	})
	assert.Contains(t, out, "  N0 --> N1\n")
	assert.Contains(t, out, "  N1 --> N0\n")
}

func TestGenerateMermaid(t *testing.T) {
	ctx := context.Background()
	s := graph.NewMemStore()
	require.NoError(t, s.InitSchema(ctx))
	require.NoError(t, graph.Project(ctx, s,
		[]graph.SourceFile{{Path: "main.ts"}, {Path: "lib/help.ts"}},
		[]graph.Symbol{
			{Name: "run", FilePath: "main.ts", LineStart: 3},
			{Name: "help", FilePath: "lib/help.ts", LineStart: 1},
		},
		[]graph.Edge{
			graph.FileEdge("main.ts", "lib/help.ts", graph.EdgeMetadata{}),
			graph.SymbolEdge(mainKey, helpKey, graph.EdgeMetadata{}),
		}))

	out, err := GenerateMermaid(ctx, s)
	require.NoError(t, err)
	assert.Contains(t, out, "N0 --> N1")
	assert.NotContains(t, out, "#run")
}

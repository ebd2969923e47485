package graph

import (
	"fmt"
	"sort"
	"strings"
)

// DetectCycles reports circular dependencies among file edges and, with
// the same procedure, among symbol edges.
//
// Each search is a depth-first walk with three node states. A back edge to
// a node on the current path yields the path slice from that node to the
// tip, closed by repeating the node. Nodes and neighbours are visited in
// sorted order so results are deterministic. Every cycle reported is real,
// but the set is not exhaustive: once a node is fully visited it is never
// re-entered, so cycles that share it with an earlier cycle can be missed
// in densely connected graphs.
func DetectCycles(edges []Edge) []CircularChain {
	var fileEdges, symbolEdges []Edge
	for _, e := range edges {
		switch e.Kind {
		case EdgeKindFileImport:
			fileEdges = append(fileEdges, e)
		case EdgeKindSymbolUsage:
			symbolEdges = append(symbolEdges, e)
		}
	}
	cycles := detectCycles(EdgeKindFileImport, fileEdges)
	return append(cycles, detectCycles(EdgeKindSymbolUsage, symbolEdges)...)
}

type visitState uint8

const (
	unvisited visitState = iota
	onPath
	done
)

func detectCycles(kind EdgeKind, edges []Edge) []CircularChain {
	adj := make(map[string][]string)
	for _, e := range edges {
		from, to := e.Endpoints()
		adj[from] = append(adj[from], to)
		if _, ok := adj[to]; !ok {
			adj[to] = nil
		}
	}
	nodes := make([]string, 0, len(adj))
	for n, next := range adj {
		nodes = append(nodes, n)
		sort.Strings(next)
	}
	sort.Strings(nodes)

	state := make(map[string]visitState, len(nodes))
	var path []string
	var cycles []CircularChain

	var visit func(n string)
	visit = func(n string) {
		state[n] = onPath
		path = append(path, n)
		for _, next := range adj[n] {
			switch state[next] {
			case unvisited:
				visit(next)
			case onPath:
				cycles = append(cycles, newChain(kind, path, next))
			}
		}
		path = path[:len(path)-1]
		state[n] = done
	}

	for _, n := range nodes {
		if state[n] == unvisited {
			visit(n)
		}
	}
	return cycles
}

// newChain cuts the loop starting at repeat out of path and closes it.
func newChain(kind EdgeKind, path []string, repeat string) CircularChain {
	start := len(path) - 1
	for start > 0 && path[start] != repeat {
		start--
	}
	nodes := make([]string, 0, len(path)-start+1)
	nodes = append(nodes, path[start:]...)
	nodes = append(nodes, repeat)

	label := "file"
	if kind == EdgeKindSymbolUsage {
		label = "symbol"
	}
	return CircularChain{
		Kind:        kind,
		Nodes:       nodes,
		Description: fmt.Sprintf("%s cycle of length %d: %s", label, len(nodes)-1, strings.Join(nodes, " -> ")),
	}
}

package graph

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
type MemStore struct {
	mu      sync.RWMutex
	files   map[string]SourceFile
	symbols map[SymbolKey]Symbol
	edges   []Edge
	out     map[string][]string // from -> to
	in      map[string][]string // to -> from
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	m := &MemStore{}
	m.reset()
	return m
}

func (m *MemStore) reset() {
	m.files = make(map[string]SourceFile)
	m.symbols = make(map[SymbolKey]Symbol)
	m.edges = nil
	m.out = make(map[string][]string)
	m.in = make(map[string][]string)
}

// InitSchema is a no-op for the in-memory store.
func (m *MemStore) InitSchema(_ context.Context) error {
	return nil
}

// Reset drops all nodes and edges.
func (m *MemStore) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

// AddFile stores a file keyed by its path.
func (m *MemStore) AddFile(_ context.Context, file SourceFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	file.Content = ""
	m.files[file.Path] = file
	return nil
}

// AddSymbol stores a symbol keyed by its SymbolKey.
func (m *MemStore) AddSymbol(_ context.Context, sym Symbol) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols[sym.Key()] = sym
	return nil
}

// AddEdge records an edge and its adjacency entries.
func (m *MemStore) AddEdge(_ context.Context, edge Edge) error {
	if err := edge.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	from, to := edge.Endpoints()
	m.edges = append(m.edges, edge)
	m.out[from] = append(m.out[from], to)
	m.in[to] = append(m.in[to], from)
	return nil
}

// GetDependencies performs a BFS on edges from nodeID in the given direction,
// up to maxDepth hops. It returns one DependencyChain per reachable node.
func (m *MemStore) GetDependencies(_ context.Context, nodeID string, direction Direction, maxDepth int) ([]DependencyChain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if maxDepth <= 0 {
		return nil, nil
	}

	// BFS state: each entry tracks the path from nodeID to the current node.
	type bfsEntry struct {
		id   string
		path []string
	}

	visited := map[string]bool{nodeID: true}
	queue := []bfsEntry{{id: nodeID, path: []string{nodeID}}}
	var chains []DependencyChain

	for depth := 0; depth < maxDepth && len(queue) > 0; depth++ {
		var nextQueue []bfsEntry
		for _, entry := range queue {
			for _, nb := range m.neighbors(entry.id, direction) {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				newPath := make([]string, len(entry.path), len(entry.path)+1)
				copy(newPath, entry.path)
				newPath = append(newPath, nb)
				chains = append(chains, DependencyChain{
					Nodes: newPath,
					Depth: len(newPath) - 1,
				})
				nextQueue = append(nextQueue, bfsEntry{id: nb, path: newPath})
			}
		}
		queue = nextQueue
	}

	return chains, nil
}

// neighbors returns ids one hop from id, sorted for stable output.
func (m *MemStore) neighbors(id string, direction Direction) []string {
	var src []string
	switch direction {
	case DirectionDependencies:
		src = m.out[id]
	case DirectionDependents:
		src = m.in[id]
	}
	out := make([]string, len(src))
	copy(out, src)
	sort.Strings(out)
	return out
}

// AssessImpact computes the blast radius of changing the given files by
// following file_import edges backwards to every importer.
func (m *MemStore) AssessImpact(_ context.Context, changedFiles []string) (*ImpactResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	changedSet := make(map[string]bool, len(changedFiles))
	for _, f := range changedFiles {
		changedSet[f] = true
	}

	importers := make(map[string][]string)
	for _, e := range m.edges {
		if e.Kind == EdgeKindFileImport {
			importers[e.ToFile] = append(importers[e.ToFile], e.FromFile)
		}
	}

	directSet := make(map[string]bool)
	for f := range changedSet {
		for _, imp := range importers[f] {
			if !changedSet[imp] {
				directSet[imp] = true
			}
		}
	}

	allAffected := make(map[string]bool, len(directSet))
	frontier := make([]string, 0, len(directSet))
	for f := range directSet {
		allAffected[f] = true
		frontier = append(frontier, f)
	}
	for len(frontier) > 0 {
		var next []string
		for _, f := range frontier {
			for _, imp := range importers[f] {
				if changedSet[imp] || allAffected[imp] {
					continue
				}
				allAffected[imp] = true
				next = append(next, imp)
			}
		}
		frontier = next
	}

	var risk float64
	if len(m.files) > 0 {
		risk = math.Min(1.0, float64(len(allAffected))/float64(len(m.files)))
	}
	return &ImpactResult{
		DirectlyAffected:     setToSlice(directSet),
		TransitivelyAffected: setToSlice(allAffected),
		RiskScore:            risk,
	}, nil
}

// GetAllEdges returns a copy of all edges in the store.
func (m *MemStore) GetAllEdges(_ context.Context) ([]Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Edge, len(m.edges))
	copy(out, m.edges)
	return out, nil
}

// Stats returns counts of files, symbols and edges.
func (m *MemStore) Stats(_ context.Context) (*GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &GraphStats{
		FileCount:   len(m.files),
		SymbolCount: len(m.symbols),
		EdgeCount:   len(m.edges),
	}, nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}

// setToSlice converts a string set to a sorted slice.
func setToSlice(s map[string]bool) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

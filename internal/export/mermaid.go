package export

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// GenerateMermaid produces a Mermaid graph TD diagram from a graph store.
// Files are grouped by directory; file_import edges become arrows.
func GenerateMermaid(ctx context.Context, store graph.Store) (string, error) {
	edges, err := store.GetAllEdges(ctx)
	if err != nil {
		return "", fmt.Errorf("get edges: %w", err)
	}
	return EdgesMermaid(edges, graph.EdgeKindFileImport), nil
}

// EdgesMermaid renders the edges of the given kind. Symbol nodes are grouped
// under the directory of their file.
func EdgesMermaid(edges []graph.Edge, kind graph.EdgeKind) string {
	d := newDiagram()
	var arrows [][2]string
	for _, e := range edges {
		if e.Kind != kind {
			continue
		}
		from, to := e.Endpoints()
		d.node(from)
		d.node(to)
		arrows = append(arrows, [2]string{from, to})
	}
	return d.render(arrows)
}

// ChainsMermaid renders dependency chains, one arrow per consecutive pair.
func ChainsMermaid(chains []graph.DependencyChain) string {
	d := newDiagram()
	seen := make(map[[2]string]bool)
	var arrows [][2]string
	for _, c := range chains {
		for i := 1; i < len(c.Nodes); i++ {
			a := [2]string{c.Nodes[i-1], c.Nodes[i]}
			d.node(a[0])
			d.node(a[1])
			if !seen[a] {
				seen[a] = true
				arrows = append(arrows, a)
			}
		}
	}
	return d.render(arrows)
}

// CyclesMermaid renders each cycle as a closed loop.
func CyclesMermaid(cycles []graph.CircularChain) string {
	chains := make([]graph.DependencyChain, len(cycles))
	for i, c := range cycles {
		chains[i] = graph.DependencyChain{Nodes: c.Nodes, Depth: len(c.Nodes) - 1}
	}
	return ChainsMermaid(chains)
}

// diagram assigns Mermaid-safe ids (alphanumeric only) in first-seen order.
type diagram struct {
	ids   map[string]string
	order []string
}

func newDiagram() *diagram {
	return &diagram{ids: make(map[string]string)}
}

func (d *diagram) node(id string) string {
	if n, ok := d.ids[id]; ok {
		return n
	}
	n := fmt.Sprintf("N%d", len(d.order))
	d.ids[id] = n
	d.order = append(d.order, id)
	return n
}

func (d *diagram) render(arrows [][2]string) string {
	groups := make(map[string][]string)
	for _, id := range d.order {
		dir := nodeDir(id)
		groups[dir] = append(groups[dir], id)
	}
	dirs := make([]string, 0, len(groups))
	for dir := range groups {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var sb strings.Builder
	sb.WriteString("graph TD\n")
	for i, dir := range dirs {
		members := groups[dir]
		sort.Strings(members)
		if dir == "." {
			for _, m := range members {
				fmt.Fprintf(&sb, "  %s[\"%s\"]\n", d.ids[m], label(m))
			}
			continue
		}
		fmt.Fprintf(&sb, "  subgraph D%d[\"%.40s\"]\n", i, dir)
		for _, m := range members {
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", d.ids[m], label(m))
		}
		sb.WriteString("  end\n")
	}
	for _, a := range arrows {
		fmt.Fprintf(&sb, "  %s --> %s\n", d.ids[a[0]], d.ids[a[1]])
	}
	return sb.String()
}

// nodeDir returns the directory of a file path or of a symbol's file.
func nodeDir(id string) string {
	if k, ok := graph.ParseSymbolKey(id); ok {
		id = k.FilePath
	}
	return path.Dir(id)
}

// label shortens a node id to its base name (plus symbol) and escapes quotes.
func label(id string) string {
	if k, ok := graph.ParseSymbolKey(id); ok {
		id = fmt.Sprintf("%s#%s:%d", path.Base(k.FilePath), k.Name, k.Line)
	} else {
		id = path.Base(id)
	}
	return strings.ReplaceAll(id, `"`, "#quot;")
}

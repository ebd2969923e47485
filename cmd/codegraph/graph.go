package main

import (
	"fmt"

	"github.com/dusk-indust/codegraph/internal/config"
	"github.com/dusk-indust/codegraph/internal/graph"
)

// openGraph returns the traversal store: the persistent Kuzu projection when
// graphDir is configured, otherwise an in-memory one.
func openGraph(a *app) (graph.Store, error) {
	if a.cfg.GraphDir == "" {
		return graph.NewMemStore(), nil
	}
	s, err := graph.NewKuzuFileStore(config.Resolve(a.root, a.cfg.GraphDir))
	if err != nil {
		return nil, fmt.Errorf("open graph: %w", err)
	}
	return s, nil
}

package graph

import (
	"io"
	"log/slog"
)

// EdgeBuilder derives file and symbol edges from references. It holds a
// read-only snapshot of every known symbol, so one builder serves a whole
// batch after per-file extraction has completed.
type EdgeBuilder struct {
	resolver      *Resolver
	logger        *slog.Logger
	byName        map[string][]Symbol
	symbolsByFile map[string][]Symbol
}

// NewEdgeBuilder indexes symbols by name and by file. A nil logger
// discards output.
func NewEdgeBuilder(resolver *Resolver, symbols []Symbol, logger *slog.Logger) *EdgeBuilder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b := &EdgeBuilder{
		resolver:      resolver,
		logger:        logger,
		byName:        make(map[string][]Symbol),
		symbolsByFile: make(map[string][]Symbol),
	}
	for _, s := range symbols {
		b.byName[s.Name] = append(b.byName[s.Name], s)
		b.symbolsByFile[s.FilePath] = append(b.symbolsByFile[s.FilePath], s)
	}
	return b
}

// Build returns all outgoing edges of file: file edges first, then symbol
// edges.
func (b *EdgeBuilder) Build(file string, lang Language, refs []Reference) []Edge {
	edges := b.FileEdges(file, lang, refs)
	return append(edges, b.SymbolEdges(file, refs)...)
}

// FileEdges resolves every import reference of file and emits one edge per
// distinct target file. Unresolved imports are logged and skipped.
func (b *EdgeBuilder) FileEdges(file string, lang Language, refs []Reference) []Edge {
	var edges []Edge
	seen := make(map[string]bool)
	for _, ref := range refs {
		if ref.Kind != ReferenceKindImport {
			continue
		}
		source := ref.Metadata.ImportSource
		if source == "" {
			continue
		}
		target, ok := b.resolver.Resolve(lang, source, file)
		if !ok {
			b.logger.Debug("unresolved import", "file", file, "source", source, "line", ref.Line)
			continue
		}
		if target == file || seen[target] {
			continue
		}
		seen[target] = true
		edges = append(edges, FileEdge(file, target, EdgeMetadata{
			ImportSource: source,
			Alias:        ref.Metadata.Alias,
			ImportForm:   ref.Metadata.ImportForm,
		}))
	}
	return edges
}

// SymbolEdges links the innermost symbol enclosing each call to its
// callee. Calls outside any symbol, calls to unknown names, and ambiguous
// names are skipped. Repeated calls between the same pair collapse into one
// edge whose Calls metadata counts them.
func (b *EdgeBuilder) SymbolEdges(file string, refs []Reference) []Edge {
	var edges []Edge
	index := make(map[[2]SymbolKey]int)
	for _, ref := range refs {
		if ref.Kind != ReferenceKindCall {
			continue
		}
		caller, ok := b.EnclosingSymbol(file, ref.Line)
		if !ok {
			continue
		}
		callee, ok := b.resolveCallee(file, ref)
		if !ok {
			continue
		}

		pair := [2]SymbolKey{caller.Key(), callee.Key()}
		if i, ok := index[pair]; ok {
			md := &edges[i].Metadata
			md.Calls++
			md.IsMethodCall = md.IsMethodCall || ref.Metadata.IsMethodCall
			md.OptionalChain = md.OptionalChain || ref.Metadata.OptionalChain
			continue
		}
		index[pair] = len(edges)
		edges = append(edges, SymbolEdge(pair[0], pair[1], EdgeMetadata{
			IsMethodCall:  ref.Metadata.IsMethodCall,
			OptionalChain: ref.Metadata.OptionalChain,
			Calls:         1,
		}))
	}
	return edges
}

// EnclosingSymbol returns the symbol of file with the smallest line range
// containing line. Ties go to the later-starting symbol.
func (b *EdgeBuilder) EnclosingSymbol(file string, line int) (Symbol, bool) {
	var best Symbol
	found := false
	for _, s := range b.symbolsByFile[file] {
		if !s.Contains(line) {
			continue
		}
		span := s.LineEnd - s.LineStart
		bestSpan := best.LineEnd - best.LineStart
		if !found || span < bestSpan || (span == bestSpan && s.LineStart > best.LineStart) {
			best, found = s, true
		}
	}
	return best, found
}

func (b *EdgeBuilder) resolveCallee(file string, ref Reference) (Symbol, bool) {
	candidates := b.byName[ref.TargetName]
	switch len(candidates) {
	case 0:
		return Symbol{}, false
	case 1:
		return candidates[0], true
	}

	var local []Symbol
	for _, c := range candidates {
		if c.FilePath == file {
			local = append(local, c)
		}
	}
	if len(local) == 1 {
		return local[0], true
	}
	b.logger.Info("ambiguous call target",
		"file", file, "line", ref.Line, "name", ref.TargetName, "candidates", len(candidates))
	return Symbol{}, false
}

package graph

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// DefaultMaxFileSize is the largest file the parser will build a tree for.
// Larger files go straight to the lexical fallback.
const DefaultMaxFileSize = 2 << 20

// extractor extracts symbols and references from a parsed tree-sitter AST.
type extractor interface {
	Extract(root *tree_sitter.Node, source []byte, filePath string) ([]Symbol, []Reference)
}

// ParseResult is the outcome of a tolerant parse. Exactly one of three
// shapes is returned: a clean tree, a recovered tree with Partial set and
// the primary error in Diagnostics, or no tree and the primary error.
type ParseResult struct {
	Tree        *tree_sitter.Tree
	Diagnostics []Diagnostic
	Partial     bool
}

// Close releases the tree, if any.
func (r *ParseResult) Close() {
	if r.Tree != nil {
		r.Tree.Close()
		r.Tree = nil
	}
}

// ParserOption configures a TreeSitterParser.
type ParserOption func(*TreeSitterParser)

// WithMaxFileSize sets the size limit above which no tree is built.
func WithMaxFileSize(n int64) ParserOption {
	return func(p *TreeSitterParser) {
		if n > 0 {
			p.maxFileSize = n
		}
	}
}

// WithClock overrides the time source used for SourceFile.IndexedAt.
func WithClock(now func() time.Time) ParserOption {
	return func(p *TreeSitterParser) {
		if now != nil {
			p.now = now
		}
	}
}

// TreeSitterParser implements the Parser interface using tree-sitter grammars.
// A new tree-sitter parser is created per parse, so one TreeSitterParser may
// be shared by concurrent extraction workers.
type TreeSitterParser struct {
	typescript  *tree_sitter.Language
	tsx         *tree_sitter.Language
	languages   map[Language]*tree_sitter.Language
	extractors  map[Language]extractor
	maxFileSize int64
	now         func() time.Time
}

// Compile-time check that TreeSitterParser satisfies Parser.
var _ Parser = (*TreeSitterParser)(nil)

// NewTreeSitterParser creates a TreeSitterParser with TypeScript/TSX, Go,
// Python, and Rust grammars registered.
func NewTreeSitterParser(opts ...ParserOption) *TreeSitterParser {
	p := &TreeSitterParser{
		typescript: tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
		tsx:        tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()),
		languages: map[Language]*tree_sitter.Language{
			LangGo:     tree_sitter.NewLanguage(tree_sitter_go.Language()),
			LangPython: tree_sitter.NewLanguage(tree_sitter_python.Language()),
			LangRust:   tree_sitter.NewLanguage(tree_sitter_rust.Language()),
		},
		extractors: map[Language]extractor{
			LangTypeScript: &tsExtractor{},
			LangJavaScript: &tsExtractor{},
			LangGo:         &goExtractor{},
			LangPython:     &pyExtractor{},
			LangRust:       &rsExtractor{},
		},
		maxFileSize: DefaultMaxFileSize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// grammarsFor returns the grammars to try, strict first. TypeScript and
// JavaScript files get the other TS dialect as the relaxed retry: TSX
// accepts JSX that the plain grammar rejects, and the plain grammar accepts
// `<T>expr` assertions that TSX rejects.
func (p *TreeSitterParser) grammarsFor(path string, lang Language) []*tree_sitter.Language {
	switch lang {
	case LangTypeScript, LangJavaScript:
		if isJSX(path) {
			return []*tree_sitter.Language{p.tsx, p.typescript}
		}
		return []*tree_sitter.Language{p.typescript, p.tsx}
	}
	if l, ok := p.languages[lang]; ok {
		return []*tree_sitter.Language{l}
	}
	return nil
}

// Parse turns file text into a syntax tree without ever failing. The
// strict grammar runs first; if its tree contains errors, the relaxed
// grammars are tried and the tree with the fewest error nodes is kept.
// Callers own the returned tree and must Close the result.
func (p *TreeSitterParser) Parse(path string, source []byte, lang Language) *ParseResult {
	if int64(len(source)) > p.maxFileSize {
		return failedParse(fmt.Sprintf("%v: %d bytes exceeds %d", ErrFileTooLarge, len(source), p.maxFileSize))
	}
	if !utf8.Valid(source) {
		return failedParse(ErrInvalidContent.Error())
	}
	grammars := p.grammarsFor(path, lang)
	if len(grammars) == 0 {
		return failedParse(fmt.Sprintf("%v: %s", ErrUnsupportedLanguage, lang))
	}

	strict := parseWith(grammars[0], source)
	if strict != nil && !strict.RootNode().HasError() {
		return &ParseResult{Tree: strict}
	}

	primary := Diagnostic{Line: 1, Message: "parser produced no tree"}
	best, bestErrs := strict, -1
	if strict != nil {
		primary = firstError(strict.RootNode(), source)
		bestErrs = countErrors(strict.RootNode())
	}
	for _, g := range grammars[1:] {
		t := parseWith(g, source)
		if t == nil {
			continue
		}
		n := countErrors(t.RootNode())
		if best == nil || n < bestErrs {
			if best != nil {
				best.Close()
			}
			best, bestErrs = t, n
			continue
		}
		t.Close()
	}

	if best == nil || !recoverable(best.RootNode()) {
		if best != nil {
			best.Close()
		}
		return &ParseResult{Diagnostics: []Diagnostic{primary}}
	}
	return &ParseResult{Tree: best, Diagnostics: []Diagnostic{primary}, Partial: true}
}

func failedParse(msg string) *ParseResult {
	return &ParseResult{Diagnostics: []Diagnostic{{Line: 1, Message: msg}}}
}

func parseWith(lang *tree_sitter.Language, source []byte) *tree_sitter.Tree {
	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(lang); err != nil {
		return nil
	}
	return parser.Parse(source, nil)
}

// Extract runs the full per-file extraction: tolerant parse, then the
// language's symbol and reference visitors, or the lexical fallback when no
// tree could be recovered.
func (p *TreeSitterParser) Extract(ctx context.Context, path string, source []byte) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lang := LanguageForPath(path)
	ext, ok := p.extractors[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, path)
	}

	x := &Extraction{
		File: SourceFile{
			Path:        path,
			Content:     string(source),
			Language:    lang,
			Size:        int64(len(source)),
			ContentHash: ContentHash(source),
			IndexedAt:   p.now().UTC(),
			Method:      ExtractionAST,
		},
	}

	res := p.Parse(path, source, lang)
	defer res.Close()
	x.Diagnostics = res.Diagnostics
	x.Partial = res.Partial

	if res.Tree == nil {
		if lang == LangTypeScript || lang == LangJavaScript {
			x.File.Method = ExtractionRegex
			x.Symbols = ExtractLexical(path, source)
		}
		return x, nil
	}

	x.Symbols, x.References = ext.Extract(res.Tree.RootNode(), source, path)
	return x, nil
}

// SupportedLanguages returns the languages this parser can handle.
func (p *TreeSitterParser) SupportedLanguages() []Language {
	langs := make([]Language, 0, len(p.extractors))
	for l := range p.extractors {
		langs = append(langs, l)
	}
	return langs
}

// Close is a no-op because parsers are created per Parse call.
func (p *TreeSitterParser) Close() error {
	return nil
}

// ---------- Error inspection ----------

// countErrors returns the number of ERROR and MISSING nodes under n.
func countErrors(n *tree_sitter.Node) int {
	if n == nil || !n.HasError() {
		return 0
	}
	count := 0
	if n.IsError() || n.IsMissing() {
		count++
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		count += countErrors(n.Child(i))
	}
	return count
}

// firstError locates the first ERROR or MISSING node in document order.
func firstError(n *tree_sitter.Node, source []byte) Diagnostic {
	if n.IsMissing() {
		return diagnosticAt(n, "missing "+n.Kind())
	}
	if n.IsError() {
		return diagnosticAt(n, "unexpected "+snippet(n.Utf8Text(source)))
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child != nil && child.HasError() {
			return firstError(child, source)
		}
	}
	return diagnosticAt(n, "syntax error")
}

func diagnosticAt(n *tree_sitter.Node, msg string) Diagnostic {
	pos := n.StartPosition()
	return Diagnostic{Line: int(pos.Row) + 1, Column: int(pos.Column), Message: msg}
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 24 {
		s = s[:24] + "..."
	}
	return fmt.Sprintf("%q", s)
}

// recoverable reports whether the tree has at least one well-formed
// top-level node worth extracting from.
func recoverable(root *tree_sitter.Node) bool {
	if root == nil || root.IsError() {
		return false
	}
	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "ERROR", "comment":
			continue
		}
		return true
	}
	return false
}

// ---------- Helpers shared by the language extractors ----------

func nodeSymbol(n *tree_sitter.Node, name string, kind SymbolKind, filePath string, exported bool) Symbol {
	start, end := n.StartPosition(), n.EndPosition()
	return Symbol{
		Name:      name,
		Kind:      kind,
		FilePath:  filePath,
		LineStart: int(start.Row) + 1,
		LineEnd:   int(end.Row) + 1,
		ColStart:  int(start.Column),
		ColEnd:    int(end.Column),
		Exported:  exported,
		Method:    ExtractionAST,
	}
}

func nodeReference(n *tree_sitter.Node, target string, kind ReferenceKind, filePath string, md ReferenceMetadata) Reference {
	pos := n.StartPosition()
	return Reference{
		TargetName: target,
		Kind:       kind,
		FilePath:   filePath,
		Line:       int(pos.Row) + 1,
		Column:     int(pos.Column),
		Metadata:   md,
	}
}

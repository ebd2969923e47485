package graph

import (
	"fmt"
	"strings"
	"time"
)

// --- Enums ---

// SymbolKind classifies symbols within the code graph.
type SymbolKind string

const (
	SymbolKindFunction  SymbolKind = "function"
	SymbolKindClass     SymbolKind = "class"
	SymbolKindInterface SymbolKind = "interface"
	SymbolKindType      SymbolKind = "type"
	SymbolKindVariable  SymbolKind = "variable"
	SymbolKindConstant  SymbolKind = "constant"
	SymbolKindMethod    SymbolKind = "method"
	SymbolKindProperty  SymbolKind = "property"
	SymbolKindEnum      SymbolKind = "enum"
)

// ReferenceKind classifies usage sites.
type ReferenceKind string

const (
	ReferenceKindImport         ReferenceKind = "import"
	ReferenceKindCall           ReferenceKind = "call"
	ReferenceKindPropertyAccess ReferenceKind = "property_access"
	ReferenceKindTypeReference  ReferenceKind = "type_reference"
)

// ImportForm records how an import binding was written.
type ImportForm string

const (
	ImportFormDefault    ImportForm = "default"
	ImportFormNamespace  ImportForm = "namespace"
	ImportFormNamed      ImportForm = "named"
	ImportFormSideEffect ImportForm = "side_effect"
	ImportFormRequire    ImportForm = "require"
	ImportFormDynamic    ImportForm = "dynamic"
	ImportFormReexport   ImportForm = "reexport"
	// ImportFormModule is used by languages whose imports name a module
	// rather than individual bindings (Go, Python, Rust).
	ImportFormModule ImportForm = "module"
)

// EdgeKind classifies dependency edges.
type EdgeKind string

const (
	EdgeKindFileImport  EdgeKind = "file_import"
	EdgeKindSymbolUsage EdgeKind = "symbol_usage"
)

// ExtractionMethod marks how a file's symbols were obtained. Regex results
// are approximate and downstream consumers may discount them.
type ExtractionMethod string

const (
	ExtractionAST   ExtractionMethod = "ast"
	ExtractionRegex ExtractionMethod = "regex"
)

// Language identifies a programming language for parsing.
type Language string

const (
	LangGo         Language = "go"
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangRust       Language = "rust"
)

// Tier1Languages are languages with full graph support.
var Tier1Languages = []Language{LangTypeScript, LangJavaScript, LangGo, LangPython, LangRust}

// AnonymousName is the sentinel name given to unnamed declarations such as
// `export default function () {}`.
const AnonymousName = "<anonymous>"

// --- Models ---

// SourceFile is a single indexed file. Path is project-relative and uses
// forward slashes.
type SourceFile struct {
	Path        string           `json:"path"`
	Content     string           `json:"-"`
	Language    Language         `json:"language"`
	Size        int64            `json:"size"`
	ContentHash string           `json:"contentHash,omitempty"`
	IndexedAt   time.Time        `json:"indexedAt"`
	Method      ExtractionMethod `json:"extractionMethod"`
}

// Symbol is a named, located code entity. Lines are 1-based, columns are
// 0-based byte offsets within the line.
type Symbol struct {
	Name           string           `json:"name"`
	Kind           SymbolKind       `json:"kind"`
	FilePath       string           `json:"filePath"`
	LineStart      int              `json:"lineStart"`
	LineEnd        int              `json:"lineEnd"`
	ColStart       int              `json:"colStart"`
	ColEnd         int              `json:"colEnd"`
	Signature      string           `json:"signature,omitempty"`
	Documentation  string           `json:"documentation,omitempty"`
	Exported       bool             `json:"exported"`
	Async          bool             `json:"async,omitempty"`
	AccessModifier string           `json:"accessModifier,omitempty"`
	Method         ExtractionMethod `json:"extractionMethod"`
}

// Key returns the identity of the symbol within the index.
func (s Symbol) Key() SymbolKey {
	return SymbolKey{FilePath: s.FilePath, Name: s.Name, Line: s.LineStart}
}

// Contains reports whether line falls inside the symbol's line range.
func (s Symbol) Contains(line int) bool {
	return s.LineStart <= line && line <= s.LineEnd
}

// SymbolKey identifies a symbol by file, name and start line.
type SymbolKey struct {
	FilePath string `json:"filePath"`
	Name     string `json:"name"`
	Line     int    `json:"line"`
}

// IsZero reports whether k is the zero key.
func (k SymbolKey) IsZero() bool {
	return k == SymbolKey{}
}

// String renders the key as "path#name:line", the node id used in cycles
// and in the graph projection.
func (k SymbolKey) String() string {
	return fmt.Sprintf("%s#%s:%d", k.FilePath, k.Name, k.Line)
}

// ParseSymbolKey is the inverse of SymbolKey.String.
func ParseSymbolKey(id string) (SymbolKey, bool) {
	colon := strings.LastIndex(id, ":")
	if colon < 0 {
		return SymbolKey{}, false
	}
	hash := strings.LastIndex(id[:colon], "#")
	if hash < 0 {
		return SymbolKey{}, false
	}
	// Private class members are named "#x".
	if hash > 0 && id[hash-1] == '#' {
		hash--
	}
	var line int
	if _, err := fmt.Sscanf(id[colon+1:], "%d", &line); err != nil {
		return SymbolKey{}, false
	}
	return SymbolKey{FilePath: id[:hash], Name: id[hash+1 : colon], Line: line}, true
}

// ReferenceMetadata carries kind-specific details of a Reference.
type ReferenceMetadata struct {
	ImportSource  string     `json:"importSource,omitempty"`
	ImportForm    ImportForm `json:"importForm,omitempty"`
	Alias         string     `json:"alias,omitempty"`
	TypeOnly      bool       `json:"typeOnly,omitempty"`
	IsMethodCall  bool       `json:"isMethodCall,omitempty"`
	OptionalChain bool       `json:"optionalChain,omitempty"`
	Receiver      string     `json:"receiver,omitempty"`
}

// Reference is a usage site inside a file.
type Reference struct {
	TargetName string            `json:"targetName"`
	Kind       ReferenceKind     `json:"kind"`
	FilePath   string            `json:"filePath"`
	Line       int               `json:"line"`
	Column     int               `json:"column"`
	Metadata   ReferenceMetadata `json:"metadata"`
}

// EdgeMetadata carries details of how an edge was derived.
type EdgeMetadata struct {
	ImportSource  string     `json:"importSource,omitempty"`
	Alias         string     `json:"alias,omitempty"`
	ImportForm    ImportForm `json:"importForm,omitempty"`
	IsMethodCall  bool       `json:"isMethodCall,omitempty"`
	OptionalChain bool       `json:"optionalChain,omitempty"`
	Calls         int        `json:"calls,omitempty"`
}

// Edge is a derived dependency. A file edge sets FromFile/ToFile, a symbol
// edge sets FromSymbol/ToSymbol; never both.
type Edge struct {
	Kind       EdgeKind     `json:"kind"`
	FromFile   string       `json:"fromFile,omitempty"`
	ToFile     string       `json:"toFile,omitempty"`
	FromSymbol SymbolKey    `json:"fromSymbol,omitzero"`
	ToSymbol   SymbolKey    `json:"toSymbol,omitzero"`
	Metadata   EdgeMetadata `json:"metadata"`
}

// FileEdge builds a file_import edge.
func FileEdge(from, to string, md EdgeMetadata) Edge {
	return Edge{Kind: EdgeKindFileImport, FromFile: from, ToFile: to, Metadata: md}
}

// SymbolEdge builds a symbol_usage edge.
func SymbolEdge(from, to SymbolKey, md EdgeMetadata) Edge {
	return Edge{Kind: EdgeKindSymbolUsage, FromSymbol: from, ToSymbol: to, Metadata: md}
}

// Validate checks that exactly one pair of endpoints is set and that it
// matches the edge kind.
func (e Edge) Validate() error {
	files := e.FromFile != "" && e.ToFile != ""
	symbols := !e.FromSymbol.IsZero() && !e.ToSymbol.IsZero()
	switch {
	case files && symbols:
		return fmt.Errorf("edge has both file and symbol endpoints")
	case e.Kind == EdgeKindFileImport && !files:
		return fmt.Errorf("file edge requires both file endpoints")
	case e.Kind == EdgeKindSymbolUsage && !symbols:
		return fmt.Errorf("symbol edge requires both symbol endpoints")
	case e.Kind != EdgeKindFileImport && e.Kind != EdgeKindSymbolUsage:
		return fmt.Errorf("unknown edge kind %q", e.Kind)
	}
	return nil
}

// Endpoints returns the node ids of the edge: file paths for file edges,
// SymbolKey strings for symbol edges.
func (e Edge) Endpoints() (string, string) {
	if e.Kind == EdgeKindSymbolUsage {
		return e.FromSymbol.String(), e.ToSymbol.String()
	}
	return e.FromFile, e.ToFile
}

// CircularChain is a closed loop of node ids; the first id is repeated at
// the end.
type CircularChain struct {
	Kind        EdgeKind `json:"kind"`
	Nodes       []string `json:"nodes"`
	Description string   `json:"description"`
}

// Contains reports whether id participates in the chain.
func (c CircularChain) Contains(id string) bool {
	for _, n := range c.Nodes {
		if n == id {
			return true
		}
	}
	return false
}

// Diagnostic is a parser message anchored to a position.
type Diagnostic struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d: %s", d.Line, d.Column, d.Message)
}

// DependencyChain is an ordered sequence of nodes forming a dependency path.
type DependencyChain struct {
	Nodes []string `json:"nodes"`
	Depth int      `json:"depth"`
}

// ImpactResult describes the blast radius of changing a set of files.
type ImpactResult struct {
	DirectlyAffected     []string `json:"directlyAffected"`     // files that import changed files
	TransitivelyAffected []string `json:"transitivelyAffected"` // full upstream closure
	RiskScore            float64  `json:"riskScore"`            // 0.0-1.0, share of files affected
}

// GraphStats summarizes an index.
type GraphStats struct {
	FileCount      int `json:"fileCount"`
	SymbolCount    int `json:"symbolCount"`
	ReferenceCount int `json:"referenceCount"`
	EdgeCount      int `json:"edgeCount"`
}

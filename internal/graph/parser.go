package graph

import (
	"context"
	"errors"
)

var (
	// ErrUnsupportedLanguage is returned for files no grammar is registered for.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrFileTooLarge marks content over the configured size limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrInvalidContent marks content that is not valid UTF-8.
	ErrInvalidContent = errors.New("content is not valid UTF-8")
)

// Extraction holds everything the pipeline derives from a single file
// before dependency edges are built.
type Extraction struct {
	File        SourceFile   `json:"file"`
	Symbols     []Symbol     `json:"symbols"`
	References  []Reference  `json:"references"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	// Partial is true when the syntax tree was recovered despite errors.
	Partial bool `json:"partial"`
}

// Degraded reports whether the symbols came from the lexical fallback.
func (x *Extraction) Degraded() bool {
	return x.File.Method == ExtractionRegex
}

// Parser extracts structural information from source files.
// Implementations: TreeSitterParser.
type Parser interface {
	// Extract parses source and runs the symbol and reference extractors.
	// Parse problems are reported through Extraction.Diagnostics; the error
	// is reserved for unsupported languages and context cancellation.
	Extract(ctx context.Context, path string, source []byte) (*Extraction, error)

	// SupportedLanguages returns the languages this parser can handle.
	SupportedLanguages() []Language

	// Close releases parser resources (Tree-sitter C memory).
	Close() error
}

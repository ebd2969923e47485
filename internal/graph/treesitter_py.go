package graph

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// pyExtractor extracts symbols and references from Python source files.
type pyExtractor struct{}

func (e *pyExtractor) Extract(root *tree_sitter.Node, source []byte, filePath string) ([]Symbol, []Reference) {
	var symbols []Symbol
	var refs []Reference

	cursor := root.Walk()
	defer cursor.Close()

	e.walk(cursor, source, filePath, &symbols, &refs)
	return symbols, refs
}

func (e *pyExtractor) walk(
	cursor *tree_sitter.TreeCursor,
	source []byte,
	filePath string,
	symbols *[]Symbol,
	refs *[]Reference,
) {
	node := cursor.Node()

	switch node.Kind() {
	case "function_definition":
		switch {
		case isPyTopLevel(node):
			if sym, ok := e.extractNamed(node, source, filePath, SymbolKindFunction); ok {
				*symbols = append(*symbols, sym)
			}
		case pyEnclosingClass(node) != nil:
			if sym, ok := e.extractNamed(node, source, filePath, SymbolKindMethod); ok {
				*symbols = append(*symbols, sym)
			}
		}

	case "class_definition":
		if isPyTopLevel(node) {
			if sym, ok := e.extractNamed(node, source, filePath, SymbolKindClass); ok {
				*symbols = append(*symbols, sym)
			}
		}

	case "import_statement":
		*refs = append(*refs, e.extractImport(node, source, filePath)...)
		return

	case "import_from_statement":
		*refs = append(*refs, e.extractFromImport(node, source, filePath)...)
		return

	case "call":
		if ref, ok := e.extractCall(node, source, filePath); ok {
			*refs = append(*refs, ref)
		}
	}

	if cursor.GotoFirstChild() {
		e.walk(cursor, source, filePath, symbols, refs)
		for cursor.GotoNextSibling() {
			e.walk(cursor, source, filePath, symbols, refs)
		}
		cursor.GotoParent()
	}
}

func (e *pyExtractor) extractNamed(node *tree_sitter.Node, source []byte, filePath string, kind SymbolKind) (Symbol, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Symbol{}, false
	}
	name := nameNode.Utf8Text(source)
	sym := nodeSymbol(node, name, kind, filePath, isPyExported(name))
	if params := node.ChildByFieldName("parameters"); params != nil {
		sym.Signature = name + params.Utf8Text(source)
	}
	sym.Async = hasChildKind(node, "async")
	return sym, true
}

// extractImport handles `import a.b` and `import a.b as c`.
func (e *pyExtractor) extractImport(node *tree_sitter.Node, source []byte, filePath string) []Reference {
	var refs []Reference
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		md := ReferenceMetadata{ImportForm: ImportFormModule}
		var module string
		switch child.Kind() {
		case "dotted_name":
			module = child.Utf8Text(source)
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				module = name.Utf8Text(source)
			}
			if alias := child.ChildByFieldName("alias"); alias != nil {
				md.Alias = alias.Utf8Text(source)
			}
		}
		if module == "" {
			continue
		}
		md.ImportSource = module
		refs = append(refs, nodeReference(child, module, ReferenceKindImport, filePath, md))
	}
	return refs
}

// extractFromImport handles `from m import a, b as c` and `from . import *`,
// one reference per imported name.
func (e *pyExtractor) extractFromImport(node *tree_sitter.Node, source []byte, filePath string) []Reference {
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return nil
	}
	module := moduleNode.Utf8Text(source)

	var refs []Reference
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if sameNode(child, moduleNode) {
			continue
		}
		md := ReferenceMetadata{ImportSource: module, ImportForm: ImportFormNamed}
		var name string
		switch child.Kind() {
		case "dotted_name":
			name = child.Utf8Text(source)
		case "aliased_import":
			if n := child.ChildByFieldName("name"); n != nil {
				name = n.Utf8Text(source)
			}
			if alias := child.ChildByFieldName("alias"); alias != nil {
				md.Alias = alias.Utf8Text(source)
			}
		case "wildcard_import":
			name = "*"
			md.ImportForm = ImportFormNamespace
		}
		if name == "" {
			continue
		}
		refs = append(refs, nodeReference(child, name, ReferenceKindImport, filePath, md))
	}
	return refs
}

func (e *pyExtractor) extractCall(node *tree_sitter.Node, source []byte, filePath string) (Reference, bool) {
	fnNode := node.ChildByFieldName("function")
	if fnNode == nil {
		return Reference{}, false
	}

	switch fnNode.Kind() {
	case "identifier":
		return nodeReference(node, fnNode.Utf8Text(source), ReferenceKindCall, filePath, ReferenceMetadata{}), true
	case "attribute":
		attr := fnNode.ChildByFieldName("attribute")
		if attr == nil {
			return Reference{}, false
		}
		md := ReferenceMetadata{IsMethodCall: true}
		if obj := fnNode.ChildByFieldName("object"); obj != nil && obj.Kind() == "identifier" {
			md.Receiver = obj.Utf8Text(source)
		}
		return nodeReference(attr, attr.Utf8Text(source), ReferenceKindCall, filePath, md), true
	}
	return Reference{}, false
}

// isPyTopLevel returns true if the node is at the module top level.
// A top-level node has a parent that is "module", or a parent that is
// "decorated_definition" whose own parent is "module".
func isPyTopLevel(node *tree_sitter.Node) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}
	if parent.Kind() == "module" {
		return true
	}
	if parent.Kind() == "decorated_definition" {
		grandparent := parent.Parent()
		return grandparent != nil && grandparent.Kind() == "module"
	}
	return false
}

// pyEnclosingClass returns the class a function is directly defined in,
// looking through a decorator wrapper and the class body block.
func pyEnclosingClass(node *tree_sitter.Node) *tree_sitter.Node {
	p := node.Parent()
	if p != nil && p.Kind() == "decorated_definition" {
		p = p.Parent()
	}
	if p == nil || p.Kind() != "block" {
		return nil
	}
	if cls := p.Parent(); cls != nil && cls.Kind() == "class_definition" {
		return cls
	}
	return nil
}

// isPyExported returns true if the name does not start with an underscore.
func isPyExported(name string) bool {
	return !strings.HasPrefix(name, "_")
}

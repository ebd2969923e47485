package graph

import (
	"strings"
	"unicode"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// goExtractor extracts symbols and references from Go source files.
type goExtractor struct{}

func (e *goExtractor) Extract(root *tree_sitter.Node, source []byte, filePath string) ([]Symbol, []Reference) {
	var symbols []Symbol
	var refs []Reference

	cursor := root.Walk()
	defer cursor.Close()

	e.walk(cursor, source, filePath, &symbols, &refs)
	return symbols, refs
}

func (e *goExtractor) walk(
	cursor *tree_sitter.TreeCursor,
	source []byte,
	filePath string,
	symbols *[]Symbol,
	refs *[]Reference,
) {
	node := cursor.Node()

	switch node.Kind() {
	case "function_declaration":
		if sym, ok := e.extractFunc(node, source, filePath, SymbolKindFunction); ok {
			*symbols = append(*symbols, sym)
		}

	case "method_declaration":
		if sym, ok := e.extractFunc(node, source, filePath, SymbolKindMethod); ok {
			*symbols = append(*symbols, sym)
		}

	case "type_spec":
		if sym, ok := e.extractTypeSpec(node, source, filePath); ok {
			*symbols = append(*symbols, sym)
		}

	case "const_spec", "var_spec":
		if isGoPackageLevel(node) {
			*symbols = append(*symbols, e.extractValueSpec(node, source, filePath)...)
		}

	case "import_spec":
		if ref, ok := e.extractImport(node, source, filePath); ok {
			*refs = append(*refs, ref)
		}
		return

	case "call_expression":
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

func (e *goExtractor) extractFunc(node *tree_sitter.Node, source []byte, filePath string, kind SymbolKind) (Symbol, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Symbol{}, false
	}
	name := nameNode.Utf8Text(source)
	sym := nodeSymbol(node, name, kind, filePath, isGoExported(name))
	if params := node.ChildByFieldName("parameters"); params != nil {
		sym.Signature = name + params.Utf8Text(source)
		if node.ChildByFieldName("result") != nil {
			sym.Signature += returnTypePlaceholder
		}
	}
	return sym, true
}

func (e *goExtractor) extractTypeSpec(node *tree_sitter.Node, source []byte, filePath string) (Symbol, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Symbol{}, false
	}
	name := nameNode.Utf8Text(source)

	kind := SymbolKindType
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		switch typeNode.Kind() {
		case "interface_type":
			kind = SymbolKindInterface
		case "struct_type":
			kind = SymbolKindClass
		}
	}
	return nodeSymbol(node, name, kind, filePath, isGoExported(name)), true
}

// extractValueSpec emits one symbol per name in a const or var spec; the
// names are the leading identifier children.
func (e *goExtractor) extractValueSpec(node *tree_sitter.Node, source []byte, filePath string) []Symbol {
	kind := SymbolKindVariable
	if node.Kind() == "const_spec" {
		kind = SymbolKindConstant
	}
	var out []Symbol
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() != "identifier" {
			break
		}
		name := child.Utf8Text(source)
		if name == "_" {
			continue
		}
		out = append(out, nodeSymbol(node, name, kind, filePath, isGoExported(name)))
	}
	return out
}

func (e *goExtractor) extractImport(node *tree_sitter.Node, source []byte, filePath string) (Reference, bool) {
	pathNode := node.ChildByFieldName("path")
	if pathNode == nil {
		return Reference{}, false
	}
	importPath := strings.Trim(pathNode.Utf8Text(source), "\"`")
	if importPath == "" {
		return Reference{}, false
	}

	md := ReferenceMetadata{ImportSource: importPath, ImportForm: ImportFormModule}
	if alias := node.ChildByFieldName("name"); alias != nil {
		md.Alias = alias.Utf8Text(source)
	}
	return nodeReference(node, importPath, ReferenceKindImport, filePath, md), true
}

func (e *goExtractor) extractCall(node *tree_sitter.Node, source []byte, filePath string) (Reference, bool) {
	fnNode := node.ChildByFieldName("function")
	if fnNode == nil {
		return Reference{}, false
	}

	// Best-effort: only simple identifiers and selector expressions.
	switch fnNode.Kind() {
	case "identifier":
		return nodeReference(node, fnNode.Utf8Text(source), ReferenceKindCall, filePath, ReferenceMetadata{}), true
	case "selector_expression":
		field := fnNode.ChildByFieldName("field")
		if field == nil {
			return Reference{}, false
		}
		md := ReferenceMetadata{IsMethodCall: true}
		if operand := fnNode.ChildByFieldName("operand"); operand != nil && operand.Kind() == "identifier" {
			md.Receiver = operand.Utf8Text(source)
		}
		return nodeReference(field, field.Utf8Text(source), ReferenceKindCall, filePath, md), true
	}
	return Reference{}, false
}

// isGoPackageLevel reports whether a spec sits directly in a top-level
// const or var declaration.
func isGoPackageLevel(spec *tree_sitter.Node) bool {
	for p := spec.Parent(); p != nil; p = p.Parent() {
		switch p.Kind() {
		case "const_declaration", "var_declaration", "var_spec_list":
			continue
		case "source_file":
			return true
		}
		return false
	}
	return false
}

// isGoExported returns true if the first rune of name is an uppercase letter.
func isGoExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

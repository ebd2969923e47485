package graph

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// rsExtractor extracts symbols and references from Rust source files.
type rsExtractor struct{}

func (e *rsExtractor) Extract(root *tree_sitter.Node, source []byte, filePath string) ([]Symbol, []Reference) {
	var symbols []Symbol
	var refs []Reference

	cursor := root.Walk()
	defer cursor.Close()

	e.walk(cursor, source, filePath, &symbols, &refs)
	return symbols, refs
}

func (e *rsExtractor) walk(
	cursor *tree_sitter.TreeCursor,
	source []byte,
	filePath string,
	symbols *[]Symbol,
	refs *[]Reference,
) {
	node := cursor.Node()

	switch node.Kind() {
	case "function_item":
		kind := SymbolKindFunction
		if isRustAssociated(node) {
			kind = SymbolKindMethod
		}
		if sym, ok := e.extractNamed(node, source, filePath, kind); ok {
			*symbols = append(*symbols, sym)
		}

	case "struct_item":
		if sym, ok := e.extractNamed(node, source, filePath, SymbolKindClass); ok {
			*symbols = append(*symbols, sym)
		}

	case "enum_item":
		if sym, ok := e.extractNamed(node, source, filePath, SymbolKindEnum); ok {
			*symbols = append(*symbols, sym)
		}

	case "trait_item":
		if sym, ok := e.extractNamed(node, source, filePath, SymbolKindInterface); ok {
			*symbols = append(*symbols, sym)
		}

	case "type_item":
		if sym, ok := e.extractNamed(node, source, filePath, SymbolKindType); ok {
			*symbols = append(*symbols, sym)
		}

	case "const_item":
		if sym, ok := e.extractNamed(node, source, filePath, SymbolKindConstant); ok {
			*symbols = append(*symbols, sym)
		}

	case "static_item":
		if sym, ok := e.extractNamed(node, source, filePath, SymbolKindVariable); ok {
			*symbols = append(*symbols, sym)
		}

	case "impl_item":
		// impl Trait for Type: the trait is a type reference.
		if trait := node.ChildByFieldName("trait"); trait != nil {
			*refs = append(*refs, nodeReference(trait, trait.Utf8Text(source), ReferenceKindTypeReference, filePath, ReferenceMetadata{}))
		}

	case "use_declaration":
		if ref, ok := e.extractUse(node, source, filePath); ok {
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

// extractNamed extracts a symbol from a node that has a "name" field child.
func (e *rsExtractor) extractNamed(node *tree_sitter.Node, source []byte, filePath string, kind SymbolKind) (Symbol, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Symbol{}, false
	}
	name := nameNode.Utf8Text(source)
	sym := nodeSymbol(node, name, kind, filePath, isRustPub(node))
	if params := node.ChildByFieldName("parameters"); params != nil {
		sym.Signature = name + params.Utf8Text(source)
		if node.ChildByFieldName("return_type") != nil {
			sym.Signature += returnTypePlaceholder
		}
	}
	if mods := childOfKind(node, "function_modifiers"); mods != nil {
		sym.Async = hasChildKind(mods, "async")
	}
	return sym, true
}

func (e *rsExtractor) extractUse(node *tree_sitter.Node, source []byte, filePath string) (Reference, bool) {
	// The argument is a scoped_identifier, use_wildcard, use_list or
	// use_as_clause; its full text is the import path.
	argNode := node.ChildByFieldName("argument")
	if argNode == nil {
		return Reference{}, false
	}
	importPath := argNode.Utf8Text(source)
	if importPath == "" {
		return Reference{}, false
	}
	md := ReferenceMetadata{ImportSource: importPath, ImportForm: ImportFormModule}
	if argNode.Kind() == "use_as_clause" {
		if alias := argNode.ChildByFieldName("alias"); alias != nil {
			md.Alias = alias.Utf8Text(source)
		}
	}
	return nodeReference(node, importPath, ReferenceKindImport, filePath, md), true
}

func (e *rsExtractor) extractCall(node *tree_sitter.Node, source []byte, filePath string) (Reference, bool) {
	fnNode := node.ChildByFieldName("function")
	if fnNode == nil {
		return Reference{}, false
	}

	switch fnNode.Kind() {
	case "identifier":
		return nodeReference(node, fnNode.Utf8Text(source), ReferenceKindCall, filePath, ReferenceMetadata{}), true
	case "scoped_identifier":
		name := fnNode.ChildByFieldName("name")
		if name == nil {
			return Reference{}, false
		}
		md := ReferenceMetadata{}
		if path := fnNode.ChildByFieldName("path"); path != nil {
			md.Receiver = path.Utf8Text(source)
		}
		return nodeReference(name, name.Utf8Text(source), ReferenceKindCall, filePath, md), true
	case "field_expression":
		field := fnNode.ChildByFieldName("field")
		if field == nil {
			return Reference{}, false
		}
		md := ReferenceMetadata{IsMethodCall: true}
		if value := fnNode.ChildByFieldName("value"); value != nil && (value.Kind() == "identifier" || value.Kind() == "self") {
			md.Receiver = value.Utf8Text(source)
		}
		return nodeReference(field, field.Utf8Text(source), ReferenceKindCall, filePath, md), true
	}
	return Reference{}, false
}

// isRustAssociated reports whether a function is defined inside an impl or
// trait body.
func isRustAssociated(node *tree_sitter.Node) bool {
	body := node.Parent()
	if body == nil || body.Kind() != "declaration_list" {
		return false
	}
	owner := body.Parent()
	return owner != nil && (owner.Kind() == "impl_item" || owner.Kind() == "trait_item")
}

// isRustPub checks if a node has a visibility_modifier child.
func isRustPub(node *tree_sitter.Node) bool {
	if node.ChildCount() == 0 {
		return false
	}
	first := node.Child(0)
	if first == nil {
		return false
	}
	return first.Kind() == "visibility_modifier"
}

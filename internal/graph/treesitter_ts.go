package graph

import (
	"sort"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// docWindow is how many lines a block comment may end above a declaration
// and still count as its documentation.
const docWindow = 5

// returnTypePlaceholder stands in for an annotated return type in
// signatures; the type text itself is not captured.
const returnTypePlaceholder = ": ..."

// tsExtractor extracts symbols and references from TypeScript and
// JavaScript source files.
type tsExtractor struct{}

func (e *tsExtractor) Extract(root *tree_sitter.Node, source []byte, filePath string) ([]Symbol, []Reference) {
	sv := &tsSymbolVisitor{source: source, filePath: filePath, comments: collectComments(root, source)}
	sv.visit(root, false)

	rv := &tsReferenceVisitor{source: source, filePath: filePath}
	rv.visit(root)

	return sv.symbols, rv.refs
}

// blockComment is a comment node reduced to what doc lookup needs.
type blockComment struct {
	startByte, endByte uint
	endLine            int
	text               string
}

func collectComments(root *tree_sitter.Node, source []byte) []blockComment {
	var out []blockComment
	cursor := root.Walk()
	defer cursor.Close()

	var walk func()
	walk = func() {
		node := cursor.Node()
		if tsKindOf(node) == tsComment {
			out = append(out, blockComment{
				startByte: node.StartByte(),
				endByte:   node.EndByte(),
				endLine:   endLine(node),
				text:      node.Utf8Text(source),
			})
			return
		}
		if cursor.GotoFirstChild() {
			walk()
			for cursor.GotoNextSibling() {
				walk()
			}
			cursor.GotoParent()
		}
	}
	walk()
	return out
}

// tsSymbolVisitor walks the tree carrying the export context and the
// file's comments.
type tsSymbolVisitor struct {
	source   []byte
	filePath string
	comments []blockComment
	symbols  []Symbol
}

func (v *tsSymbolVisitor) visit(n *tree_sitter.Node, exported bool) {
	if n == nil {
		return
	}
	switch tsKindOf(n) {
	case tsExportStatement:
		for i := uint(0); i < n.NamedChildCount(); i++ {
			child := n.NamedChild(i)
			switch k := tsKindOf(child); {
			case k.isFunctionValue():
				v.addFunction(child, AnonymousName, true)
				v.visitChildren(child)
			case k == tsClassExpression:
				v.addClass(child, true)
				v.visitChildren(child)
			default:
				v.visit(child, true)
			}
		}
		return

	case tsFunctionDeclaration, tsGeneratorFunctionDeclaration:
		v.addFunction(n, v.nameOf(n), exported)

	case tsClassDeclaration, tsAbstractClassDeclaration:
		v.addClass(n, exported)

	case tsInterfaceDeclaration:
		v.addNamed(n, SymbolKindInterface, exported)

	case tsTypeAliasDeclaration:
		v.addNamed(n, SymbolKindType, exported)

	case tsEnumDeclaration:
		v.addNamed(n, SymbolKindEnum, exported)

	case tsLexicalDeclaration, tsVariableDeclaration:
		if exported {
			v.addVariables(n)
		}
	}
	v.visitChildren(n)
}

func (v *tsSymbolVisitor) visitChildren(n *tree_sitter.Node) {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		v.visit(n.NamedChild(i), false)
	}
}

func (v *tsSymbolVisitor) nameOf(n *tree_sitter.Node) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return name.Utf8Text(v.source)
	}
	return AnonymousName
}

func (v *tsSymbolVisitor) symbol(n *tree_sitter.Node, name string, kind SymbolKind, exported bool) Symbol {
	start, end := n.StartPosition(), n.EndPosition()
	return Symbol{
		Name:          name,
		Kind:          kind,
		FilePath:      v.filePath,
		LineStart:     int(start.Row) + 1,
		LineEnd:       int(end.Row) + 1,
		ColStart:      int(start.Column),
		ColEnd:        int(end.Column),
		Documentation: v.docFor(n),
		Exported:      exported,
		Method:        ExtractionAST,
	}
}

func (v *tsSymbolVisitor) addNamed(n *tree_sitter.Node, kind SymbolKind, exported bool) {
	v.symbols = append(v.symbols, v.symbol(n, v.nameOf(n), kind, exported))
}

func (v *tsSymbolVisitor) addFunction(n *tree_sitter.Node, name string, exported bool) {
	sym := v.symbol(n, name, SymbolKindFunction, exported)
	sym.Signature = v.signature(name, n)
	sym.Async = hasChildKind(n, "async")
	v.symbols = append(v.symbols, sym)
}

// addClass emits the class and one symbol per method or field member.
// Members inherit the class's export status.
func (v *tsSymbolVisitor) addClass(n *tree_sitter.Node, exported bool) {
	v.symbols = append(v.symbols, v.symbol(n, v.nameOf(n), SymbolKindClass, exported))

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		member := body.NamedChild(i)
		var kind SymbolKind
		switch tsKindOf(member) {
		case tsMethodDefinition, tsAbstractMethodSignature:
			kind = SymbolKindMethod
		case tsPublicFieldDefinition:
			kind = SymbolKindProperty
		default:
			continue
		}
		nameNode := member.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := nameNode.Utf8Text(v.source)
		sym := v.symbol(member, name, kind, exported)
		if mod := childOfKind(member, "accessibility_modifier"); mod != nil {
			sym.AccessModifier = mod.Utf8Text(v.source)
		} else if nameNode.Kind() == "private_property_identifier" {
			sym.AccessModifier = "private"
		}
		if kind == SymbolKindMethod {
			sym.Signature = v.signature(name, member)
			sym.Async = hasChildKind(member, "async")
		}
		v.symbols = append(v.symbols, sym)
	}
}

// addVariables handles an exported const/let/var statement. Destructuring
// bindings are skipped.
func (v *tsSymbolVisitor) addVariables(n *tree_sitter.Node) {
	kind := SymbolKindVariable
	if tsKindOf(n) == tsLexicalDeclaration && hasChildKind(n, "const") {
		kind = SymbolKindConstant
	}
	for i := uint(0); i < n.NamedChildCount(); i++ {
		decl := n.NamedChild(i)
		if tsKindOf(decl) != tsVariableDeclarator {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		if nameNode == nil || nameNode.Kind() != "identifier" {
			continue
		}
		name := nameNode.Utf8Text(v.source)

		value := decl.ChildByFieldName("value")
		if value != nil && tsKindOf(value).isFunctionValue() {
			sym := v.symbol(decl, name, SymbolKindFunction, true)
			sym.Signature = v.signature(name, value)
			sym.Async = hasChildKind(value, "async")
			v.symbols = append(v.symbols, sym)
			continue
		}
		v.symbols = append(v.symbols, v.symbol(decl, name, kind, true))
	}
}

// ---------- Signatures ----------

// signature renders "name(a, b, ...rest)" plus a return-type placeholder
// when the function carries a return annotation.
func (v *tsSymbolVisitor) signature(name string, fn *tree_sitter.Node) string {
	var params []string
	if list := fn.ChildByFieldName("parameters"); list != nil {
		for i := uint(0); i < list.NamedChildCount(); i++ {
			if p := paramName(list.NamedChild(i), v.source); p != "" {
				params = append(params, p)
			}
		}
	} else if single := fn.ChildByFieldName("parameter"); single != nil {
		if p := paramName(single, v.source); p != "" {
			params = append(params, p)
		}
	}

	sig := name + "(" + strings.Join(params, ", ") + ")"
	if fn.ChildByFieldName("return_type") != nil {
		sig += returnTypePlaceholder
	}
	return sig
}

// paramName returns the identifier a parameter binds, "...name" for rest
// parameters, or "" for destructuring patterns.
func paramName(p *tree_sitter.Node, source []byte) string {
	if p == nil {
		return ""
	}
	switch p.Kind() {
	case "required_parameter", "optional_parameter":
		return paramName(p.ChildByFieldName("pattern"), source)
	case "assignment_pattern":
		return paramName(p.ChildByFieldName("left"), source)
	case "identifier":
		return p.Utf8Text(source)
	case "rest_pattern":
		for i := uint(0); i < p.NamedChildCount(); i++ {
			if inner := p.NamedChild(i); inner.Kind() == "identifier" {
				return "..." + inner.Utf8Text(source)
			}
		}
	}
	return ""
}

// ---------- Documentation ----------

// docFor returns the cleaned text of the block comment attached to n: the
// nearest comment before the declaration statement, separated from it only
// by whitespace and ending at most docWindow lines above it.
func (v *tsSymbolVisitor) docFor(n *tree_sitter.Node) string {
	anchor := n
	for p := anchor.Parent(); p != nil; p = p.Parent() {
		k := tsKindOf(p)
		if k != tsExportStatement && k != tsLexicalDeclaration && k != tsVariableDeclaration {
			break
		}
		anchor = p
	}
	at := anchor.StartByte()

	i := sort.Search(len(v.comments), func(i int) bool { return v.comments[i].endByte > at })
	if i == 0 {
		return ""
	}
	c := v.comments[i-1]
	if !strings.HasPrefix(c.text, "/*") {
		return ""
	}
	if startLine(anchor)-c.endLine > docWindow {
		return ""
	}
	if strings.TrimSpace(string(v.source[c.endByte:at])) != "" {
		return ""
	}
	return cleanDocComment(c.text)
}

// cleanDocComment strips comment delimiters and leading '*' markers.
func cleanDocComment(text string) string {
	text = strings.TrimSuffix(text, "*/")
	text = strings.TrimPrefix(text, "/**")
	text = strings.TrimPrefix(text, "/*")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "*")
		lines = append(lines, strings.TrimSpace(line))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

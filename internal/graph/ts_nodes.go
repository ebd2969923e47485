package graph

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// tsNode is the closed set of TypeScript/JavaScript node kinds the visitors
// act on. Everything else maps to tsOther and is only descended into.
type tsNode uint8

const (
	tsOther tsNode = iota
	tsComment
	tsExportStatement
	tsFunctionDeclaration
	tsGeneratorFunctionDeclaration
	tsClassDeclaration
	tsAbstractClassDeclaration
	tsInterfaceDeclaration
	tsTypeAliasDeclaration
	tsEnumDeclaration
	tsLexicalDeclaration
	tsVariableDeclaration
	tsVariableDeclarator
	tsMethodDefinition
	tsAbstractMethodSignature
	tsPublicFieldDefinition
	tsArrowFunction
	tsFunctionExpression
	tsGeneratorFunction
	tsClassExpression
	tsImportStatement
	tsCallExpression
	tsMemberExpression
	tsTypeIdentifier
	tsNestedTypeIdentifier
)

var tsNodeKinds = map[string]tsNode{
	"comment":                        tsComment,
	"export_statement":               tsExportStatement,
	"function_declaration":           tsFunctionDeclaration,
	"generator_function_declaration": tsGeneratorFunctionDeclaration,
	"class_declaration":              tsClassDeclaration,
	"abstract_class_declaration":     tsAbstractClassDeclaration,
	"interface_declaration":          tsInterfaceDeclaration,
	"type_alias_declaration":         tsTypeAliasDeclaration,
	"enum_declaration":               tsEnumDeclaration,
	"lexical_declaration":            tsLexicalDeclaration,
	"variable_declaration":           tsVariableDeclaration,
	"variable_declarator":            tsVariableDeclarator,
	"method_definition":              tsMethodDefinition,
	"abstract_method_signature":      tsAbstractMethodSignature,
	"public_field_definition":        tsPublicFieldDefinition,
	"arrow_function":                 tsArrowFunction,
	"function_expression":            tsFunctionExpression,
	"function":                       tsFunctionExpression,
	"generator_function":             tsGeneratorFunction,
	"class":                          tsClassExpression,
	"import_statement":               tsImportStatement,
	"call_expression":                tsCallExpression,
	"member_expression":              tsMemberExpression,
	"type_identifier":                tsTypeIdentifier,
	"nested_type_identifier":         tsNestedTypeIdentifier,
}

func tsKindOf(n *tree_sitter.Node) tsNode {
	if n == nil {
		return tsOther
	}
	return tsNodeKinds[n.Kind()]
}

// isFunctionValue reports whether an initializer makes a variable a function.
func (k tsNode) isFunctionValue() bool {
	switch k {
	case tsArrowFunction, tsFunctionExpression, tsGeneratorFunction:
		return true
	}
	return false
}

// ---------- Node helpers shared by the TS visitors ----------

func sameNode(a, b *tree_sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Kind() == b.Kind()
}

// hasChildKind reports whether n has a direct child (named or anonymous)
// of the given kind.
func hasChildKind(n *tree_sitter.Node, kind string) bool {
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && c.Kind() == kind {
			return true
		}
	}
	return false
}

// childOfKind returns the first direct child of the given kind.
func childOfKind(n *tree_sitter.Node, kind string) *tree_sitter.Node {
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && c.Kind() == kind {
			return c
		}
	}
	return nil
}

func startLine(n *tree_sitter.Node) int { return int(n.StartPosition().Row) + 1 }
func endLine(n *tree_sitter.Node) int   { return int(n.EndPosition().Row) + 1 }

func unquote(s string) string {
	return strings.Trim(s, "\"'`")
}

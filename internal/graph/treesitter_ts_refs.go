package graph

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// maxReceiverLen bounds the receiver text recorded on method calls.
const maxReceiverLen = 64

// tsReferenceVisitor collects usage sites: one import reference per
// binding, calls, non-callee property accesses, and type references.
type tsReferenceVisitor struct {
	source   []byte
	filePath string
	refs     []Reference
}

func (v *tsReferenceVisitor) add(n *tree_sitter.Node, target string, kind ReferenceKind, md ReferenceMetadata) {
	pos := n.StartPosition()
	v.refs = append(v.refs, Reference{
		TargetName: target,
		Kind:       kind,
		FilePath:   v.filePath,
		Line:       int(pos.Row) + 1,
		Column:     int(pos.Column),
		Metadata:   md,
	})
}

func (v *tsReferenceVisitor) text(n *tree_sitter.Node) string {
	return n.Utf8Text(v.source)
}

func (v *tsReferenceVisitor) visit(n *tree_sitter.Node) {
	if n == nil {
		return
	}
	switch tsKindOf(n) {
	case tsImportStatement:
		v.addImport(n)
		return

	case tsExportStatement:
		if src := n.ChildByFieldName("source"); src != nil {
			v.addReexport(n, unquote(v.text(src)))
			return
		}

	case tsCallExpression:
		v.addCall(n)
		return

	case tsMemberExpression:
		v.addPropertyAccess(n)
		v.visit(n.ChildByFieldName("object"))
		return

	case tsTypeIdentifier:
		if !isDeclarationName(n) {
			v.add(n, v.text(n), ReferenceKindTypeReference, ReferenceMetadata{})
		}
		return

	case tsNestedTypeIdentifier:
		if name := n.ChildByFieldName("name"); name != nil {
			v.add(name, v.text(name), ReferenceKindTypeReference, ReferenceMetadata{})
		}
		return
	}

	for i := uint(0); i < n.NamedChildCount(); i++ {
		v.visit(n.NamedChild(i))
	}
}

// ---------- Imports ----------

func (v *tsReferenceVisitor) addImport(n *tree_sitter.Node) {
	typeOnly := hasChildKind(n, "type")

	src := n.ChildByFieldName("source")
	if src == nil {
		// import x = require("y")
		if req := childOfKind(n, "import_require_clause"); req != nil {
			v.addRequireClause(req)
		}
		return
	}
	source := unquote(v.text(src))

	clause := childOfKind(n, "import_clause")
	if clause == nil {
		v.add(n, source, ReferenceKindImport, ReferenceMetadata{
			ImportSource: source,
			ImportForm:   ImportFormSideEffect,
			TypeOnly:     typeOnly,
		})
		return
	}

	for i := uint(0); i < clause.NamedChildCount(); i++ {
		c := clause.NamedChild(i)
		switch c.Kind() {
		case "identifier":
			v.add(c, v.text(c), ReferenceKindImport, ReferenceMetadata{
				ImportSource: source,
				ImportForm:   ImportFormDefault,
				TypeOnly:     typeOnly,
			})

		case "namespace_import":
			if id := childOfKind(c, "identifier"); id != nil {
				local := v.text(id)
				v.add(c, local, ReferenceKindImport, ReferenceMetadata{
					ImportSource: source,
					ImportForm:   ImportFormNamespace,
					Alias:        local,
					TypeOnly:     typeOnly,
				})
			}

		case "named_imports":
			for j := uint(0); j < c.NamedChildCount(); j++ {
				spec := c.NamedChild(j)
				if spec.Kind() != "import_specifier" {
					continue
				}
				name := spec.ChildByFieldName("name")
				if name == nil {
					continue
				}
				md := ReferenceMetadata{
					ImportSource: source,
					ImportForm:   ImportFormNamed,
					TypeOnly:     typeOnly || hasChildKind(spec, "type"),
				}
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					md.Alias = v.text(alias)
				}
				v.add(spec, unquote(v.text(name)), ReferenceKindImport, md)
			}
		}
	}
}

func (v *tsReferenceVisitor) addRequireClause(req *tree_sitter.Node) {
	src := req.ChildByFieldName("source")
	id := childOfKind(req, "identifier")
	if src == nil || id == nil {
		return
	}
	v.add(req, v.text(id), ReferenceKindImport, ReferenceMetadata{
		ImportSource: unquote(v.text(src)),
		ImportForm:   ImportFormRequire,
	})
}

// addReexport handles `export { a as b } from "x"` and `export * from "x"`.
func (v *tsReferenceVisitor) addReexport(n *tree_sitter.Node, source string) {
	md := ReferenceMetadata{ImportSource: source, ImportForm: ImportFormReexport, TypeOnly: hasChildKind(n, "type")}

	if clause := childOfKind(n, "export_clause"); clause != nil {
		for i := uint(0); i < clause.NamedChildCount(); i++ {
			spec := clause.NamedChild(i)
			if spec.Kind() != "export_specifier" {
				continue
			}
			name := spec.ChildByFieldName("name")
			if name == nil {
				continue
			}
			specMD := md
			if alias := spec.ChildByFieldName("alias"); alias != nil {
				specMD.Alias = v.text(alias)
			}
			v.add(spec, unquote(v.text(name)), ReferenceKindImport, specMD)
		}
		return
	}

	if ns := childOfKind(n, "namespace_export"); ns != nil && ns.NamedChildCount() > 0 {
		md.Alias = unquote(v.text(ns.NamedChild(0)))
	}
	v.add(n, "*", ReferenceKindImport, md)
}

// ---------- Calls and member access ----------

// addCall classifies a call expression. The callee's own member node is not
// reported as a property access; its object and the arguments are visited.
func (v *tsReferenceVisitor) addCall(n *tree_sitter.Node) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")

	switch {
	case fn == nil:
	case fn.Kind() == "import":
		if s := firstStringArg(args); s != nil {
			v.add(n, unquote(v.text(s)), ReferenceKindImport, ReferenceMetadata{
				ImportSource: unquote(v.text(s)),
				ImportForm:   ImportFormDynamic,
			})
		}

	case fn.Kind() == "identifier":
		name := v.text(fn)
		if s := firstStringArg(args); name == "require" && s != nil {
			v.add(n, unquote(v.text(s)), ReferenceKindImport, ReferenceMetadata{
				ImportSource: unquote(v.text(s)),
				ImportForm:   ImportFormRequire,
			})
			break
		}
		v.add(n, name, ReferenceKindCall, ReferenceMetadata{OptionalChain: isOptionalChain(n)})

	case tsKindOf(fn) == tsMemberExpression:
		obj := fn.ChildByFieldName("object")
		if prop := fn.ChildByFieldName("property"); isPropertyName(prop) {
			v.add(prop, v.text(prop), ReferenceKindCall, ReferenceMetadata{
				IsMethodCall:  true,
				OptionalChain: isOptionalChain(fn) || isOptionalChain(n),
				Receiver:      v.receiver(obj),
			})
		}
		v.visit(obj)

	default:
		v.visit(fn)
	}

	v.visit(args)
}

// addPropertyAccess records `a.b` outside callee position. Computed access
// (`a[b]`) is a subscript expression and never reaches here.
func (v *tsReferenceVisitor) addPropertyAccess(n *tree_sitter.Node) {
	prop := n.ChildByFieldName("property")
	if !isPropertyName(prop) {
		return
	}
	v.add(prop, v.text(prop), ReferenceKindPropertyAccess, ReferenceMetadata{
		OptionalChain: isOptionalChain(n),
		Receiver:      v.receiver(n.ChildByFieldName("object")),
	})
}

func (v *tsReferenceVisitor) receiver(obj *tree_sitter.Node) string {
	if obj == nil {
		return ""
	}
	switch obj.Kind() {
	case "identifier", "this", "super", "member_expression":
		s := v.text(obj)
		if len(s) > maxReceiverLen {
			return ""
		}
		return s
	}
	return ""
}

func isPropertyName(n *tree_sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Kind() {
	case "property_identifier", "private_property_identifier":
		return true
	}
	return false
}

func isOptionalChain(n *tree_sitter.Node) bool {
	return hasChildKind(n, "optional_chain") || hasChildKind(n, "?.")
}

func firstStringArg(args *tree_sitter.Node) *tree_sitter.Node {
	if args == nil || args.NamedChildCount() == 0 {
		return nil
	}
	if first := args.NamedChild(0); first.Kind() == "string" {
		return first
	}
	return nil
}

// isDeclarationName reports whether a type identifier is the name being
// declared rather than a use of the type.
func isDeclarationName(n *tree_sitter.Node) bool {
	parent := n.Parent()
	if parent == nil {
		return false
	}
	switch parent.Kind() {
	case "interface_declaration", "type_alias_declaration", "class_declaration",
		"abstract_class_declaration", "type_parameter":
		return sameNode(parent.ChildByFieldName("name"), n)
	}
	return false
}

//go:build cgo

package analysis

import (
	"fmt"
	"sort"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// scopePath locates a lexical scope: one id per enclosing function or block,
// outermost first. The module scope is the empty path.
type scopePath []int

func (s scopePath) with(id int) scopePath {
	out := make(scopePath, len(s), len(s)+1)
	copy(out, s)
	return append(out, id)
}

func (s scopePath) hasPrefix(prefix scopePath) bool {
	if len(prefix) > len(s) {
		return false
	}
	for i := range prefix {
		if s[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (s scopePath) String() string {
	parts := make([]string, len(s))
	for i, id := range s {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, "_")
}

var (
	scopedFunctionKinds = map[string]bool{
		"function_declaration":           true,
		"generator_function_declaration": true,
		"function_expression":            true,
		"function":                       true,
		"generator_function":             true,
		"arrow_function":                 true,
		"method_definition":              true,
	}
	scopedBlockKinds = map[string]bool{
		"statement_block":  true,
		"for_statement":    true,
		"for_in_statement": true,
	}
)

// scopeWalker visits every named node with the scope it belongs to. Ids are
// handed out in document order, so two walks over one tree agree.
type scopeWalker struct {
	next int
}

func (w *scopeWalker) walk(n *tree_sitter.Node, scope scopePath, fn func(*tree_sitter.Node, scopePath)) {
	fn(n, scope)

	kind := n.Kind()
	if scopedFunctionKinds[kind] {
		inner := scope.with(w.next)
		w.next++
		// A declared function name belongs to the enclosing scope.
		name := n.ChildByFieldName("name")
		eachNamedChild(n, func(_ int, child *tree_sitter.Node) {
			if sameNode(child, name) {
				w.walk(child, scope, fn)
				return
			}
			w.walk(child, inner, fn)
		})
		return
	}
	if scopedBlockKinds[kind] {
		scope = scope.with(w.next)
		w.next++
	}
	eachNamedChild(n, func(_ int, child *tree_sitter.Node) { w.walk(child, scope, fn) })
}

type declaration struct {
	name  string
	scope scopePath
}

type renamer struct {
	p     *parsed
	decls []declaration
	edits []edit
}

// alphaRename gives every identifier declared below module scope a name
// unique to its scope, "<name>$<scope path>", and updates the references to
// it. Shorthand properties are expanded so the property name is kept.
// Constructor parameters and class names are left alone.
func (p *parsed) alphaRename() []byte {
	r := &renamer{p: p}

	(&scopeWalker{}).walk(p.root, nil, r.collect)
	if len(r.decls) == 0 {
		return append([]byte(nil), p.src...)
	}
	sort.SliceStable(r.decls, func(i, j int) bool {
		return len(r.decls[i].scope) > len(r.decls[j].scope)
	})

	(&scopeWalker{}).walk(p.root, nil, r.rename)
	return applyEdits(p.src, r.edits)
}

func (r *renamer) collect(n *tree_sitter.Node, scope scopePath) {
	switch n.Kind() {
	case "variable_declarator":
		r.declare(n.ChildByFieldName("name"), scope)
	case "function_declaration", "generator_function_declaration":
		r.declare(n.ChildByFieldName("name"), scope)
	case "catch_clause":
		r.declare(n.ChildByFieldName("parameter"), scope)
	case "formal_parameters":
		if parent := n.Parent(); parent != nil && parent.Kind() == "method_definition" &&
			r.p.fieldText(parent, "name") == "constructor" {
			return
		}
		eachNamedChild(n, func(_ int, param *tree_sitter.Node) {
			if param.Kind() == "required_parameter" || param.Kind() == "optional_parameter" {
				r.declare(param.ChildByFieldName("pattern"), scope)
			}
		})
	}

	parent := n.Parent()
	if parent == nil {
		return
	}
	switch parent.Kind() {
	case "arrow_function":
		if sameNode(parent.ChildByFieldName("parameter"), n) {
			r.declare(n, scope)
		}
	case "for_in_statement":
		if parent.ChildByFieldName("kind") != nil && sameNode(parent.ChildByFieldName("left"), n) {
			r.declare(n, scope)
		}
	}
}

// declare records every name bound by a binding target.
func (r *renamer) declare(n *tree_sitter.Node, scope scopePath) {
	if n == nil {
		return
	}
	switch n.Kind() {
	case "identifier", "shorthand_property_identifier_pattern":
		r.decls = append(r.decls, declaration{name: r.p.text(n), scope: scope})
	case "pair_pattern":
		r.declare(n.ChildByFieldName("value"), scope)
	case "assignment_pattern", "object_assignment_pattern":
		r.declare(n.ChildByFieldName("left"), scope)
	case "object_pattern", "array_pattern", "rest_pattern":
		eachNamedChild(n, func(_ int, child *tree_sitter.Node) { r.declare(child, scope) })
	}
}

func (r *renamer) rename(n *tree_sitter.Node, scope scopePath) {
	kind := n.Kind()
	switch kind {
	case "identifier", "shorthand_property_identifier_pattern", "shorthand_property_identifier":
	default:
		return
	}

	name := r.p.text(n)
	renamed := r.resolve(name, scope)
	if renamed == "" {
		return
	}
	if kind != "identifier" {
		renamed = name + ": " + renamed
	}
	r.edits = append(r.edits, edit{start: int(n.StartByte()), end: int(n.EndByte()), text: renamed})
}

// resolve returns the scoped name of the innermost declaration of name
// visible from scope, or "" when it is declared at module scope or not at
// all.
func (r *renamer) resolve(name string, scope scopePath) string {
	for _, d := range r.decls {
		if d.name != name || !scope.hasPrefix(d.scope) {
			continue
		}
		if len(d.scope) == 0 {
			return ""
		}
		return name + "$" + d.scope.String()
	}
	return ""
}

// unscopedName strips the scope suffix added by alphaRename.
func unscopedName(name string) string {
	if i := strings.LastIndexByte(name, '$'); i > 0 {
		return name[:i]
	}
	return name
}

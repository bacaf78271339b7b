//go:build cgo

package analysis

import (
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// parsed is one parse tree together with the source it was built from. Nodes
// obtained from it are only valid until close.
type parsed struct {
	tree   *tree_sitter.Tree
	root   *tree_sitter.Node
	src    []byte
	python bool
}

func (a *Analyzer) parse(src []byte) (*parsed, error) {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(a.grammar); err != nil {
		return nil, fmt.Errorf("failed to set parser language: %w", err)
	}

	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse %s source: parser returned nil tree", a.language)
	}

	root := tree.RootNode()
	if root == nil {
		tree.Close()
		return nil, fmt.Errorf("failed to get root node from parsed tree")
	}

	return &parsed{tree: tree, root: root, src: src, python: a.python}, nil
}

func (p *parsed) close() {
	p.tree.Close()
}

func (p *parsed) text(n *tree_sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Utf8Text(p.src)
}

func (p *parsed) fieldText(n *tree_sitter.Node, field string) string {
	return p.text(n.ChildByFieldName(field))
}

func line(n *tree_sitter.Node) int {
	return int(n.StartPosition().Row) + 1
}

func sameNode(a, b *tree_sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Kind() == b.Kind()
}

func eachNamedChild(n *tree_sitter.Node, fn func(i int, child *tree_sitter.Node)) {
	count := n.NamedChildCount()
	for i := uint(0); i < count; i++ {
		if child := n.NamedChild(i); child != nil {
			fn(int(i), child)
		}
	}
}

// annotation returns the text that attaches typ to a slot of the given kind.
func (p *parsed) annotation(kind slotKind, typ string) string {
	if p.python && kind == slotReturn {
		return " -> " + typ
	}
	return ": " + typ
}

func isFunctionValue(n *tree_sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Kind() {
	case "arrow_function", "function_expression", "function":
		return true
	}
	return false
}

// boundName returns the variable name a function expression is assigned to
// in its declaration, or "" when it is not directly bound.
func (p *parsed) boundName(fn *tree_sitter.Node) string {
	parent := fn.Parent()
	if parent == nil || parent.Kind() != "variable_declarator" {
		return ""
	}
	if !sameNode(parent.ChildByFieldName("value"), fn) {
		return ""
	}
	name := parent.ChildByFieldName("name")
	if name == nil || name.Kind() != "identifier" {
		return ""
	}
	return p.text(name)
}

// syntaxError is one ERROR or MISSING node of a parse tree.
type syntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e syntaxError) String() string {
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

func (p *parsed) syntaxErrors() []syntaxError {
	if !p.root.HasError() {
		return nil
	}

	var errs []syntaxError
	var traverse func(*tree_sitter.Node)
	traverse = func(n *tree_sitter.Node) {
		if n == nil || !n.HasError() {
			return
		}
		if n.IsError() || n.IsMissing() {
			pos := n.StartPosition()
			errs = append(errs, syntaxError{
				Line:    int(pos.Row) + 1,
				Column:  int(pos.Column) + 1,
				Message: p.errorMessage(n),
			})
			return
		}
		count := n.ChildCount()
		for i := uint(0); i < count; i++ {
			traverse(n.Child(i))
		}
	}
	traverse(p.root)

	if len(errs) == 0 {
		pos := p.root.StartPosition()
		errs = append(errs, syntaxError{
			Line:    int(pos.Row) + 1,
			Column:  int(pos.Column) + 1,
			Message: "parsing failed with error recovery",
		})
	}
	return errs
}

func (p *parsed) errorMessage(n *tree_sitter.Node) string {
	if n.IsMissing() {
		return "missing " + n.Kind()
	}

	text := p.text(n)
	if len(text) > 50 {
		text = text[:50] + "..."
	}
	text = strings.ReplaceAll(text, "\n", "\\n")
	if text == "" {
		return "unexpected input"
	}
	return fmt.Sprintf("unexpected '%s'", text)
}

// comments returns the trimmed text of every comment in document order.
func (p *parsed) comments() []string {
	var out []string
	var walk func(*tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n.Kind() == "comment" {
			out = append(out, strings.TrimSpace(p.text(n)))
			return
		}
		eachNamedChild(n, func(_ int, child *tree_sitter.Node) { walk(child) })
	}
	walk(p.root)
	return out
}

type sigNode struct {
	kind string
	line int
}

// signature flattens the tree into its named node kinds, ignoring comments
// and type annotations, so that two sources differing only in annotations
// produce the same sequence.
func (p *parsed) signature() []sigNode {
	var out []sigNode
	var walk func(*tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		kind := n.Kind()
		if kind == "comment" || p.isAnnotation(n) {
			return
		}
		if kind = p.normalizeKind(kind); kind != "" {
			out = append(out, sigNode{kind: kind, line: line(n)})
		}
		eachNamedChild(n, func(_ int, child *tree_sitter.Node) { walk(child) })
	}
	walk(p.root)
	return out
}

func (p *parsed) isAnnotation(n *tree_sitter.Node) bool {
	if p.python {
		return n.Kind() == "type"
	}
	return strings.HasSuffix(n.Kind(), "annotation")
}

func (p *parsed) normalizeKind(kind string) string {
	if !p.python {
		return kind
	}
	switch kind {
	case "typed_parameter":
		return ""
	case "typed_default_parameter":
		return "default_parameter"
	}
	return kind
}

func compareSignatures(original, completed []sigNode) string {
	n := min(len(original), len(completed))
	for i := 0; i < n; i++ {
		if original[i].kind != completed[i].kind {
			return fmt.Sprintf("structure differs from the original at line %d: found %s, expected %s",
				completed[i].line, completed[i].kind, original[i].kind)
		}
	}
	switch {
	case len(completed) > n:
		return fmt.Sprintf("structure differs from the original: unexpected %s at line %d",
			completed[n].kind, completed[n].line)
	case len(original) > n:
		return fmt.Sprintf("structure differs from the original: missing %s from original line %d",
			original[n].kind, original[n].line)
	}
	return ""
}

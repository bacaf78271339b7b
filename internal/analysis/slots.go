//go:build cgo

package analysis

import (
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

type slotKind int

const (
	slotParam slotKind = iota
	slotReturn
	slotVariable
)

// slot is a place in the source that holds, or could hold, a type annotation.
type slot struct {
	kind slotKind
	// owner is the qualified name of the function for parameters and return
	// types, and of the enclosing scope for variables. Scopes are joined
	// with "$".
	owner string
	name  string

	hasType   bool
	typeStart int
	typeEnd   int
	// insertAt is where a missing annotation goes.
	insertAt int
	line     int
}

func (s *slot) key() string {
	return fmt.Sprintf("%s|%d|%s", s.owner, s.kind, s.name)
}

func (s *slot) describe() string {
	switch s.kind {
	case slotParam:
		return fmt.Sprintf("parameter %s of %s", s.name, s.owner)
	case slotReturn:
		return "return type of " + s.owner
	default:
		return "variable " + s.name
	}
}

type collector struct {
	p     *parsed
	slots []slot
}

// slots returns every annotation slot of the tree in document order.
// Destructuring patterns and single-parameter arrow functions without
// parentheses are skipped because they cannot take an annotation in place.
func (p *parsed) slots() []slot {
	c := &collector{p: p}
	if p.python {
		c.walkPython(p.root, "", false)
	} else {
		c.walkTS(p.root, "")
	}
	return c.slots
}

func (c *collector) add(kind slotKind, owner, name string, typ *tree_sitter.Node, insertAt int, at *tree_sitter.Node) {
	s := slot{
		kind:     kind,
		owner:    owner,
		name:     name,
		insertAt: insertAt,
		line:     line(at),
	}
	if typ != nil {
		s.hasType = true
		s.typeStart = int(typ.StartByte())
		s.typeEnd = int(typ.EndByte())
	}
	c.slots = append(c.slots, s)
}

func (c *collector) walkTS(n *tree_sitter.Node, scope string) {
	switch n.Kind() {
	case "function_declaration", "generator_function_declaration", "function_signature",
		"method_definition", "method_signature", "abstract_method_signature":
		if name := c.p.fieldText(n, "name"); name != "" {
			owner := scope + name
			c.tsFunction(n, owner, name == "constructor" && n.Kind() != "function_declaration")
			c.walkTSChildren(n, owner+"$")
			return
		}
	case "arrow_function", "function_expression", "function":
		if name := c.p.boundName(n); name != "" {
			owner := scope + name
			c.tsFunction(n, owner, false)
			c.walkTSChildren(n, owner+"$")
			return
		}
	case "variable_declarator":
		name := n.ChildByFieldName("name")
		if name != nil && name.Kind() == "identifier" && !isFunctionValue(n.ChildByFieldName("value")) {
			c.add(slotVariable, scope, c.p.text(name), tsType(n.ChildByFieldName("type")), int(name.EndByte()), n)
		}
	case "public_field_definition":
		if name := n.ChildByFieldName("name"); name != nil {
			c.add(slotVariable, scope, c.p.text(name), tsType(n.ChildByFieldName("type")), afterOptionalMark(n, name), n)
		}
	case "class_declaration", "abstract_class_declaration", "class":
		if name := c.p.fieldText(n, "name"); name != "" {
			c.walkTSChildren(n, scope+name+"$")
			return
		}
	}
	c.walkTSChildren(n, scope)
}

func (c *collector) walkTSChildren(n *tree_sitter.Node, scope string) {
	eachNamedChild(n, func(_ int, child *tree_sitter.Node) { c.walkTS(child, scope) })
}

func (c *collector) tsFunction(fn *tree_sitter.Node, owner string, constructor bool) {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		return
	}

	eachNamedChild(params, func(_ int, param *tree_sitter.Node) {
		if param.Kind() != "required_parameter" && param.Kind() != "optional_parameter" {
			return
		}
		pattern := param.ChildByFieldName("pattern")
		if pattern == nil || pattern.Kind() != "identifier" {
			return
		}
		c.add(slotParam, owner, c.p.text(pattern), tsType(param.ChildByFieldName("type")), afterOptionalMark(param, pattern), param)
	})

	if !constructor {
		c.add(slotReturn, owner, "", tsType(fn.ChildByFieldName("return_type")), int(params.EndByte()), fn)
	}
}

// tsType returns the type inside a type_annotation node.
func tsType(annotation *tree_sitter.Node) *tree_sitter.Node {
	if annotation == nil {
		return nil
	}
	return annotation.NamedChild(0)
}

// afterOptionalMark returns the offset just past name, or past the "?" that
// follows it in an optional parameter or field.
func afterOptionalMark(parent, name *tree_sitter.Node) int {
	end := name.EndByte()
	count := parent.ChildCount()
	for i := uint(0); i < count; i++ {
		child := parent.Child(i)
		if child != nil && child.Kind() == "?" && child.StartByte() >= end {
			return int(child.EndByte())
		}
	}
	return int(end)
}

func (c *collector) walkPython(n *tree_sitter.Node, scope string, inClass bool) {
	switch n.Kind() {
	case "function_definition":
		if name := c.p.fieldText(n, "name"); name != "" {
			owner := scope + name
			c.pyFunction(n, owner, inClass)
			c.walkPythonChildren(n, owner+"$", false)
			return
		}
	case "class_definition":
		if name := c.p.fieldText(n, "name"); name != "" {
			c.walkPythonChildren(n, scope+name+"$", true)
			return
		}
	case "assignment":
		left := n.ChildByFieldName("left")
		if left != nil && left.Kind() == "identifier" {
			c.add(slotVariable, scope, c.p.text(left), n.ChildByFieldName("type"), int(left.EndByte()), n)
		}
	}
	c.walkPythonChildren(n, scope, inClass)
}

func (c *collector) walkPythonChildren(n *tree_sitter.Node, scope string, inClass bool) {
	eachNamedChild(n, func(_ int, child *tree_sitter.Node) { c.walkPython(child, scope, inClass) })
}

func (c *collector) pyFunction(fn *tree_sitter.Node, owner string, method bool) {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		return
	}

	position := 0
	eachNamedChild(params, func(_ int, param *tree_sitter.Node) {
		first := position == 0
		switch param.Kind() {
		case "identifier":
			position++
			name := c.p.text(param)
			if method && first && (name == "self" || name == "cls") {
				return
			}
			c.add(slotParam, owner, name, nil, int(param.EndByte()), param)
		case "typed_parameter":
			position++
			c.add(slotParam, owner, c.p.text(pySplatName(param.NamedChild(0))), param.ChildByFieldName("type"), int(param.EndByte()), param)
		case "default_parameter", "typed_default_parameter":
			position++
			name := param.ChildByFieldName("name")
			if name == nil || name.Kind() != "identifier" {
				return
			}
			c.add(slotParam, owner, c.p.text(name), param.ChildByFieldName("type"), int(name.EndByte()), param)
		case "list_splat_pattern", "dictionary_splat_pattern":
			position++
			c.add(slotParam, owner, c.p.text(pySplatName(param)), nil, int(param.EndByte()), param)
		}
	})

	c.add(slotReturn, owner, "", fn.ChildByFieldName("return_type"), int(params.EndByte()), fn)
}

// pySplatName unwraps *args and **kwargs to their identifier.
func pySplatName(n *tree_sitter.Node) *tree_sitter.Node {
	if n == nil {
		return nil
	}
	switch n.Kind() {
	case "list_splat_pattern", "dictionary_splat_pattern":
		if inner := n.NamedChild(0); inner != nil {
			return inner
		}
	}
	return n
}

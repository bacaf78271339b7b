//go:build cgo

package analysis

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// memberSyntax names the node kinds and fields object info looks at.
type memberSyntax struct {
	member, object, property  string
	call, function, arguments string
	assign, target, value     string
}

var (
	tsMemberSyntax = memberSyntax{
		member: "member_expression", object: "object", property: "property",
		call: "call_expression", function: "function", arguments: "arguments",
		assign: "variable_declarator", target: "name", value: "value",
	}
	pyMemberSyntax = memberSyntax{
		member: "attribute", object: "object", property: "attribute",
		call: "call", function: "function", arguments: "arguments",
		assign: "assignment", target: "left", value: "right",
	}
)

// paramInfo is a parameter, or a member of one that was bound to a local
// name, together with the members used through it.
type paramInfo struct {
	name     string
	infos    []*FieldInfo
	children []*paramInfo
}

func (pi *paramInfo) child(name string) *paramInfo {
	for _, c := range pi.children {
		if c.name == name {
			return c
		}
	}
	c := &paramInfo{name: name}
	pi.children = append(pi.children, c)
	return c
}

func (pi *paramInfo) addField(id string) {
	if slices.ContainsFunc(pi.infos, func(f *FieldInfo) bool { return f.ID == id }) {
		return
	}
	pi.infos = append(pi.infos, &FieldInfo{Type: FieldKindField, ID: id})
}

// addCall records a method call. A call is more precise than a plain field
// of the same name and replaces it.
func (pi *paramInfo) addCall(call *FieldInfo) {
	pi.infos = withoutField(pi.infos, call.ID)
	if !slices.ContainsFunc(pi.infos, func(f *FieldInfo) bool { return sameCall(f, call) }) {
		pi.infos = append(pi.infos, call)
	}
}

func (pi *paramInfo) addObject(id string, inner *FieldInfo) {
	pi.infos = append(pi.infos, &FieldInfo{Type: FieldKindObject, ID: id, Fields: []*FieldInfo{inner}})
}

// fields returns the recorded members followed by the bound children.
func (pi *paramInfo) fields() []*FieldInfo {
	out := append([]*FieldInfo(nil), pi.infos...)
	for _, c := range pi.children {
		out = append(out, c.asField())
	}
	return out
}

func (pi *paramInfo) asField() *FieldInfo {
	fields := pi.fields()
	if len(fields) == 0 {
		return &FieldInfo{Type: FieldKindField, ID: pi.name}
	}
	return &FieldInfo{Type: FieldKindObject, ID: pi.name, Fields: fields}
}

// funcScope tracks the parameters of one function while its body is walked.
type funcScope struct {
	p      *parsed
	syntax *memberSyntax
	names  map[string]*paramInfo
	params []*paramInfo
}

func (f *funcScope) declare(name string) {
	if name == "" {
		return
	}
	pi := &paramInfo{name: name}
	f.names[name] = pi
	f.params = append(f.params, pi)
}

// visit walks n. pending is the member chain seen above n that still has to
// be attached to a parameter, innermost member first.
func (f *funcScope) visit(n *tree_sitter.Node, pending *FieldInfo) {
	s := f.syntax
	var through *tree_sitter.Node

	switch n.Kind() {
	case s.assign:
		if value := n.ChildByFieldName(s.value); value != nil {
			f.bind(n.ChildByFieldName(s.target), value)
		}
	case s.call:
		callee := n.ChildByFieldName(s.function)
		if callee == nil || callee.Kind() != s.member {
			break
		}
		through = callee
		obj := callee.ChildByFieldName(s.object)
		call := &FieldInfo{Type: FieldKindCall, ID: f.p.fieldText(callee, s.property), Args: f.args(n)}
		switch {
		case obj == nil:
		case obj.Kind() == s.member:
			if pending == nil {
				pending = call
			}
		case obj.Kind() == "identifier" && f.names[f.p.text(obj)] != nil:
			f.names[f.p.text(obj)].addCall(call)
		}
	case s.member:
		obj := n.ChildByFieldName(s.object)
		through = obj
		id := f.p.fieldText(n, s.property)
		switch {
		case obj == nil:
		case obj.Kind() == s.member:
			switch {
			case pending == nil:
				pending = &FieldInfo{Type: FieldKindField, ID: id}
			case pending.Type != FieldKindCall && pending.ID != id:
				pending = &FieldInfo{Type: FieldKindObject, ID: id, Fields: []*FieldInfo{pending}}
			}
		case obj.Kind() == "identifier" && f.names[f.p.text(obj)] != nil:
			pi := f.names[f.p.text(obj)]
			if pending != nil {
				pi.addObject(id, pending)
			} else {
				pi.addField(id)
			}
			pending = nil
		}
	}

	// Only the member chain itself carries pending on.
	eachNamedChild(n, func(_ int, child *tree_sitter.Node) {
		if sameNode(child, through) {
			f.visit(child, pending)
			return
		}
		f.visit(child, nil)
	})
}

// path resolves an identifier or member chain rooted at a known name.
func (f *funcScope) path(n *tree_sitter.Node) (*paramInfo, []string) {
	if n == nil {
		return nil, nil
	}
	switch n.Kind() {
	case "identifier":
		return f.names[f.p.text(n)], nil
	case f.syntax.member:
		root, rest := f.path(n.ChildByFieldName(f.syntax.object))
		if root == nil {
			return nil, nil
		}
		return root, append(rest, f.p.fieldText(n, f.syntax.property))
	}
	return nil, nil
}

func (f *funcScope) args(call *tree_sitter.Node) [][]string {
	list := call.ChildByFieldName(f.syntax.arguments)
	if list == nil {
		return nil
	}
	var args [][]string
	eachNamedChild(list, func(_ int, arg *tree_sitter.Node) {
		if arg.Kind() == "comment" {
			return
		}
		root, rest := f.path(arg)
		if root == nil {
			args = append(args, nil)
			return
		}
		args = append(args, append([]string{root.name}, rest...))
	})
	return args
}

// bind follows a local alias of a parameter or of one of its members.
func (f *funcScope) bind(target, value *tree_sitter.Node) {
	if target == nil {
		return
	}
	root, rest := f.path(value)
	if root == nil {
		return
	}
	for _, name := range rest {
		root = root.child(name)
	}
	f.bindPattern(target, root)
}

func (f *funcScope) bindPattern(target *tree_sitter.Node, pi *paramInfo) {
	switch target.Kind() {
	case "identifier":
		f.names[f.p.text(target)] = pi
	case "object_pattern":
		eachNamedChild(target, func(_ int, el *tree_sitter.Node) {
			switch el.Kind() {
			case "shorthand_property_identifier_pattern":
				name := f.p.text(el)
				f.names[name] = pi.child(name)
			case "object_assignment_pattern":
				if left := el.ChildByFieldName("left"); left != nil && left.Kind() == "shorthand_property_identifier_pattern" {
					name := f.p.text(left)
					f.names[name] = pi.child(name)
				}
			case "pair_pattern":
				key := f.p.fieldText(el, "key")
				value := el.ChildByFieldName("value")
				if key == "" || value == nil {
					return
				}
				if value.Kind() == "assignment_pattern" {
					value = value.ChildByFieldName("left")
				}
				if value != nil {
					f.bindPattern(value, pi.child(key))
				}
			}
		})
	}
}

func (f *funcScope) info() *FuncInfo {
	fi := &FuncInfo{Params: make(map[string][]*FieldInfo)}
	for _, pi := range f.params {
		fields := normalizeFields(pi.fields())
		if len(fields) == 0 {
			continue
		}
		fi.Params[pi.name] = fields
		fi.paramOrder = append(fi.paramOrder, pi.name)
	}
	return fi
}

// normalizeFields merges objects with the same id and drops plain fields
// that an object or call of the same name already covers.
func normalizeFields(infos []*FieldInfo) []*FieldInfo {
	var out []*FieldInfo
	for _, info := range infos {
		switch info.Type {
		case FieldKindField:
			if slices.ContainsFunc(out, func(f *FieldInfo) bool { return f.ID == info.ID }) {
				continue
			}
			out = append(out, info)
		case FieldKindCall:
			if slices.ContainsFunc(out, func(f *FieldInfo) bool { return sameCall(f, info) }) {
				continue
			}
			out = append(withoutField(out, info.ID), info)
		case FieldKindObject:
			out = withoutField(out, info.ID)
			i := slices.IndexFunc(out, func(f *FieldInfo) bool { return f.Type == FieldKindObject && f.ID == info.ID })
			if i < 0 {
				out = append(out, &FieldInfo{Type: FieldKindObject, ID: info.ID, Fields: info.Fields})
				continue
			}
			merged := append(append([]*FieldInfo(nil), out[i].Fields...), info.Fields...)
			out[i] = &FieldInfo{Type: FieldKindObject, ID: info.ID, Fields: merged}
		}
	}
	for i, info := range out {
		if info.Type == FieldKindObject {
			out[i] = &FieldInfo{Type: FieldKindObject, ID: info.ID, Fields: normalizeFields(info.Fields)}
		}
	}
	return out
}

func withoutField(infos []*FieldInfo, id string) []*FieldInfo {
	return slices.DeleteFunc(slices.Clone(infos), func(f *FieldInfo) bool {
		return f.Type == FieldKindField && f.ID == id
	})
}

func sameCall(a, b *FieldInfo) bool {
	return a.Type == FieldKindCall && b.Type == FieldKindCall && a.ID == b.ID &&
		slices.EqualFunc(a.Args, b.Args, func(x, y []string) bool {
			return (x == nil) == (y == nil) && slices.Equal(x, y)
		})
}

type namedFunc struct {
	name string
	info *FuncInfo
}

// objectInfos returns the object info of every named function declaration
// in document order. A later declaration of the same name replaces an
// earlier one.
func (p *parsed) objectInfos() []namedFunc {
	syntax := &tsMemberSyntax
	if p.python {
		syntax = &pyMemberSyntax
	}

	var out []namedFunc
	record := func(name string, info *FuncInfo) {
		for i := range out {
			if out[i].name == name {
				out[i].info = info
				return
			}
		}
		out = append(out, namedFunc{name: name, info: info})
	}

	var walk func(n *tree_sitter.Node, inClass bool)
	walk = func(n *tree_sitter.Node, inClass bool) {
		switch n.Kind() {
		case "function_declaration", "generator_function_declaration":
			if name := p.fieldText(n, "name"); name != "" {
				record(name, p.functionInfo(n, syntax))
			}
		case "function_definition":
			if name := p.fieldText(n, "name"); name != "" && !inClass {
				record(name, p.functionInfo(n, syntax))
			}
			inClass = false
		case "class_definition":
			inClass = true
		}
		eachNamedChild(n, func(_ int, child *tree_sitter.Node) { walk(child, inClass) })
	}
	walk(p.root, false)
	return out
}

func (p *parsed) functionInfo(fn *tree_sitter.Node, syntax *memberSyntax) *FuncInfo {
	f := &funcScope{p: p, syntax: syntax, names: make(map[string]*paramInfo)}
	if params := fn.ChildByFieldName("parameters"); params != nil {
		eachNamedChild(params, func(_ int, param *tree_sitter.Node) {
			f.declare(p.paramName(param))
		})
	}
	f.visit(fn, nil)
	return f.info()
}

// paramName returns the name of a plain parameter, or "" for destructured
// and splat parameters.
func (p *parsed) paramName(param *tree_sitter.Node) string {
	switch param.Kind() {
	case "required_parameter", "optional_parameter":
		if pattern := param.ChildByFieldName("pattern"); pattern != nil && pattern.Kind() == "identifier" {
			return p.text(pattern)
		}
	case "identifier":
		return p.text(param)
	case "typed_parameter":
		if first := param.NamedChild(0); first != nil && first.Kind() == "identifier" {
			return p.text(first)
		}
	case "default_parameter", "typed_default_parameter":
		if name := param.ChildByFieldName("name"); name != nil && name.Kind() == "identifier" {
			return p.text(name)
		}
	}
	return ""
}

// ObjectInfo reports, for every named function, which members of each
// parameter the function uses. TypeScript sources are alpha-renamed first,
// so parameter names carry their scope suffix.
func (a *Analyzer) ObjectInfo(src []byte) (ObjectInfoMap, error) {
	funcs, err := a.objectInfos(src)
	if err != nil {
		return nil, err
	}
	out := make(ObjectInfoMap, len(funcs))
	for _, fn := range funcs {
		out[fn.name] = fn.info
	}
	return out, nil
}

func (a *Analyzer) objectInfos(src []byte) ([]namedFunc, error) {
	p, err := a.parse(src)
	if err != nil {
		return nil, err
	}
	if !a.python {
		renamed := p.alphaRename()
		p.close()
		if p, err = a.parse(renamed); err != nil {
			return nil, err
		}
	}
	defer p.close()
	return p.objectInfos(), nil
}

// TypedefGen renders a type template for every parameter with used members:
// an interface in TypeScript, a Protocol in Python. Every member type is
// typeName. Nested objects get their own type named after the path to them.
func (a *Analyzer) TypedefGen(src []byte, typeName string) ([]byte, error) {
	funcs, err := a.objectInfos(src)
	if err != nil {
		return nil, err
	}

	w := &typedefWriter{python: a.python, typeName: typeName}
	for _, fn := range funcs {
		for _, param := range fn.info.paramOrder {
			w.enqueue(exportedName(fn.name)+exportedName(unscopedName(param)), fn.info.Params[param])
		}
	}
	return w.render(), nil
}

type pendingType struct {
	name   string
	fields []*FieldInfo
}

type typedefWriter struct {
	python   bool
	typeName string
	queue    []pendingType
	buf      strings.Builder
}

func (w *typedefWriter) enqueue(name string, fields []*FieldInfo) {
	w.queue = append(w.queue, pendingType{name: name, fields: fields})
}

func (w *typedefWriter) render() []byte {
	if len(w.queue) == 0 {
		return nil
	}
	if w.python {
		w.buf.WriteString("from typing import Protocol\n")
	}
	for i := 0; i < len(w.queue); i++ {
		w.writeType(w.queue[i])
	}
	return []byte(w.buf.String())
}

func (w *typedefWriter) writeType(t pendingType) {
	if w.python {
		if w.buf.Len() > 0 {
			w.buf.WriteString("\n\n")
		}
		fmt.Fprintf(&w.buf, "class %s(Protocol):\n", t.name)
	} else {
		if w.buf.Len() > 0 {
			w.buf.WriteString("\n")
		}
		fmt.Fprintf(&w.buf, "interface %s {\n", t.name)
	}

	for _, f := range t.fields {
		switch f.Type {
		case FieldKindCall:
			params := make([]string, len(f.Args))
			for i := range f.Args {
				params[i] = fmt.Sprintf("arg%d: %s", i, w.typeName)
			}
			if w.python {
				fmt.Fprintf(&w.buf, "    def %s(%s) -> %s: ...\n", f.ID, strings.Join(append([]string{"self"}, params...), ", "), w.typeName)
			} else {
				fmt.Fprintf(&w.buf, "  %s(%s): %s;\n", f.ID, strings.Join(params, ", "), w.typeName)
			}
		case FieldKindObject:
			nested := t.name + exportedName(f.ID)
			w.enqueue(nested, f.Fields)
			if w.python {
				fmt.Fprintf(&w.buf, "    %s: %q\n", f.ID, nested)
			} else {
				fmt.Fprintf(&w.buf, "  %s: %s;\n", f.ID, nested)
			}
		default:
			if w.python {
				fmt.Fprintf(&w.buf, "    %s: %s\n", f.ID, w.typeName)
			} else {
				fmt.Fprintf(&w.buf, "  %s: %s;\n", f.ID, w.typeName)
			}
		}
	}

	if !w.python {
		w.buf.WriteString("}\n")
	}
}

func exportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

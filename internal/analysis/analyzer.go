//go:build cgo

package analysis

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unsafe"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/codefionn/langsock/internal/protocol"
)

// Analyzer runs the source analyses for one language. It is safe for
// concurrent use; every call parses with its own parser.
type Analyzer struct {
	language string
	grammar  *tree_sitter.Language
	python   bool
}

// NewAnalyzer creates an Analyzer for language.
func NewAnalyzer(language string) (*Analyzer, error) {
	language = normalizeLanguage(language)

	var ptr unsafe.Pointer
	switch language {
	case LanguageTypeScript:
		ptr = tree_sitter_typescript.LanguageTypescript()
	case LanguageTSX:
		ptr = tree_sitter_typescript.LanguageTSX()
	case LanguagePython:
		ptr = tree_sitter_python.Language()
	default:
		return nil, unsupportedLanguage(language)
	}

	return &Analyzer{
		language: language,
		grammar:  tree_sitter.NewLanguage(ptr),
		python:   language == LanguagePython,
	}, nil
}

// Language returns the analyzer's language.
func (a *Analyzer) Language() string {
	return a.language
}

// Print adds typeName as the annotation of every unannotated parameter and
// return type. TypeScript variable declarations are filled in as well.
// Existing annotations are kept.
func (a *Analyzer) Print(src []byte, typeName string) ([]byte, error) {
	if typeName == "" {
		typeName = protocol.DefaultTypeName
	}

	p, err := a.parse(src)
	if err != nil {
		return nil, err
	}
	defer p.close()

	var edits []edit
	for _, s := range p.slots() {
		if s.hasType || (a.python && s.kind == slotVariable) {
			continue
		}
		edits = append(edits, edit{start: s.insertAt, end: s.insertAt, text: p.annotation(s.kind, typeName)})
	}
	return applyEdits(src, edits), nil
}

// Tree returns the code block tree of src: classes, functions and methods,
// nested the way they are in the source.
func (a *Analyzer) Tree(src []byte) (*Block, error) {
	p, err := a.parse(src)
	if err != nil {
		return nil, err
	}
	defer p.close()

	root := &Block{
		Name:      RootBlockName,
		Kind:      BlockModule,
		Code:      string(src),
		EndByte:   len(src),
		StartLine: 1,
		EndLine:   int(p.root.EndPosition().Row) + 1,
		Children:  []*Block{},
	}
	p.collectBlocks(p.root, root, false)
	return root, nil
}

func (p *parsed) collectBlocks(n *tree_sitter.Node, parent *Block, inClass bool) {
	eachNamedChild(n, func(_ int, child *tree_sitter.Node) {
		block, body := p.blockFor(child, inClass)
		if block == nil {
			p.collectBlocks(child, parent, inClass)
			return
		}
		parent.Children = append(parent.Children, block)
		if body != nil {
			p.collectBlocks(body, block, block.Kind == BlockClass)
		}
	})
}

// blockFor returns the block for n, if n declares one, and the node holding
// its nested declarations.
func (p *parsed) blockFor(n *tree_sitter.Node, inClass bool) (*Block, *tree_sitter.Node) {
	var name, kind string
	code := n
	body := n.ChildByFieldName("body")

	switch n.Kind() {
	case "function_declaration", "generator_function_declaration":
		name, kind = p.fieldText(n, "name"), BlockFunction
	case "method_definition":
		name, kind = p.fieldText(n, "name"), BlockMethod
	case "class_declaration", "abstract_class_declaration", "class_definition":
		name, kind = p.fieldText(n, "name"), BlockClass
	case "function_definition":
		name, kind = p.fieldText(n, "name"), BlockFunction
		if inClass {
			kind = BlockMethod
		}
	case "variable_declarator":
		value := n.ChildByFieldName("value")
		if !isFunctionValue(value) {
			return nil, nil
		}
		name, kind = p.boundName(value), BlockFunction
		body = value.ChildByFieldName("body")
		if decl := n.Parent(); decl != nil {
			code = decl
		}
	default:
		return nil, nil
	}
	if name == "" {
		return nil, nil
	}

	return &Block{
		Name:      name,
		Kind:      kind,
		Code:      p.text(code),
		StartByte: int(code.StartByte()),
		EndByte:   int(code.EndByte()),
		StartLine: int(code.StartPosition().Row) + 1,
		EndLine:   int(code.EndPosition().Row) + 1,
		Children:  []*Block{},
	}, body
}

// Stub elides the bodies of top-level functions and of the methods of
// top-level classes. TypeScript arrow functions bound to an annotated
// variable get an empty body.
func (a *Analyzer) Stub(src []byte) ([]byte, error) {
	p, err := a.parse(src)
	if err != nil {
		return nil, err
	}
	defer p.close()

	var edits []edit
	eachNamedChild(p.root, func(_ int, stmt *tree_sitter.Node) {
		if a.python {
			edits = append(edits, p.stubPython(unwrap(stmt, "decorated_definition", "definition"))...)
		} else {
			edits = append(edits, p.stubTS(unwrap(stmt, "export_statement", "declaration"))...)
		}
	})
	return applyEdits(src, edits), nil
}

func unwrap(n *tree_sitter.Node, kind, field string) *tree_sitter.Node {
	if n.Kind() == kind {
		if inner := n.ChildByFieldName(field); inner != nil {
			return inner
		}
	}
	return n
}

func (p *parsed) stubTS(n *tree_sitter.Node) []edit {
	var edits []edit
	switch n.Kind() {
	case "function_declaration", "generator_function_declaration":
		if e, ok := tsSignatureOnly(n); ok {
			edits = append(edits, e)
		}
	case "class_declaration", "abstract_class_declaration":
		if body := n.ChildByFieldName("body"); body != nil {
			eachNamedChild(body, func(_ int, member *tree_sitter.Node) {
				if member.Kind() != "method_definition" {
					return
				}
				if e, ok := tsSignatureOnly(member); ok {
					edits = append(edits, e)
				}
			})
		}
	case "lexical_declaration", "variable_declaration":
		eachNamedChild(n, func(_ int, decl *tree_sitter.Node) {
			if decl.Kind() != "variable_declarator" || decl.ChildByFieldName("type") == nil {
				return
			}
			value := decl.ChildByFieldName("value")
			if !isFunctionValue(value) {
				return
			}
			if body := value.ChildByFieldName("body"); body != nil {
				edits = append(edits, edit{start: int(body.StartByte()), end: int(body.EndByte()), text: "{}"})
			}
		})
	}
	return edits
}

// tsSignatureOnly turns "f(a): T { ... }" into "f(a): T;".
func tsSignatureOnly(fn *tree_sitter.Node) (edit, bool) {
	body := fn.ChildByFieldName("body")
	if body == nil {
		return edit{}, false
	}
	prev := fn.ChildByFieldName("return_type")
	if prev == nil {
		prev = fn.ChildByFieldName("parameters")
	}
	if prev == nil {
		return edit{}, false
	}
	return edit{start: int(prev.EndByte()), end: int(body.EndByte()), text: ";"}, true
}

func (p *parsed) stubPython(n *tree_sitter.Node) []edit {
	var edits []edit
	switch n.Kind() {
	case "function_definition":
		if body := n.ChildByFieldName("body"); body != nil {
			edits = append(edits, edit{start: int(body.StartByte()), end: int(body.EndByte()), text: "..."})
		}
	case "class_definition":
		if body := n.ChildByFieldName("body"); body != nil {
			eachNamedChild(body, func(_ int, member *tree_sitter.Node) {
				edits = append(edits, p.stubPythonMethod(unwrap(member, "decorated_definition", "definition"))...)
			})
		}
	}
	return edits
}

func (p *parsed) stubPythonMethod(n *tree_sitter.Node) []edit {
	if n.Kind() != "function_definition" {
		return nil
	}
	return p.stubPython(n)
}

// Check compares completed against original. A completion has problems when
// it has syntax errors, still contains placeholder annotations, differs from
// the original in anything but annotations, or changed its comments. Every
// annotation using any/Any adds 5 to the score.
func (a *Analyzer) Check(original, completed []byte) (*CheckResult, error) {
	comp, err := a.parse(completed)
	if err != nil {
		return nil, err
	}
	defer comp.close()

	orig, err := a.parse(original)
	if err != nil {
		return nil, err
	}
	defer orig.close()

	result := &CheckResult{}
	for _, se := range comp.syntaxErrors() {
		result.Problems = append(result.Problems, se.String())
	}

	for _, s := range comp.slots() {
		if !s.hasType {
			continue
		}
		words := typeWords(completed[s.typeStart:s.typeEnd])
		switch {
		case slices.Contains(words, protocol.DefaultTypeName):
			result.Problems = append(result.Problems,
				fmt.Sprintf("unfilled type annotation for %s at line %d", s.describe(), s.line))
		case slices.Contains(words, "any") || slices.Contains(words, "Any"):
			result.Score += 5
		}
	}

	if diff := compareSignatures(orig.signature(), comp.signature()); diff != "" {
		result.Problems = append(result.Problems, diff)
	}
	if !slices.Equal(orig.comments(), comp.comments()) {
		result.Problems = append(result.Problems, "comments differ from the original")
	}
	return result, nil
}

// Weave copies annotations from the same-named parameters and return types
// of nettle into text. With level >= 1 variable annotations are copied too.
func (a *Analyzer) Weave(text, nettle []byte, level int) ([]byte, error) {
	tp, err := a.parse(text)
	if err != nil {
		return nil, err
	}
	defer tp.close()

	np, err := a.parse(nettle)
	if err != nil {
		return nil, err
	}
	defer np.close()

	types := make(map[string]string)
	for _, s := range np.slots() {
		if s.hasType {
			types[s.key()] = string(nettle[s.typeStart:s.typeEnd])
		}
	}

	var edits []edit
	for _, s := range tp.slots() {
		if s.kind == slotVariable && level < 1 {
			continue
		}
		typ, ok := types[s.key()]
		if !ok {
			continue
		}
		if s.hasType {
			edits = append(edits, edit{start: s.typeStart, end: s.typeEnd, text: typ})
		} else {
			edits = append(edits, edit{start: s.insertAt, end: s.insertAt, text: tp.annotation(s.kind, typ)})
		}
	}
	return applyEdits(text, edits), nil
}

// Usages collects the statements of outer that call the first symbol
// declared in inner, rendered as a comment block.
func (a *Analyzer) Usages(outer, inner []byte) (*UsagesResult, error) {
	ip, err := a.parse(inner)
	if err != nil {
		return nil, err
	}
	symbol := ip.declaredName()
	ip.close()

	result := &UsagesResult{Symbol: symbol}
	if symbol == "" {
		return result, nil
	}

	op, err := a.parse(outer)
	if err != nil {
		return nil, err
	}
	defer op.close()

	var stmts []string
	seen := make(map[string]bool)
	op.eachCall(func(call, callee *tree_sitter.Node) {
		if op.calleeName(callee) != symbol {
			return
		}
		stmt := strings.TrimSpace(op.text(op.usageStatement(call)))
		if stmt == "" || seen[stmt] {
			return
		}
		seen[stmt] = true
		stmts = append(stmts, stmt)
	})

	result.Count = len(stmts)
	if len(stmts) > 0 {
		result.Text = []byte(a.formatUsages(symbol, stmts))
	}
	return result, nil
}

func (a *Analyzer) formatUsages(symbol string, stmts []string) string {
	var b strings.Builder
	if a.python {
		b.WriteString("# Example usages of '" + symbol + "' are shown below:\n")
		for _, stmt := range stmts {
			for _, l := range strings.Split(stmt, "\n") {
				b.WriteString("# " + l + "\n")
			}
		}
		return b.String()
	}

	b.WriteString("/* Example usages of '" + symbol + "' are shown below:\n")
	b.WriteString(strings.Join(stmts, "\n"))
	b.WriteString("\n*/\n")
	return b.String()
}

// declaredName returns the name of the first declaration in the tree, or
// the first identifier when there is none.
func (p *parsed) declaredName() string {
	var found, firstIdent string
	var walk func(*tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if found != "" {
			return
		}
		switch n.Kind() {
		case "function_declaration", "generator_function_declaration", "class_declaration",
			"abstract_class_declaration", "method_definition", "function_definition", "class_definition":
			if name := p.fieldText(n, "name"); name != "" {
				found = name
				return
			}
		case "variable_declarator":
			if value := n.ChildByFieldName("value"); isFunctionValue(value) {
				if name := p.boundName(value); name != "" {
					found = name
					return
				}
			}
		case "identifier":
			if firstIdent == "" {
				firstIdent = p.text(n)
			}
		}
		eachNamedChild(n, func(_ int, child *tree_sitter.Node) { walk(child) })
	}
	walk(p.root)

	if found != "" {
		return found
	}
	return firstIdent
}

func (p *parsed) eachCall(fn func(call, callee *tree_sitter.Node)) {
	var walk func(*tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		switch n.Kind() {
		case "call_expression", "call":
			if callee := n.ChildByFieldName("function"); callee != nil {
				fn(n, callee)
			}
		case "new_expression":
			if callee := n.ChildByFieldName("constructor"); callee != nil {
				fn(n, callee)
			}
		}
		eachNamedChild(n, func(_ int, child *tree_sitter.Node) { walk(child) })
	}
	walk(p.root)
}

func (p *parsed) calleeName(callee *tree_sitter.Node) string {
	switch callee.Kind() {
	case "identifier":
		return p.text(callee)
	case "member_expression":
		return p.fieldText(callee, "property")
	case "attribute":
		return p.fieldText(callee, "attribute")
	}
	return ""
}

var usageExpressionKinds = map[string]bool{
	"call_expression": true, "member_expression": true, "subscript_expression": true,
	"binary_expression": true, "unary_expression": true, "update_expression": true,
	"new_expression": true, "ternary_expression": true, "arguments": true,
	"parenthesized_expression": true, "await_expression": true, "assignment_expression": true,
	"call": true, "attribute": true, "subscript": true, "argument_list": true,
	"binary_operator": true, "boolean_operator": true, "comparison_operator": true,
	"unary_operator": true, "conditional_expression": true, "await": true,
	"not_operator": true, "keyword_argument": true,
}

var usageStatementKinds = map[string]bool{
	"expression_statement": true, "return_statement": true, "variable_declarator": true,
	"lexical_declaration": true, "variable_declaration": true, "assignment": true,
	"augmented_assignment": true,
}

// usageStatement climbs from a call to the statement it belongs to, stopping
// at control flow so that a call in a condition does not pull in its body.
func (p *parsed) usageStatement(call *tree_sitter.Node) *tree_sitter.Node {
	cur := call
	for {
		parent := cur.Parent()
		if parent == nil || !usageExpressionKinds[parent.Kind()] {
			break
		}
		cur = parent
	}
	for {
		parent := cur.Parent()
		if parent == nil || !usageStatementKinds[parent.Kind()] {
			break
		}
		cur = parent
	}
	return cur
}

// TypeCheck counts the syntax errors of src.
func (a *Analyzer) TypeCheck(src []byte) (int, error) {
	p, err := a.parse(src)
	if err != nil {
		return 0, err
	}
	defer p.close()
	return len(p.syntaxErrors()), nil
}

func typeWords(b []byte) []string {
	return strings.FieldsFunc(string(b), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$')
	})
}

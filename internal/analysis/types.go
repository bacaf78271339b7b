package analysis

import (
	"encoding/json"
	"errors"
)

// ErrUnavailable is returned by every analysis when the binary was built
// without cgo.
var ErrUnavailable = errors.New("source analysis requires cgo")

// RootBlockName names the synthetic root of a block tree. It cannot collide
// with a declared identifier.
const RootBlockName = "&root$"

// Block kinds
const (
	BlockModule   = "module"
	BlockFunction = "function"
	BlockMethod   = "method"
	BlockClass    = "class"
)

// Block is one node of a code block tree.
type Block struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	Code      string   `json:"code"`
	StartByte int      `json:"start_byte"`
	EndByte   int      `json:"end_byte"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Children  []*Block `json:"children"`
}

// CheckResult is the outcome of comparing a completed source with its
// original.
type CheckResult struct {
	Problems []string
	Score    int
}

// Complete reports whether no problems were found.
func (r *CheckResult) Complete() bool {
	return len(r.Problems) == 0
}

// UsagesResult holds the statements of an outer source that use the symbol
// declared by an inner source.
type UsagesResult struct {
	Symbol string
	Count  int
	Text   []byte
}

// Field info kinds
const (
	FieldKindField  = "field"
	FieldKindCall   = "call"
	FieldKindObject = "object"
)

// FieldInfo is one member of a parameter that a function body uses: a plain
// field, a method call, or an object whose own members are used.
type FieldInfo struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	// Args holds, per call argument, the parameter path it was passed, or
	// nil when the argument is not a parameter path.
	Args   [][]string   `json:"args,omitempty"`
	Fields []*FieldInfo `json:"fields,omitempty"`
}

// MarshalJSON writes only the members that belong to the info's kind. Calls
// always carry their argument list.
func (f FieldInfo) MarshalJSON() ([]byte, error) {
	switch f.Type {
	case FieldKindCall:
		args := f.Args
		if args == nil {
			args = [][]string{}
		}
		return json.Marshal(struct {
			Type string     `json:"type"`
			ID   string     `json:"id"`
			Args [][]string `json:"args"`
		}{f.Type, f.ID, args})
	case FieldKindObject:
		return json.Marshal(struct {
			Type   string       `json:"type"`
			ID     string       `json:"id"`
			Fields []*FieldInfo `json:"fields"`
		}{f.Type, f.ID, f.Fields})
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}{f.Type, f.ID})
}

// FuncInfo maps the used parameters of one function to their members.
// Parameters without any use are left out.
type FuncInfo struct {
	Params map[string][]*FieldInfo `json:"params"`
	// Ret is kept for wire compatibility and is always null.
	Ret []*FieldInfo `json:"ret"`

	paramOrder []string
}

// ObjectInfoMap is the object info of a source file by function name.
type ObjectInfoMap map[string]*FuncInfo

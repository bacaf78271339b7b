//go:build cgo

package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlphaRename(t *testing.T) {
	a := newAnalyzer(t, LanguageTypeScript)

	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "module scope untouched",
			src:  "const x = 1;\nx;\n",
			want: "const x = 1;\nx;\n",
		},
		{
			name: "shadowing",
			src:  "let x = 1;\nfunction f(x) {\n  { let x = 2; x; }\n  return x;\n}\n",
			want: "let x = 1;\nfunction f(x$0) {\n  { let x$0_1_2 = 2; x$0_1_2; }\n  return x$0;\n}\n",
		},
		{
			name: "arrow function",
			src:  "const g = (a) => a.b;\n",
			want: "const g = (a$0) => a$0.b;\n",
		},
		{
			name: "shorthand properties keep their name",
			src:  "function f(a) {\n  const { b } = a;\n  return { b };\n}\n",
			want: "function f(a$0) {\n  const { b: b$0_1 } = a$0;\n  return { b: b$0_1 };\n}\n",
		},
		{
			name: "for of binding",
			src:  "function f(xs) {\n  for (const x of xs) { x; }\n}\n",
			want: "function f(xs$0) {\n  for (const x$0_1_2 of xs$0) { x$0_1_2; }\n}\n",
		},
		{
			name: "constructor parameters untouched",
			src:  "class A {\n  constructor(x) { this.x = x; }\n}\n",
			want: "class A {\n  constructor(x) { this.x = x; }\n}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := a.parse([]byte(tt.src))
			require.NoError(t, err)
			defer p.close()
			assert.Equal(t, tt.want, string(p.alphaRename()))
		})
	}
}

const drawSource = `function draw(shape, ctx) {
  shape.move(1, 2);
  ctx.canvas.fill(shape);
  const { size, color: tint } = shape;
  tint.alpha;
  return size;
}
`

func TestObjectInfoTypeScript(t *testing.T) {
	a := newAnalyzer(t, LanguageTypeScript)

	info, err := a.ObjectInfo([]byte(drawSource))
	require.NoError(t, err)
	require.Contains(t, info, "draw")

	params := info["draw"].Params
	assert.Equal(t, []*FieldInfo{
		{Type: FieldKindCall, ID: "move", Args: [][]string{nil, nil}},
		{Type: FieldKindField, ID: "size"},
		{Type: FieldKindObject, ID: "color", Fields: []*FieldInfo{
			{Type: FieldKindField, ID: "alpha"},
		}},
	}, params["shape$0"])
	assert.Equal(t, []*FieldInfo{
		{Type: FieldKindObject, ID: "canvas", Fields: []*FieldInfo{
			{Type: FieldKindCall, ID: "fill", Args: [][]string{{"shape$0"}}},
		}},
	}, params["ctx$0"])
	assert.Nil(t, info["draw"].Ret)
}

func TestObjectInfoMergesUses(t *testing.T) {
	a := newAnalyzer(t, LanguageTypeScript)
	src := "function f(a) {\n  a.d;\n  a.d.e;\n  a.d.m;\n  a.run;\n  a.run();\n  a.run();\n}\nfunction unused(b) { return b; }\n"

	info, err := a.ObjectInfo([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, []*FieldInfo{
		{Type: FieldKindObject, ID: "d", Fields: []*FieldInfo{
			{Type: FieldKindField, ID: "e"},
			{Type: FieldKindField, ID: "m"},
		}},
		{Type: FieldKindCall, ID: "run", Args: nil},
	}, info["f"].Params["a$0"])

	require.Contains(t, info, "unused")
	assert.Empty(t, info["unused"].Params)
}

func TestObjectInfoPython(t *testing.T) {
	a := newAnalyzer(t, LanguagePython)
	src := "def area(rect, scale):\n    rect.size.width\n    return rect.grow(scale)\n\n\nclass Box:\n    def method(self, other):\n        other.x\n"

	info, err := a.ObjectInfo([]byte(src))
	require.NoError(t, err)

	assert.NotContains(t, info, "method")
	assert.Equal(t, map[string][]*FieldInfo{
		"rect": {
			{Type: FieldKindObject, ID: "size", Fields: []*FieldInfo{{Type: FieldKindField, ID: "width"}}},
			{Type: FieldKindCall, ID: "grow", Args: [][]string{{"scale"}}},
		},
	}, info["area"].Params)
}

func TestTypedefGenTypeScript(t *testing.T) {
	a := newAnalyzer(t, LanguageTypeScript)

	out, err := a.TypedefGen([]byte(drawSource), "T")
	require.NoError(t, err)
	assert.Equal(t, `interface DrawShape {
  move(arg0: T, arg1: T): T;
  size: T;
  color: DrawShapeColor;
}

interface DrawCtx {
  canvas: DrawCtxCanvas;
}

interface DrawShapeColor {
  alpha: T;
}

interface DrawCtxCanvas {
  fill(arg0: T): T;
}
`, string(out))
}

func TestTypedefGenPython(t *testing.T) {
	a := newAnalyzer(t, LanguagePython)
	src := "def area(rect, scale):\n    rect.size.width\n    return rect.grow(scale)\n"

	out, err := a.TypedefGen([]byte(src), "T")
	require.NoError(t, err)
	assert.Equal(t, `from typing import Protocol


class AreaRect(Protocol):
    size: "AreaRectSize"
    def grow(self, arg0: T) -> T: ...


class AreaRectSize(Protocol):
    width: T
`, string(out))
}

func TestTypedefGenNothingUsed(t *testing.T) {
	a := newAnalyzer(t, LanguageTypeScript)

	out, err := a.TypedefGen([]byte("function f(a) { return a; }\n"), "T")
	require.NoError(t, err)
	assert.Empty(t, out)
}

//go:build cgo

package analysis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/langsock/internal/dispatch"
	"github.com/codefionn/langsock/internal/protocol"
)

func newRegistry(t *testing.T, language string) *dispatch.Registry {
	t.Helper()
	registry := dispatch.NewRegistry()
	_, err := Register(registry, language, 8)
	require.NoError(t, err)
	return registry
}

func TestRegisterCoversEveryCommand(t *testing.T) {
	registry := newRegistry(t, LanguageTypeScript)
	assert.Empty(t, registry.Missing())
	assert.Len(t, registry.Registered(), len(protocol.Commands()))
}

func TestRegisterRejectsUnknownLanguage(t *testing.T) {
	_, err := Register(dispatch.NewRegistry(), "cobol", 0)
	require.Error(t, err)
}

func TestHandlers(t *testing.T) {
	registry := newRegistry(t, LanguageTypeScript)
	ctx := context.Background()

	t.Run("print", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{
			Command:   protocol.CommandPrint,
			Text:      []byte("function f(a) {}"),
			RequestID: "r1",
		})
		require.True(t, resp.OK(), resp.Message)
		assert.Equal(t, "printResponse", resp.Type)
		assert.Equal(t, "r1", resp.RequestID)
		assert.Equal(t, "function f(a: _hole_): _hole_ {}", string(resp.Text))
	})

	t.Run("print with type name", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{
			Command:  protocol.CommandPrint,
			Text:     []byte("function f(a) {}"),
			TypeName: "***",
		})
		require.True(t, resp.OK(), resp.Message)
		assert.Equal(t, "function f(a: ***): *** {}", string(resp.Text))
	})

	t.Run("tree", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{
			Command: protocol.CommandTree,
			Text:    []byte("function f() {}\n"),
		})
		require.True(t, resp.OK(), resp.Message)

		var root Block
		require.NoError(t, json.Unmarshal(resp.Text, &root))
		assert.Equal(t, RootBlockName, root.Name)
		require.Len(t, root.Children, 1)
		assert.Equal(t, "f", root.Children[0].Name)
	})

	t.Run("stub", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{
			Command: protocol.CommandStub,
			Text:    []byte("function f(a: number): number { return a; }"),
		})
		require.True(t, resp.OK(), resp.Message)
		assert.Equal(t, "stubResponse", resp.Type)
		assert.Equal(t, "function f(a: number): number;", string(resp.Text))
	})

	t.Run("check", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{
			Command:  protocol.CommandCheck,
			Text:     []byte("function f(a: any): number { return a; }"),
			Original: []byte("function f(a) { return a; }"),
		})
		require.True(t, resp.OK(), resp.Message)
		assert.Equal(t, "true", string(resp.Text))
		require.NotNil(t, resp.Score)
		assert.Equal(t, 5, *resp.Score)
		assert.Empty(t, resp.Problems)
	})

	t.Run("check reports problems", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{
			Command:  protocol.CommandCheck,
			Text:     []byte("function f(a: _hole_): number { return a; }"),
			Original: []byte("function f(a) { return a; }"),
		})
		require.True(t, resp.OK(), resp.Message)
		assert.Equal(t, "false", string(resp.Text))
		assert.NotEmpty(t, resp.Problems)
	})

	t.Run("check without original", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{
			Command:   protocol.CommandCheck,
			Text:      []byte("function f() {}"),
			RequestID: "r2",
		})
		assert.False(t, resp.OK())
		assert.Equal(t, "check requires an original payload", resp.Message)
		assert.Equal(t, "r2", resp.RequestID)
	})

	t.Run("check with empty original", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{
			Command:  protocol.CommandCheck,
			Text:     []byte{},
			Original: []byte{},
		})
		require.True(t, resp.OK(), resp.Message)
		assert.Equal(t, "true", string(resp.Text))
	})

	t.Run("weave", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{
			Command: protocol.CommandWeave,
			Text:    []byte("function f(a) {}"),
			Nettle:  []byte("function f(a: string): void {}"),
		})
		require.True(t, resp.OK(), resp.Message)
		assert.Equal(t, "function f(a: string): void {}", string(resp.Text))
	})

	t.Run("weave without nettle", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{Command: protocol.CommandWeave, Text: []byte("x")})
		assert.Equal(t, "weave requires a nettle payload", resp.Message)
	})

	t.Run("weave with empty nettle", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{
			Command: protocol.CommandWeave,
			Text:    []byte("function f(a) {}"),
			Nettle:  []byte{},
		})
		require.True(t, resp.OK(), resp.Message)
		assert.Equal(t, "function f(a) {}", string(resp.Text))
	})

	t.Run("usages", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{
			Command:    protocol.CommandUsages,
			Text:       []byte("function g() { return 1; }\nconst v = g();\n"),
			InnerBlock: []byte("function g() { return 1; }"),
		})
		require.True(t, resp.OK(), resp.Message)
		assert.Contains(t, string(resp.Text), "const v = g();")
	})

	t.Run("usages without inner block", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{Command: protocol.CommandUsages, Text: []byte("x")})
		assert.Equal(t, "usages requires an innerBlock payload", resp.Message)
	})

	t.Run("objectInfo", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{
			Command: protocol.CommandObjectInfo,
			Text:    []byte("function f(a) { return a.b; }"),
		})
		require.True(t, resp.OK(), resp.Message)
		assert.Equal(t, "objectInfoResponse", resp.Type)
		assert.JSONEq(t, `{"f":{"params":{"a$0":[{"type":"field","id":"b"}]},"ret":null}}`, string(resp.Text))
	})

	t.Run("typedefGen", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{
			Command: protocol.CommandTypedefGen,
			Text:    []byte("function f(a) { return a.b; }"),
		})
		require.True(t, resp.OK(), resp.Message)
		assert.Equal(t, "typedefGenResponse", resp.Type)
		assert.Equal(t, "interface FA {\n  b: _hole_;\n}\n", string(resp.Text))
	})

	t.Run("typecheck", func(t *testing.T) {
		resp := registry.Dispatch(ctx, &protocol.Request{
			Command: protocol.CommandTypeCheck,
			Text:    []byte("function f( {"),
		})
		require.True(t, resp.OK(), resp.Message)
		assert.Equal(t, "typeCheckResponse", resp.Type)
		require.NotNil(t, resp.Errors)
		assert.Positive(t, *resp.Errors)
	})
}

func TestHandlersAreCached(t *testing.T) {
	registry := newRegistry(t, LanguagePython)
	ctx := context.Background()
	req := &protocol.Request{Command: protocol.CommandStub, Text: []byte("def f(a):\n    return a\n")}

	first := registry.Dispatch(ctx, req)
	second := registry.Dispatch(ctx, &protocol.Request{Command: req.Command, Text: req.Text, RequestID: "again"})
	require.True(t, first.OK(), first.Message)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, "again", second.RequestID)
}

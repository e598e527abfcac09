package codegen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factory/internal/faults"
	"factory/internal/registry"
	"factory/internal/tooldef"
)

func testRegistry() *registry.Registry {
	return &registry.Registry{
		Profile:  "support",
		Language: "python",
		Services: map[string]registry.ServiceSignature{
			"create_ticket": {
				Name:      "create_ticket",
				OwnerType: "TicketService",
				Module:    "services.tickets",
				Params: []registry.ParameterSpec{
					{Name: "title", Type: "str", Kind: registry.KindPrimitive},
					{Name: "priority", Type: "int", Kind: registry.KindPrimitive, Optional: true},
					{Name: "api_key", Type: "str", Kind: registry.KindPrimitive},
				},
			},
			"close_ticket": {
				Name:      "close_ticket",
				OwnerType: "TicketService",
				Module:    "services.tickets",
				Params: []registry.ParameterSpec{
					{Name: "ticket_id", Type: "str", Kind: registry.KindPrimitive},
				},
			},
			"ping": {
				Name:   "ping",
				Module: "services.health",
				Async:  true,
			},
		},
	}
}

func testDocument() *tooldef.Document {
	return &tooldef.Document{
		Profile: "support",
		Tools: []tooldef.Tool{
			{
				Name:        "create_ticket",
				Service:     "create_ticket",
				Description: "Open a new ticket.",
				Params: []tooldef.ExternalParam{
					{Name: "title", TargetParam: "title", Required: true},
					{Name: "priority", TargetParam: "priority"},
				},
				Overlays: []tooldef.Overlay{
					{Source: tooldef.SourceDefault, TargetParam: "priority", Value: float64(3), HasValue: true},
					{Source: tooldef.SourceHidden, TargetParam: "api_key", Value: "secret", HasValue: true},
				},
			},
			{
				Name:    "close_ticket",
				Service: "close_ticket",
				Params:  []tooldef.ExternalParam{{Name: "ticket_id", TargetParam: "ticket_id", Required: true}},
			},
			{Name: "ping", Service: "ping"},
		},
	}
}

func TestBuildModule(t *testing.T) {
	mod, errs := Build(testRegistry(), testDocument(), ProtocolStdio)
	require.Empty(t, errs)

	require.Len(t, mod.Handlers, 3)
	// Handlers sort by name.
	assert.Equal(t, "close_ticket", mod.Handlers[0].Name)
	assert.Equal(t, "create_ticket", mod.Handlers[1].Name)
	assert.Equal(t, "ping", mod.Handlers[2].Name)

	// One instantiation for the shared owner, one import per symbol.
	require.Len(t, mod.Instantiations, 1)
	assert.Equal(t, "ticket_service", mod.Instantiations[0].VarName)
	assert.Equal(t, []Import{
		{Module: "services.health", Name: "ping"},
		{Module: "services.tickets", Name: "TicketService"},
	}, mod.Imports)

	create := mod.Handlers[1]
	assert.Equal(t, "ticket_service", create.OwnerVar)
	require.Len(t, create.Bindings, 3)
	assert.Equal(t, "3", create.Bindings[1].Default)
	assert.True(t, create.Bindings[2].HasHidden)
	assert.Equal(t, `"secret"`, create.Bindings[2].Hidden)

	assert.True(t, mod.Handlers[2].Async)
}

func TestBuildPartialSuccessOnBindingError(t *testing.T) {
	doc := testDocument()
	doc.Tools = append(doc.Tools, tooldef.Tool{Name: "ghost", Service: "missing_service"})

	mod, errs := Build(testRegistry(), doc, ProtocolREST)
	require.Len(t, errs, 1)
	assert.True(t, faults.IsKind(errs[0], faults.KindBindingError))
	assert.Len(t, mod.Handlers, 3)
}

func TestBuildRejectsUnreachableRequiredParam(t *testing.T) {
	reg := testRegistry()
	reg.Services["copy_ticket"] = registry.ServiceSignature{
		Name:   "copy_ticket",
		Module: "services.tickets",
		Params: []registry.ParameterSpec{
			{Name: "src", Type: "str", Kind: registry.KindPrimitive},
			{Name: "dest", Type: "str", Kind: registry.KindPrimitive},
		},
	}
	doc := testDocument()
	// "dest" is required but has no external mapping, default or hidden
	// overlay: the tool can never dispatch successfully.
	doc.Tools = append(doc.Tools, tooldef.Tool{
		Name:    "copy_ticket",
		Service: "copy_ticket",
		Params:  []tooldef.ExternalParam{{Name: "src", TargetParam: "src", Required: true}},
	})

	mod, errs := Build(reg, doc, ProtocolStdio)
	require.Len(t, errs, 1)
	assert.True(t, faults.IsKind(errs[0], faults.KindBindingError))
	assert.Contains(t, errs[0].Error(), "dest")

	// The broken tool is dropped; the rest still generate.
	require.Len(t, mod.Handlers, 3)
	for _, h := range mod.Handlers {
		assert.NotEqual(t, "copy_ticket", h.Name)
	}
}

func TestBuildRejectsUnsupportedLanguage(t *testing.T) {
	reg := testRegistry()
	reg.Language = "go"

	mod, errs := Build(reg, testDocument(), ProtocolStdio)
	assert.Nil(t, mod)
	require.Len(t, errs, 1)
	assert.True(t, faults.IsKind(errs[0], faults.KindValidation))
}

func TestRenderIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	renderer, err := NewRenderer(dir)
	require.NoError(t, err)

	for _, protocol := range Protocols {
		mod, errs := Build(testRegistry(), testDocument(), protocol)
		require.Empty(t, errs)

		path, err := renderer.Render(mod)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "support_"+protocol+"_server.py"), path)

		first, err := os.ReadFile(path)
		require.NoError(t, err)

		_, err = renderer.Render(mod)
		require.NoError(t, err)
		second, err := os.ReadFile(path)
		require.NoError(t, err)

		assert.Equal(t, first, second, "protocol %s output must be byte-identical", protocol)
	}
}

func TestRenderedModuleContent(t *testing.T) {
	dir := t.TempDir()
	renderer, err := NewRenderer(dir)
	require.NoError(t, err)

	mod, errs := Build(testRegistry(), testDocument(), ProtocolStdio)
	require.Empty(t, errs)
	path, err := renderer.Render(mod)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)

	assert.Contains(t, text, "from services.tickets import TicketService")
	assert.Contains(t, text, "ticket_service = TicketService()")
	assert.Contains(t, text, `"callable": ticket_service.create_ticket,`)
	assert.Contains(t, text, `"hidden": "secret"`)
	assert.Contains(t, text, "def resolve_arguments(bindings, payload):")
	assert.Contains(t, text, "def serve():")
	// Hidden parameters never surface in the schema.
	assert.NotContains(t, strings.Split(text, "def resolve_arguments")[0], `"api_key": {`)
}

func TestPyLiteral(t *testing.T) {
	assert.Equal(t, "None", pyLiteral(nil))
	assert.Equal(t, "True", pyLiteral(true))
	assert.Equal(t, `"a\"b"`, pyLiteral(`a"b`))
	assert.Equal(t, "10", pyLiteral(float64(10)))
	assert.Equal(t, "1.5", pyLiteral(1.5))
	assert.Equal(t, `[1, "x", None]`, pyLiteral([]any{float64(1), "x", nil}))
	assert.Equal(t, `{"a": 1, "b": [True]}`, pyLiteral(map[string]any{
		"b": []any{true},
		"a": float64(1),
	}))
}

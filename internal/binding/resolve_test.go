package binding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factory/internal/faults"
	"factory/internal/registry"
	"factory/internal/tooldef"
)

func sig(params ...registry.ParameterSpec) registry.ServiceSignature {
	return registry.ServiceSignature{Name: "svc", Params: params}
}

func param(name string) registry.ParameterSpec {
	return registry.ParameterSpec{Name: name, Type: "str", Kind: registry.KindPrimitive}
}

func optional(name string) registry.ParameterSpec {
	p := param(name)
	p.Optional = true
	return p
}

func exposed(names ...string) []tooldef.ExternalParam {
	out := make([]tooldef.ExternalParam, len(names))
	for i, n := range names {
		out[i] = tooldef.ExternalParam{Name: n, TargetParam: n}
	}
	return out
}

func TestResolveIdentityWithoutOverlays(t *testing.T) {
	plan, err := NewPlan(tooldef.Tool{
		Name:   "echo",
		Params: exposed("text", "count"),
	}, sig(param("text"), param("count")))
	require.NoError(t, err)

	external := map[string]any{"text": "hello", "count": 2}
	args, resolutions, err := plan.Resolve(external)
	require.NoError(t, err)

	assert.Equal(t, external, args)
	for _, res := range resolutions {
		assert.Equal(t, StateExternalProvided, res.State)
	}
}

func TestResolveFalsyValuesArePresent(t *testing.T) {
	plan, err := NewPlan(tooldef.Tool{
		Name:   "t",
		Params: exposed("s", "n", "b", "l"),
		Overlays: []tooldef.Overlay{
			{Source: tooldef.SourceDefault, TargetParam: "s", Value: "fallback", HasValue: true},
		},
	}, sig(param("s"), param("n"), param("b"), param("l")))
	require.NoError(t, err)

	args, _, err := plan.Resolve(map[string]any{
		"s": "",
		"n": 0,
		"b": false,
		"l": []any{},
	})
	require.NoError(t, err)

	assert.Equal(t, "", args["s"])
	assert.Equal(t, 0, args["n"])
	assert.Equal(t, false, args["b"])
	assert.Equal(t, []any{}, args["l"])
}

func TestResolveNullCallerValueFallsToDefault(t *testing.T) {
	plan, err := NewPlan(tooldef.Tool{
		Name:   "t",
		Params: exposed("limit"),
		Overlays: []tooldef.Overlay{
			{Source: tooldef.SourceDefault, TargetParam: "limit", Value: 10, HasValue: true},
		},
	}, sig(param("limit")))
	require.NoError(t, err)

	// Explicit null counts as not provided.
	args, resolutions, err := plan.Resolve(map[string]any{"limit": nil})
	require.NoError(t, err)
	assert.Equal(t, 10, args["limit"])
	assert.Equal(t, StateDefaultApplied, resolutions[0].State)

	// Absent key behaves identically.
	args, _, err = plan.Resolve(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 10, args["limit"])

	// Present non-null caller value wins.
	args, resolutions, err = plan.Resolve(map[string]any{"limit": 5})
	require.NoError(t, err)
	assert.Equal(t, 5, args["limit"])
	assert.Equal(t, StateExternalProvided, resolutions[0].State)
}

func TestResolveExplicitNullDefaultIsAValue(t *testing.T) {
	plan, err := NewPlan(tooldef.Tool{
		Name: "t",
		Overlays: []tooldef.Overlay{
			{Source: tooldef.SourceDefault, TargetParam: "payload", Value: nil, HasValue: true},
		},
	}, sig(param("payload")))
	require.NoError(t, err)

	args, resolutions, err := plan.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, StateDefaultApplied, resolutions[0].State)
	assert.Contains(t, args, "payload")
	assert.Nil(t, args["payload"])
}

func TestResolveHiddenIsIndependentOfCallerInput(t *testing.T) {
	plan, err := NewPlan(tooldef.Tool{
		Name:   "t",
		Params: exposed("query"),
		Overlays: []tooldef.Overlay{
			{Source: tooldef.SourceHidden, TargetParam: "api_key", Value: "internal", HasValue: true},
		},
	}, sig(param("query"), param("api_key")))
	require.NoError(t, err)

	// Even a caller key spelled like the hidden target cannot reach it:
	// hidden parameters have no external surface.
	args, resolutions, err := plan.Resolve(map[string]any{
		"query":   "q",
		"api_key": "attacker",
	})
	require.NoError(t, err)
	assert.Equal(t, "internal", args["api_key"])
	assert.Equal(t, StateHiddenApplied, resolutions[1].State)
}

func TestResolveCompositeMergesDefaultUnderCaller(t *testing.T) {
	query := registry.ParameterSpec{Name: "query", Type: "SearchQuery", Kind: registry.KindComposite}
	plan, err := NewPlan(tooldef.Tool{
		Name:   "t",
		Params: exposed("query"),
		Overlays: []tooldef.Overlay{
			{Source: tooldef.SourceDefault, TargetParam: "query", Fields: map[string]any{"limit": 10, "deep": true}},
		},
	}, sig(query))
	require.NoError(t, err)

	args, _, err := plan.Resolve(map[string]any{
		"query": map[string]any{"text": "hello", "limit": 3},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"text": "hello", "limit": 3, "deep": true}, args["query"])
}

func TestResolveOmittedOptionalAndRequired(t *testing.T) {
	plan, err := NewPlan(tooldef.Tool{Name: "t", Params: exposed("a")},
		sig(param("a"), optional("b")))
	require.NoError(t, err)

	args, resolutions, err := plan.Resolve(map[string]any{"a": "x"})
	require.NoError(t, err)
	assert.NotContains(t, args, "b")
	assert.Equal(t, StateOmitted, resolutions[1].State)

	_, _, err = plan.Resolve(map[string]any{})
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindBindingError))
}

func TestValidateRequiresAValueSource(t *testing.T) {
	// A required parameter nothing can fill is caught before generation.
	plan, err := NewPlan(tooldef.Tool{Name: "copy", Params: exposed("src")},
		sig(param("src"), param("dest")))
	require.NoError(t, err)

	err = plan.Validate()
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindBindingError))
	assert.Contains(t, err.Error(), "dest")

	// Any single source satisfies it: external mapping, default or hidden.
	for _, tool := range []tooldef.Tool{
		{Name: "t", Params: exposed("dest")},
		{Name: "t", Overlays: []tooldef.Overlay{
			{Source: tooldef.SourceDefault, TargetParam: "dest", Value: "/tmp", HasValue: true},
		}},
		{Name: "t", Overlays: []tooldef.Overlay{
			{Source: tooldef.SourceHidden, TargetParam: "dest", Value: "/tmp", HasValue: true},
		}},
	} {
		plan, err := NewPlan(tool, sig(param("dest")))
		require.NoError(t, err)
		assert.NoError(t, plan.Validate())
	}

	// Optional parameters may stay sourceless.
	plan, err = NewPlan(tooldef.Tool{Name: "t"}, sig(optional("dest")))
	require.NoError(t, err)
	assert.NoError(t, plan.Validate())
}

func TestNewPlanRejectsUnknownTargets(t *testing.T) {
	_, err := NewPlan(tooldef.Tool{
		Name:   "t",
		Params: []tooldef.ExternalParam{{Name: "x", TargetParam: "missing"}},
	}, sig(param("a")))
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindBindingError))

	_, err = NewPlan(tooldef.Tool{
		Name: "t",
		Overlays: []tooldef.Overlay{
			{Source: tooldef.SourceHidden, TargetParam: "missing", Value: 1, HasValue: true},
		},
	}, sig(param("a")))
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindBindingError))
}

func TestNewPlanRejectsHiddenAndExposedConflict(t *testing.T) {
	_, err := NewPlan(tooldef.Tool{
		Name:   "t",
		Params: exposed("a"),
		Overlays: []tooldef.Overlay{
			{Source: tooldef.SourceHidden, TargetParam: "a", Value: 1, HasValue: true},
		},
	}, sig(param("a")))
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindBindingError))
}

func TestOverlayTargetByTypeNeedsFactorWhenAmbiguous(t *testing.T) {
	src := registry.ParameterSpec{Name: "src", Type: "Endpoint", Kind: registry.KindComposite}
	dst := registry.ParameterSpec{Name: "dst", Type: "Endpoint", Kind: registry.KindComposite}

	// Unique composite type resolves without a factor.
	plan, err := NewPlan(tooldef.Tool{
		Name: "t",
		Overlays: []tooldef.Overlay{
			{Source: tooldef.SourceHidden, TargetParam: "Endpoint", Fields: map[string]any{"host": "a"}},
		},
	}, sig(src))
	require.NoError(t, err)
	assert.NotNil(t, plan.Bindings[0].Hidden)

	// Two candidates without a factor is a configuration error.
	_, err = NewPlan(tooldef.Tool{
		Name: "t",
		Overlays: []tooldef.Overlay{
			{Source: tooldef.SourceHidden, TargetParam: "Endpoint", Fields: map[string]any{"host": "a"}},
		},
	}, sig(src, dst))
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindBindingError))

	// targetFactor pins the parameter.
	plan, err = NewPlan(tooldef.Tool{
		Name: "t",
		Overlays: []tooldef.Overlay{
			{Source: tooldef.SourceHidden, TargetParam: "Endpoint", TargetFactor: "dst", Fields: map[string]any{"host": "a"}},
		},
	}, sig(src, dst))
	require.NoError(t, err)
	assert.Nil(t, plan.Bindings[0].Hidden)
	assert.NotNil(t, plan.Bindings[1].Hidden)
}

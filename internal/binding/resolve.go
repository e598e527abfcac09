// Package binding computes how each parameter of a bound service receives
// its value: from the caller, from a default overlay, from a hidden overlay,
// or not at all. Planning is done once per tool at generation time; the
// per-parameter resolution is a pure function so each precedence case is
// independently testable.
package binding

import (
	"factory/internal/faults"
	"factory/internal/registry"
	"factory/internal/tooldef"
)

// State names the outcome of resolving one parameter.
type State string

const (
	StateExternalProvided State = "ExternalProvided"
	StateDefaultApplied   State = "DefaultApplied"
	StateHiddenApplied    State = "HiddenApplied"
	StateOmitted          State = "Omitted"
	StateBindingError     State = "BindingError"
)

// Binding is the planned wiring for one signature parameter.
type Binding struct {
	Param    registry.ParameterSpec
	External *tooldef.ExternalParam
	Default  *tooldef.Overlay
	Hidden   *tooldef.Overlay
}

// Resolution is the outcome of applying a Binding to one call.
type Resolution struct {
	Param string
	State State
	Value any
}

// Plan is a validated tool-to-signature binding. Construction fails with a
// binding error when any external parameter or overlay names a target the
// signature does not have, or when overlay targeting is ambiguous.
type Plan struct {
	Tool      tooldef.Tool
	Signature registry.ServiceSignature
	Bindings  []Binding
}

// NewPlan validates the tool definition against the scanned signature and
// builds the per-parameter bindings.
func NewPlan(tool tooldef.Tool, sig registry.ServiceSignature) (*Plan, error) {
	byName := make(map[string]int, len(sig.Params))
	for i, p := range sig.Params {
		byName[p.Name] = i
	}

	plan := &Plan{Tool: tool, Signature: sig, Bindings: make([]Binding, len(sig.Params))}
	for i, p := range sig.Params {
		plan.Bindings[i].Param = p
	}

	for i := range tool.Params {
		ext := &tool.Params[i]
		idx, ok := byName[ext.TargetParam]
		if !ok {
			return nil, bindingErr(tool, "external parameter %q targets unknown parameter %q", ext.Name, ext.TargetParam).
				With(faults.CtxParam, ext.TargetParam)
		}
		if plan.Bindings[idx].External != nil {
			return nil, bindingErr(tool, "parameter %q is targeted by more than one external property", ext.TargetParam).
				With(faults.CtxParam, ext.TargetParam)
		}
		plan.Bindings[idx].External = ext
	}

	for i := range tool.Overlays {
		overlay := &tool.Overlays[i]
		idx, err := resolveOverlayTarget(tool, sig, byName, overlay)
		if err != nil {
			return nil, err
		}
		slot := &plan.Bindings[idx]
		switch overlay.Source {
		case tooldef.SourceDefault:
			if slot.Default != nil {
				return nil, bindingErr(tool, "parameter %q has more than one default overlay", slot.Param.Name).
					With(faults.CtxParam, slot.Param.Name)
			}
			slot.Default = overlay
		case tooldef.SourceHidden:
			if slot.Hidden != nil {
				return nil, bindingErr(tool, "parameter %q has more than one hidden overlay", slot.Param.Name).
					With(faults.CtxParam, slot.Param.Name)
			}
			if slot.External != nil {
				return nil, bindingErr(tool, "parameter %q is both externally exposed and hidden", slot.Param.Name).
					With(faults.CtxParam, slot.Param.Name)
			}
			slot.Hidden = overlay
		default:
			return nil, bindingErr(tool, "overlay for %q has unknown source %q", overlay.TargetParam, overlay.Source)
		}
	}

	return plan, nil
}

// Validate checks that every required parameter has at least one value
// source: an external mapping the caller can fill, a default overlay, or a
// hidden overlay. A required parameter with none of these can never resolve,
// so the tool is rejected at generation time rather than failing every call.
func (p *Plan) Validate() error {
	var unreachable []string
	for _, b := range p.Bindings {
		if b.Param.Optional || b.External != nil || b.Default != nil || b.Hidden != nil {
			continue
		}
		unreachable = append(unreachable, b.Param.Name)
	}
	if len(unreachable) > 0 {
		return bindingErr(p.Tool, "required parameters %v have no value source", unreachable)
	}
	return nil
}

// resolveOverlayTarget maps an overlay's target onto a signature parameter.
// Overlays usually name the parameter directly; they may instead name a
// composite type, which resolves only when unambiguous or when targetFactor
// pins the parameter.
func resolveOverlayTarget(tool tooldef.Tool, sig registry.ServiceSignature, byName map[string]int, overlay *tooldef.Overlay) (int, error) {
	if idx, ok := byName[overlay.TargetParam]; ok {
		return idx, nil
	}

	var candidates []int
	for i, p := range sig.Params {
		if p.Kind == registry.KindComposite && p.Type == overlay.TargetParam {
			candidates = append(candidates, i)
		}
	}
	switch len(candidates) {
	case 0:
		return 0, bindingErr(tool, "overlay targets unknown parameter %q", overlay.TargetParam).
			With(faults.CtxParam, overlay.TargetParam)
	case 1:
		return candidates[0], nil
	}

	if overlay.TargetFactor == "" {
		return 0, bindingErr(tool, "overlay target %q matches %d parameters and carries no targetFactor", overlay.TargetParam, len(candidates))
	}
	for _, idx := range candidates {
		if sig.Params[idx].Name == overlay.TargetFactor {
			return idx, nil
		}
	}
	return 0, bindingErr(tool, "overlay targetFactor %q names no parameter of type %q", overlay.TargetFactor, overlay.TargetParam)
}

// Resolve applies caller-supplied external values to the plan and returns
// the call-argument map alongside the per-parameter outcomes. A required
// parameter with no value source resolves to Omitted and fails the call.
func (p *Plan) Resolve(external map[string]any) (map[string]any, []Resolution, error) {
	args := make(map[string]any)
	resolutions := make([]Resolution, 0, len(p.Bindings))

	var failed []string
	for _, b := range p.Bindings {
		res := ResolveParam(b, external)
		resolutions = append(resolutions, res)
		switch res.State {
		case StateOmitted:
			if !b.Param.Optional {
				failed = append(failed, b.Param.Name)
			}
		case StateBindingError:
			failed = append(failed, b.Param.Name)
		default:
			args[b.Param.Name] = res.Value
		}
	}

	if len(failed) > 0 {
		return nil, resolutions, bindingErr(p.Tool, "no value available for required parameters %v", failed)
	}
	return args, resolutions, nil
}

// ResolveParam runs the precedence chain for one parameter: a present,
// non-null caller value wins; otherwise a default overlay; otherwise a
// hidden overlay; otherwise the parameter is omitted.
//
// Presence means the key exists with a non-null value. Empty strings, empty
// collections, zero and false are all present values.
func ResolveParam(b Binding, external map[string]any) Resolution {
	if b.External != nil {
		if value, ok := external[b.External.Name]; ok && value != nil {
			return Resolution{
				Param: b.Param.Name,
				State: StateExternalProvided,
				Value: mergeCompositeDefault(b, value),
			}
		}
	}
	if b.Default != nil {
		return Resolution{Param: b.Param.Name, State: StateDefaultApplied, Value: overlayValue(b.Default)}
	}
	if b.Hidden != nil {
		return Resolution{Param: b.Param.Name, State: StateHiddenApplied, Value: overlayValue(b.Hidden)}
	}
	return Resolution{Param: b.Param.Name, State: StateOmitted}
}

// mergeCompositeDefault layers a default overlay's field map under a
// caller-supplied composite value. Caller fields win field by field.
func mergeCompositeDefault(b Binding, callerValue any) any {
	if b.Param.Kind != registry.KindComposite || b.Default == nil || len(b.Default.Fields) == 0 {
		return callerValue
	}
	callerFields, ok := callerValue.(map[string]any)
	if !ok {
		return callerValue
	}

	merged := make(map[string]any, len(b.Default.Fields)+len(callerFields))
	for k, v := range b.Default.Fields {
		merged[k] = v
	}
	for k, v := range callerFields {
		merged[k] = v
	}
	return merged
}

func overlayValue(o *tooldef.Overlay) any {
	if o.HasValue {
		return o.Value
	}
	if o.Fields != nil {
		return o.Fields
	}
	return nil
}

func bindingErr(tool tooldef.Tool, format string, args ...any) *faults.Fault {
	return faults.Newf(faults.KindBindingError, format, args...).
		With(faults.CtxTool, tool.Name)
}

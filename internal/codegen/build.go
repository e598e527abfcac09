package codegen

import (
	"encoding/json"
	"sort"

	"factory/internal/binding"
	"factory/internal/faults"
	"factory/internal/registry"
	"factory/internal/shared/util"
	"factory/internal/tooldef"
)

// Build assembles the intermediate module for one profile and protocol. A
// tool that fails to bind is dropped and its error reported; the remaining
// tools still generate. Only an unsupported registry language is fatal.
func Build(reg *registry.Registry, doc *tooldef.Document, protocol string) (*Module, []error) {
	if reg.Language != "python" {
		return nil, []error{faults.Newf(faults.KindValidation,
			"no server templates for language %q", reg.Language).With(faults.CtxProfile, reg.Profile)}
	}

	mod := &Module{Profile: reg.Profile, Protocol: protocol}
	var errs []error

	seenImports := make(map[Import]bool)
	seenOwners := make(map[string]bool)

	tools := make([]tooldef.Tool, len(doc.Tools))
	copy(tools, doc.Tools)
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	for _, tool := range tools {
		sig, ok := reg.Services[tool.Service]
		if !ok {
			errs = append(errs, faults.Newf(faults.KindBindingError,
				"tool %q binds unknown service %q", tool.Name, tool.Service).
				With(faults.CtxTool, tool.Name).With(faults.CtxProfile, reg.Profile))
			continue
		}

		plan, err := binding.NewPlan(tool, sig)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := plan.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}

		handler, err := buildHandler(plan)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		mod.Handlers = append(mod.Handlers, handler)

		if sig.OwnerType != "" {
			imp := Import{Module: sig.Module, Name: sig.OwnerType}
			if !seenImports[imp] {
				seenImports[imp] = true
				mod.Imports = append(mod.Imports, imp)
			}
			if !seenOwners[sig.OwnerType] {
				seenOwners[sig.OwnerType] = true
				mod.Instantiations = append(mod.Instantiations, Instantiation{
					VarName:  util.SnakeCase(sig.OwnerType),
					TypeName: sig.OwnerType,
				})
			}
		} else {
			imp := Import{Module: sig.Module, Name: sig.Name}
			if !seenImports[imp] {
				seenImports[imp] = true
				mod.Imports = append(mod.Imports, imp)
			}
		}

		// Composite parameter types referenced by the tool import alongside
		// the callable so handlers can construct them.
		for _, p := range sig.Params {
			if p.Kind != registry.KindComposite {
				continue
			}
			ct, ok := reg.Types[p.Type]
			if !ok || ct.Opaque || ct.Module == "" {
				continue
			}
			imp := Import{Module: ct.Module, Name: ct.Name}
			if !seenImports[imp] {
				seenImports[imp] = true
				mod.Imports = append(mod.Imports, imp)
			}
		}
	}

	sort.Slice(mod.Imports, func(i, j int) bool {
		if mod.Imports[i].Module != mod.Imports[j].Module {
			return mod.Imports[i].Module < mod.Imports[j].Module
		}
		return mod.Imports[i].Name < mod.Imports[j].Name
	})
	sort.Slice(mod.Instantiations, func(i, j int) bool {
		return mod.Instantiations[i].VarName < mod.Instantiations[j].VarName
	})

	return mod, errs
}

func buildHandler(plan *binding.Plan) (Handler, error) {
	sig := plan.Signature
	tool := plan.Tool

	handler := Handler{
		Name:        tool.Name,
		Description: tool.Description,
		Callable:    sig.Name,
		Async:       sig.Async,
	}
	if handler.Description == "" {
		handler.Description = sig.Meta.Description
	}
	if sig.OwnerType != "" {
		handler.OwnerVar = util.SnakeCase(sig.OwnerType)
	}

	for _, ext := range tool.Params {
		prop, err := schemaProperty(ext)
		if err != nil {
			return Handler{}, faults.Wrap(faults.KindBindingError, err,
				"tool %q parameter %q schema", tool.Name, ext.Name).With(faults.CtxTool, tool.Name)
		}
		handler.Schema = append(handler.Schema, prop)
	}

	for _, b := range plan.Bindings {
		rule := BindingRule{
			Param:    b.Param.Name,
			Required: !b.Param.Optional,
		}
		if b.External != nil {
			rule.HasExternal = true
			rule.ExternalName = b.External.Name
		}
		if b.Default != nil {
			rule.HasDefault = true
			if b.Default.HasValue {
				rule.Default = pyLiteral(b.Default.Value)
			} else {
				rule.Default = pyLiteral(anyMap(b.Default.Fields))
			}
			if len(b.Default.Fields) > 0 {
				rule.DefaultFields = pyLiteral(anyMap(b.Default.Fields))
			}
		}
		if b.Hidden != nil {
			rule.HasHidden = true
			if b.Hidden.HasValue {
				rule.Hidden = pyLiteral(b.Hidden.Value)
			} else {
				rule.Hidden = pyLiteral(anyMap(b.Hidden.Fields))
			}
		}
		handler.Bindings = append(handler.Bindings, rule)
	}

	return handler, nil
}

// schemaProperty renders one external parameter's OpenAPI fragment into a
// Python dict literal.
func schemaProperty(ext tooldef.ExternalParam) (SchemaProperty, error) {
	prop := SchemaProperty{Name: ext.Name, Required: ext.Required}

	shape := map[string]any{}
	if ext.Schema != nil {
		encoded, err := ext.Schema.MarshalJSON()
		if err != nil {
			return SchemaProperty{}, err
		}
		if err := json.Unmarshal(encoded, &shape); err != nil {
			return SchemaProperty{}, err
		}
	}
	if ext.Description != "" {
		if _, exists := shape["description"]; !exists {
			shape["description"] = ext.Description
		}
	}
	prop.Literal = pyLiteral(shape)
	return prop, nil
}

func anyMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

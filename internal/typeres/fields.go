package typeres

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"factory/internal/registry"
)

// extractPythonClass reads annotated class attributes. Classes that carry
// no annotated attributes fall back to the typed parameters of __init__,
// which covers plain classes and dataclass-style definitions alike.
func extractPythonClass(root *sitter.Node, source []byte, typeName string) (registry.CompositeType, bool) {
	class := findDescendant(root, source, "class_definition", typeName)
	if class == nil {
		return registry.CompositeType{}, false
	}
	body := class.ChildByFieldName("body")
	if body == nil {
		return registry.CompositeType{}, false
	}

	ct := registry.CompositeType{Name: typeName, Line: nodeLine(class)}
	for i := uint(0); i < body.ChildCount(); i++ {
		stmt := body.Child(i)
		if stmt.Kind() != "expression_statement" || stmt.ChildCount() == 0 {
			continue
		}
		assign := stmt.Child(0)
		if assign.Kind() != "assignment" {
			continue
		}
		left := assign.ChildByFieldName("left")
		typ := assign.ChildByFieldName("type")
		if left == nil || typ == nil || left.Kind() != "identifier" {
			continue
		}
		field := registry.ParameterSpec{
			Name: nodeText(left, source),
			Type: nodeText(typ, source),
		}
		if right := assign.ChildByFieldName("right"); right != nil {
			field.HasDefault = true
			field.DefaultExpr = nodeText(right, source)
		}
		classify(&field)
		ct.Fields = append(ct.Fields, field)
	}

	if len(ct.Fields) == 0 {
		ct.Fields = pythonInitFields(body, source)
	}
	return ct, true
}

func pythonInitFields(body *sitter.Node, source []byte) []registry.ParameterSpec {
	init := findDescendant(body, source, "function_definition", "__init__")
	if init == nil {
		return nil
	}
	params := init.ChildByFieldName("parameters")
	if params == nil {
		return nil
	}

	var out []registry.ParameterSpec
	for i := uint(0); i < params.ChildCount(); i++ {
		p := params.Child(i)
		var field registry.ParameterSpec
		switch p.Kind() {
		case "typed_parameter":
			field.Name = nodeText(p.Child(0), source)
			field.Type = nodeText(p.ChildByFieldName("type"), source)
		case "typed_default_parameter":
			field.Name = nodeText(p.ChildByFieldName("name"), source)
			field.Type = nodeText(p.ChildByFieldName("type"), source)
			field.HasDefault = true
			field.DefaultExpr = nodeText(p.ChildByFieldName("value"), source)
		case "default_parameter":
			field.Name = nodeText(p.ChildByFieldName("name"), source)
			field.HasDefault = true
			field.DefaultExpr = nodeText(p.ChildByFieldName("value"), source)
		case "identifier":
			field.Name = nodeText(p, source)
		default:
			continue
		}
		if field.Name == "" || field.Name == "self" || field.Name == "cls" {
			continue
		}
		classify(&field)
		out = append(out, field)
	}
	return out
}

// extractScriptType handles TypeScript interfaces, object-literal type
// aliases, and class field declarations. Plain JavaScript classes yield
// field names from their field definitions without type information.
func extractScriptType(root *sitter.Node, source []byte, typeName string) (registry.CompositeType, bool) {
	if iface := findDescendant(root, source, "interface_declaration", typeName); iface != nil {
		ct := registry.CompositeType{Name: typeName, Line: nodeLine(iface)}
		ct.Fields = scriptMembers(iface.ChildByFieldName("body"), source)
		return ct, true
	}
	if alias := findDescendant(root, source, "type_alias_declaration", typeName); alias != nil {
		value := alias.ChildByFieldName("value")
		if value == nil || value.Kind() != "object_type" {
			return registry.CompositeType{}, false
		}
		ct := registry.CompositeType{Name: typeName, Line: nodeLine(alias)}
		ct.Fields = scriptMembers(value, source)
		return ct, true
	}
	for _, kind := range []string{"class_declaration", "class"} {
		class := findDescendant(root, source, kind, typeName)
		if class == nil {
			continue
		}
		ct := registry.CompositeType{Name: typeName, Line: nodeLine(class)}
		ct.Fields = scriptClassFields(class.ChildByFieldName("body"), source)
		return ct, true
	}
	return registry.CompositeType{}, false
}

func scriptMembers(body *sitter.Node, source []byte) []registry.ParameterSpec {
	if body == nil {
		return nil
	}
	var out []registry.ParameterSpec
	for i := uint(0); i < body.ChildCount(); i++ {
		member := body.Child(i)
		if member.Kind() != "property_signature" {
			continue
		}
		field := registry.ParameterSpec{
			Name: nodeText(member.ChildByFieldName("name"), source),
			Type: annotatedType(member.ChildByFieldName("type"), source),
		}
		if strings.Contains(nodeText(member, source), field.Name+"?") {
			field.Optional = true
		}
		classify(&field)
		out = append(out, field)
	}
	return out
}

func scriptClassFields(body *sitter.Node, source []byte) []registry.ParameterSpec {
	if body == nil {
		return nil
	}
	var out []registry.ParameterSpec
	for i := uint(0); i < body.ChildCount(); i++ {
		member := body.Child(i)
		if member.Kind() != "public_field_definition" && member.Kind() != "field_definition" {
			continue
		}
		field := registry.ParameterSpec{
			Name: nodeText(member.ChildByFieldName("name"), source),
			Type: annotatedType(member.ChildByFieldName("type"), source),
		}
		if value := member.ChildByFieldName("value"); value != nil {
			field.HasDefault = true
			field.DefaultExpr = nodeText(value, source)
		}
		classify(&field)
		out = append(out, field)
	}
	return out
}

// annotatedType strips the leading colon from a type_annotation node.
func annotatedType(node *sitter.Node, source []byte) string {
	text := nodeText(node, source)
	return strings.TrimSpace(strings.TrimPrefix(text, ":"))
}

// extractGoStruct reads the field list of a struct type declaration.
// Embedded fields and multi-name declarations both flatten into individual
// entries.
func extractGoStruct(root *sitter.Node, source []byte, typeName string) (registry.CompositeType, bool) {
	spec := findDescendant(root, source, "type_spec", typeName)
	if spec == nil {
		return registry.CompositeType{}, false
	}
	structType := spec.ChildByFieldName("type")
	if structType == nil || structType.Kind() != "struct_type" {
		return registry.CompositeType{}, false
	}

	ct := registry.CompositeType{Name: typeName, Line: nodeLine(spec)}
	var list *sitter.Node
	for i := uint(0); i < structType.ChildCount(); i++ {
		if structType.Child(i).Kind() == "field_declaration_list" {
			list = structType.Child(i)
			break
		}
	}
	if list == nil {
		return ct, true
	}

	for i := uint(0); i < list.ChildCount(); i++ {
		decl := list.Child(i)
		if decl.Kind() != "field_declaration" {
			continue
		}
		typeNode := decl.ChildByFieldName("type")
		typeText := nodeText(typeNode, source)
		optional := strings.HasPrefix(typeText, "*")

		var names []string
		for j := uint(0); j < decl.ChildCount(); j++ {
			if decl.Child(j).Kind() == "field_identifier" {
				names = append(names, nodeText(decl.Child(j), source))
			}
		}
		if len(names) == 0 && typeText != "" {
			// Embedded field: the type name doubles as the field name.
			name := typeText
			if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
				name = name[idx+1:]
			}
			names = []string{strings.TrimPrefix(name, "*")}
		}

		for _, name := range names {
			field := registry.ParameterSpec{Name: name, Type: typeText, Optional: optional}
			classify(&field)
			ct.Fields = append(ct.Fields, field)
		}
	}
	return ct, true
}

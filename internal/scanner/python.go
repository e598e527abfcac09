package scanner

import (
	"strconv"
	"strings"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"factory/internal/registry"
	"factory/internal/shared/util"
)

// annotationName is the decorator (Python) marker for an exposed service.
const annotationName = "mcp_tool"

// PythonExtractor implements the structural scanning strategy: it visits the
// AST for decorated callables. Docstring tags are emitted as a secondary
// comment-strategy match so the standard merge rule applies.
type PythonExtractor struct{}

func (e *PythonExtractor) Extract(root *sitter.Node, source []byte, filePath string) (*SourceFile, []AnnotationMatch, error) {
	file := &SourceFile{
		Path:     filePath,
		Language: "python",
		ParsedAt: time.Now(),
	}
	ctx := &ExtractionContext{Source: source, File: file}

	var matches []AnnotationMatch
	e.walk(ctx, root, "", &matches)
	return file, matches, nil
}

func (e *PythonExtractor) walk(ctx *ExtractionContext, node *sitter.Node, owner string, matches *[]AnnotationMatch) {
	switch node.Kind() {
	case "import_statement":
		e.extractImport(ctx, node)
	case "import_from_statement":
		e.extractFromImport(ctx, node)
	case "class_definition":
		name := ctx.Text(node.ChildByFieldName("name"))
		if body := node.ChildByFieldName("body"); body != nil {
			e.walk(ctx, body, name, matches)
		}
		return
	case "decorated_definition":
		e.extractDecorated(ctx, node, owner, matches)
		return
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		e.walk(ctx, node.Child(i), owner, matches)
	}
}

func (e *PythonExtractor) extractDecorated(ctx *ExtractionContext, node *sitter.Node, owner string, matches *[]AnnotationMatch) {
	var marker *sitter.Node
	var def *sitter.Node
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "decorator":
			if e.decoratorName(ctx, child) == annotationName {
				marker = child
			}
		case "function_definition":
			def = child
		case "class_definition":
			// A decorated class: scan its body for decorated methods.
			name := ctx.Text(child.ChildByFieldName("name"))
			if body := child.ChildByFieldName("body"); body != nil {
				e.walk(ctx, body, name, matches)
			}
			return
		}
	}
	if def == nil {
		return
	}
	if marker == nil {
		// Not an annotated callable; nested definitions may still be.
		if body := def.ChildByFieldName("body"); body != nil {
			e.walk(ctx, body, owner, matches)
		}
		return
	}

	sig := registry.ServiceSignature{
		Name:     ctx.Text(def.ChildByFieldName("name")),
		Language: "python",
		File:     ctx.File.Path,
		Line:     ctx.Line(def),
		Async:    ctx.HasChildOfKind(def, "async"),
		Returns:  strings.TrimSpace(ctx.Text(def.ChildByFieldName("return_type"))),
		Meta:     e.decoratorMetadata(ctx, marker),
	}
	if owner != "" {
		sig.OwnerType = owner
		sig.OwnerAlias = util.SnakeCase(owner)
	}
	sig.Params = e.extractParams(ctx, def.ChildByFieldName("parameters"), owner != "")

	*matches = append(*matches, AnnotationMatch{Strategy: StrategyStructural, Signature: sig})

	if doc := e.docstring(ctx, def); doc != "" {
		if supplement, ok := docstringMatch(sig, doc); ok {
			*matches = append(*matches, supplement)
		}
	}
}

// decoratorName returns the trailing identifier of a decorator expression:
// @mcp_tool, @mcp_tool(...), @factory.mcp_tool(...) all yield "mcp_tool".
func (e *PythonExtractor) decoratorName(ctx *ExtractionContext, dec *sitter.Node) string {
	text := strings.TrimPrefix(ctx.Text(dec), "@")
	if i := strings.IndexByte(text, '('); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	if i := strings.LastIndexByte(text, '.'); i >= 0 {
		text = text[i+1:]
	}
	return text
}

func (e *PythonExtractor) decoratorMetadata(ctx *ExtractionContext, dec *sitter.Node) registry.Metadata {
	var meta registry.Metadata

	call := e.findCall(dec)
	if call == nil {
		return meta
	}
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return meta
	}

	for i := uint(0); i < args.ChildCount(); i++ {
		kw := args.Child(i)
		if kw.Kind() != "keyword_argument" {
			continue
		}
		name := ctx.Text(kw.ChildByFieldName("name"))
		valueNode := kw.ChildByFieldName("value")
		value, ok := evalPythonLiteral(ctx, valueNode)
		if !ok {
			if meta.Extra == nil {
				meta.Extra = make(map[string]string)
			}
			meta.Extra[name] = ctx.Text(valueNode)
			continue
		}

		switch name {
		case "category":
			meta.Category, _ = value.(string)
		case "description":
			meta.Description, _ = value.(string)
		case "priority":
			switch v := value.(type) {
			case int64:
				meta.Priority = int(v)
			case float64:
				meta.Priority = int(v)
			}
		case "tags":
			if list, ok := value.([]any); ok {
				for _, item := range list {
					if s, ok := item.(string); ok {
						meta.Tags = append(meta.Tags, s)
					}
				}
			}
		default:
			if meta.Extra == nil {
				meta.Extra = make(map[string]string)
			}
			meta.Extra[name] = ctx.Text(valueNode)
		}
	}
	return meta
}

func (e *PythonExtractor) findCall(node *sitter.Node) *sitter.Node {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == "call" {
			return child
		}
		if found := e.findCall(child); found != nil {
			return found
		}
	}
	return nil
}

func (e *PythonExtractor) extractParams(ctx *ExtractionContext, params *sitter.Node, isMethod bool) []registry.ParameterSpec {
	if params == nil {
		return nil
	}

	var specs []registry.ParameterSpec
	for i := uint(0); i < params.ChildCount(); i++ {
		child := params.Child(i)
		var spec registry.ParameterSpec
		switch child.Kind() {
		case "identifier":
			spec.Name = ctx.Text(child)
		case "typed_parameter":
			spec.Name = ctx.ChildText(child, "identifier")
			spec.Type = strings.TrimSpace(ctx.Text(child.ChildByFieldName("type")))
		case "default_parameter":
			spec.Name = ctx.Text(child.ChildByFieldName("name"))
			e.applyDefault(ctx, &spec, child.ChildByFieldName("value"))
		case "typed_default_parameter":
			spec.Name = ctx.Text(child.ChildByFieldName("name"))
			spec.Type = strings.TrimSpace(ctx.Text(child.ChildByFieldName("type")))
			e.applyDefault(ctx, &spec, child.ChildByFieldName("value"))
		default:
			// *args / **kwargs and separators have no external surface.
			continue
		}
		if spec.Name == "" || spec.Name == "self" || spec.Name == "cls" {
			continue
		}

		token, kind, optional := ClassifyType(spec.Type)
		spec.Type = token
		spec.Kind = kind
		spec.Optional = spec.Optional || optional || spec.HasDefault
		specs = append(specs, spec)
	}
	return specs
}

func (e *PythonExtractor) applyDefault(ctx *ExtractionContext, spec *registry.ParameterSpec, value *sitter.Node) {
	if value == nil {
		return
	}
	spec.HasDefault = true
	spec.Optional = true
	if v, ok := evalPythonLiteral(ctx, value); ok {
		spec.Default = v
	} else {
		spec.DefaultExpr = ctx.Text(value)
	}
}

func (e *PythonExtractor) docstring(ctx *ExtractionContext, def *sitter.Node) string {
	body := def.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first == nil || first.Kind() != "expression_statement" {
		return ""
	}
	str := ctx.FirstChildOfKind(first, "string")
	if str == nil {
		return ""
	}
	return stripPythonQuotes(ctx.Text(str))
}

func (e *PythonExtractor) extractImport(ctx *ExtractionContext, node *sitter.Node) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "dotted_name", "identifier":
			module := ctx.Text(child)
			ctx.File.Imports = append(ctx.File.Imports, Import{
				Module:    module,
				RawImport: module,
				Line:      ctx.Line(child),
			})
		case "aliased_import":
			var module, alias string
			for j := uint(0); j < child.ChildCount(); j++ {
				sub := child.Child(j)
				if sub.Kind() == "dotted_name" || sub.Kind() == "identifier" {
					if module == "" {
						module = ctx.Text(sub)
					} else {
						alias = ctx.Text(sub)
					}
				}
			}
			ctx.File.Imports = append(ctx.File.Imports, Import{
				Module:    module,
				RawImport: module,
				Alias:     alias,
				Line:      ctx.Line(child),
			})
		}
	}
}

func (e *PythonExtractor) extractFromImport(ctx *ExtractionContext, node *sitter.Node) {
	var module string
	var items []string
	isRelative := false
	level := 0

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "relative_import":
			isRelative = true
			relText := ctx.Text(child)
			level = len(relText) - len(strings.TrimLeft(relText, "."))
			module = strings.TrimLeft(relText, ".")
		case "dotted_name", "identifier":
			if !isRelative && module == "" {
				module = ctx.Text(child)
			} else {
				items = append(items, ctx.Text(child))
			}
		case "import_list", "aliased_import":
			collectPyItems(ctx, child, &items)
		}
	}

	ctx.File.Imports = append(ctx.File.Imports, Import{
		Module:     module,
		RawImport:  module,
		Items:      items,
		IsRelative: isRelative,
		Level:      level,
		Line:       ctx.Line(node),
	})
}

func collectPyItems(ctx *ExtractionContext, node *sitter.Node, items *[]string) {
	kind := node.Kind()
	if kind == "identifier" || kind == "dotted_name" {
		*items = append(*items, ctx.Text(node))
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		collectPyItems(ctx, node.Child(i), items)
	}
}

// evalPythonLiteral evaluates a literal expression node into a Go value.
// Non-literal expressions report ok=false and are recorded as opaque text.
func evalPythonLiteral(ctx *ExtractionContext, node *sitter.Node) (any, bool) {
	if node == nil {
		return nil, false
	}
	switch node.Kind() {
	case "string":
		text := ctx.Text(node)
		if text != "" && text[0] != '"' && text[0] != '\'' {
			// Prefixed strings (f"", r"", b"") stay opaque.
			return nil, false
		}
		return stripPythonQuotes(text), true
	case "integer":
		if v, err := strconv.ParseInt(ctx.Text(node), 0, 64); err == nil {
			return v, true
		}
		return nil, false
	case "float":
		if v, err := strconv.ParseFloat(ctx.Text(node), 64); err == nil {
			return v, true
		}
		return nil, false
	case "true":
		return true, true
	case "false":
		return false, true
	case "none":
		return nil, true
	case "unary_operator":
		operand := node.ChildByFieldName("argument")
		v, ok := evalPythonLiteral(ctx, operand)
		if !ok || !strings.HasPrefix(ctx.Text(node), "-") {
			return nil, false
		}
		switch n := v.(type) {
		case int64:
			return -n, true
		case float64:
			return -n, true
		}
		return nil, false
	case "list", "tuple":
		out := make([]any, 0, node.NamedChildCount())
		for i := uint(0); i < node.NamedChildCount(); i++ {
			v, ok := evalPythonLiteral(ctx, node.NamedChild(i))
			if !ok {
				return nil, false
			}
			out = append(out, v)
		}
		return out, true
	case "dictionary":
		out := make(map[string]any, node.NamedChildCount())
		for i := uint(0); i < node.NamedChildCount(); i++ {
			pair := node.NamedChild(i)
			if pair.Kind() != "pair" {
				return nil, false
			}
			key, ok := evalPythonLiteral(ctx, pair.ChildByFieldName("key"))
			if !ok {
				return nil, false
			}
			keyStr, ok := key.(string)
			if !ok {
				return nil, false
			}
			value, ok := evalPythonLiteral(ctx, pair.ChildByFieldName("value"))
			if !ok {
				return nil, false
			}
			out[keyStr] = value
		}
		return out, true
	default:
		return nil, false
	}
}

func stripPythonQuotes(text string) string {
	for _, q := range []string{`"""`, `'''`} {
		if strings.HasPrefix(text, q) && strings.HasSuffix(text, q) && len(text) >= 2*len(q) {
			return strings.TrimSpace(text[len(q) : len(text)-len(q)])
		}
	}
	if len(text) >= 2 && (text[0] == '"' || text[0] == '\'') && text[len(text)-1] == text[0] {
		return text[1 : len(text)-1]
	}
	return text
}

package scanner

import (
	"strconv"
	"strings"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"factory/internal/registry"
	"factory/internal/shared/util"
)

// ScriptExtractor implements the comment-block scanning strategy for
// JavaScript and TypeScript: a doc comment carrying the marker, immediately
// preceding a function-like declaration. The AST supplies a structural
// supplement (parameter list, async flag, TS type annotations).
type ScriptExtractor struct {
	Language string // "javascript" or "typescript"
}

func (e *ScriptExtractor) Extract(root *sitter.Node, source []byte, filePath string) (*SourceFile, []AnnotationMatch, error) {
	file := &SourceFile{
		Path:     filePath,
		Language: e.Language,
		ParsedAt: time.Now(),
	}
	ctx := &ExtractionContext{Source: source, File: file}

	var matches []AnnotationMatch
	e.walk(ctx, root, "", &matches)
	return file, matches, nil
}

func (e *ScriptExtractor) walk(ctx *ExtractionContext, node *sitter.Node, owner string, matches *[]AnnotationMatch) {
	if node.Kind() == "import_statement" {
		e.extractImport(ctx, node)
	}

	childOwner := owner
	if node.Kind() == "class_declaration" || node.Kind() == "class" {
		if name := node.ChildByFieldName("name"); name != nil {
			childOwner = ctx.Text(name)
		}
	}

	// Pair marker comments with the next non-comment sibling.
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() != "comment" || !strings.Contains(ctx.Text(child), commentMarker) {
			continue
		}
		decl := nextNonComment(node, i)
		if decl == nil {
			continue
		}
		e.extractAnnotated(ctx, ctx.Text(child), decl, childOwner, matches)
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		e.walk(ctx, node.Child(i), childOwner, matches)
	}
}

func nextNonComment(parent *sitter.Node, from uint) *sitter.Node {
	for j := from + 1; j < parent.ChildCount(); j++ {
		sibling := parent.Child(j)
		if sibling.Kind() == "comment" {
			continue
		}
		return sibling
	}
	return nil
}

func (e *ScriptExtractor) extractAnnotated(ctx *ExtractionContext, comment string, decl *sitter.Node, owner string, matches *[]AnnotationMatch) {
	block := parseDocBlock(cleanBlockComment(comment))
	if !block.IsTool {
		return
	}

	if decl.Kind() == "export_statement" {
		inner := decl.ChildByFieldName("declaration")
		if inner == nil {
			return
		}
		decl = inner
	}

	name, fn, methodOwner := e.callableOf(ctx, decl, owner)
	if name == "" {
		return
	}

	commentSig := signatureFromBlock(block, name, methodOwner, ctx.File.Path, ctx.Line(decl))
	commentSig.Language = e.Language
	*matches = append(*matches, AnnotationMatch{Strategy: StrategyComment, Signature: commentSig})

	if fn == nil {
		return
	}
	structural := registry.ServiceSignature{
		Name:     name,
		Language: e.Language,
		File:     ctx.File.Path,
		Line:     ctx.Line(decl),
		Async:    ctx.HasChildOfKind(fn, "async") || ctx.HasChildOfKind(decl, "async"),
		Params:   e.extractParams(ctx, fn),
	}
	if methodOwner != "" {
		structural.OwnerType = methodOwner
		structural.OwnerAlias = util.SnakeCase(methodOwner)
	}
	if ret := fn.ChildByFieldName("return_type"); ret != nil {
		structural.Returns = strings.TrimSpace(strings.TrimPrefix(ctx.Text(ret), ":"))
	}
	*matches = append(*matches, AnnotationMatch{Strategy: StrategyStructural, Signature: structural})
}

// callableOf resolves a declaration node to (name, function node, owner).
func (e *ScriptExtractor) callableOf(ctx *ExtractionContext, decl *sitter.Node, owner string) (string, *sitter.Node, string) {
	switch decl.Kind() {
	case "function_declaration", "generator_function_declaration":
		return ctx.Text(decl.ChildByFieldName("name")), decl, ""
	case "method_definition":
		return ctx.Text(decl.ChildByFieldName("name")), decl, owner
	case "lexical_declaration", "variable_declaration":
		for i := uint(0); i < decl.ChildCount(); i++ {
			child := decl.Child(i)
			if child.Kind() != "variable_declarator" {
				continue
			}
			name := ctx.Text(child.ChildByFieldName("name"))
			value := child.ChildByFieldName("value")
			if value != nil && (value.Kind() == "arrow_function" || value.Kind() == "function_expression" || value.Kind() == "function") {
				return name, value, ""
			}
			return name, nil, ""
		}
	}
	return "", nil, ""
}

func (e *ScriptExtractor) extractParams(ctx *ExtractionContext, fn *sitter.Node) []registry.ParameterSpec {
	params := fn.ChildByFieldName("parameters")
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
		case "assignment_pattern":
			spec.Name = ctx.Text(child.ChildByFieldName("left"))
			e.applyDefault(ctx, &spec, child.ChildByFieldName("right"))
		case "required_parameter", "optional_parameter":
			// TypeScript grammar.
			pattern := child.ChildByFieldName("pattern")
			if pattern == nil || pattern.Kind() != "identifier" {
				continue
			}
			spec.Name = ctx.Text(pattern)
			if ta := child.ChildByFieldName("type"); ta != nil {
				spec.Type = strings.TrimSpace(strings.TrimPrefix(ctx.Text(ta), ":"))
			}
			if child.Kind() == "optional_parameter" {
				spec.Optional = true
			}
			if value := child.ChildByFieldName("value"); value != nil {
				e.applyDefault(ctx, &spec, value)
			}
		default:
			// Rest and destructuring patterns have no external surface.
			continue
		}
		if spec.Name == "" || spec.Name == "this" {
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

func (e *ScriptExtractor) applyDefault(ctx *ExtractionContext, spec *registry.ParameterSpec, value *sitter.Node) {
	if value == nil {
		return
	}
	spec.HasDefault = true
	spec.Optional = true
	if v, ok := evalScriptLiteral(ctx, value); ok {
		spec.Default = v
	} else {
		spec.DefaultExpr = ctx.Text(value)
	}
}

func (e *ScriptExtractor) extractImport(ctx *ExtractionContext, node *sitter.Node) {
	sourceNode := node.ChildByFieldName("source")
	if sourceNode == nil {
		return
	}
	module := strings.Trim(ctx.Text(sourceNode), "\"'`")

	imp := Import{
		Module:     module,
		RawImport:  module,
		IsRelative: strings.HasPrefix(module, "."),
		Line:       ctx.Line(node),
	}

	var collect func(*sitter.Node)
	collect = func(n *sitter.Node) {
		switch n.Kind() {
		case "import_specifier":
			imp.Items = append(imp.Items, ctx.Text(n.ChildByFieldName("name")))
			return
		case "namespace_import":
			if id := ctx.FirstChildOfKind(n, "identifier"); id != nil {
				imp.Alias = ctx.Text(id)
			}
			return
		case "identifier":
			// Default import binding.
			if imp.Alias == "" {
				imp.Alias = ctx.Text(n)
			}
			return
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			collect(n.Child(i))
		}
	}
	if clause := ctx.FirstChildOfKind(node, "import_clause"); clause != nil {
		collect(clause)
	}

	ctx.File.Imports = append(ctx.File.Imports, imp)
}

func evalScriptLiteral(ctx *ExtractionContext, node *sitter.Node) (any, bool) {
	if node == nil {
		return nil, false
	}
	switch node.Kind() {
	case "string":
		return strings.Trim(ctx.Text(node), "\"'`"), true
	case "template_string":
		text := strings.Trim(ctx.Text(node), "`")
		if strings.Contains(text, "${") {
			return nil, false
		}
		return text, true
	case "number":
		text := ctx.Text(node)
		if v, err := strconv.ParseInt(text, 0, 64); err == nil {
			return v, true
		}
		if v, err := strconv.ParseFloat(text, 64); err == nil {
			return v, true
		}
		return nil, false
	case "true":
		return true, true
	case "false":
		return false, true
	case "null", "undefined":
		return nil, true
	case "unary_expression":
		v, ok := evalScriptLiteral(ctx, node.ChildByFieldName("argument"))
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
	case "array":
		out := make([]any, 0, node.NamedChildCount())
		for i := uint(0); i < node.NamedChildCount(); i++ {
			v, ok := evalScriptLiteral(ctx, node.NamedChild(i))
			if !ok {
				return nil, false
			}
			out = append(out, v)
		}
		return out, true
	case "object":
		out := make(map[string]any, node.NamedChildCount())
		for i := uint(0); i < node.NamedChildCount(); i++ {
			pair := node.NamedChild(i)
			if pair.Kind() != "pair" {
				return nil, false
			}
			key := strings.Trim(ctx.Text(pair.ChildByFieldName("key")), "\"'`")
			value, ok := evalScriptLiteral(ctx, pair.ChildByFieldName("value"))
			if !ok {
				return nil, false
			}
			out[key] = value
		}
		return out, true
	default:
		return nil, false
	}
}

// cleanBlockComment strips /** ... */ or // punctuation and returns the
// comment body one line per entry.
func cleanBlockComment(comment string) []string {
	comment = strings.TrimSpace(comment)
	if strings.HasPrefix(comment, "/*") {
		comment = strings.TrimPrefix(comment, "/**")
		comment = strings.TrimPrefix(comment, "/*")
		comment = strings.TrimSuffix(comment, "*/")
	}

	var lines []string
	for _, raw := range strings.Split(comment, "\n") {
		line := strings.TrimSpace(raw)
		line = strings.TrimPrefix(line, "*")
		line = strings.TrimPrefix(line, "//")
		lines = append(lines, strings.TrimSpace(line))
	}
	return lines
}

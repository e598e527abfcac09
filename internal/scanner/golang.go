package scanner

import (
	"strings"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"factory/internal/registry"
	"factory/internal/shared/util"
)

// GoExtractor implements the comment-block scanning strategy for Go: a doc
// comment group carrying the marker immediately above a function or method
// declaration. Parameter names and types come from the typed AST; the
// comment contributes descriptions and metadata.
type GoExtractor struct{}

func (e *GoExtractor) Extract(root *sitter.Node, source []byte, filePath string) (*SourceFile, []AnnotationMatch, error) {
	file := &SourceFile{
		Path:     filePath,
		Language: "go",
		ParsedAt: time.Now(),
	}
	ctx := &ExtractionContext{Source: source, File: file}

	var matches []AnnotationMatch
	e.walk(ctx, root, &matches)
	return file, matches, nil
}

func (e *GoExtractor) walk(ctx *ExtractionContext, node *sitter.Node, matches *[]AnnotationMatch) {
	if node.Kind() == "import_declaration" {
		e.extractImports(ctx, node)
	}

	// Gather contiguous doc-comment groups among this node's children.
	var group []*sitter.Node
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == "comment" {
			if len(group) > 0 && ctx.Line(child) != ctx.Line(group[len(group)-1])+1 {
				group = group[:0]
			}
			group = append(group, child)
			continue
		}
		if len(group) > 0 {
			e.extractAnnotated(ctx, group, child, matches)
			group = group[:0]
		}
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		e.walk(ctx, node.Child(i), matches)
	}
}

func (e *GoExtractor) extractAnnotated(ctx *ExtractionContext, group []*sitter.Node, decl *sitter.Node, matches *[]AnnotationMatch) {
	if decl.Kind() != "function_declaration" && decl.Kind() != "method_declaration" {
		return
	}
	if ctx.Line(decl) != ctx.Line(group[len(group)-1])+1 {
		return
	}

	var raw []string
	for _, c := range group {
		raw = append(raw, ctx.Text(c))
	}
	joined := strings.Join(raw, "\n")
	if !strings.Contains(joined, commentMarker) {
		return
	}
	block := parseDocBlock(cleanBlockComment(joined))
	if !block.IsTool {
		return
	}

	name := ctx.Text(decl.ChildByFieldName("name"))
	if name == "" {
		return
	}

	owner := ""
	if decl.Kind() == "method_declaration" {
		owner = e.receiverType(ctx, decl.ChildByFieldName("receiver"))
	}

	commentSig := signatureFromBlock(block, name, owner, ctx.File.Path, ctx.Line(decl))
	commentSig.Language = "go"
	*matches = append(*matches, AnnotationMatch{Strategy: StrategyComment, Signature: commentSig})

	structural := registry.ServiceSignature{
		Name:     name,
		Language: "go",
		File:     ctx.File.Path,
		Line:     ctx.Line(decl),
		Params:   e.extractParams(ctx, decl.ChildByFieldName("parameters")),
		Returns:  strings.TrimSpace(ctx.Text(decl.ChildByFieldName("result"))),
	}
	if owner != "" {
		structural.OwnerType = owner
		structural.OwnerAlias = util.SnakeCase(owner)
	}
	*matches = append(*matches, AnnotationMatch{Strategy: StrategyStructural, Signature: structural})
}

func (e *GoExtractor) receiverType(ctx *ExtractionContext, receiver *sitter.Node) string {
	if receiver == nil {
		return ""
	}
	for i := uint(0); i < receiver.ChildCount(); i++ {
		child := receiver.Child(i)
		if child.Kind() != "parameter_declaration" {
			continue
		}
		typeNode := child.ChildByFieldName("type")
		if typeNode == nil {
			continue
		}
		return strings.TrimPrefix(ctx.Text(typeNode), "*")
	}
	return ""
}

func (e *GoExtractor) extractParams(ctx *ExtractionContext, params *sitter.Node) []registry.ParameterSpec {
	if params == nil {
		return nil
	}

	var specs []registry.ParameterSpec
	for i := uint(0); i < params.ChildCount(); i++ {
		child := params.Child(i)
		if child.Kind() != "parameter_declaration" {
			continue
		}
		typeNode := child.ChildByFieldName("type")
		typeText := strings.TrimSpace(ctx.Text(typeNode))
		pointer := strings.HasPrefix(typeText, "*")
		typeText = strings.TrimPrefix(typeText, "*")

		// context.Context is plumbing, not a bindable parameter.
		if typeText == "context.Context" {
			continue
		}
		if dot := strings.LastIndexByte(typeText, '.'); dot >= 0 && !strings.ContainsAny(typeText, "[]") {
			typeText = typeText[dot+1:]
		}

		token, kind, _ := ClassifyType(typeText)
		for j := uint(0); j < child.ChildCount(); j++ {
			id := child.Child(j)
			if id.Kind() != "identifier" {
				continue
			}
			specs = append(specs, registry.ParameterSpec{
				Name:     ctx.Text(id),
				Type:     token,
				Kind:     kind,
				Optional: pointer,
			})
		}
	}
	return specs
}

func (e *GoExtractor) extractImports(ctx *ExtractionContext, node *sitter.Node) {
	var walkImports func(*sitter.Node)
	walkImports = func(n *sitter.Node) {
		for i := uint(0); i < n.ChildCount(); i++ {
			child := n.Child(i)
			if child.Kind() != "import_spec" {
				walkImports(child)
				continue
			}
			var alias, path string
			for j := uint(0); j < child.ChildCount(); j++ {
				spec := child.Child(j)
				if spec.Kind() == "package_identifier" {
					alias = ctx.Text(spec)
				} else if spec.Kind() == "interpreted_string_literal" {
					path = strings.Trim(ctx.Text(spec), "\"")
				}
			}
			if path != "" {
				ctx.File.Imports = append(ctx.File.Imports, Import{
					Module:    path,
					RawImport: path,
					Alias:     alias,
					Line:      ctx.Line(child),
				})
			}
		}
	}
	walkImports(node)
}

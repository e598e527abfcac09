// Package typeres locates composite type definitions referenced by scanned
// service signatures, following import statements across the source tree
// without executing any code.
package typeres

import (
	"os"
	"sort"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"factory/internal/registry"
	"factory/internal/scanner"
	"factory/internal/shared/observability"
	"factory/internal/shared/util"
)

// Gap records one composite type that could not be located and degraded to
// an opaque zero-field type. Gaps are reported, never silent.
type Gap struct {
	TypeName     string `json:"type_name"`
	ReferencedBy string `json:"referenced_by"`
	File         string `json:"file"`
}

type Resolver struct {
	sc    *scanner.Scanner
	root  string
	files map[string]*scanner.SourceFile

	resolved map[string]registry.CompositeType
	visiting map[string]bool
	gaps     []Gap
}

func New(sc *scanner.Scanner, root string, files map[string]*scanner.SourceFile) *Resolver {
	return &Resolver{
		sc:       sc,
		root:     root,
		files:    files,
		resolved: make(map[string]registry.CompositeType),
		visiting: make(map[string]bool),
	}
}

// ResolveAll traces every composite parameter type of every signature and
// returns the discovered composite types plus the resolution gaps.
func (r *Resolver) ResolveAll(services map[string]registry.ServiceSignature) (map[string]registry.CompositeType, []Gap) {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sig := services[name]
		for _, param := range sig.Params {
			if param.Kind != registry.KindComposite {
				continue
			}
			r.Resolve(param.Type, sig.File, sig.Name)
		}
	}
	return r.resolved, r.gaps
}

// Resolve locates one composite type starting from the file that references
// it. Types already being resolved return a forward-reference placeholder;
// unresolvable types degrade to opaque.
func (r *Resolver) Resolve(typeName, fromFile, referencedBy string) registry.CompositeType {
	typeName = strings.TrimSpace(typeName)
	if existing, ok := r.resolved[typeName]; ok {
		return existing
	}
	if r.visiting[typeName] {
		return registry.CompositeType{Name: typeName, Forward: true}
	}
	r.visiting[typeName] = true
	defer delete(r.visiting, typeName)

	ct, ok := r.locate(typeName, fromFile)
	if !ok {
		ct = registry.CompositeType{Name: typeName, Opaque: true}
		r.gaps = append(r.gaps, Gap{TypeName: typeName, ReferencedBy: referencedBy, File: fromFile})
		observability.ResolutionGaps.Inc()
	} else if ct.File != "" {
		ct.Module = scanner.ModuleName(r.root, ct.File, language(ct.File))
	}

	r.resolved[typeName] = ct

	// Recurse into composite fields from the defining file.
	for _, field := range ct.Fields {
		if field.Kind != registry.KindComposite {
			continue
		}
		r.Resolve(field.Type, ct.File, typeName)
	}
	return ct
}

// Gaps returns the resolution report accumulated so far.
func (r *Resolver) Gaps() []Gap {
	return r.gaps
}

func (r *Resolver) locate(typeName, fromFile string) (registry.CompositeType, bool) {
	// Dotted references (module.Type) resolve the module prefix first.
	localName := typeName
	var viaAlias string
	if dot := strings.LastIndexByte(typeName, '.'); dot >= 0 {
		viaAlias = typeName[:dot]
		localName = typeName[dot+1:]
	}

	// Same file first.
	if viaAlias == "" {
		if ct, ok := r.extractFromFile(fromFile, localName); ok {
			ct.Name = typeName
			return ct, true
		}
	}

	imports := r.importsOf(fromFile)
	for _, imp := range imports {
		if !importProvides(imp, localName, viaAlias) {
			continue
		}
		for _, candidate := range candidatePaths(imp, fromFile, r.root, language(fromFile)) {
			// Relative imports can ascend past the scan root; resolution
			// stays inside the scanned tree.
			if !util.HasPathPrefix(candidate, r.root) {
				continue
			}
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			if ct, ok := r.extractFromFile(candidate, localName); ok {
				ct.Name = typeName
				return ct, true
			}
		}
	}

	// Go has no per-type import: fall back to the declaring file's package
	// directory.
	if language(fromFile) == "go" {
		for _, sibling := range packageSiblings(fromFile) {
			if ct, ok := r.extractFromFile(sibling, localName); ok {
				ct.Name = typeName
				return ct, true
			}
		}
	}

	return registry.CompositeType{}, false
}

// importProvides reports whether an import statement could introduce the
// given type name into scope.
func importProvides(imp scanner.Import, name, viaAlias string) bool {
	if viaAlias != "" {
		if imp.Alias == viaAlias {
			return true
		}
		base := imp.Module
		if i := strings.LastIndexAny(base, "./"); i >= 0 {
			base = base[i+1:]
		}
		return base == viaAlias
	}
	for _, item := range imp.Items {
		if item == name {
			return true
		}
	}
	// Relative "from . import x" style lists no items for bare re-exports;
	// leave those to candidate probing only when items are absent entirely.
	return imp.Alias == "" && len(imp.Items) == 0 && imp.IsRelative
}

func (r *Resolver) importsOf(path string) []scanner.Import {
	if f, ok := r.files[path]; ok {
		return f.Imports
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	f, _, err := r.sc.ParseFile(path, content)
	if err != nil {
		return nil
	}
	r.files[path] = f
	return f.Imports
}

// extractFromFile parses a file and extracts a composite type definition by
// name, using the same field-extraction shapes as the scanner's parameter
// extraction.
func (r *Resolver) extractFromFile(path, typeName string) (registry.CompositeType, bool) {
	lang := language(path)
	if lang == "" {
		return registry.CompositeType{}, false
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return registry.CompositeType{}, false
	}

	grammar := r.sc.Loader().Language(lang)
	if grammar == nil {
		return registry.CompositeType{}, false
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)
	tree := parser.Parse(content, nil)
	if tree == nil {
		return registry.CompositeType{}, false
	}
	defer tree.Close()

	ct, ok := extractType(lang, tree.RootNode(), content, typeName)
	if !ok {
		return registry.CompositeType{}, false
	}
	ct.File = path
	return ct, true
}

func language(path string) string {
	return scanner.DetectLanguage(path)
}

func extractType(lang string, root *sitter.Node, source []byte, typeName string) (registry.CompositeType, bool) {
	switch lang {
	case "python":
		return extractPythonClass(root, source, typeName)
	case "javascript", "typescript":
		return extractScriptType(root, source, typeName)
	case "go":
		return extractGoStruct(root, source, typeName)
	default:
		return registry.CompositeType{}, false
	}
}

func nodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return string(source[node.StartByte():node.EndByte()])
}

func nodeLine(node *sitter.Node) int {
	return int(node.StartPosition().Row) + 1
}

// findDescendant returns the first node of the given kind whose name field
// matches, searched depth-first.
func findDescendant(node *sitter.Node, source []byte, kind, name string) *sitter.Node {
	if node.Kind() == kind && nodeText(node.ChildByFieldName("name"), source) == name {
		return node
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if found := findDescendant(node.Child(i), source, kind, name); found != nil {
			return found
		}
	}
	return nil
}

func classify(spec *registry.ParameterSpec) {
	token, kind, optional := scanner.ClassifyType(spec.Type)
	spec.Type = token
	spec.Kind = kind
	spec.Optional = spec.Optional || optional || spec.HasDefault
}

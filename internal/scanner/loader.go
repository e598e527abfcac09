package scanner

import (
	"path/filepath"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// GrammarLoader holds the compiled tree-sitter grammars for the supported
// scan languages.
type GrammarLoader struct {
	languages map[string]*sitter.Language
}

func NewGrammarLoader() *GrammarLoader {
	return &GrammarLoader{
		languages: map[string]*sitter.Language{
			"python":     sitter.NewLanguage(tree_sitter_python.Language()),
			"javascript": sitter.NewLanguage(tree_sitter_javascript.Language()),
			"typescript": sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
			"go":         sitter.NewLanguage(tree_sitter_go.Language()),
		},
	}
}

func (gl *GrammarLoader) Language(lang string) *sitter.Language {
	return gl.languages[lang]
}

// DetectLanguage maps a file path to a supported scan language, or "" when
// the extension is unsupported.
func DetectLanguage(path string) string {
	switch filepath.Ext(path) {
	case ".py":
		return "python"
	case ".js", ".mjs":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".go":
		return "go"
	default:
		return ""
	}
}

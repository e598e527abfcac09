package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	sitter "github.com/tree-sitter/go-tree-sitter"

	"factory/internal/registry"
	"factory/internal/shared/observability"
)

// Extractor is one language's scanning strategy set. It returns the file's
// import table and every annotation match found, without executing any
// scanned code.
type Extractor interface {
	Extract(root *sitter.Node, source []byte, filePath string) (*SourceFile, []AnnotationMatch, error)
}

type Options struct {
	ExcludeDirs  []string
	ExcludeFiles []string
	Workers      int
}

type Scanner struct {
	loader       *GrammarLoader
	extractors   map[string]Extractor
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
	workers      int
}

func New(opts Options) (*Scanner, error) {
	dirGlobs, err := compileGlobs(opts.ExcludeDirs)
	if err != nil {
		return nil, fmt.Errorf("exclude dirs: %w", err)
	}
	fileGlobs, err := compileGlobs(opts.ExcludeFiles)
	if err != nil {
		return nil, fmt.Errorf("exclude files: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	s := &Scanner{
		loader:       NewGrammarLoader(),
		extractors:   make(map[string]Extractor),
		excludeDirs:  dirGlobs,
		excludeFiles: fileGlobs,
		workers:      workers,
	}
	s.extractors["python"] = &PythonExtractor{}
	s.extractors["javascript"] = &ScriptExtractor{Language: "javascript"}
	s.extractors["typescript"] = &ScriptExtractor{Language: "typescript"}
	s.extractors["go"] = &GoExtractor{}
	return s, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Loader exposes the grammar set for callers that parse individual files
// (the type resolver reuses it).
func (s *Scanner) Loader() *GrammarLoader {
	return s.loader
}

// ScanRoot walks one source root and produces the scan result for it. Files
// are parsed in parallel; the reduce into the final maps is single-threaded.
func (s *Scanner) ScanRoot(root string) (*Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("source root %q is not a directory", root)
	}

	files, err := s.listFiles(absRoot)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		file    *SourceFile
		matches []AnnotationMatch
		warning *Warning
	}

	paths := make(chan string)
	outcomes := make(chan outcome)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				file, matches, err := s.scanFile(absRoot, path)
				if err != nil {
					outcomes <- outcome{warning: &Warning{File: path, Message: err.Error()}}
					continue
				}
				outcomes <- outcome{file: file, matches: matches}
			}
		}()
	}

	go func() {
		for _, path := range files {
			paths <- path
		}
		close(paths)
		wg.Wait()
		close(outcomes)
	}()

	collected := make(map[string]outcome, len(files))
	var warnings []Warning
	for out := range outcomes {
		if out.warning != nil {
			warnings = append(warnings, *out.warning)
			observability.ScanWarnings.Inc()
			continue
		}
		collected[out.file.Path] = out
	}

	result := &Result{
		Root:     absRoot,
		Services: make(map[string]registry.ServiceSignature),
		Files:    make(map[string]*SourceFile),
		Warnings: warnings,
	}

	// Deterministic reduce order: sorted file paths.
	sortedPaths := make([]string, 0, len(collected))
	for p := range collected {
		sortedPaths = append(sortedPaths, p)
	}
	sort.Strings(sortedPaths)

	langCounts := make(map[string]int)
	for _, p := range sortedPaths {
		out := collected[p]
		result.Files[p] = out.file
		for _, sig := range mergeMatches(out.matches) {
			if existing, ok := result.Services[sig.Name]; ok {
				result.Warnings = append(result.Warnings, Warning{
					File:    sig.File,
					Message: fmt.Sprintf("service %q already defined in %s; keeping first", sig.Name, existing.File),
				})
				continue
			}
			result.Services[sig.Name] = sig
			langCounts[sig.Language]++
		}
	}

	result.Language = dominantLanguage(langCounts)
	observability.ServicesDiscovered.Set(float64(len(result.Services)))
	return result, nil
}

func (s *Scanner) listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		base := filepath.Base(path)
		if d.IsDir() {
			for _, g := range s.excludeDirs {
				if g.Match(base) {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if DetectLanguage(path) == "" {
			return nil
		}
		for _, g := range s.excludeFiles {
			if g.Match(base) {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func (s *Scanner) scanFile(root, path string) (*SourceFile, []AnnotationMatch, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	file, matches, err := s.ParseFile(path, content)
	if err != nil {
		return nil, nil, err
	}
	file.Module = ModuleName(root, path, file.Language)
	for i := range matches {
		matches[i].Signature.Module = file.Module
	}
	return file, matches, nil
}

// ParseFile parses one source file with the language's grammar and runs its
// extractor. Exported for the type resolver and tests.
func (s *Scanner) ParseFile(path string, content []byte) (*SourceFile, []AnnotationMatch, error) {
	lang := DetectLanguage(path)
	if lang == "" {
		return nil, nil, fmt.Errorf("unsupported language for %q", path)
	}
	grammar := s.loader.Language(lang)
	if grammar == nil {
		return nil, nil, fmt.Errorf("grammar not loaded: %s", lang)
	}
	extractor := s.extractors[lang]
	if extractor == nil {
		return nil, nil, fmt.Errorf("no extractor for: %s", lang)
	}

	start := time.Now()
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, nil, fmt.Errorf("parse failed for %q", path)
	}
	defer tree.Close()

	file, matches, err := extractor.Extract(tree.RootNode(), content, path)
	if err != nil {
		return nil, nil, err
	}
	observability.FilesScanned.WithLabelValues(lang).Inc()
	observability.ScanDuration.WithLabelValues(lang).Observe(time.Since(start).Seconds())
	return file, matches, nil
}

// mergeMatches combines structural and comment matches for the same callable.
// Structural wins only for fields the comment pass cannot express (async,
// owner, annotation metadata args); comment-derived types and descriptions
// take precedence for dynamically typed source.
func mergeMatches(matches []AnnotationMatch) []registry.ServiceSignature {
	type key struct{ owner, name string }
	structural := make(map[key]registry.ServiceSignature)
	comment := make(map[key]registry.ServiceSignature)
	order := make([]key, 0, len(matches))

	for _, m := range matches {
		k := key{m.Signature.OwnerType, m.Signature.Name}
		var target map[key]registry.ServiceSignature
		if m.Strategy == StrategyStructural {
			target = structural
		} else {
			target = comment
		}
		if _, seenStructural := structural[k]; !seenStructural {
			if _, seenComment := comment[k]; !seenComment {
				order = append(order, k)
			}
		}
		target[k] = m.Signature
	}

	out := make([]registry.ServiceSignature, 0, len(order))
	for _, k := range order {
		st, hasStructural := structural[k]
		cm, hasComment := comment[k]
		switch {
		case hasStructural && hasComment:
			out = append(out, overlayComment(st, cm))
		case hasStructural:
			out = append(out, st)
		default:
			out = append(out, cm)
		}
	}
	return out
}

func overlayComment(base, cm registry.ServiceSignature) registry.ServiceSignature {
	dynamic := base.Language == "python" || base.Language == "javascript"

	if cm.Meta.Description != "" {
		base.Meta.Description = cm.Meta.Description
	}
	if cm.Meta.Category != "" {
		base.Meta.Category = cm.Meta.Category
	}
	if len(cm.Meta.Tags) > 0 {
		base.Meta.Tags = cm.Meta.Tags
	}
	if cm.Meta.Priority != 0 {
		base.Meta.Priority = cm.Meta.Priority
	}

	byName := make(map[string]registry.ParameterSpec, len(cm.Params))
	for _, p := range cm.Params {
		byName[p.Name] = p
	}
	for i, p := range base.Params {
		cp, ok := byName[p.Name]
		if !ok {
			continue
		}
		if cp.Description != "" {
			base.Params[i].Description = cp.Description
		}
		if dynamic && cp.Type != "" {
			base.Params[i].Type = cp.Type
			base.Params[i].Kind = cp.Kind
		}
		if cp.HasDefault && !p.HasDefault {
			base.Params[i].HasDefault = true
			base.Params[i].Default = cp.Default
			base.Params[i].Optional = true
		}
	}
	if base.Returns == "" {
		base.Returns = cm.Returns
	}
	return base
}

func dominantLanguage(counts map[string]int) string {
	langs := make([]string, 0, len(counts))
	for l := range counts {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	best, bestCount := "", -1
	for _, l := range langs {
		if counts[l] > bestCount {
			best, bestCount = l, counts[l]
		}
	}
	return best
}

// ModuleName derives the import-style module reference for a file under a
// source root: dotted for Python, slash-separated otherwise.
func ModuleName(root, path, language string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))

	switch language {
	case "python":
		rel = strings.TrimSuffix(rel, "/__init__")
		return strings.ReplaceAll(rel, "/", ".")
	default:
		return rel
	}
}

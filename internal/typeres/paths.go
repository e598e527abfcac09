package typeres

import (
	"os"
	"path/filepath"
	"strings"

	"factory/internal/scanner"
)

// candidatePaths maps an import statement to the on-disk files that could
// hold the imported definitions. No candidate is guaranteed to exist; the
// resolver probes them in order.
func candidatePaths(imp scanner.Import, fromFile, root, lang string) []string {
	switch lang {
	case "python":
		return pythonCandidates(imp, fromFile, root)
	case "javascript", "typescript":
		return scriptCandidates(imp, fromFile)
	case "go":
		return goCandidates(imp, root)
	default:
		return nil
	}
}

// pythonCandidates resolves dotted module paths. Absolute imports anchor at
// the scan root; relative imports ascend one directory per leading dot
// beyond the first.
func pythonCandidates(imp scanner.Import, fromFile, root string) []string {
	base := root
	if imp.IsRelative {
		base = filepath.Dir(fromFile)
		for i := 1; i < imp.Level; i++ {
			base = filepath.Dir(base)
		}
	}

	rel := strings.ReplaceAll(imp.Module, ".", string(filepath.Separator))
	var out []string
	if rel != "" {
		out = append(out,
			filepath.Join(base, rel+".py"),
			filepath.Join(base, rel, "__init__.py"),
		)
	} else {
		out = append(out, filepath.Join(base, "__init__.py"))
	}

	// "from pkg import Name" may target a submodule pkg/Name.py rather than
	// a symbol inside pkg.
	for _, item := range imp.Items {
		out = append(out, filepath.Join(base, rel, item+".py"))
	}

	if !imp.IsRelative {
		// Absolute imports also work relative to the importing file for
		// flat layouts without a package prefix.
		dir := filepath.Dir(fromFile)
		out = append(out,
			filepath.Join(dir, rel+".py"),
			filepath.Join(dir, rel, "__init__.py"),
		)
	}
	return out
}

// scriptCandidates handles relative specifiers only; bare specifiers name
// external packages and stay unresolved.
func scriptCandidates(imp scanner.Import, fromFile string) []string {
	spec := imp.RawImport
	if spec == "" {
		spec = imp.Module
	}
	if !strings.HasPrefix(spec, ".") {
		return nil
	}

	base := filepath.Join(filepath.Dir(fromFile), filepath.FromSlash(spec))
	exts := []string{".ts", ".tsx", ".js", ".mjs"}

	var out []string
	if filepath.Ext(base) != "" {
		out = append(out, base)
		// TS sources import sibling .ts files with a .js suffix.
		if strings.HasSuffix(base, ".js") {
			out = append(out, strings.TrimSuffix(base, ".js")+".ts")
		}
	}
	for _, ext := range exts {
		out = append(out, base+ext)
	}
	for _, ext := range exts {
		out = append(out, filepath.Join(base, "index"+ext))
	}
	return out
}

// goCandidates maps an import path suffix onto directories under the scan
// root. Only packages inside the scanned tree resolve; anything else is an
// external dependency and degrades to opaque.
func goCandidates(imp scanner.Import, root string) []string {
	parts := strings.Split(imp.Module, "/")
	var out []string
	for i := 0; i < len(parts); i++ {
		dir := filepath.Join(root, filepath.Join(parts[i:]...))
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".go") && !strings.HasSuffix(entry.Name(), "_test.go") {
				out = append(out, filepath.Join(dir, entry.Name()))
			}
		}
	}
	return out
}

// packageSiblings lists the other Go files in the same directory, which
// share the declaring file's package scope.
func packageSiblings(fromFile string) []string {
	dir := filepath.Dir(fromFile)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".go") || strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if path == fromFile {
			continue
		}
		out = append(out, path)
	}
	return out
}

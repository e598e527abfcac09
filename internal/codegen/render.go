package codegen

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"text/template"

	"factory/internal/shared/observability"
	"factory/internal/shared/util"
)

//go:embed templates/*.py.tmpl
var templates embed.FS

// Renderer writes server modules into an output directory. Output names
// follow <profile>_<protocol>_server.py.
type Renderer struct {
	tmpl   *template.Template
	outDir string
}

func NewRenderer(outDir string) (*Renderer, error) {
	funcs := template.FuncMap{
		"pystr": func(s string) string { return pyLiteral(s) },
		"pybool": func(b bool) string {
			if b {
				return "True"
			}
			return "False"
		},
	}
	tmpl, err := template.New("codegen").Funcs(funcs).ParseFS(templates, "templates/*.py.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, outDir: outDir}, nil
}

// FileName returns the output file name for one module.
func FileName(profile, protocol string) string {
	return fmt.Sprintf("%s_%s_server.py", profile, protocol)
}

// Render writes one module atomically and returns the written path.
// Rendering the same module twice produces byte-identical files.
func (r *Renderer) Render(mod *Module) (string, error) {
	name := mod.Protocol + ".py.tmpl"

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, mod); err != nil {
		return "", fmt.Errorf("render %s/%s: %w", mod.Profile, mod.Protocol, err)
	}

	path := filepath.Join(r.outDir, FileName(mod.Profile, mod.Protocol))
	if err := util.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	observability.ModulesGenerated.WithLabelValues(mod.Protocol).Inc()
	return path, nil
}

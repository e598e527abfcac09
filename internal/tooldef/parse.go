package tooldef

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"factory/internal/faults"
)

//go:embed schema.json
var documentSchema []byte

var compileOnce = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource("tooldef/schema.json", bytes.NewReader(documentSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("tooldef/schema.json")
})

// Locate probes the conventional file names for a profile's tool definition
// document inside dir.
func Locate(dir, profile string) (string, error) {
	for _, ext := range []string{".tools.yaml", ".tools.yml", ".tools.json"} {
		path := filepath.Join(dir, profile+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", faults.Newf(faults.KindValidation, "no tool definition document for profile %q in %s", profile, dir)
}

// LoadFile reads, schema-validates and decodes one tool definition document.
// YAML and JSON are both accepted; YAML values are normalised through a JSON
// round trip before validation so both formats check identically.
func LoadFile(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tool definitions: %w", err)
	}

	var raw any
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(content, &raw); err != nil {
			return nil, faults.Wrap(faults.KindValidation, err, "parse tool definitions").With(faults.CtxFile, path)
		}
	} else {
		var yamlValue any
		if err := yaml.Unmarshal(content, &yamlValue); err != nil {
			return nil, faults.Wrap(faults.KindValidation, err, "parse tool definitions").With(faults.CtxFile, path)
		}
		jsonBytes, err := json.Marshal(yamlValue)
		if err != nil {
			return nil, faults.Wrap(faults.KindValidation, err, "normalise tool definitions").With(faults.CtxFile, path)
		}
		if err := json.Unmarshal(jsonBytes, &raw); err != nil {
			return nil, faults.Wrap(faults.KindValidation, err, "normalise tool definitions").With(faults.CtxFile, path)
		}
	}

	schema, err := compileOnce()
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, faults.Wrap(faults.KindValidation, err, "tool definition document rejected by schema").With(faults.CtxFile, path)
	}

	doc, err := decodeDocument(raw.(map[string]any))
	if err != nil {
		return nil, err
	}
	doc.File = path
	return doc, nil
}

func decodeDocument(raw map[string]any) (*Document, error) {
	doc := &Document{Profile: raw["profile"].(string)}

	for _, entry := range raw["tools"].([]any) {
		tool, err := decodeTool(entry.(map[string]any))
		if err != nil {
			return nil, err
		}
		doc.Tools = append(doc.Tools, tool)
	}
	return doc, nil
}

func decodeTool(raw map[string]any) (Tool, error) {
	tool := Tool{
		Name:    raw["name"].(string),
		Service: raw["service"].(string),
	}
	if desc, ok := raw["description"].(string); ok {
		tool.Description = desc
	}

	if params, ok := raw["params"].([]any); ok {
		for _, entry := range params {
			param, err := decodeParam(entry.(map[string]any))
			if err != nil {
				return Tool{}, faults.Wrap(faults.KindValidation, err, "tool %q", tool.Name).With(faults.CtxTool, tool.Name)
			}
			tool.Params = append(tool.Params, param)
		}
	}

	if overlays, ok := raw["overlays"].([]any); ok {
		for _, entry := range overlays {
			tool.Overlays = append(tool.Overlays, decodeOverlay(entry.(map[string]any)))
		}
	}
	return tool, nil
}

func decodeParam(raw map[string]any) (ExternalParam, error) {
	param := ExternalParam{Name: raw["name"].(string)}
	param.TargetParam = param.Name
	if target, ok := raw["targetParam"].(string); ok {
		param.TargetParam = target
	}
	if required, ok := raw["required"].(bool); ok {
		param.Required = required
	}
	if desc, ok := raw["description"].(string); ok {
		param.Description = desc
	}

	if shape, ok := raw["schema"].(map[string]any); ok {
		jsonBytes, err := json.Marshal(shape)
		if err != nil {
			return ExternalParam{}, fmt.Errorf("param %q schema: %w", param.Name, err)
		}
		schema := &openapi3.Schema{}
		if err := schema.UnmarshalJSON(jsonBytes); err != nil {
			return ExternalParam{}, fmt.Errorf("param %q schema: %w", param.Name, err)
		}
		param.Schema = schema
	}
	return param, nil
}

func decodeOverlay(raw map[string]any) Overlay {
	overlay := Overlay{
		Source:      raw["source"].(string),
		TargetParam: raw["targetParam"].(string),
	}
	if factor, ok := raw["targetFactor"].(string); ok {
		overlay.TargetFactor = factor
	}
	// Key presence, not truthiness: "value: null" is a real (null) value.
	if value, ok := raw["value"]; ok {
		overlay.Value = value
		overlay.HasValue = true
	}
	if fields, ok := raw["fields"].(map[string]any); ok {
		overlay.Fields = fields
	}
	return overlay
}

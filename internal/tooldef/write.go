package tooldef

import (
	"encoding/json"
	"fmt"

	"factory/internal/shared/util"
)

// SaveFile writes a document as JSON in the same shape LoadFile accepts, so
// merged definition sets round-trip through the loader.
func SaveFile(doc *Document, path string) error {
	encoded, err := json.MarshalIndent(encodeDocument(doc), "", "  ")
	if err != nil {
		return fmt.Errorf("encode tool definitions for %q: %w", doc.Profile, err)
	}
	encoded = append(encoded, '\n')

	if err := util.WriteFileAtomic(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write tool definitions %q: %w", path, err)
	}
	return nil
}

func encodeDocument(doc *Document) map[string]any {
	tools := make([]any, 0, len(doc.Tools))
	for _, tool := range doc.Tools {
		tools = append(tools, encodeTool(tool))
	}
	return map[string]any{
		"profile": doc.Profile,
		"tools":   tools,
	}
}

func encodeTool(tool Tool) map[string]any {
	out := map[string]any{
		"name":    tool.Name,
		"service": tool.Service,
	}
	if tool.Description != "" {
		out["description"] = tool.Description
	}

	if len(tool.Params) > 0 {
		params := make([]any, 0, len(tool.Params))
		for _, p := range tool.Params {
			entry := map[string]any{"name": p.Name}
			if p.TargetParam != "" && p.TargetParam != p.Name {
				entry["targetParam"] = p.TargetParam
			}
			if p.Required {
				entry["required"] = true
			}
			if p.Description != "" {
				entry["description"] = p.Description
			}
			if p.Schema != nil {
				if encoded, err := p.Schema.MarshalJSON(); err == nil {
					var shape map[string]any
					if json.Unmarshal(encoded, &shape) == nil {
						entry["schema"] = shape
					}
				}
			}
			params = append(params, entry)
		}
		out["params"] = params
	}

	if len(tool.Overlays) > 0 {
		overlays := make([]any, 0, len(tool.Overlays))
		for _, o := range tool.Overlays {
			entry := map[string]any{
				"source":      o.Source,
				"targetParam": o.TargetParam,
			}
			if o.TargetFactor != "" {
				entry["targetFactor"] = o.TargetFactor
			}
			// Emit the value key only when the document carried one, so an
			// absent value stays distinguishable from an explicit null.
			if o.HasValue {
				entry["value"] = o.Value
			}
			if o.Fields != nil {
				entry["fields"] = o.Fields
			}
			overlays = append(overlays, entry)
		}
		out["overlays"] = overlays
	}
	return out
}

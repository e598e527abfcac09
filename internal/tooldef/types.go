// Package tooldef loads and validates tool definition documents. A document
// names one scanned service and describes how its parameters are exposed:
// which ones callers provide, which ones receive fixed defaults, and which
// ones are hidden behind operator-supplied values.
package tooldef

import "github.com/getkin/kin-openapi/openapi3"

// Overlay sources. Default overlays lose to caller-provided values; hidden
// overlays always apply and the parameter never appears in the external
// surface.
const (
	SourceDefault = "default"
	SourceHidden  = "hidden"
)

// ExternalParam is one caller-facing parameter of a tool. Its schema is an
// OpenAPI fragment so generated servers can publish it verbatim. The
// external property name and the bound callable's parameter name are
// independent; TargetParam holds the latter and defaults to Name when the
// document leaves it out.
type ExternalParam struct {
	Name        string
	TargetParam string
	Schema      *openapi3.Schema
	Required    bool
	Description string
}

// Overlay pins one target parameter to a value at binding time. When more
// than one overlay could claim the same composite-typed parameter,
// TargetFactor carries the explicit link that disambiguates them.
//
// HasValue distinguishes "value: null" from an absent value key: an explicit
// null is a real value and participates in precedence like any other.
type Overlay struct {
	Source       string
	TargetParam  string
	TargetFactor string
	Value        any
	HasValue     bool
	Fields       map[string]any
}

// Tool is one parsed tool definition: the external surface and overlays for
// one bound service.
type Tool struct {
	Name        string
	Service     string
	Description string
	Params      []ExternalParam
	Overlays    []Overlay
}

// Document is one profile's tool definition file.
type Document struct {
	Profile string
	Tools   []Tool

	// File is the path the document was loaded from, kept for error
	// reporting.
	File string
}

// Param returns the external parameter with the given property name, if
// declared.
func (t *Tool) Param(name string) (ExternalParam, bool) {
	for _, p := range t.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ExternalParam{}, false
}

// OverlaysFor returns the overlays targeting one callable parameter, in
// document order.
func (t *Tool) OverlaysFor(param string) []Overlay {
	var out []Overlay
	for _, o := range t.Overlays {
		if o.TargetParam == param {
			out = append(out, o)
		}
	}
	return out
}

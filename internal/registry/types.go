package registry

import (
	"time"
)

// TypeKind classifies a declared parameter type token.
type TypeKind string

const (
	KindPrimitive  TypeKind = "primitive"
	KindComposite  TypeKind = "composite"
	KindCollection TypeKind = "collection"
)

// ParameterSpec describes one parameter of a service callable or one field of
// a composite type. Immutable once extracted.
type ParameterSpec struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Kind        TypeKind `json:"kind"`
	Optional    bool     `json:"optional"`
	HasDefault  bool     `json:"has_default"`
	Default     any      `json:"default,omitempty"`
	DefaultExpr string   `json:"default_expr,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Metadata carries the free-form annotation arguments of a service.
type Metadata struct {
	Category    string            `json:"category,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Priority    int               `json:"priority,omitempty"`
	Description string            `json:"description,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// ServiceSignature is the scanned shape of one annotated callable. Created by
// one scan pass; superseded wholesale by a rescan, never mutated.
type ServiceSignature struct {
	Name       string          `json:"name"`
	OwnerType  string          `json:"owner_type,omitempty"`
	OwnerAlias string          `json:"owner_alias,omitempty"`
	Module     string          `json:"module"`
	File       string          `json:"file"`
	Line       int             `json:"line"`
	Language   string          `json:"language"`
	Async      bool            `json:"async"`
	Params     []ParameterSpec `json:"params"`
	Returns    string          `json:"returns,omitempty"`
	Meta       Metadata        `json:"meta"`
}

// CompositeType is a structured multi-field type discovered transitively by
// the type resolver. Identity is name + defining file.
type CompositeType struct {
	Name   string          `json:"name"`
	Module string          `json:"module,omitempty"`
	File   string          `json:"file,omitempty"`
	Line   int             `json:"line,omitempty"`
	Fields []ParameterSpec `json:"fields"`
	// Forward marks a placeholder emitted for self- or mutually-referential
	// types; Opaque marks a type that could not be located and degraded to
	// zero fields.
	Forward bool `json:"forward,omitempty"`
	Opaque  bool `json:"opaque,omitempty"`
}

// CollisionRecord documents one renamed entry of a merged artifact.
type CollisionRecord struct {
	Name      string   `json:"name"`
	Roots     []string `json:"roots"`
	RenamedTo []string `json:"renamed_to,omitempty"`
	Policy    string   `json:"policy"`
}

// Registry is the serialized, language-neutral output of one scan over one
// source root.
type Registry struct {
	Profile      string                      `json:"profile"`
	Language     string                      `json:"language"`
	SourceRoot   string                      `json:"source_root,omitempty"`
	GeneratedAt  time.Time                   `json:"generated_at"`
	GenerationID string                      `json:"generation_id"`
	Services     map[string]ServiceSignature `json:"services"`
	Types        map[string]CompositeType    `json:"types"`
	// Merged artifacts carry the originating profiles and the collision
	// table; plain scan registries leave both empty.
	MergedFrom []string          `json:"merged_from,omitempty"`
	Collisions []CollisionRecord `json:"collisions,omitempty"`
}

// ServiceCount reports the number of scanned services.
func (r *Registry) ServiceCount() int {
	return len(r.Services)
}

// IsMerged reports whether this registry was produced by the merge tool
// rather than a scan. Merged registries are skipped by rescans.
func (r *Registry) IsMerged() bool {
	return len(r.MergedFrom) > 0
}

// Package combine merges independently scanned registries and their tool
// definition sets into one deployable artifact. Module references are
// rewritten under a per-root namespace so identical names from different
// source trees cannot collide at the import level; name collisions between
// tools and services resolve by policy.
package combine

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"factory/internal/faults"
	"factory/internal/registry"
	"factory/internal/shared/observability"
	"factory/internal/tooldef"
	"factory/internal/typeres"
)

// Collision policies.
const (
	PolicyAuto   = "auto"
	PolicyAlways = "always"
	PolicyNone   = "none"
)

// Source is one (registry, tool definitions, source root) input triple.
type Source struct {
	Registry *registry.Registry
	Document *tooldef.Document
	Root     string
}

// Merger combines sources under one collision policy.
type Merger struct {
	Name   string
	Policy string

	// ResolveTypes recomputes composite types across the union of source
	// roots so that every referenced type is resolvable in the merged
	// context. Nil keeps the per-source type maps.
	ResolveTypes func(sources []Source, services map[string]registry.ServiceSignature) (map[string]registry.CompositeType, []typeres.Gap)
}

// Merge produces the merged registry and merged tool definition document.
// Sources with zero services are skipped rather than diluting the result.
// Under policy "none" a detected collision is fatal.
func (m *Merger) Merge(sources []Source) (*registry.Registry, *tooldef.Document, error) {
	if err := validPolicy(m.Policy); err != nil {
		return nil, nil, err
	}

	var active []Source
	for _, src := range sources {
		if src.Registry == nil || src.Registry.ServiceCount() == 0 {
			continue
		}
		active = append(active, src)
	}
	if len(active) == 0 {
		return nil, nil, faults.Newf(faults.KindValidation, "no sources with services to merge into %q", m.Name)
	}

	merged := &registry.Registry{
		Profile:  m.Name,
		Language: active[0].Registry.Language,
		Services: make(map[string]registry.ServiceSignature),
		Types:    make(map[string]registry.CompositeType),
	}
	doc := &tooldef.Document{Profile: m.Name}

	for _, src := range active {
		if src.Registry.Language != merged.Language {
			return nil, nil, faults.Newf(faults.KindValidation,
				"cannot merge language %q profile %q into %q artifact",
				src.Registry.Language, src.Registry.Profile, merged.Language)
		}
		merged.MergedFrom = append(merged.MergedFrom, src.Registry.Profile)
	}

	serviceRename, serviceCollisions, err := m.renamePlan(active, serviceNames)
	if err != nil {
		return nil, nil, err
	}
	toolRename, toolCollisions, err := m.renamePlan(active, toolNames)
	if err != nil {
		return nil, nil, err
	}
	merged.Collisions = append(serviceCollisions, toolCollisions...)
	observability.CollisionsDetected.Add(float64(len(merged.Collisions)))

	typeRename := typeRenames(active)

	for _, src := range active {
		id := RootID(src.Root, src.Registry.Profile)

		for _, name := range sortedServiceNames(src.Registry) {
			sig := src.Registry.Services[name]
			sig.Module = NamespaceModule(id, sig.Module, merged.Language)
			for i := range sig.Params {
				if renamed, ok := typeRename[typeKey{id, sig.Params[i].Type}]; ok {
					sig.Params[i].Type = renamed
				}
			}
			if renamed, ok := serviceRename[nameKey{id, name}]; ok {
				sig.Name = renamed
				name = renamed
			}
			merged.Services[name] = sig
		}

		for typeName, ct := range src.Registry.Types {
			ct.Module = NamespaceModule(id, ct.Module, merged.Language)
			key := typeName
			if renamed, ok := typeRename[typeKey{id, typeName}]; ok {
				key = renamed
				ct.Name = renamed
			}
			for i := range ct.Fields {
				if renamed, ok := typeRename[typeKey{id, ct.Fields[i].Type}]; ok {
					ct.Fields[i].Type = renamed
				}
			}
			merged.Types[key] = ct
		}

		if src.Document == nil {
			continue
		}
		for _, tool := range src.Document.Tools {
			if renamed, ok := serviceRename[nameKey{id, tool.Service}]; ok {
				tool.Service = renamed
			}
			if renamed, ok := toolRename[nameKey{id, tool.Name}]; ok {
				tool.Name = renamed
			}
			doc.Tools = append(doc.Tools, tool)
		}
	}

	sort.Slice(doc.Tools, func(i, j int) bool { return doc.Tools[i].Name < doc.Tools[j].Name })

	if m.ResolveTypes != nil {
		// The resolver reports types under their original names; a name that
		// was renamed already lives in the union under its new spelling.
		renamedTypes := make(map[string]bool, len(typeRename))
		for key := range typeRename {
			renamedTypes[key.Name] = true
		}
		types, _ := m.ResolveTypes(active, merged.Services)
		for name, ct := range types {
			if renamedTypes[name] {
				continue
			}
			if _, exists := merged.Types[name]; !exists {
				merged.Types[name] = ct
			}
		}
	}

	return merged, doc, nil
}

type nameKey struct {
	RootID string
	Name   string
}

type typeKey struct {
	RootID string
	Name   string
}

// renamePlan decides the final names for one class of identifiers (services
// or tools) across all sources, according to the collision policy.
func (m *Merger) renamePlan(sources []Source, namesOf func(Source) []string) (map[nameKey]string, []registry.CollisionRecord, error) {
	owners := make(map[string][]string)
	for _, src := range sources {
		id := RootID(src.Root, src.Registry.Profile)
		for _, name := range namesOf(src) {
			owners[name] = append(owners[name], id)
		}
	}

	rename := make(map[nameKey]string)
	var records []registry.CollisionRecord

	for _, name := range sortedKeys(owners) {
		roots := owners[name]
		collides := len(roots) > 1

		switch {
		case m.Policy == PolicyAlways, m.Policy == PolicyAuto && collides:
			record := registry.CollisionRecord{Name: name, Roots: roots, Policy: m.Policy}
			for _, id := range roots {
				renamed := id + "_" + name
				rename[nameKey{id, name}] = renamed
				record.RenamedTo = append(record.RenamedTo, renamed)
			}
			if collides || m.Policy == PolicyAlways {
				records = append(records, record)
			}
		case m.Policy == PolicyNone && collides:
			return nil, nil, faults.Newf(faults.KindCollision,
				"name %q defined by roots %v and policy is %q", name, roots, PolicyNone)
		}
	}
	return rename, records, nil
}

// typeRenames namespaces composite type names that occur in more than one
// source. Unique names keep their spelling. Renamed names stay valid
// identifiers in the generated code, so the prefix joins with an underscore
// rather than the module separator.
func typeRenames(sources []Source) map[typeKey]string {
	owners := make(map[string][]string)
	for _, src := range sources {
		id := RootID(src.Root, src.Registry.Profile)
		for name := range src.Registry.Types {
			owners[name] = append(owners[name], id)
		}
	}

	rename := make(map[typeKey]string)
	for name, roots := range owners {
		if len(roots) < 2 {
			continue
		}
		for _, id := range roots {
			rename[typeKey{id, name}] = id + "_" + name
		}
	}
	return rename
}

func serviceNames(src Source) []string {
	return sortedServiceNames(src.Registry)
}

func toolNames(src Source) []string {
	if src.Document == nil {
		return nil
	}
	out := make([]string, 0, len(src.Document.Tools))
	for _, tool := range src.Document.Tools {
		out = append(out, tool.Name)
	}
	sort.Strings(out)
	return out
}

func sortedServiceNames(reg *registry.Registry) []string {
	out := make([]string, 0, len(reg.Services))
	for name := range reg.Services {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func sortedKeys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var rootIDClean = regexp.MustCompile(`[^a-z0-9_]+`)

// RootID derives a stable namespace identifier for a source root. The root
// directory's base name is preferred; the profile name backs it up for
// degenerate paths.
func RootID(root, profile string) string {
	base := filepath.Base(filepath.Clean(root))
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = profile
	}
	id := rootIDClean.ReplaceAllString(strings.ToLower(base), "_")
	id = strings.Trim(id, "_")
	if id == "" {
		id = "root"
	}
	return id
}

// NamespaceModule roots a module reference under a source-root id, using the
// language's import separator. Already-namespaced references pass through.
func NamespaceModule(id, module, language string) string {
	sep := moduleSeparator(language)
	if module == "" {
		return id
	}
	if strings.HasPrefix(module, id+sep) {
		return module
	}
	return id + sep + module
}

func moduleSeparator(language string) string {
	if language == "python" {
		return "."
	}
	return "/"
}

func validPolicy(policy string) error {
	switch policy {
	case PolicyAuto, PolicyAlways, PolicyNone:
		return nil
	default:
		return fmt.Errorf("unknown collision policy %q (want %s, %s or %s)",
			policy, PolicyAuto, PolicyAlways, PolicyNone)
	}
}

// Package codegen renders runnable server modules from a registry and a set
// of bound tool definitions. Rendering is deterministic: the same registry
// and definitions always produce byte-identical output.
package codegen

// Protocols a server module can speak. "all" expands to every concrete
// protocol.
const (
	ProtocolREST   = "rest"
	ProtocolStdio  = "stdio"
	ProtocolStream = "stream"
)

// Protocols lists the concrete protocols in generation order.
var Protocols = []string{ProtocolREST, ProtocolStdio, ProtocolStream}

// Module is the fully-resolved intermediate form of one generated server:
// everything the templates need, with no registry or definition lookups left
// to do at render time.
type Module struct {
	Profile  string
	Protocol string

	Imports        []Import
	Instantiations []Instantiation
	Handlers       []Handler
}

// Import is one "from module import name" line.
type Import struct {
	Module string
	Name   string
}

// Instantiation constructs one owning object shared by every handler bound
// to its methods.
type Instantiation struct {
	VarName  string
	TypeName string
}

// Handler is one exposed tool.
type Handler struct {
	Name        string
	Description string

	// Invocation target: a bare function name, or a method on an
	// instantiated owner.
	Callable string
	OwnerVar string
	Async    bool

	// External surface published to callers, in declaration order.
	Schema []SchemaProperty

	// Per-parameter merge rules, in signature order.
	Bindings []BindingRule
}

// RequiredProps lists the names of the required external properties, in
// declaration order.
func (h Handler) RequiredProps() []string {
	var out []string
	for _, p := range h.Schema {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// SchemaProperty is one property of a handler's published input schema,
// already rendered to a Python literal.
type SchemaProperty struct {
	Name     string
	Required bool
	Literal  string
}

// BindingRule drives the shared dispatch core's value resolution for one
// target parameter. Literal fields hold pre-rendered Python expressions.
type BindingRule struct {
	Param        string
	ExternalName string
	HasExternal  bool
	HasDefault   bool
	Default      string
	HasHidden    bool
	Hidden       string
	// DefaultFields merges under a caller-supplied composite value.
	DefaultFields string
	Required      bool
}

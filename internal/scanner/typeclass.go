package scanner

import (
	"strings"

	"factory/internal/registry"
)

var primitiveTokens = map[string]bool{
	// Python
	"str": true, "int": true, "float": true, "bool": true, "bytes": true,
	"None": true, "none": true, "Any": true, "any": true, "object": true,
	// JavaScript/TypeScript
	"string": true, "number": true, "boolean": true, "void": true,
	"null": true, "undefined": true, "unknown": true,
	// Go
	"int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"float32": true, "float64": true, "byte": true, "rune": true, "error": true,
}

var collectionPrefixes = []string{
	"list[", "dict[", "set[", "tuple[", "frozenset[",
	"List[", "Dict[", "Set[", "Tuple[", "Sequence[", "Mapping[", "Iterable[",
	"Array<", "Record<", "Map<", "Set<",
	"[]", "map[",
}

// ClassifyType classifies a declared type token and unwraps nullable
// wrappers. Returns the normalized token, its kind, and whether the wrapper
// marked it optional.
func ClassifyType(token string) (string, registry.TypeKind, bool) {
	token = strings.TrimSpace(token)
	optional := false

	// Optional[X], X | None, None | X, X?, *X
	for {
		switch {
		case strings.HasPrefix(token, "Optional[") && strings.HasSuffix(token, "]"):
			token = strings.TrimSpace(token[len("Optional[") : len(token)-1])
			optional = true
			continue
		case strings.HasSuffix(token, "| None"):
			token = strings.TrimSpace(strings.TrimSuffix(token, "| None"))
			optional = true
			continue
		case strings.HasPrefix(token, "None |"):
			token = strings.TrimSpace(strings.TrimPrefix(token, "None |"))
			optional = true
			continue
		case strings.HasSuffix(token, "?"):
			token = strings.TrimSuffix(token, "?")
			optional = true
			continue
		case strings.HasPrefix(token, "*"):
			token = strings.TrimPrefix(token, "*")
			optional = true
			continue
		}
		break
	}

	if token == "" {
		return "", registry.KindPrimitive, optional
	}
	if primitiveTokens[token] {
		return token, registry.KindPrimitive, optional
	}
	lower := strings.ToLower(token)
	for _, prefix := range collectionPrefixes {
		if strings.HasPrefix(token, prefix) || strings.HasPrefix(lower, prefix) {
			return token, registry.KindCollection, optional
		}
	}
	if token == "list" || token == "dict" || token == "tuple" || token == "set" || token == "array" {
		return token, registry.KindCollection, optional
	}
	return token, registry.KindComposite, optional
}

package scanner

import (
	"strconv"
	"strings"

	"factory/internal/registry"
)

// commentMarker tags a doc comment as describing an exposed service.
const commentMarker = "@mcp-tool"

type docParam struct {
	Name        string
	Type        string
	Description string
	Optional    bool
	HasDefault  bool
	Default     any
}

type docBlock struct {
	IsTool      bool
	Description string
	Params      []docParam
	Returns     string
	Category    string
	Tags        []string
	Priority    int
	Extra       map[string]string
}

// parseDocBlock parses a cleaned doc-comment body (comment punctuation
// already stripped, one line per entry).
func parseDocBlock(lines []string) docBlock {
	var block docBlock
	var descLines []string
	var lastParam *docParam

	flushParam := func() {
		if lastParam != nil {
			block.Params = append(block.Params, *lastParam)
			lastParam = nil
		}
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "@") {
			if lastParam != nil && line != "" {
				lastParam.Description = strings.TrimSpace(lastParam.Description + " " + line)
			} else if line != "" {
				descLines = append(descLines, line)
			}
			continue
		}

		tag, rest := splitTag(line)
		switch tag {
		case commentMarker:
			block.IsTool = true
		case "@param", "@arg":
			flushParam()
			p := parseDocParam(rest)
			if p.Name != "" {
				lastParam = &p
			}
		case "@returns", "@return":
			flushParam()
			block.Returns = stripBraces(rest)
		case "@category":
			flushParam()
			block.Category = rest
		case "@tags":
			flushParam()
			for _, t := range strings.Split(rest, ",") {
				if t = strings.TrimSpace(t); t != "" {
					block.Tags = append(block.Tags, t)
				}
			}
		case "@priority":
			flushParam()
			if v, err := strconv.Atoi(rest); err == nil {
				block.Priority = v
			}
		case "@description":
			flushParam()
			descLines = append(descLines, rest)
		default:
			flushParam()
			if block.Extra == nil {
				block.Extra = make(map[string]string)
			}
			block.Extra[strings.TrimPrefix(tag, "@")] = rest
		}
	}
	flushParam()
	block.Description = strings.Join(descLines, " ")
	return block
}

func splitTag(line string) (string, string) {
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return line[:i], strings.TrimSpace(line[i+1:])
	}
	return line, ""
}

// parseDocParam parses "{type} name description" with optional JSDoc
// bracket syntax "[name]" / "[name=default]" for optional parameters.
func parseDocParam(rest string) docParam {
	var p docParam

	if strings.HasPrefix(rest, "{") {
		if end := strings.IndexByte(rest, '}'); end > 0 {
			p.Type = strings.TrimSpace(rest[1:end])
			rest = strings.TrimSpace(rest[end+1:])
		}
	}

	name, desc := splitTag(rest)
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		p.Optional = true
		name = name[1 : len(name)-1]
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			p.HasDefault = true
			p.Default = parseScalarLiteral(name[eq+1:])
			name = name[:eq]
		}
	}
	p.Name = strings.TrimSpace(name)
	p.Description = strings.TrimSpace(desc)
	return p
}

func stripBraces(rest string) string {
	if strings.HasPrefix(rest, "{") {
		if end := strings.IndexByte(rest, '}'); end > 0 {
			return strings.TrimSpace(rest[1:end])
		}
	}
	return strings.TrimSpace(rest)
}

// parseScalarLiteral interprets a default token from a doc comment.
func parseScalarLiteral(token string) any {
	token = strings.TrimSpace(token)
	switch token {
	case "true":
		return true
	case "false":
		return false
	case "null", "None", "nil":
		return nil
	}
	if v, err := strconv.ParseInt(token, 0, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(token, 64); err == nil {
		return v
	}
	return strings.Trim(token, `"'`)
}

// signatureFromBlock converts a parsed doc block into a comment-strategy
// signature for the standard merge.
func signatureFromBlock(block docBlock, name, owner, file string, line int) registry.ServiceSignature {
	sig := registry.ServiceSignature{
		Name: name,
		File: file,
		Line: line,
		Meta: registry.Metadata{
			Category:    block.Category,
			Tags:        block.Tags,
			Priority:    block.Priority,
			Description: block.Description,
			Extra:       block.Extra,
		},
		Returns: block.Returns,
	}
	if owner != "" {
		sig.OwnerType = owner
	}
	for _, p := range block.Params {
		token, kind, optional := ClassifyType(p.Type)
		sig.Params = append(sig.Params, registry.ParameterSpec{
			Name:        p.Name,
			Type:        token,
			Kind:        kind,
			Optional:    p.Optional || optional || p.HasDefault,
			HasDefault:  p.HasDefault,
			Default:     p.Default,
			Description: p.Description,
		})
	}
	return sig
}

// docstringMatch turns a Python docstring into a comment-strategy supplement
// for an already-extracted structural signature. Supported tags are the
// reST ":param name: description" form plus a leading description paragraph.
func docstringMatch(sig registry.ServiceSignature, doc string) (AnnotationMatch, bool) {
	var descLines []string
	params := make(map[string]string)
	inDesc := true

	for _, raw := range strings.Split(doc, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, ":param ") {
			inDesc = false
			rest := strings.TrimPrefix(line, ":param ")
			if colon := strings.IndexByte(rest, ':'); colon > 0 {
				name := strings.TrimSpace(rest[:colon])
				// ":param str query:" style carries a type word first.
				if sp := strings.LastIndexByte(name, ' '); sp >= 0 {
					name = name[sp+1:]
				}
				params[name] = strings.TrimSpace(rest[colon+1:])
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			inDesc = false
			continue
		}
		if inDesc {
			if line == "" && len(descLines) > 0 {
				inDesc = false
				continue
			}
			if line != "" {
				descLines = append(descLines, line)
			}
		}
	}

	if len(descLines) == 0 && len(params) == 0 {
		return AnnotationMatch{}, false
	}

	supplement := registry.ServiceSignature{
		Name:      sig.Name,
		OwnerType: sig.OwnerType,
		Language:  sig.Language,
		File:      sig.File,
		Line:      sig.Line,
		Meta:      registry.Metadata{Description: strings.Join(descLines, " ")},
	}
	for name, desc := range params {
		supplement.Params = append(supplement.Params, registry.ParameterSpec{Name: name, Description: desc})
	}
	return AnnotationMatch{Strategy: StrategyComment, Signature: supplement}, true
}

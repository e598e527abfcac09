package scanner

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ExtractionContext carries shared state/helpers used by all extractors.
type ExtractionContext struct {
	Source []byte
	File   *SourceFile
}

func (c *ExtractionContext) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(c.Source[node.StartByte():node.EndByte()])
}

func (c *ExtractionContext) Line(node *sitter.Node) int {
	return int(node.StartPosition().Row) + 1
}

func (c *ExtractionContext) ChildText(node *sitter.Node, kind string) string {
	if node == nil {
		return ""
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == kind {
			return c.Text(child)
		}
	}
	return ""
}

// FirstChildOfKind returns the first direct child with the given kind.
func (c *ExtractionContext) FirstChildOfKind(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == kind {
			return child
		}
	}
	return nil
}

// HasChildOfKind reports whether node has a direct child of the given kind.
func (c *ExtractionContext) HasChildOfKind(node *sitter.Node, kind string) bool {
	return c.FirstChildOfKind(node, kind) != nil
}

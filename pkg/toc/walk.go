// Package toc builds article indexes from the table of contents of a legal code.
//
// The provider returns the table of contents as a deeply nested JSON document
// whose shape varies between codes. Walk traverses such trees generically;
// ArticleNode recognizes the objects that describe an article; Indexer ties both
// together and memoizes one index per code for the lifetime of a sync run.
package toc

import "sort"

// NodeKind classifies a JSON value met during a walk.
type NodeKind int

const (
	// KindScalar is a string, number, boolean or null.
	KindScalar NodeKind = iota

	// KindObject is a JSON object (map[string]any).
	KindObject

	// KindArray is a JSON array ([]any).
	KindArray
)

// Node is one value visited by Walk.
type Node struct {
	Kind  NodeKind
	Value any
	Depth int
}

// Object returns the node as a JSON object, or nil.
func (node Node) Object() map[string]any {
	object, _ := node.Value.(map[string]any)
	return object
}

// Walk visits tree depth-first in document order. Object keys are visited in
// sorted order so that traversal is deterministic. Returning false from visit
// skips the children of the current node; the walk itself continues.
func Walk(tree any, visit func(Node) bool) {
	walk(tree, 0, visit)
}

func walk(value any, depth int, visit func(Node) bool) {
	switch typed := value.(type) {
	case map[string]any:
		if !visit(Node{Kind: KindObject, Value: typed, Depth: depth}) {
			return
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			walk(typed[key], depth+1, visit)
		}
	case []any:
		if !visit(Node{Kind: KindArray, Value: typed, Depth: depth}) {
			return
		}
		for _, element := range typed {
			walk(element, depth+1, visit)
		}
	default:
		visit(Node{Kind: KindScalar, Value: typed, Depth: depth})
	}
}

package graph

import (
	"sort"

	"wmref/internal/extractor"
)

// Graph holds mapping and body files and the references between them.
type Graph struct {
	Nodes      map[string]*Node
	Edges      []Edge
	Unresolved []UnresolvedRef
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		Edges: []Edge{},
	}
}

// AddMapping adds a mapping file node with its extracted references.
// Re-adding a path replaces the previous node.
func (g *Graph) AddMapping(path string, refs []*extractor.BodyRef) {
	g.Nodes[path] = &Node{Path: path, Kind: KindMapping, Refs: refs}
}

// AddBody adds a body file node. An existing node is kept.
func (g *Graph) AddBody(path string) {
	if _, ok := g.Nodes[path]; ok {
		return
	}
	g.Nodes[path] = &Node{Path: path, Kind: KindBody}
}

// RemoveFile drops a node; edges are rebuilt on the next LinkRelations.
func (g *Graph) RemoveFile(path string) {
	delete(g.Nodes, path)
}

// LinkRelations resolves every mapping reference with resolve and rebuilds
// edges and the unresolved list. Targets that were not crawled, such as
// directories, get a body node of their own.
func (g *Graph) LinkRelations(resolve ResolveFunc) {
	g.Edges = []Edge{}
	g.Unresolved = nil

	for _, path := range g.sortedPaths(KindMapping) {
		node := g.Nodes[path]
		for _, ref := range node.Refs {
			if ref.Normalized == "" {
				g.Unresolved = append(g.Unresolved, UnresolvedRef{From: path, Ref: ref, Reason: ReasonEmptyName})
				continue
			}
			target, ok := resolve(path, ref.Value)
			if !ok {
				g.Unresolved = append(g.Unresolved, UnresolvedRef{From: path, Ref: ref, Reason: ReasonBodyMissing})
				continue
			}
			g.AddBody(target)
			g.Edges = append(g.Edges, Edge{From: path, To: target, Kind: RelationReferences, Ref: ref})
		}
	}
}

// GetDependencies returns the body files a mapping file references.
func (g *Graph) GetDependencies(path string) []*Node {
	var deps []*Node
	seen := make(map[string]bool)
	for _, edge := range g.Edges {
		if edge.From == path && !seen[edge.To] {
			if node, ok := g.Nodes[edge.To]; ok {
				deps = append(deps, node)
				seen[edge.To] = true
			}
		}
	}
	return deps
}

// GetDependents returns the mapping files that reference a body file.
func (g *Graph) GetDependents(path string) []*Node {
	var deps []*Node
	seen := make(map[string]bool)
	for _, edge := range g.Edges {
		if edge.To == path && !seen[edge.From] {
			if node, ok := g.Nodes[edge.From]; ok {
				deps = append(deps, node)
				seen[edge.From] = true
			}
		}
	}
	return deps
}

// Dangling returns references whose body file is missing.
func (g *Graph) Dangling() []UnresolvedRef {
	return g.Unresolved
}

// Orphans returns body files no mapping file references, sorted by path.
func (g *Graph) Orphans() []*Node {
	referenced := make(map[string]bool, len(g.Edges))
	for _, edge := range g.Edges {
		referenced[edge.To] = true
	}
	var out []*Node
	for _, path := range g.sortedPaths(KindBody) {
		if !referenced[path] {
			out = append(out, g.Nodes[path])
		}
	}
	return out
}

// Count returns the number of nodes of the given kind.
func (g *Graph) Count(kind NodeKind) int {
	n := 0
	for _, node := range g.Nodes {
		if node.Kind == kind {
			n++
		}
	}
	return n
}

func (g *Graph) sortedPaths(kind NodeKind) []string {
	var paths []string
	for path, node := range g.Nodes {
		if node.Kind == kind {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

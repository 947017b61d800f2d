package analysis

import (
	"path/filepath"

	"wmref/internal/git"
	"wmref/internal/graph"
	"wmref/internal/resolver"
	"wmref/internal/wiremock"
)

// ImpactReport summarizes the stubs affected by a set of file changes.
type ImpactReport struct {
	// ChangedMappings are mapping files edited directly.
	ChangedMappings []*graph.Node
	// ChangedBodies are body files edited or deleted.
	ChangedBodies []*graph.Node
	// AffectedMappings reference a changed body file without being edited.
	AffectedMappings []*graph.Node
	// BrokenReferences point at a body file deleted by the change set.
	BrokenReferences []graph.UnresolvedRef
}

// Analyzer performs impact analysis on the reference graph.
type Analyzer struct {
	g    *graph.Graph
	root string
}

// NewAnalyzer creates a new analyzer. root is the directory change paths
// are relative to, usually the repository top level.
func NewAnalyzer(g *graph.Graph, root string) *Analyzer {
	return &Analyzer{g: g, root: root}
}

// AnalyzeImpact identifies which mapping files are affected by changes.
func (a *Analyzer) AnalyzeImpact(changes []git.ChangedFile) *ImpactReport {
	report := &ImpactReport{}
	seenDirect := make(map[string]bool)
	seenIndirect := make(map[string]bool)
	deleted := make(map[string]bool)

	for _, change := range changes {
		path := filepath.Join(a.root, filepath.FromSlash(change.Path))
		if change.Deleted {
			deleted[path] = true
		}
		node, ok := a.g.Nodes[path]
		if !ok {
			if change.Deleted {
				// Deleted body files are gone from a freshly built graph.
				node = &graph.Node{Path: path, Kind: graph.KindBody}
				report.ChangedBodies = append(report.ChangedBodies, node)
			}
			continue
		}
		switch node.Kind {
		case graph.KindMapping:
			if !seenDirect[path] {
				report.ChangedMappings = append(report.ChangedMappings, node)
				seenDirect[path] = true
			}
		case graph.KindBody:
			report.ChangedBodies = append(report.ChangedBodies, node)
		}
	}

	for _, body := range report.ChangedBodies {
		for _, dep := range a.g.GetDependents(body.Path) {
			if !seenDirect[dep.Path] && !seenIndirect[dep.Path] {
				report.AffectedMappings = append(report.AffectedMappings, dep)
				seenIndirect[dep.Path] = true
			}
		}
	}

	for _, u := range a.g.Dangling() {
		if isDeletedTarget(u, deleted) {
			report.BrokenReferences = append(report.BrokenReferences, u)
		}
	}
	return report
}

// isDeletedTarget reports whether an unresolved reference would have
// pointed at one of the deleted paths.
func isDeletedTarget(u graph.UnresolvedRef, deleted map[string]bool) bool {
	root, ok := resolver.MappingRoot(u.From)
	if !ok || u.Ref == nil {
		return false
	}
	target := filepath.Join(root, wiremock.FilesDir, filepath.FromSlash(u.Ref.Normalized))
	return deleted[target]
}

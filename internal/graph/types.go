package graph

import "wmref/internal/extractor"

type NodeKind string

const (
	KindMapping NodeKind = "mapping"
	KindBody    NodeKind = "body"
)

type RelationKind string

const (
	RelationReferences RelationKind = "references"
)

type UnresolvedReason string

const (
	ReasonBodyMissing UnresolvedReason = "body_missing"
	ReasonEmptyName   UnresolvedReason = "empty_name"
)

// Node is a file taking part in the reference graph.
type Node struct {
	Path string   `json:"path"`
	Kind NodeKind `json:"kind"`
	// Refs holds the extracted references of a mapping node.
	Refs []*extractor.BodyRef `json:"refs,omitempty"`
}

// Edge links a mapping file to a body file it references.
type Edge struct {
	From string             `json:"from"`
	To   string             `json:"to"`
	Kind RelationKind       `json:"kind"`
	Ref  *extractor.BodyRef `json:"ref,omitempty"`
}

// UnresolvedRef is a reference whose body file could not be found.
type UnresolvedRef struct {
	From   string             `json:"from"`
	Ref    *extractor.BodyRef `json:"ref"`
	Reason UnresolvedReason   `json:"reason"`
}

// ResolveFunc maps a bodyFileName seen in a mapping file to a path.
type ResolveFunc func(mappingFile, bodyFileName string) (string, bool)

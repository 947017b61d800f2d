package storage

import (
	"context"
	"time"

	"wmref/internal/extractor"
)

// MappingRecord is the indexed state of one mapping file.
type MappingRecord struct {
	Path        string
	Root        string // WireMock root: parent of the mappings directory
	ContentHash string
	IndexedAt   time.Time
	Refs        []*extractor.BodyRef
}

// Stats summarizes the index contents.
type Stats struct {
	Mappings   int
	References int
}

// ReferenceStore persists the bodyFileName references of mapping files so
// reverse lookups do not need to rescan the mappings tree.
type ReferenceStore interface {
	// SaveMapping upserts one mapping file and replaces its references.
	SaveMapping(ctx context.Context, rec MappingRecord) error

	// DeleteMapping removes a mapping file and its references.
	DeleteMapping(ctx context.Context, path string) error

	// ReplaceAll swaps the whole index for the given snapshot.
	ReplaceAll(ctx context.Context, recs []MappingRecord) error

	// GetMapping returns one indexed mapping file with its references.
	GetMapping(ctx context.Context, path string) (*MappingRecord, error)

	// FindReferencing returns mapping files under root whose normalized
	// bodyFileName equals rel, sorted by path.
	FindReferencing(ctx context.Context, root, rel string) ([]string, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

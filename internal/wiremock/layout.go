// Package wiremock holds the fixed directory and naming conventions of a
// WireMock file root.
package wiremock

import "strings"

const (
	// MappingsDir is the reserved name of the directory holding stub mappings.
	MappingsDir = "mappings"
	// FilesDir is the reserved name of the directory holding response bodies.
	FilesDir = "__files"
	// BodyFileNameKey is the mapping property that references a body file.
	BodyFileNameKey = "bodyFileName"
	// MappingExt is the extension (without dot) a mapping file must carry.
	MappingExt = "json"
	// SeedContent is written into a newly created body file.
	SeedContent = "{\n  \n}"
)

// Normalize strips a single leading slash from a bodyFileName value.
func Normalize(bodyFileName string) string {
	return strings.TrimPrefix(bodyFileName, "/")
}

// Segments normalizes bodyFileName and splits it on "/".
// Trailing empty segments are dropped, so "a/b/" yields [a b].
func Segments(bodyFileName string) []string {
	parts := strings.Split(Normalize(bodyFileName), "/")
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// ValidSegment reports whether s can name a real child entry.
// "." and ".." are taken literally and can never match.
func ValidSegment(s string) bool {
	return s != "" && s != "." && s != ".."
}

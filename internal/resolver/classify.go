package resolver

import (
	"path/filepath"
	"strings"

	"wmref/internal/wiremock"
)

// IsMappingFile reports whether path has a json extension and sits below a
// directory named "mappings".
func IsMappingFile(path string) bool {
	if path == "" {
		return false
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if !strings.EqualFold(ext, wiremock.MappingExt) {
		return false
	}
	_, ok := FindAncestor(path, wiremock.MappingsDir)
	return ok
}

// IsBodyFile reports whether path sits below a directory named "__files".
func IsBodyFile(path string) bool {
	if path == "" {
		return false
	}
	_, ok := FindAncestor(path, wiremock.FilesDir)
	return ok
}

// FindAncestor walks the parents of path and returns the nearest one whose
// base name is exactly name. path itself is not considered.
func FindAncestor(path, name string) (string, bool) {
	if path == "" {
		return "", false
	}
	current := filepath.Clean(path)
	for {
		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		if filepath.Base(parent) == name {
			return parent, true
		}
		current = parent
	}
}

// MappingRoot returns the WireMock root (the parent of the nearest
// "mappings" ancestor) of a mapping file.
func MappingRoot(mappingFile string) (string, bool) {
	mappingsDir, ok := FindAncestor(mappingFile, wiremock.MappingsDir)
	if !ok {
		return "", false
	}
	return filepath.Dir(mappingsDir), true
}

// BodyLocation returns the WireMock root of a body file and its
// slash-separated path relative to "__files".
func BodyLocation(bodyFile string) (root, rel string, ok bool) {
	filesDir, ok := FindAncestor(bodyFile, wiremock.FilesDir)
	if !ok {
		return "", "", false
	}
	rel, err := filepath.Rel(filesDir, filepath.Clean(bodyFile))
	if err != nil {
		return "", "", false
	}
	return filepath.Dir(filesDir), filepath.ToSlash(rel), true
}

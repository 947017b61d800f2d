package resolver

import (
	"bytes"
	"fmt"

	"wmref/internal/extractor"
	"wmref/internal/wiremock"
)

// Matcher decides whether a mapping document references a body file given
// its path relative to "__files".
type Matcher interface {
	Name() string
	Matches(content []byte, relPath string) bool
}

const (
	MatchTextual    = "textual"
	MatchStructural = "structural"
)

// MatcherFor returns the matcher registered under mode. An empty mode
// selects the textual matcher.
func MatcherFor(mode string) (Matcher, error) {
	switch mode {
	case "", MatchTextual:
		return TextualMatcher{}, nil
	case MatchStructural:
		return StructuralMatcher{}, nil
	default:
		return nil, fmt.Errorf("unknown match mode: %s", mode)
	}
}

// TextualMatcher matches on raw substrings: the document must contain the
// quoted "bodyFileName" key and the quoted path with or without a leading
// slash. Any other property holding the same string is a false positive,
// and escaped spellings of the path are missed.
type TextualMatcher struct{}

func (TextualMatcher) Name() string { return MatchTextual }

func (TextualMatcher) Matches(content []byte, relPath string) bool {
	if !bytes.Contains(content, []byte(`"`+wiremock.BodyFileNameKey+`"`)) {
		return false
	}
	return bytes.Contains(content, []byte(`"`+relPath+`"`)) ||
		bytes.Contains(content, []byte(`"/`+relPath+`"`))
}

// StructuralMatcher parses the document and compares every bodyFileName
// string value, normalized, to the path.
type StructuralMatcher struct{}

func (StructuralMatcher) Name() string { return MatchStructural }

func (StructuralMatcher) Matches(content []byte, relPath string) bool {
	for _, name := range extractor.BodyFileNames(content) {
		if wiremock.Normalize(name) == relPath {
			return true
		}
	}
	return false
}

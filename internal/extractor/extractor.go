package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/tidwall/gjson"

	"wmref/internal/wiremock"
)

// The JavaScript grammar reads any JSON value once it is parenthesised,
// which turns the top-level object into an expression instead of a block.
const pairQuery = `(pair key: (string) @key value: (string) @value)`

// Extractor locates bodyFileName string properties in mapping documents.
type Extractor struct {
	query *sitter.Query
}

// NewExtractor compiles the pair query once for reuse.
func NewExtractor() (*Extractor, error) {
	q, err := sitter.NewQuery([]byte(pairQuery), javascript.GetLanguage())
	if err != nil {
		return nil, fmt.Errorf("failed to create query: %w", err)
	}
	return &Extractor{query: q}, nil
}

// ExtractFromFile reads a mapping file and extracts its references.
func (e *Extractor) ExtractFromFile(ctx context.Context, path string) ([]*BodyRef, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return e.Extract(ctx, path, src)
}

// Extract returns every bodyFileName property whose value is a string, in
// document order. Syntax errors elsewhere in the document do not hide
// well-formed pairs.
func (e *Extractor) Extract(ctx context.Context, path string, src []byte) ([]*BodyRef, error) {
	wrapped := make([]byte, 0, len(src)+3)
	wrapped = append(wrapped, '(')
	wrapped = append(wrapped, src...)
	wrapped = append(wrapped, '\n', ')')

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", path, err)
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(e.query, tree.RootNode())

	var refs []*BodyRef
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var key, value *sitter.Node
		for _, c := range m.Captures {
			switch e.query.CaptureNameForId(c.Index) {
			case "key":
				key = c.Node
			case "value":
				value = c.Node
			}
		}
		if key == nil || value == nil {
			continue
		}
		if decodeString(key.Content(wrapped)) != wiremock.BodyFileNameKey {
			continue
		}

		// Offsets are shifted by the opening parenthesis.
		start := int(value.StartByte()) - 1
		end := int(value.EndByte()) - 1
		line, col := position(src, start)
		v := decodeString(value.Content(wrapped))
		refs = append(refs, &BodyRef{
			Filepath:   path,
			Value:      v,
			Normalized: wiremock.Normalize(v),
			Line:       line,
			Column:     col,
			StartByte:  start,
			EndByte:    end,
		})
	}
	return refs, nil
}

// decodeString unescapes a quoted JSON string literal.
func decodeString(literal string) string {
	return gjson.Parse(literal).String()
}

func position(src []byte, offset int) (line, col int) {
	if offset > len(src) {
		offset = len(src)
	}
	prefix := src[:offset]
	line = bytes.Count(prefix, []byte{'\n'}) + 1
	col = offset - bytes.LastIndexByte(prefix, '\n')
	return line, col
}

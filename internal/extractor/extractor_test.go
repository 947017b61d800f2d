package extractor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractor_ExtractFromFile(t *testing.T) {
	testFile := filepath.Join("testdata", "mapping.json")

	ext, err := NewExtractor()
	require.NoError(t, err)

	refs, err := ext.ExtractFromFile(context.Background(), testFile)
	require.NoError(t, err)

	t.Run("Only string-valued bodyFileName pairs", func(t *testing.T) {
		require.Len(t, refs, 2)
	})

	t.Run("Top-level response reference", func(t *testing.T) {
		r := refs[0]
		assert.Equal(t, "orders/42.json", r.Value)
		assert.Equal(t, "orders/42.json", r.Normalized)
		assert.Equal(t, 8, r.Line)
		assert.Equal(t, 21, r.Column)
		assert.Equal(t, testFile, r.Filepath)
	})

	t.Run("Nested reference is unescaped and normalized", func(t *testing.T) {
		r := refs[1]
		assert.Equal(t, "/orders/fallback.json", r.Value)
		assert.Equal(t, "orders/fallback.json", r.Normalized)
		assert.Equal(t, 15, r.Line)
	})
}

func TestExtractor_Extract_Offsets(t *testing.T) {
	ext, err := NewExtractor()
	require.NoError(t, err)

	src := []byte(`{"bodyFileName":"a.json"}`)
	refs, err := ext.Extract(context.Background(), "m.json", src)
	require.NoError(t, err)
	require.Len(t, refs, 1)

	want := &BodyRef{
		Filepath:   "m.json",
		Value:      "a.json",
		Normalized: "a.json",
		Line:       1,
		Column:     17,
		StartByte:  16,
		EndByte:    24,
	}
	if diff := cmp.Diff(want, refs[0]); diff != "" {
		t.Errorf("unexpected ref (-want +got):\n%s", diff)
	}
	assert.Equal(t, `"a.json"`, string(src[refs[0].StartByte:refs[0].EndByte]))
}

func TestExtractor_Extract_Malformed(t *testing.T) {
	ext, err := NewExtractor()
	require.NoError(t, err)

	refs, err := ext.Extract(context.Background(), "m.json", []byte(`{"bodyFileName": "ok.json", "broken": }`))
	require.NoError(t, err)
	for _, r := range refs {
		assert.Equal(t, "ok.json", r.Value)
	}

	refs, err = ext.Extract(context.Background(), "m.json", []byte(``))
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestBodyFileNames(t *testing.T) {
	doc := []byte(`{
		"mappings": [
			{"response": {"bodyFileName": "a.json"}},
			{"response": {"bodyFileName": "/b/c.json"}},
			{"response": {"bodyFileName": 3}}
		],
		"bodyFileName": "top.json"
	}`)
	assert.Equal(t, []string{"a.json", "/b/c.json", "top.json"}, BodyFileNames(doc))
	assert.Nil(t, BodyFileNames([]byte(`{"bodyFileName": `)))
	assert.Empty(t, BodyFileNames([]byte(`[]`)))
}

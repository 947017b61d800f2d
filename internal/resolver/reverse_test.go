package resolver

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reverseFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"__files/a/b.json":          `{}`,
		"__files/lonely.json":       `{}`,
		"mappings/m.json":           `{"bodyFileName": "a/b.json"}`,
		"mappings/other.json":       `{"bodyFileName": "c/other.json"}`,
		"mappings/deep/slash.JSON":  `{"response": {"bodyFileName": "/a/b.json"}}`,
		"mappings/deep/readme.txt":  `"bodyFileName" "a/b.json"`,
		"mappings/decoy.json":       `{"bodyFileName": "x.json", "comment": "a/b.json"}`,
		"mappings/no-key.json":      `{"note": "a/b.json"}`,
		"mappings/multi/list.json":  `{"mappings":[{"response":{"bodyFileName":"lonely.json"}},{"response":{"bodyFileName":"a/b.json"}}]}`,
	})
	return root
}

func TestFindReferencingMappingFiles_Textual(t *testing.T) {
	root := reverseFixture(t)
	got, err := FindReferencingMappingFiles(filepath.Join(root, "__files", "a", "b.json"))
	require.NoError(t, err)

	rel := relAll(t, root, got)
	assert.ElementsMatch(t, []string{
		"mappings/m.json",
		"mappings/deep/slash.JSON",
		"mappings/decoy.json",
		"mappings/multi/list.json",
	}, rel)
	assert.NotContains(t, rel, "mappings/other.json")
	assert.NotContains(t, rel, "mappings/deep/readme.txt")
}

func TestFindReferencingMappingFiles_Structural(t *testing.T) {
	root := reverseFixture(t)
	r := New(WithMatcher(StructuralMatcher{}))

	got, err := r.FindReferencingMappingFiles(filepath.Join(root, "__files", "a", "b.json"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"mappings/m.json",
		"mappings/deep/slash.JSON",
		"mappings/multi/list.json",
	}, relAll(t, root, got), "a string under another key is not a reference")
}

func TestFindReferencingMappingFiles_Empty(t *testing.T) {
	root := reverseFixture(t)

	got, err := FindReferencingMappingFiles(filepath.Join(root, "mappings", "m.json"))
	require.NoError(t, err)
	assert.Empty(t, got, "mapping files are not body files")

	got, err = FindReferencingMappingFiles("")
	require.NoError(t, err)
	assert.Empty(t, got)

	bare := t.TempDir()
	writeTree(t, bare, map[string]string{"__files/a.json": `{}`})
	got, err = FindReferencingMappingFiles(filepath.Join(bare, "__files", "a.json"))
	require.NoError(t, err)
	assert.Empty(t, got, "no sibling mappings directory")
}

type unreadableFS struct {
	OSFileSystem
	name string
}

func (u unreadableFS) ReadFile(name string) ([]byte, error) {
	if filepath.Base(name) == u.name {
		return nil, errors.New("locked")
	}
	return u.OSFileSystem.ReadFile(name)
}

func TestFindReferencingMappingFiles_SkipsUnreadable(t *testing.T) {
	root := reverseFixture(t)
	r := New(WithFileSystem(unreadableFS{name: "m.json"}))

	got, err := r.FindReferencingMappingFiles(filepath.Join(root, "__files", "a", "b.json"))
	require.NoError(t, err)
	assert.NotContains(t, relAll(t, root, got), "mappings/m.json")
	assert.Contains(t, relAll(t, root, got), "mappings/decoy.json")
}

type stubIndex struct{ err error }

func (s stubIndex) FilesWithExt(string, string) ([]string, error) { return nil, s.err }

func TestFindReferencingMappingFiles_IndexError(t *testing.T) {
	root := reverseFixture(t)
	r := New(WithTextIndex(stubIndex{err: os.ErrPermission}))

	_, err := r.FindReferencingMappingFiles(filepath.Join(root, "__files", "a", "b.json"))
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestMatcherFor(t *testing.T) {
	m, err := MatcherFor("")
	require.NoError(t, err)
	assert.Equal(t, MatchTextual, m.Name())

	m, err = MatcherFor(MatchStructural)
	require.NoError(t, err)
	assert.Equal(t, MatchStructural, m.Name())

	_, err = MatcherFor("fuzzy")
	assert.Error(t, err)
}

func TestTextualMatcher(t *testing.T) {
	m := TextualMatcher{}
	assert.True(t, m.Matches([]byte(`{"bodyFileName":"a.json"}`), "a.json"))
	assert.True(t, m.Matches([]byte(`{"bodyFileName":"/a.json"}`), "a.json"))
	assert.False(t, m.Matches([]byte(`{"bodyFileName":"xa.json"}`), "a.json"))
	assert.False(t, m.Matches([]byte(`{"body":"a.json"}`), "a.json"))
	assert.False(t, m.Matches([]byte(`{"bodyFileName":"a\/b.json"}`), "a/b.json"), "escaped slashes are missed")
}

func relAll(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

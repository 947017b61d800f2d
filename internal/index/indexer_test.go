package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"wmref/internal/crawler"
	"wmref/internal/extractor"
	"wmref/internal/graph"
	"wmref/internal/resolver"
	"wmref/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newIndexer(t *testing.T) (*Indexer, *storage.SQLiteStore) {
	t.Helper()
	ext, err := extractor.NewExtractor()
	require.NoError(t, err)
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewIndexer(crawler.NewCrawler(), ext, resolver.New(), store, nil), store
}

func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"svc/mappings/a.json":        `{"response": {"bodyFileName": "x.json"}}`,
		"svc/mappings/nested/b.json": `{"response": {"bodyFileName": "/x.json"}}`,
		"svc/mappings/c.json":        `{"response": {"bodyFileName": "missing.json"}, "note": "x.json"}`,
		"svc/__files/x.json":         `{}`,
		"svc/__files/orphan.json":    `{}`,
		"other/mappings/d.json":      `{"response": {"bodyFileName": "x.json"}}`,
	})
	return root
}

func TestIndexer_BuildGraph(t *testing.T) {
	root := fixture(t)
	idx, _ := newIndexer(t)

	g, err := idx.BuildGraph(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 4, g.Count(graph.KindMapping))
	assert.Len(t, g.Edges, 2)

	dependents := g.GetDependents(filepath.Join(root, "svc", "__files", "x.json"))
	assert.Len(t, dependents, 2)

	var dangling []string
	for _, u := range g.Dangling() {
		dangling = append(dangling, u.Ref.Value)
	}
	assert.ElementsMatch(t, []string{"missing.json", "x.json"}, dangling, "other/ has no __files")

	orphans := g.Orphans()
	require.Len(t, orphans, 1)
	assert.Equal(t, filepath.Join(root, "svc", "__files", "orphan.json"), orphans[0].Path)
}

func TestIndexer_RebuildAndReferencing(t *testing.T) {
	root := fixture(t)
	idx, store := newIndexer(t)
	ctx := context.Background()

	stats, err := idx.Rebuild(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Roots)
	assert.Equal(t, 4, stats.Mappings)
	assert.Equal(t, 4, stats.References)

	got, err := idx.Referencing(ctx, filepath.Join(root, "svc", "__files", "x.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "svc", "mappings", "a.json"),
		filepath.Join(root, "svc", "mappings", "nested", "b.json"),
	}, got)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Mappings)
}

func TestIndexer_ReferencingMatchesStructuralResolver(t *testing.T) {
	root := fixture(t)
	idx, _ := newIndexer(t)
	ctx := context.Background()
	_, err := idx.Rebuild(ctx, root)
	require.NoError(t, err)

	body := filepath.Join(root, "svc", "__files", "x.json")
	fromIndex, err := idx.Referencing(ctx, body)
	require.NoError(t, err)

	fromScan, err := resolver.New(resolver.WithMatcher(resolver.StructuralMatcher{})).FindReferencingMappingFiles(body)
	require.NoError(t, err)
	assert.ElementsMatch(t, fromScan, fromIndex)
}

func TestIndexer_MalformedMappingHasNoReferences(t *testing.T) {
	root := fixture(t)
	writeTree(t, root, map[string]string{
		"svc/mappings/broken.json": `{"response": {"bodyFileName": "x.json",},}`,
	})
	idx, _ := newIndexer(t)
	ctx := context.Background()
	stats, err := idx.Rebuild(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Mappings, "malformed files stay indexed")

	body := filepath.Join(root, "svc", "__files", "x.json")
	fromIndex, err := idx.Referencing(ctx, body)
	require.NoError(t, err)
	assert.NotContains(t, fromIndex, filepath.Join(root, "svc", "mappings", "broken.json"))

	fromScan, err := resolver.New(resolver.WithMatcher(resolver.StructuralMatcher{})).FindReferencingMappingFiles(body)
	require.NoError(t, err)
	assert.ElementsMatch(t, fromScan, fromIndex)
}

func TestIndexer_NestedMappingsUseNearestRoot(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"wm/mappings/team/mappings/m.json": `{"response": {"bodyFileName": "x.json"}}`,
		"wm/mappings/team/__files/x.json":  `{}`,
	})
	mapping := filepath.Join(root, "wm", "mappings", "team", "mappings", "m.json")
	body := filepath.Join(root, "wm", "mappings", "team", "__files", "x.json")

	idx, store := newIndexer(t)
	ctx := context.Background()
	_, err := idx.Rebuild(ctx, root)
	require.NoError(t, err)

	rec, err := store.GetMapping(ctx, mapping)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "wm", "mappings", "team"), rec.Root)

	fromIndex, err := idx.Referencing(ctx, body)
	require.NoError(t, err)
	assert.Equal(t, []string{mapping}, fromIndex)

	fromScan, err := resolver.New(resolver.WithMatcher(resolver.StructuralMatcher{})).FindReferencingMappingFiles(body)
	require.NoError(t, err)
	assert.Equal(t, fromScan, fromIndex)

	changed, err := idx.UpdateFile(ctx, mapping)
	require.NoError(t, err)
	assert.False(t, changed)
	fromIndex, err = idx.Referencing(ctx, body)
	require.NoError(t, err)
	assert.Equal(t, []string{mapping}, fromIndex)
}

func TestIndexer_UpdateFileCorrectsStaleRoot(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"wm/mappings/team/mappings/m.json": `{"response": {"bodyFileName": "x.json"}}`,
		"wm/mappings/team/__files/x.json":  `{}`,
	})
	mapping := filepath.Join(root, "wm", "mappings", "team", "mappings", "m.json")
	idx, store := newIndexer(t)
	ctx := context.Background()
	_, err := idx.Rebuild(ctx, root)
	require.NoError(t, err)

	rec, err := store.GetMapping(ctx, mapping)
	require.NoError(t, err)
	rec.Root = filepath.Join(root, "wm")
	require.NoError(t, store.SaveMapping(ctx, *rec))

	changed, err := idx.UpdateFile(ctx, mapping)
	require.NoError(t, err)
	assert.True(t, changed, "same content under a different root is re-saved")

	rec, err = store.GetMapping(ctx, mapping)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "wm", "mappings", "team"), rec.Root)
}

func TestIndexer_UpdateFile(t *testing.T) {
	root := fixture(t)
	idx, _ := newIndexer(t)
	ctx := context.Background()
	_, err := idx.Rebuild(ctx, root)
	require.NoError(t, err)

	body := filepath.Join(root, "svc", "__files", "x.json")
	mapping := filepath.Join(root, "svc", "mappings", "c.json")

	t.Run("Unchanged content is a no-op", func(t *testing.T) {
		changed, err := idx.UpdateFile(ctx, mapping)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("Edited mapping replaces its refs", func(t *testing.T) {
		require.NoError(t, os.WriteFile(mapping, []byte(`{"response": {"bodyFileName": "x.json"}}`), 0o644))
		changed, err := idx.UpdateFile(ctx, mapping)
		require.NoError(t, err)
		assert.True(t, changed)

		got, err := idx.Referencing(ctx, body)
		require.NoError(t, err)
		assert.Contains(t, got, mapping)
	})

	t.Run("Deleted mapping is dropped", func(t *testing.T) {
		require.NoError(t, os.Remove(mapping))
		changed, err := idx.UpdateFile(ctx, mapping)
		require.NoError(t, err)
		assert.True(t, changed)

		got, err := idx.Referencing(ctx, body)
		require.NoError(t, err)
		assert.NotContains(t, got, mapping)
	})

	t.Run("Non-mapping paths are ignored", func(t *testing.T) {
		changed, err := idx.UpdateFile(ctx, body)
		require.NoError(t, err)
		assert.False(t, changed)
	})
}

func TestIndexer_NoStore(t *testing.T) {
	ext, err := extractor.NewExtractor()
	require.NoError(t, err)
	idx := NewIndexer(crawler.NewCrawler(), ext, resolver.New(), nil, nil)

	_, err = idx.Rebuild(context.Background(), t.TempDir())
	assert.Error(t, err)
}

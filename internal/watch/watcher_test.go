package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wmref/internal/crawler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordingUpdater struct {
	mu    sync.Mutex
	paths map[string]int
}

func (r *recordingUpdater) UpdateFile(_ context.Context, path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paths == nil {
		r.paths = make(map[string]int)
	}
	r.paths[path]++
	return true, nil
}

func (r *recordingUpdater) count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paths[path]
}

func TestWatcher_ReindexesEditedMappings(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	mappings := filepath.Join(root, "wm", "mappings")
	require.NoError(t, os.MkdirAll(mappings, 0o755))

	u := &recordingUpdater{}
	w, err := NewWatcher(root, crawler.NewCrawler(), u, 50*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	mapping := filepath.Join(mappings, "a.json")
	require.NoError(t, os.WriteFile(mapping, []byte(`{"response":{"bodyFileName":"x.json"}}`), 0o644))

	assert.Eventually(t, func() bool { return u.count(mapping) > 0 }, 5*time.Second, 20*time.Millisecond)

	t.Run("New subdirectories are watched", func(t *testing.T) {
		nested := filepath.Join(mappings, "nested")
		require.NoError(t, os.Mkdir(nested, 0o755))
		// Give the event loop a moment to register the new directory.
		time.Sleep(100 * time.Millisecond)

		inner := filepath.Join(nested, "b.json")
		require.NoError(t, os.WriteFile(inner, []byte(`{}`), 0o644))
		assert.Eventually(t, func() bool { return u.count(inner) > 0 }, 5*time.Second, 20*time.Millisecond)
	})

	t.Run("Non-mapping files are ignored", func(t *testing.T) {
		txt := filepath.Join(mappings, "notes.txt")
		require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
		time.Sleep(200 * time.Millisecond)
		assert.Zero(t, u.count(txt))
	})
}

func TestWatcher_StopWithoutLeaks(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := NewWatcher(t.TempDir(), crawler.NewCrawler(), &recordingUpdater{}, 0, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()), "second start is a no-op")
	w.Stop()
	w.Stop()
	assert.Equal(t, Stats{}, w.Stats())
}

func TestWatcher_PicksUpNewMappingsTrees(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	u := &recordingUpdater{}
	w, err := NewWatcher(root, crawler.NewCrawler(), u, 50*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	t.Run("Tree created in one step", func(t *testing.T) {
		mappings := filepath.Join(root, "svc", "wm", "mappings")
		require.NoError(t, os.MkdirAll(mappings, 0o755))
		early := filepath.Join(mappings, "early.json")
		require.NoError(t, os.WriteFile(early, []byte(`{}`), 0o644))

		// Files written before the watch was registered are scheduled too.
		assert.Eventually(t, func() bool { return u.count(early) > 0 }, 5*time.Second, 20*time.Millisecond)

		late := filepath.Join(mappings, "late.json")
		require.NoError(t, os.WriteFile(late, []byte(`{}`), 0o644))
		assert.Eventually(t, func() bool { return u.count(late) > 0 }, 5*time.Second, 20*time.Millisecond)
	})

	t.Run("Ignored directories are not searched", func(t *testing.T) {
		ignored := filepath.Join(root, "node_modules", "pkg", "mappings")
		require.NoError(t, os.MkdirAll(ignored, 0o755))
		time.Sleep(100 * time.Millisecond)

		mapping := filepath.Join(ignored, "a.json")
		require.NoError(t, os.WriteFile(mapping, []byte(`{}`), 0o644))
		time.Sleep(200 * time.Millisecond)
		assert.Zero(t, u.count(mapping))
	})
}

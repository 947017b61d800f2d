package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wmref/internal/crawler"
	"wmref/internal/extractor"
	"wmref/internal/graph"
	"wmref/internal/resolver"
	"wmref/internal/storage"
	"wmref/internal/wiremock"
)

// Indexer builds the reference graph and keeps the persistent reference
// index in sync with the mapping files on disk.
type Indexer struct {
	crawler   *crawler.Crawler
	extractor *extractor.Extractor
	resolver  *resolver.Resolver
	store     storage.ReferenceStore
	logger    *zap.Logger
	workers   int
}

// Stats reports the outcome of a rebuild.
type Stats struct {
	Roots      int
	Mappings   int
	References int
	Skipped    int
	Duration   time.Duration
}

// NewIndexer creates a new indexer. store may be nil when only graphs are
// needed.
func NewIndexer(c *crawler.Crawler, ext *extractor.Extractor, r *resolver.Resolver, store storage.ReferenceStore, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		crawler:   c,
		extractor: ext,
		resolver:  r,
		store:     store,
		logger:    logger,
		workers:   8,
	}
}

// BuildGraph scans every WireMock root under projectRoot and links all
// references.
func (i *Indexer) BuildGraph(ctx context.Context, projectRoot string) (*graph.Graph, error) {
	g := graph.NewGraph()

	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}
	roots, err := i.crawler.FindRoots(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	for _, root := range roots {
		recs, _, err := i.extractRoot(ctx, root)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			g.AddMapping(rec.Path, rec.Refs)
		}
		if !root.HasFiles {
			continue
		}
		err = i.crawler.ScanFiles(root.Files, "", func(path string) {
			g.AddBody(path)
		})
		if err != nil {
			return nil, fmt.Errorf("scan of %s failed: %w", root.Files, err)
		}
	}

	g.LinkRelations(i.resolver.ResolveBodyFile)
	i.logger.Debug("Graph built",
		zap.Int("roots", len(roots)),
		zap.Int("mappings", g.Count(graph.KindMapping)),
		zap.Int("edges", len(g.Edges)),
		zap.Int("unresolved", len(g.Unresolved)))
	return g, nil
}

// Rebuild replaces the persistent index with a fresh scan of projectRoot.
func (i *Indexer) Rebuild(ctx context.Context, projectRoot string) (Stats, error) {
	if i.store == nil {
		return Stats{}, errors.New("no reference store configured")
	}
	start := time.Now()

	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return Stats{}, err
	}
	roots, err := i.crawler.FindRoots(projectRoot)
	if err != nil {
		return Stats{}, fmt.Errorf("scan failed: %w", err)
	}

	stats := Stats{Roots: len(roots)}
	var all []storage.MappingRecord
	for _, root := range roots {
		recs, skipped, err := i.extractRoot(ctx, root)
		if err != nil {
			return Stats{}, err
		}
		stats.Skipped += skipped
		all = append(all, recs...)
	}

	if err := i.store.ReplaceAll(ctx, all); err != nil {
		return Stats{}, fmt.Errorf("failed to save index: %w", err)
	}

	stats.Mappings = len(all)
	for _, rec := range all {
		stats.References += len(rec.Refs)
	}
	stats.Duration = time.Since(start)
	i.logger.Info("Index rebuilt",
		zap.Int("roots", stats.Roots),
		zap.Int("mappings", stats.Mappings),
		zap.Int("references", stats.References),
		zap.Duration("took", stats.Duration))
	return stats, nil
}

// extractRoot reads and parses every mapping file of root concurrently.
// Files that cannot be read are skipped and counted.
func (i *Indexer) extractRoot(ctx context.Context, root crawler.Root) ([]storage.MappingRecord, int, error) {
	files, err := i.crawler.FilesWithExt(root.Mappings, wiremock.MappingExt)
	if err != nil {
		return nil, 0, fmt.Errorf("scan of %s failed: %w", root.Mappings, err)
	}

	recs := make([]*storage.MappingRecord, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workers)
	for n, path := range files {
		g.Go(func() error {
			rec, err := i.readMapping(gctx, path)
			if err != nil {
				// Log and continue instead of failing the whole scan
				i.logger.Warn("Skipping mapping file", zap.String("path", path), zap.Error(err))
				return nil
			}
			recs[n] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	out := make([]storage.MappingRecord, 0, len(recs))
	skipped := 0
	for _, rec := range recs {
		if rec == nil {
			skipped++
			continue
		}
		out = append(out, *rec)
	}
	return out, skipped, nil
}

// readMapping hashes and extracts one mapping file. The record's root is
// the parent of the nearest "mappings" ancestor, which is what the
// resolver uses for the same file. A document that is not valid JSON is
// recorded without references.
func (i *Indexer) readMapping(ctx context.Context, path string) (*storage.MappingRecord, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	root, ok := resolver.MappingRoot(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, resolver.ErrNotMappingFile)
	}

	var refs []*extractor.BodyRef
	if gjson.ValidBytes(src) {
		refs, err = i.extractor.Extract(ctx, path, src)
		if err != nil {
			return nil, err
		}
	} else {
		i.logger.Warn("Indexing invalid JSON without references", zap.String("path", path))
	}

	sum := sha256.Sum256(src)
	return &storage.MappingRecord{
		Path:        path,
		Root:        root,
		ContentHash: hex.EncodeToString(sum[:]),
		IndexedAt:   time.Now(),
		Refs:        refs,
	}, nil
}

// UpdateFile re-indexes a single mapping file, or drops it from the index
// when it no longer exists. Paths that are not mapping files are ignored.
// It reports whether the index changed.
func (i *Indexer) UpdateFile(ctx context.Context, path string) (bool, error) {
	if i.store == nil {
		return false, errors.New("no reference store configured")
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	if !resolver.IsMappingFile(path) {
		return false, nil
	}
	rec, err := i.readMapping(ctx, path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := i.store.DeleteMapping(ctx, path); err != nil {
			return false, err
		}
		i.logger.Debug("Dropped mapping from index", zap.String("path", path))
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if prev, err := i.store.GetMapping(ctx, path); err == nil && prev.ContentHash == rec.ContentHash && prev.Root == rec.Root {
		return false, nil
	}
	if err := i.store.SaveMapping(ctx, *rec); err != nil {
		return false, err
	}
	i.logger.Debug("Re-indexed mapping", zap.String("path", path), zap.Int("refs", len(rec.Refs)))
	return true, nil
}

// Referencing answers a reverse lookup from the persistent index. Matching
// is structural: indexed bodyFileName values are compared after
// normalization.
func (i *Indexer) Referencing(ctx context.Context, bodyFile string) ([]string, error) {
	if i.store == nil {
		return nil, errors.New("no reference store configured")
	}
	bodyFile, err := filepath.Abs(bodyFile)
	if err != nil {
		return nil, err
	}
	if !resolver.IsBodyFile(bodyFile) {
		return nil, nil
	}
	root, rel, ok := resolver.BodyLocation(bodyFile)
	if !ok {
		return nil, nil
	}
	return i.store.FindReferencing(ctx, root, rel)
}

package crawler

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"wmref/internal/wiremock"
)

// Crawler walks directory trees looking for WireMock roots and files.
type Crawler struct {
	ignored []string
	logger  *zap.Logger
}

// Root is one WireMock file root: a "mappings" directory and its sibling
// "__files" directory, which may not exist yet.
type Root struct {
	Dir      string
	Mappings string
	Files    string
	HasFiles bool
}

// NewCrawler creates a new crawler. extra names are skipped in addition to
// the default ignore list when searching for roots.
func NewCrawler(extra ...string) *Crawler {
	ignored := []string{".git", "node_modules", "vendor", "target", "build"}
	return &Crawler{ignored: append(ignored, extra...), logger: zap.NewNop()}
}

// WithLogger sets the logger used to report skipped directories.
func (c *Crawler) WithLogger(l *zap.Logger) *Crawler {
	if l != nil {
		c.logger = l
	}
	return c
}

// ScanFiles walks root and calls onFile for every regular file whose
// extension equals ext, ignoring case. An empty ext matches every file.
// Symlinks to regular files are reported under their link path. Every
// directory below root is visited; one that cannot be read is logged and
// skipped.
func (c *Crawler) ScanFiles(root, ext string, onFile func(path string)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return c.walkError(root, path, d, err)
		}
		if d.IsDir() {
			return nil
		}
		if ext != "" && !hasExt(d.Name(), ext) {
			return nil
		}
		if !isRegular(path, d) {
			return nil
		}
		onFile(path)
		return nil
	})
}

// walkError decides how a walk reacts to err at path. Errors on root are
// returned; below root the entry is logged and skipped.
func (c *Crawler) walkError(root, path string, d fs.DirEntry, err error) error {
	if path == root {
		return err
	}
	c.logger.Warn("Skipping unreadable path", zap.String("path", path), zap.Error(err))
	if d != nil && d.IsDir() {
		return filepath.SkipDir
	}
	return nil
}

func isRegular(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// FilesWithExt collects the files ScanFiles would report, in walk order.
func (c *Crawler) FilesWithExt(root, ext string) ([]string, error) {
	var files []string
	err := c.ScanFiles(root, ext, func(path string) {
		files = append(files, path)
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// FindRoots walks projectRoot and returns every directory that contains a
// "mappings" directory. Ignored directories are not descended into, and
// the search does not look inside "mappings" or "__files".
func (c *Crawler) FindRoots(projectRoot string) ([]Root, error) {
	return c.WalkRoots(projectRoot, nil)
}

// WalkRoots is FindRoots that also calls onDir for every directory it
// searches, that is every non-ignored directory outside the WireMock trees.
func (c *Crawler) WalkRoots(projectRoot string, onDir func(dir string)) ([]Root, error) {
	var roots []Root
	err := filepath.WalkDir(projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return c.walkError(projectRoot, path, d, err)
		}
		if !d.IsDir() {
			return nil
		}
		if path != projectRoot && c.Ignores(d.Name()) {
			return filepath.SkipDir
		}

		switch d.Name() {
		case wiremock.MappingsDir:
			dir := filepath.Dir(path)
			files := filepath.Join(dir, wiremock.FilesDir)
			roots = append(roots, Root{
				Dir:      dir,
				Mappings: path,
				Files:    files,
				HasFiles: isDir(files),
			})
			return filepath.SkipDir
		case wiremock.FilesDir:
			return filepath.SkipDir
		}
		if onDir != nil {
			onDir(path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roots, nil
}

// Ignores reports whether root discovery skips directories named name.
func (c *Crawler) Ignores(name string) bool {
	for _, ign := range c.ignored {
		if name == ign {
			return true
		}
	}
	return false
}

func hasExt(name, ext string) bool {
	return strings.EqualFold(strings.TrimPrefix(filepath.Ext(name), "."), ext)
}

// Package resolver maps bodyFileName values to body files under "__files"
// and body files back to the mapping files that reference them.
package resolver

import (
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"wmref/internal/crawler"
	"wmref/internal/wiremock"
)

var (
	// ErrEmptyBodyFileName is returned when creation is asked for an empty name.
	ErrEmptyBodyFileName = errors.New("empty bodyFileName")
	// ErrNotMappingFile is returned when the mapping file has no "mappings" ancestor.
	ErrNotMappingFile = errors.New("not inside a mappings directory")
	// ErrInvalidBodyFileName is returned for names with empty, "." or ".." segments.
	ErrInvalidBodyFileName = errors.New("invalid bodyFileName")
)

// Resolver resolves references between mapping files and body files. Every
// call re-derives its answer from the file system.
type Resolver struct {
	fs      FileSystem
	index   TextIndex
	matcher Matcher
	logger  *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithFileSystem(fsys FileSystem) Option {
	return func(r *Resolver) { r.fs = fsys }
}

func WithTextIndex(idx TextIndex) Option {
	return func(r *Resolver) { r.index = idx }
}

func WithMatcher(m Matcher) Option {
	return func(r *Resolver) { r.matcher = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New returns a Resolver backed by the host file system, a crawler for
// enumeration and the textual matcher unless overridden.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		fs:      OSFileSystem{},
		index:   crawler.NewCrawler(),
		matcher: TextualMatcher{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Matcher returns the matcher used for reverse lookups.
func (r *Resolver) Matcher() Matcher {
	return r.matcher
}

// ResolveBodyFile returns the location under "__files" that bodyFileName
// points at, as seen from mappingFile. A missing layout, an empty name or a
// missing segment all yield false.
func (r *Resolver) ResolveBodyFile(mappingFile, bodyFileName string) (string, bool) {
	if mappingFile == "" || bodyFileName == "" {
		return "", false
	}
	mappingsDir, ok := FindAncestor(mappingFile, wiremock.MappingsDir)
	if !ok {
		return "", false
	}
	filesDir := filepath.Join(filepath.Dir(mappingsDir), wiremock.FilesDir)
	if !r.isDir(filesDir) {
		return "", false
	}

	parts := wiremock.Segments(bodyFileName)
	if len(parts) == 0 {
		return "", false
	}

	current := filesDir
	for _, part := range parts[:len(parts)-1] {
		if !wiremock.ValidSegment(part) {
			return "", false
		}
		current = filepath.Join(current, part)
		if !r.isDir(current) {
			return "", false
		}
	}

	last := parts[len(parts)-1]
	if !wiremock.ValidSegment(last) {
		return "", false
	}
	target := filepath.Join(current, last)
	if _, err := r.fs.Stat(target); err != nil {
		return "", false
	}
	return target, true
}

func (r *Resolver) isDir(path string) bool {
	info, err := r.fs.Stat(path)
	return err == nil && info.IsDir()
}

// ResolveBodyFile resolves with a default Resolver.
func ResolveBodyFile(mappingFile, bodyFileName string) (string, bool) {
	return New().ResolveBodyFile(mappingFile, bodyFileName)
}

// CreateBodyFile materializes the body file bodyFileName refers to,
// creating "__files" and intermediate directories as needed, and seeds it
// with an empty JSON object. Directories created before a failure are left
// in place.
func (r *Resolver) CreateBodyFile(bodyFileName, mappingFile string) (string, error) {
	path, err := r.createBodyFile(bodyFileName, mappingFile)
	if err != nil {
		r.logger.Error("Error creating body file",
			zap.String("mapping", mappingFile),
			zap.String("bodyFileName", bodyFileName),
			zap.Error(err))
		return "", err
	}
	r.logger.Info("Created body file", zap.String("path", path))
	return path, nil
}

func (r *Resolver) createBodyFile(bodyFileName, mappingFile string) (string, error) {
	if bodyFileName == "" {
		return "", ErrEmptyBodyFileName
	}
	mappingsDir, ok := FindAncestor(mappingFile, wiremock.MappingsDir)
	if !ok {
		return "", fmt.Errorf("%s: %w", mappingFile, ErrNotMappingFile)
	}

	parts := wiremock.Segments(bodyFileName)
	if len(parts) == 0 {
		return "", fmt.Errorf("%q: %w", bodyFileName, ErrInvalidBodyFileName)
	}
	for _, part := range parts {
		if !wiremock.ValidSegment(part) {
			return "", fmt.Errorf("%q: %w", bodyFileName, ErrInvalidBodyFileName)
		}
	}

	current := filepath.Join(filepath.Dir(mappingsDir), wiremock.FilesDir)
	if err := r.ensureDir(current); err != nil {
		return "", err
	}
	for _, part := range parts[:len(parts)-1] {
		current = filepath.Join(current, part)
		if err := r.ensureDir(current); err != nil {
			return "", err
		}
	}

	target := filepath.Join(current, parts[len(parts)-1])
	if err := r.fs.CreateFile(target, []byte(wiremock.SeedContent)); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", target, err)
	}
	return target, nil
}

func (r *Resolver) ensureDir(path string) error {
	info, err := r.fs.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", path)
		}
		return nil
	}
	if err := r.fs.Mkdir(path); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	r.logger.Debug("Created directory", zap.String("path", path))
	return nil
}

// CreateBodyFile creates with a default Resolver.
func CreateBodyFile(bodyFileName, mappingFile string) (string, error) {
	return New().CreateBodyFile(bodyFileName, mappingFile)
}

// FindReferencingMappingFiles lists, in discovery order, the json files
// under the sibling "mappings" tree that reference bodyFile according to
// the configured Matcher. Anything outside the layout yields no result.
func (r *Resolver) FindReferencingMappingFiles(bodyFile string) ([]string, error) {
	if !IsBodyFile(bodyFile) {
		return nil, nil
	}
	root, rel, ok := BodyLocation(bodyFile)
	if !ok {
		return nil, nil
	}
	mappingsDir := filepath.Join(root, wiremock.MappingsDir)
	if !r.isDir(mappingsDir) {
		return nil, nil
	}

	candidates, err := r.index.FilesWithExt(mappingsDir, wiremock.MappingExt)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s: %w", mappingsDir, err)
	}

	var result []string
	for _, candidate := range candidates {
		content, err := r.fs.ReadFile(candidate)
		if err != nil {
			r.logger.Warn("Skipping unreadable mapping file", zap.String("path", candidate), zap.Error(err))
			continue
		}
		if r.matcher.Matches(content, rel) {
			result = append(result, candidate)
		}
	}
	r.logger.Debug("Reverse lookup finished",
		zap.String("body", rel),
		zap.String("matcher", r.matcher.Name()),
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(result)))
	return result, nil
}

// FindReferencingMappingFiles looks up with a default Resolver.
func FindReferencingMappingFiles(bodyFile string) ([]string, error) {
	return New().FindReferencingMappingFiles(bodyFile)
}

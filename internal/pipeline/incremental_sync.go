package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"wmref/internal/analysis"
	"wmref/internal/git"
	"wmref/internal/index"
	"wmref/internal/resolver"
)

// ChangeSource lists files changed in a repository relative to a ref.
type ChangeSource func(dir, baseRef string) ([]git.ChangedFile, error)

// IncrementalSync brings the reference index up to date with the working
// tree and reports which stubs the pending changes affect.
type IncrementalSync struct {
	ProjectRoot string
	BaseRef     string
	Out         io.Writer

	indexer *index.Indexer
	changes ChangeSource
	repo    func(dir string) (string, error)
	logger  *zap.Logger
}

type updatePlan struct {
	RepoRoot   string
	Changes    []git.ChangedFile
	FullResync bool
}

func NewIncrementalSync(idx *index.Indexer, projectRoot string, out io.Writer, logger *zap.Logger) *IncrementalSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IncrementalSync{
		ProjectRoot: projectRoot,
		BaseRef:     "HEAD",
		Out:         out,
		indexer:     idx,
		changes:     git.GetChangedFiles,
		repo:        git.RepoRoot,
		logger:      logger,
	}
}

// Run re-indexes changed mapping files. With force and no pending changes
// the whole index is rebuilt instead.
func (s *IncrementalSync) Run(ctx context.Context, force bool) (*analysis.ImpactReport, error) {
	plan, err := s.detectChangesStage(force)
	if err != nil {
		return nil, err
	}
	if len(plan.Changes) == 0 && !plan.FullResync {
		fmt.Fprintln(s.Out, "No changes detected.")
		return &analysis.ImpactReport{}, nil
	}

	if plan.FullResync {
		stats, err := s.indexer.Rebuild(ctx, s.ProjectRoot)
		if err != nil {
			return nil, fmt.Errorf("full sync failed: %w", err)
		}
		fmt.Fprintf(s.Out, "Index rebuilt in %v: %d mapping files, %d references.\n",
			stats.Duration.Round(time.Millisecond), stats.Mappings, stats.References)
		return &analysis.ImpactReport{}, nil
	}

	if err := s.indexUpdateStage(ctx, plan); err != nil {
		return nil, err
	}
	return s.impactAnalysisStage(ctx, plan)
}

func (s *IncrementalSync) detectChangesStage(force bool) (*updatePlan, error) {
	repoRoot, err := s.repo(s.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to locate repository: %w", err)
	}
	changes, err := s.changes(repoRoot, s.BaseRef)
	if err != nil {
		return nil, fmt.Errorf("failed to get git changes: %w", err)
	}

	fullResync := force && len(changes) == 0
	if fullResync {
		fmt.Fprintln(s.Out, "No git changes detected. Rebuilding the whole index (--force).")
	} else if len(changes) > 0 {
		fmt.Fprintf(s.Out, "Detected %d changed files.\n", len(changes))
	}

	return &updatePlan{
		RepoRoot:   repoRoot,
		Changes:    changes,
		FullResync: fullResync,
	}, nil
}

func (s *IncrementalSync) indexUpdateStage(ctx context.Context, plan *updatePlan) error {
	updated := 0
	for _, change := range plan.Changes {
		path := filepath.Join(plan.RepoRoot, filepath.FromSlash(change.Path))
		if !resolver.IsMappingFile(path) {
			continue
		}
		changed, err := s.indexer.UpdateFile(ctx, path)
		if err != nil {
			s.logger.Warn("Failed to re-index mapping file", zap.String("path", path), zap.Error(err))
			continue
		}
		if changed {
			updated++
		}
	}
	fmt.Fprintf(s.Out, "Index update: %d mapping files re-indexed.\n", updated)
	return nil
}

func (s *IncrementalSync) impactAnalysisStage(ctx context.Context, plan *updatePlan) (*analysis.ImpactReport, error) {
	g, err := s.indexer.BuildGraph(ctx, s.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to build reference graph: %w", err)
	}
	report := analysis.NewAnalyzer(g, plan.RepoRoot).AnalyzeImpact(plan.Changes)

	fmt.Fprintf(s.Out, "  -> %d mapping files changed directly\n", len(report.ChangedMappings))
	fmt.Fprintf(s.Out, "  -> %d mapping files affected through body files\n", len(report.AffectedMappings))
	for _, n := range report.AffectedMappings {
		fmt.Fprintf(s.Out, "     %s\n", n.Path)
	}
	if len(report.BrokenReferences) > 0 {
		fmt.Fprintf(s.Out, "  -> %d references now point at deleted body files\n", len(report.BrokenReferences))
		for _, u := range report.BrokenReferences {
			fmt.Fprintf(s.Out, "     %s:%d:%d %q\n", u.From, u.Ref.Line, u.Ref.Column, u.Ref.Value)
		}
	}
	return report, nil
}

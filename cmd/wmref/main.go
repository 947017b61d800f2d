package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wmref/internal/config"
	"wmref/internal/crawler"
	"wmref/internal/extractor"
	"wmref/internal/index"
	"wmref/internal/lint"
	"wmref/internal/logging"
	"wmref/internal/pipeline"
	"wmref/internal/resolver"
	"wmref/internal/storage"
	"wmref/internal/watch"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	dbPath     string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "wmref",
		Short:         "Resolve and create WireMock body files referenced by stub mappings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "wmref.yaml", "Path to the configuration file")
	root.PersistentFlags().StringVarP(&a.dbPath, "db", "d", "", "Path to the reference index database (SQLite)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.resolveCmd(),
		a.createCmd(),
		a.refsCmd(),
		a.annotateCmd(),
		a.checkCmd(),
		a.indexCmd(),
		a.updateCmd(),
		a.watchCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.dbPath != "" {
		cfg.Index.Path = a.dbPath
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Log.Level, a.verbose)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

func (a *app) newCrawler() *crawler.Crawler {
	return crawler.NewCrawler(a.cfg.Project.Ignored...).WithLogger(a.logger)
}

func (a *app) newResolver(structural bool) (*resolver.Resolver, error) {
	mode := a.cfg.Lookup.Match
	if structural {
		mode = resolver.MatchStructural
	}
	m, err := resolver.MatcherFor(mode)
	if err != nil {
		return nil, err
	}
	return resolver.New(
		resolver.WithMatcher(m),
		resolver.WithLogger(a.logger),
		resolver.WithTextIndex(a.newCrawler()),
	), nil
}

// newIndexer wires the indexer; withStore opens the SQLite index, which the
// caller must close.
func (a *app) newIndexer(withStore bool) (*index.Indexer, *storage.SQLiteStore, error) {
	ext, err := extractor.NewExtractor()
	if err != nil {
		return nil, nil, err
	}
	r, err := a.newResolver(false)
	if err != nil {
		return nil, nil, err
	}
	var store *storage.SQLiteStore
	var refs storage.ReferenceStore
	if withStore {
		store, err = storage.NewSQLiteStore(a.cfg.Index.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open index %s: %w", a.cfg.Index.Path, err)
		}
		refs = store
	}
	return index.NewIndexer(a.newCrawler(), ext, r, refs, a.logger), store, nil
}

func (a *app) projectRoot(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return a.cfg.Project.Root
}

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("invalid path %s: %w", p, err)
	}
	return abs, nil
}

func (a *app) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <mapping-file> <bodyFileName>",
		Short: "Print the body file a bodyFileName value points at",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := absPath(args[0])
			if err != nil {
				return err
			}
			r, err := a.newResolver(false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path, ok := r.ResolveBodyFile(mapping, args[1]); ok {
				fmt.Fprintln(out, path)
				return nil
			}
			fmt.Fprintf(out, "not found: %s (run `wmref create` to create it)\n", args[1])
			return nil
		},
	}
}

func (a *app) createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <mapping-file> <bodyFileName>",
		Short: "Create the body file a bodyFileName value points at",
		Long:  "Create the body file, its missing parent directories and __files if needed. An existing body file is left untouched.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := absPath(args[0])
			if err != nil {
				return err
			}
			r, err := a.newResolver(false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path, ok := r.ResolveBodyFile(mapping, args[1]); ok {
				fmt.Fprintf(out, "exists: %s\n", path)
				return nil
			}
			path, err := r.CreateBodyFile(args[1], mapping)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "created: %s\n", path)
			return nil
		},
	}
}

func (a *app) refsCmd() *cobra.Command {
	var structural, useIndex bool
	cmd := &cobra.Command{
		Use:   "refs <body-file>",
		Short: "List mapping files that reference a body file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := absPath(args[0])
			if err != nil {
				return err
			}

			var found []string
			if useIndex {
				idx, store, err := a.newIndexer(true)
				if err != nil {
					return err
				}
				defer store.Close()
				found, err = idx.Referencing(cmd.Context(), body)
				if err != nil {
					return err
				}
			} else {
				r, err := a.newResolver(structural)
				if err != nil {
					return err
				}
				found, err = r.FindReferencingMappingFiles(body)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if len(found) == 0 {
				fmt.Fprintln(out, "no mapping files reference this body file")
				return nil
			}
			for i, path := range found {
				fmt.Fprintf(out, "%d. %s\n", i+1, path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&structural, "structural", false, "Compare parsed bodyFileName values instead of raw text")
	cmd.Flags().BoolVar(&useIndex, "index", false, "Answer from the reference index instead of scanning")
	return cmd
}

func (a *app) annotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "annotate <mapping-file>",
		Short: "Show every bodyFileName in a mapping file and whether its body file exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := absPath(args[0])
			if err != nil {
				return err
			}
			if !resolver.IsMappingFile(mapping) {
				return fmt.Errorf("%s is not a mapping file (expected a .json file below a mappings directory)", args[0])
			}
			ext, err := extractor.NewExtractor()
			if err != nil {
				return err
			}
			refs, err := ext.ExtractFromFile(cmd.Context(), mapping)
			if err != nil {
				return err
			}
			r, err := a.newResolver(false)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, ref := range refs {
				if path, ok := r.ResolveBodyFile(mapping, ref.Value); ok {
					fmt.Fprintf(out, "%d:%d\t%q\tgo to body file: %s\n", ref.Line, ref.Column, ref.Value, path)
				} else {
					fmt.Fprintf(out, "%d:%d\t%q\tcreate body file\n", ref.Line, ref.Column, ref.Value)
				}
			}
			return nil
		},
	}
}

func (a *app) checkCmd() *cobra.Command {
	var orphans bool
	cmd := &cobra.Command{
		Use:   "check [root]",
		Short: "Validate mapping files and report missing body files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, _, err := a.newIndexer(false)
			if err != nil {
				return err
			}
			g, err := idx.BuildGraph(cmd.Context(), a.projectRoot(args))
			if err != nil {
				return err
			}
			linter, err := lint.NewLinter(a.logger)
			if err != nil {
				return err
			}
			report, err := linter.Check(g, orphans)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, issue := range report.Issues {
				fmt.Fprintln(out, issue.String())
			}
			fmt.Fprintf(out, "Checked %d mapping files and %d body files.\n", report.Mappings, report.Bodies)
			if len(report.Issues) > 0 {
				return fmt.Errorf("%d issues found", len(report.Issues))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&orphans, "orphans", false, "Also report body files no mapping references")
	return cmd
}

func (a *app) indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index [root]",
		Short: "Rebuild the reference index for every WireMock root under a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, store, err := a.newIndexer(true)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := idx.Rebuild(cmd.Context(), a.projectRoot(args))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d mapping files with %d references in %d roots (%d skipped). Database: %s\n",
				stats.Mappings, stats.References, stats.Roots, stats.Skipped, a.cfg.Index.Path)
			return nil
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	var force bool
	var base string
	cmd := &cobra.Command{
		Use:   "update [root]",
		Short: "Incrementally update the reference index based on git changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, store, err := a.newIndexer(true)
			if err != nil {
				return err
			}
			defer store.Close()

			sync := pipeline.NewIncrementalSync(idx, a.projectRoot(args), cmd.OutOrStdout(), a.logger)
			sync.BaseRef = base
			_, err = sync.Run(cmd.Context(), force)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Rebuild the whole index when git reports no changes")
	cmd.Flags().StringVar(&base, "base", "HEAD", "Git ref to diff the working tree against")
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [root]",
		Short: "Keep the reference index current while mapping files change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, store, err := a.newIndexer(true)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root := a.projectRoot(args)
			if _, err := idx.Rebuild(ctx, root); err != nil {
				return err
			}
			w, err := watch.NewWatcher(root, a.newCrawler(), idx, a.cfg.Watch.Debounce, a.logger)
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}
			a.logger.Info("Watching for mapping changes", zap.String("root", root))
			<-ctx.Done()
			w.Stop()

			st := w.Stats()
			a.logger.Info("Watcher stopped", zap.Int("events", st.Events), zap.Int("reindexed", st.Reindexed), zap.Int("errors", st.Errors))
			return nil
		},
	}
}


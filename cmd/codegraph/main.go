package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/codegraph/internal/config"
	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/indexer"
	"github.com/dusk-indust/codegraph/internal/store"
)

// version is set by goreleaser at build time.
var version = "dev"

var (
	rootDir    string
	configPath string
	dbPath     string
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "codegraph",
	Short:         "Incremental code index: symbols, references and dependency graphs",
	Long:          `codegraph parses a source tree into symbols and references, resolves imports and calls into file and symbol dependency edges, and keeps the result in a SQLite index that is updated incrementally from git or file modification times.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootDir, "root", ".", "project root to index")
	pf.StringVar(&configPath, "config", "", "config file (default: codegraph.yml in the project root)")
	pf.StringVar(&dbPath, "db", "", "index database path (overrides config)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&jsonOutput, "json", false, "output as JSON")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the handles a command works with. The process owns the
// database and parser; packages receive them explicitly.
type app struct {
	root   string
	cfg    *config.ProjectConfig
	logger *slog.Logger
	db     *store.DB
	parser *graph.TreeSitterParser
	ix     *indexer.Indexer
}

func openApp() (*app, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}
	var cfg *config.ProjectConfig
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(root)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.Database = dbPath
	}

	level := slog.LevelInfo
	if verbose || cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	db, err := store.Open(config.Resolve(root, cfg.Database))
	if err != nil {
		return nil, err
	}
	parser := graph.NewTreeSitterParser(graph.WithMaxFileSize(cfg.MaxFileSize))
	ix := indexer.New(db, parser,
		indexer.WithLogger(logger),
		indexer.WithWorkers(cfg.Workers),
		indexer.WithFilter(cfg.DiscoverOptions()),
		indexer.WithBaseRef(cfg.BaseRef),
		indexer.WithTSConfig(cfg.TSConfig),
	)
	logger.Debug("opened index", "root", root, "db", db.Path())
	return &app{root: root, cfg: cfg, logger: logger, db: db, parser: parser, ix: ix}, nil
}

func (a *app) Close() error {
	perr := a.parser.Close()
	if err := a.db.Close(); err != nil {
		return err
	}
	return perr
}

// withApp adapts a command body that needs an open app.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a, args)
	}
}

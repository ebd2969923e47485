// Package indexer runs the extraction pipeline over a repository and keeps
// the SQLite index current.
//
// A batch runs in two phases separated by a barrier. Phase one extracts
// files in parallel and writes each file's symbols and references in its
// own transaction. Phase two, once every file of the batch is durable,
// rebuilds dependency edges for the written files and for every file whose
// edges the batch may have changed.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/codegraph/internal/changes"
	"github.com/dusk-indust/codegraph/internal/discover"
	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/store"
)

// Indexer owns no resources; the caller opens and closes the database and
// the parser.
type Indexer struct {
	db       *store.DB
	parser   graph.Parser
	logger   *slog.Logger
	workers  int
	filter   discover.Options
	baseRef  string
	tsconfig string
	now      func() time.Time
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) {
		if l != nil {
			ix.logger = l
		}
	}
}

// WithWorkers bounds parallel extraction.
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// WithFilter restricts which files are discovered and reindexed.
func WithFilter(opts discover.Options) Option {
	return func(ix *Indexer) { ix.filter = opts }
}

// WithBaseRef overrides the revision VCS change detection diffs against.
// By default the commit recorded at the last index run is used.
func WithBaseRef(ref string) Option {
	return func(ix *Indexer) { ix.baseRef = ref }
}

// WithTSConfig names the alias config, relative to the repository root.
// By default tsconfig.json then jsconfig.json are tried.
func WithTSConfig(path string) Option {
	return func(ix *Indexer) { ix.tsconfig = path }
}

// New creates an Indexer writing to db.
func New(db *store.DB, parser graph.Parser, opts ...Option) *Indexer {
	ix := &Indexer{
		db:      db,
		parser:  parser,
		logger:  slog.New(slog.DiscardHandler),
		workers: runtime.GOMAXPROCS(0),
		now:     time.Now,
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// FileResult summarizes IndexFile.
type FileResult struct {
	FilesIndexed     int `json:"filesIndexed"`
	SymbolsExtracted int `json:"symbolsExtracted"`
	ReferencesFound  int `json:"referencesFound"`
	EdgesExtracted   int `json:"edgesExtracted"`
}

// IncrementalResult summarizes a batch. Per-file failures are collected in
// Errors; they never abort the batch.
type IncrementalResult struct {
	FilesUpdated        int         `json:"filesUpdated"`
	FilesDeleted        int         `json:"filesDeleted"`
	SymbolsExtracted    int         `json:"symbolsExtracted"`
	ReferencesExtracted int         `json:"referencesExtracted"`
	EdgesExtracted      int         `json:"edgesExtracted"`
	Errors              []FileError `json:"errors"`
}

// FileError is a failure confined to one file.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e FileError) Unwrap() error { return e.Err }

func (e FileError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}{e.Path, e.Err.Error()})
}

func (r *IncrementalResult) fail(logger *slog.Logger, path string, err error) {
	logger.Error("file failed", "file", path, "err", err)
	r.Errors = append(r.Errors, FileError{Path: path, Err: err})
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// IndexFile runs the full pipeline for one file using the given content
// instead of reading it from disk. Edges of files that depend on path are
// rebuilt too and counted in EdgesExtracted.
func (ix *Indexer) IndexFile(ctx context.Context, root, path string, content []byte) (*FileResult, error) {
	repo, abs, err := ix.repository(ctx, root)
	if err != nil {
		return nil, err
	}
	if content == nil {
		content = []byte{}
	}
	res, err := ix.run(ctx, repo.ID, abs, []job{{path: graph.NormalizePath(path), content: content, added: true}}, nil)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, res.Errors[0]
	}
	return &FileResult{
		FilesIndexed:     res.FilesUpdated,
		SymbolsExtracted: res.SymbolsExtracted,
		ReferencesFound:  res.ReferencesExtracted,
		EdgesExtracted:   res.EdgesExtracted,
	}, nil
}

// IndexChanged applies a change set: deleted files are removed, added and
// modified files are re-extracted from disk, then edges are rebuilt.
func (ix *Indexer) IndexChanged(ctx context.Context, root string, changed []changes.ChangedFile) (*IncrementalResult, error) {
	repo, abs, err := ix.repository(ctx, root)
	if err != nil {
		return nil, err
	}
	var jobs []job
	var deleted []string
	for _, c := range changed {
		p := graph.NormalizePath(c.Path)
		switch c.Status {
		case changes.StatusDeleted:
			deleted = append(deleted, p)
		case changes.StatusAdded, changes.StatusModified:
			jobs = append(jobs, job{path: p, added: c.Status == changes.StatusAdded})
		default:
			return nil, fmt.Errorf("unknown change status %q for %s", c.Status, c.Path)
		}
	}
	return ix.run(ctx, repo.ID, abs, jobs, deleted)
}

func (ix *Indexer) repository(ctx context.Context, root string) (*store.Repository, string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, "", fmt.Errorf("resolve root: %w", err)
	}
	repo, err := ix.db.EnsureRepository(ctx, abs)
	if err != nil {
		return nil, "", err
	}
	return repo, abs, nil
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

type job struct {
	path    string
	content []byte // nil reads the file from disk
	added   bool
}

func (ix *Indexer) run(ctx context.Context, repoID, root string, jobs []job, deleted []string) (*IncrementalResult, error) {
	res := &IncrementalResult{}

	touched := make([]string, 0, len(jobs)+len(deleted))
	for _, j := range jobs {
		touched = append(touched, j.path)
	}
	touched = append(touched, deleted...)
	// Symbol edges into touched files are dropped by the writes below, so
	// their dependents must be known beforehand.
	dependents, err := ix.db.Dependents(ctx, repoID, touched)
	if err != nil {
		return nil, err
	}

	for _, p := range deleted {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := ix.db.DeleteFile(ctx, repoID, p); err != nil {
			res.fail(ix.logger, p, err)
			continue
		}
		res.FilesDeleted++
		ix.logger.Debug("file deleted", "file", p)
	}

	extractions, err := ix.extract(ctx, root, jobs, res)
	if err != nil {
		return res, err
	}

	var written []*graph.Extraction
	var added []string
	for i, x := range extractions {
		if x == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := ix.db.StoreFile(ctx, repoID, x); err != nil {
			res.fail(ix.logger, x.File.Path, err)
			continue
		}
		written = append(written, x)
		if jobs[i].added {
			added = append(added, x.File.Path)
		}
		res.FilesUpdated++
		res.SymbolsExtracted += len(x.Symbols)
		res.ReferencesExtracted += len(x.References)
	}

	// Barrier: every file of the batch is durable before edges are built.
	rebuild, err := ix.affected(ctx, repoID, written, added, dependents, deleted)
	if err != nil {
		return res, err
	}
	if err := ix.rebuildEdges(ctx, repoID, root, rebuild, res); err != nil {
		return res, err
	}
	return res, nil
}

// extract reads and parses jobs concurrently. Results keep job order; a
// nil entry marks a file that failed and was recorded in res.
func (ix *Indexer) extract(ctx context.Context, root string, jobs []job, res *IncrementalResult) ([]*graph.Extraction, error) {
	results := make([]*graph.Extraction, len(jobs))
	errs := make([]error, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content := j.content
			if content == nil {
				b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(j.path)))
				if err != nil {
					errs[i] = fmt.Errorf("read: %w", err)
					return nil
				}
				content = b
			}
			x, err := ix.parser.Extract(gctx, j.path, content)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				errs[i] = err
				return nil
			}
			ix.logExtraction(x)
			results[i] = x
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			res.fail(ix.logger, jobs[i].path, err)
		}
	}
	return results, nil
}

func (ix *Indexer) logExtraction(x *graph.Extraction) {
	for _, d := range x.Diagnostics {
		ix.logger.Warn("parse error", "file", x.File.Path, "line", d.Line, "column", d.Column,
			"msg", d.Message, "partial", x.Partial, "method", x.File.Method)
	}
	ix.logger.Debug("file extracted", "file", x.File.Path,
		"symbols", len(x.Symbols), "references", len(x.References))
}

// affected returns the sorted set of files whose outgoing edges must be
// rebuilt: the written files, files that depended on anything touched,
// files calling a name the batch declares, and files with an import
// specifier that may now resolve to an added file.
func (ix *Indexer) affected(ctx context.Context, repoID string, written []*graph.Extraction, added, dependents, deleted []string) ([]string, error) {
	set := make(map[string]bool)
	for _, d := range dependents {
		set[d] = true
	}

	var names []string
	seen := make(map[string]bool)
	for _, x := range written {
		set[x.File.Path] = true
		for _, s := range x.Symbols {
			if !seen[s.Name] {
				seen[s.Name] = true
				names = append(names, s.Name)
			}
		}
	}
	callers, err := ix.db.FilesCalling(ctx, repoID, names)
	if err != nil {
		return nil, err
	}
	for _, c := range callers {
		set[c] = true
	}

	if len(added) > 0 {
		stems := make(map[string]bool)
		for _, p := range added {
			for _, s := range pathStems(p) {
				stems[s] = true
			}
		}
		sites, err := ix.db.ImportSites(ctx, repoID)
		if err != nil {
			return nil, err
		}
		for _, site := range sites {
			for _, seg := range specifierSegments(site.Source) {
				if stems[seg] {
					set[site.Path] = true
					break
				}
			}
		}
	}

	for _, d := range deleted {
		delete(set, d)
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	slices.Sort(out)
	return out, nil
}

// pathStems returns the names an import specifier could use to reach p:
// its base name without extension and its directory name.
func pathStems(p string) []string {
	base := filepath.Base(p)
	stems := []string{strings.TrimSuffix(base, filepath.Ext(base))}
	if dir := filepath.Base(filepath.Dir(p)); dir != "." && dir != "/" {
		stems = append(stems, dir)
	}
	return stems
}

func specifierSegments(spec string) []string {
	return strings.FieldsFunc(spec, func(r rune) bool {
		return r == '/' || r == '.' || r == ':'
	})
}

// rebuildEdges derives and replaces the outgoing edges of each file in
// paths against a fresh snapshot of known files and symbols.
func (ix *Indexer) rebuildEdges(ctx context.Context, repoID, root string, paths []string, res *IncrementalResult) error {
	if len(paths) == 0 {
		return nil
	}
	files, err := ix.db.ListFiles(ctx, repoID)
	if err != nil {
		return err
	}
	known := make([]string, len(files))
	langs := make(map[string]graph.Language, len(files))
	for i, f := range files {
		known[i] = f.Path
		langs[f.Path] = f.Language
	}
	symbols, err := ix.db.Symbols(ctx, repoID)
	if err != nil {
		return err
	}

	resolver := graph.NewResolver(root, known, graph.WithPathMappings(ix.pathMappings(root)))
	builder := graph.NewEdgeBuilder(resolver, symbols, ix.logger)

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		lang, ok := langs[p]
		if !ok {
			continue
		}
		refs, err := ix.db.FileReferences(ctx, repoID, p)
		if err != nil {
			res.fail(ix.logger, p, err)
			continue
		}
		edges := builder.Build(p, lang, refs)
		if err := ix.db.ReplaceEdges(ctx, repoID, p, edges); err != nil {
			res.fail(ix.logger, p, err)
			continue
		}
		res.EdgesExtracted += len(edges)
	}
	return nil
}

// pathMappings loads alias configuration. Config errors degrade to no
// mappings.
func (ix *Indexer) pathMappings(root string) *graph.PathMappings {
	var (
		m   *graph.PathMappings
		err error
	)
	if ix.tsconfig != "" {
		m, err = graph.LoadPathMappings(root, ix.tsconfig)
	} else {
		m, err = graph.FindPathMappings(root)
	}
	if err != nil {
		ix.logger.Warn("ignoring path mappings", "root", root, "err", err)
		return nil
	}
	if err := m.Validate(); err != nil {
		ix.logger.Warn("unsupported path mapping patterns skipped", "root", root, "err", err)
	}
	return m
}

// errNotIndexed wraps store.ErrRepositoryNotFound for query entry points.
func errNotIndexed(root string, err error) error {
	if errors.Is(err, store.ErrRepositoryNotFound) {
		return fmt.Errorf("%s has not been indexed: %w", root, err)
	}
	return err
}

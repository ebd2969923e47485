// Package changes classifies which project files need reindexing, either
// from version control or from modification times.
package changes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/dusk-indust/codegraph/internal/discover"
	"github.com/dusk-indust/codegraph/internal/graph"
)

// Status is the kind of change a file underwent.
type Status string

const (
	StatusAdded    Status = "added"
	StatusModified Status = "modified"
	StatusDeleted  Status = "deleted"
)

// ChangedFile is one file needing reindex.
type ChangedFile struct {
	Path   string `json:"path"`
	Status Status `json:"status"`
}

// Mode names the strategy used by Detect.
type Mode string

const (
	ModeVCS   Mode = "vcs"
	ModeMtime Mode = "mtime"
)

// Indexed is what the index remembers about a file.
type Indexed struct {
	IndexedAt   time.Time
	ContentHash string
}

// Detector finds changed files under a project root.
type Detector struct {
	root   string
	filter discover.Options
	logger *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithFilter restricts detection to files discovery would yield.
func WithFilter(opts discover.Options) Option {
	return func(d *Detector) { d.filter = opts }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Detector for root.
func New(root string, opts ...Option) *Detector {
	d := &Detector{
		root:   root,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect uses VCS mode when root is a git working copy and baseRef
// resolves, otherwise mtime mode against indexed.
func (d *Detector) Detect(ctx context.Context, baseRef string, indexed map[string]Indexed) (Mode, []ChangedFile, error) {
	repo, err := git.PlainOpen(d.root)
	if err == nil {
		changed, err := d.vcs(ctx, repo, baseRef)
		if err == nil {
			return ModeVCS, changed, nil
		}
		d.logger.Warn("vcs change detection failed, falling back to mtime", "root", d.root, "base", baseRef, "err", err)
	}
	changed, err := d.Mtime(ctx, indexed)
	return ModeMtime, changed, err
}

// VCS diffs baseRef against HEAD and adds uncommitted worktree changes;
// untracked files count as added. An empty baseRef reports worktree
// changes only.
func (d *Detector) VCS(ctx context.Context, baseRef string) ([]ChangedFile, error) {
	repo, err := git.PlainOpen(d.root)
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	return d.vcs(ctx, repo, baseRef)
}

func (d *Detector) vcs(ctx context.Context, repo *git.Repository, baseRef string) ([]ChangedFile, error) {
	byPath := make(map[string]Status)

	if baseRef != "" {
		head, err := headCommit(repo)
		if err != nil {
			return nil, err
		}
		base, err := resolveCommit(repo, baseRef)
		if err != nil {
			return nil, err
		}
		if head != nil && base.Hash != head.Hash {
			if err := d.diffCommits(ctx, base, head, byPath); err != nil {
				return nil, err
			}
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("worktree status: %w", err)
	}
	for p, fs := range status {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		if !d.wanted(p) {
			continue
		}
		switch {
		case !d.exists(p):
			byPath[p] = StatusDeleted
		case fs.Worktree == git.Untracked || fs.Staging == git.Added:
			// A file deleted since base but present again is new to the index.
			byPath[p] = StatusAdded
		default:
			if prev, ok := byPath[p]; !ok || prev == StatusDeleted {
				byPath[p] = StatusModified
			}
		}
	}
	return sorted(byPath), nil
}

func (d *Detector) diffCommits(ctx context.Context, base, head *object.Commit, byPath map[string]Status) error {
	baseTree, err := base.Tree()
	if err != nil {
		return fmt.Errorf("getting base tree: %w", err)
	}
	headTree, err := head.Tree()
	if err != nil {
		return fmt.Errorf("getting head tree: %w", err)
	}
	changes, err := baseTree.DiffContext(ctx, headTree)
	if err != nil {
		return fmt.Errorf("computing diff: %w", err)
	}
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			continue
		}
		switch action {
		case merkletrie.Insert:
			if d.wanted(change.To.Name) {
				byPath[change.To.Name] = StatusAdded
			}
		case merkletrie.Delete:
			if d.wanted(change.From.Name) {
				byPath[change.From.Name] = StatusDeleted
			}
		case merkletrie.Modify:
			if d.wanted(change.To.Name) {
				byPath[change.To.Name] = StatusModified
			}
		}
	}
	return nil
}

// Mtime compares discoverable files against indexed. A newer mtime whose
// content hash still matches is not a change. Indexed files that are no
// longer discoverable are deleted.
func (d *Detector) Mtime(ctx context.Context, indexed map[string]Indexed) ([]ChangedFile, error) {
	byPath := make(map[string]Status)
	seen := make(map[string]bool, len(indexed))

	for f, err := range discover.Files(ctx, d.root, d.filter) {
		if err != nil {
			return nil, err
		}
		seen[f.Path] = true
		prev, ok := indexed[f.Path]
		switch {
		case !ok:
			byPath[f.Path] = StatusAdded
		case f.ModTime.After(prev.IndexedAt):
			if prev.ContentHash != "" {
				content, err := os.ReadFile(f.AbsPath)
				if err == nil && graph.ContentHash(content) == prev.ContentHash {
					continue
				}
			}
			byPath[f.Path] = StatusModified
		}
	}
	for p := range indexed {
		if !seen[p] {
			byPath[p] = StatusDeleted
		}
	}
	return sorted(byPath), nil
}

// Head returns the HEAD commit hash, or "" outside a git working copy or
// before the first commit.
func Head(root string) string {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return ""
	}
	c, err := headCommit(repo)
	if err != nil || c == nil {
		return ""
	}
	return c.Hash.String()
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	c, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("getting HEAD commit: %w", err)
	}
	return c, nil
}

func resolveCommit(repo *git.Repository, ref string) (*object.Commit, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", ref, err)
	}
	c, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("getting commit %s: %w", hash, err)
	}
	return c, nil
}

// wanted applies the discovery filter to a slash-separated repository
// path.
func (d *Detector) wanted(p string) bool {
	return d.filter.Wanted(p)
}

func (d *Detector) exists(p string) bool {
	_, err := os.Stat(filepath.Join(d.root, filepath.FromSlash(p)))
	return err == nil
}

func sorted(byPath map[string]Status) []ChangedFile {
	out := make([]ChangedFile, 0, len(byPath))
	for p, s := range byPath {
		out = append(out, ChangedFile{Path: p, Status: s})
	}
	slices.SortFunc(out, func(a, b ChangedFile) int { return strings.Compare(a.Path, b.Path) })
	return out
}

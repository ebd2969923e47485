// Package discover enumerates the indexable source files of a project.
package discover

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// File is a candidate source file. Path is root-relative with forward
// slashes.
type File struct {
	Path     string
	AbsPath  string
	Language graph.Language
	Size     int64
	ModTime  time.Time
}

// skipDirs is the set of directory names never descended into.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"coverage":     true,
}

// Options filters discovery. Globs use doublestar syntax against the
// root-relative path.
type Options struct {
	Include   []string
	Exclude   []string
	Languages []graph.Language
}

// Validate reports malformed glob patterns.
func (o Options) Validate() error {
	var errs []error
	for _, p := range slices.Concat(o.Include, o.Exclude) {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Errorf("invalid glob %q", p))
		}
	}
	return errors.Join(errs...)
}

// Match reports whether a root-relative path passes the language, include
// and exclude filters. It does not consult .gitignore.
func (o Options) Match(rel string) bool {
	lang := graph.LanguageForPath(rel)
	if lang == "" {
		return false
	}
	if len(o.Languages) > 0 && !slices.Contains(o.Languages, lang) {
		return false
	}
	if len(o.Include) > 0 && !matchAny(o.Include, rel) {
		return false
	}
	return !matchAny(o.Exclude, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Wanted reports whether a root-relative path could be yielded by Files:
// it applies Match and rejects hidden files and paths under skipped
// directories. It does not consult .gitignore.
func (o Options) Wanted(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if SkipDir(dir) {
			return false
		}
	}
	if strings.HasPrefix(parts[len(parts)-1], ".") {
		return false
	}
	return o.Match(rel)
}

// SkipDir reports whether a directory name is never indexed.
func SkipDir(name string) bool {
	return skipDirs[name] || (strings.HasPrefix(name, ".") && name != ".")
}

// Files lazily walks root in lexical order, yielding supported files that
// pass opts and the root .gitignore. Unreadable entries are skipped; the
// sequence ends with ctx.Err() when ctx is cancelled.
func Files(ctx context.Context, root string, opts Options) iter.Seq2[File, error] {
	return func(yield func(File, error) bool) {
		info, err := os.Stat(root)
		if err != nil {
			yield(File{}, fmt.Errorf("discover %s: %w", root, err))
			return
		}
		if !info.IsDir() {
			yield(File{}, fmt.Errorf("discover %s: not a directory", root))
			return
		}
		gi := loadGitignore(root)

		_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if cerr := ctx.Err(); cerr != nil {
				yield(File{}, cerr)
				return fs.SkipAll
			}
			if p == root {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if SkipDir(d.Name()) || (gi != nil && gi.MatchesPath(rel+"/")) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			if gi != nil && gi.MatchesPath(rel) {
				return nil
			}
			if !opts.Match(rel) {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return nil
			}
			f := File{
				Path:     rel,
				AbsPath:  p,
				Language: graph.LanguageForPath(rel),
				Size:     fi.Size(),
				ModTime:  fi.ModTime(),
			}
			if !yield(f, nil) {
				return fs.SkipAll
			}
			return nil
		})
	}
}

// Collect drains a file sequence, stopping at the first error.
func Collect(seq iter.Seq2[File, error]) ([]File, error) {
	var out []File
	for f, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
	return out, nil
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

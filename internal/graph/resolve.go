package graph

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
)

// Resolver maps raw import specifiers to repo-relative paths of known
// files. It is built once per indexing batch from the known-files snapshot
// and is read-only afterwards, so it is safe for concurrent use.
type Resolver struct {
	repoRoot     string
	fileSet      map[string]bool
	dirIndex     map[string][]string
	mappings     *PathMappings
	tsWorkspaces map[string]*tsWorkspace
	goModPath    string
}

// tsWorkspace holds metadata about a single npm/bun workspace package.
type tsWorkspace struct {
	dir            string            // repo-relative directory (e.g. "packages/db")
	mainFile       string            // default export target, repo-relative
	subpathExports map[string]string // "./queries" → "packages/db/src/queries.ts"
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithPathMappings enables alias resolution using tsconfig-style paths.
func WithPathMappings(m *PathMappings) ResolverOption {
	return func(r *Resolver) { r.mappings = m }
}

// NewResolver builds a Resolver from the repository root and the set of
// known repo-relative file paths. It scans for workspace metadata
// (package.json, go.mod) to enable package-aware resolution.
func NewResolver(repoRoot string, knownFiles []string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		repoRoot:     repoRoot,
		fileSet:      make(map[string]bool, len(knownFiles)),
		dirIndex:     make(map[string][]string),
		tsWorkspaces: make(map[string]*tsWorkspace),
	}

	for _, f := range knownFiles {
		f = NormalizePath(f)
		r.fileSet[f] = true
		dir := path.Dir(f)
		r.dirIndex[dir] = append(r.dirIndex[dir], f)
	}
	for _, opt := range opts {
		opt(r)
	}

	if repoRoot != "" {
		r.scanTSWorkspaces()
		r.scanGoMod()
	}
	return r
}

// Known reports whether p is in the known-files set.
func (r *Resolver) Known(p string) bool {
	return r.fileSet[p]
}

// Resolve maps an import specifier written in fromFile to a known file.
// Unresolvable specifiers (typically external packages) return false.
func (r *Resolver) Resolve(lang Language, specifier, fromFile string) (string, bool) {
	if specifier == "" {
		return "", false
	}
	switch lang {
	case LangTypeScript, LangJavaScript:
		return r.resolveTS(specifier, fromFile)
	case LangGo:
		return r.resolveGo(specifier)
	case LangPython:
		return r.resolvePython(specifier, fromFile)
	case LangRust:
		return r.resolveRust(specifier, fromFile)
	}
	return "", false
}

// --- TypeScript resolution ---

// tsExtensions is the lookup order for extensionless specifiers.
var tsExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}

// compiledToSource lists source files a compiled-extension import may
// refer to, e.g. `import "./a.js"` written against a.ts.
var compiledToSource = map[string][]string{
	".js":  {".ts", ".tsx"},
	".jsx": {".tsx"},
	".mjs": {".mts"},
	".cjs": {".cts"},
}

func isRelativeSpecifier(s string) bool {
	return s == "." || s == ".." || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../")
}

func (r *Resolver) resolveTS(specifier, fromFile string) (string, bool) {
	if isRelativeSpecifier(specifier) {
		return r.lookupTS(path.Join(path.Dir(fromFile), specifier))
	}

	// A matched alias owns the specifier: when none of its targets exist
	// the import is unresolved, with no workspace or baseUrl fallback.
	if candidates := r.mappings.Candidates(specifier); len(candidates) > 0 {
		for _, candidate := range candidates {
			if resolved, ok := r.lookupTS(candidate); ok {
				return resolved, true
			}
		}
		return "", false
	}

	if resolved, ok := r.resolveTSWorkspace(specifier); ok {
		return resolved, true
	}

	// Non-relative specifiers also resolve against baseUrl.
	if r.mappings != nil && r.mappings.BaseURL != "" {
		return r.lookupTS(path.Join(r.mappings.BaseURL, specifier))
	}
	return "", false
}

// lookupTS tries, in order: the exact path (including source siblings of a
// compiled extension), each extension appended, and each index file inside
// the path as a directory. No filesystem I/O.
func (r *Resolver) lookupTS(base string) (string, bool) {
	base = path.Clean(base)
	if r.fileSet[base] {
		return base, true
	}
	if ext := path.Ext(base); ext != "" {
		stem := strings.TrimSuffix(base, ext)
		for _, src := range compiledToSource[ext] {
			if r.fileSet[stem+src] {
				return stem + src, true
			}
		}
	}
	for _, ext := range tsExtensions {
		if r.fileSet[base+ext] {
			return base + ext, true
		}
	}
	for _, ext := range tsExtensions {
		candidate := base + "/index" + ext
		if r.fileSet[candidate] {
			return candidate, true
		}
	}
	return "", false
}

func (r *Resolver) resolveTSWorkspace(importPath string) (string, bool) {
	// Exact match first (e.g. "@test/logger" → mainFile).
	if ws, ok := r.tsWorkspaces[importPath]; ok {
		if ws.mainFile != "" {
			return ws.mainFile, true
		}
		return "", false
	}

	// "@scope/pkg/sub/path" → package="@scope/pkg", subpath="./sub/path"
	// "pkg/sub/path"        → package="pkg",        subpath="./sub/path"
	var pkgName, subpath string
	if strings.HasPrefix(importPath, "@") {
		afterScope := strings.Index(importPath[1:], "/")
		if afterScope == -1 {
			return "", false
		}
		scopeEnd := afterScope + 1
		secondSlash := strings.Index(importPath[scopeEnd+1:], "/")
		if secondSlash == -1 {
			return "", false
		}
		splitAt := scopeEnd + 1 + secondSlash
		pkgName = importPath[:splitAt]
		subpath = "./" + importPath[splitAt+1:]
	} else {
		slash := strings.Index(importPath, "/")
		if slash == -1 {
			return "", false
		}
		pkgName = importPath[:slash]
		subpath = "./" + importPath[slash+1:]
	}

	ws, ok := r.tsWorkspaces[pkgName]
	if !ok {
		return "", false
	}
	if target, ok := ws.subpathExports[subpath]; ok {
		return target, true
	}
	return r.lookupTS(path.Join(ws.dir, subpath[2:]))
}

// --- Go resolution ---

func (r *Resolver) resolveGo(importPath string) (string, bool) {
	if r.goModPath == "" {
		return "", false
	}
	if importPath != r.goModPath && !strings.HasPrefix(importPath, r.goModPath+"/") {
		return "", false // stdlib or external module
	}

	relDir := strings.TrimPrefix(strings.TrimPrefix(importPath, r.goModPath), "/")
	if relDir == "" {
		relDir = "."
	}

	files := r.dirIndex[relDir]
	if len(files) == 0 {
		return "", false
	}

	// A package maps to its first non-test file in sorted order.
	sorted := make([]string, len(files))
	copy(sorted, files)
	sort.Strings(sorted)
	for _, f := range sorted {
		if strings.HasSuffix(f, ".go") && !strings.HasSuffix(f, "_test.go") {
			return f, true
		}
	}
	return "", false
}

// --- Python resolution ---

func (r *Resolver) resolvePython(importPath, sourceFile string) (string, bool) {
	if !strings.HasPrefix(importPath, ".") {
		// Absolute imports resolve only when the module lives in the repo.
		return r.lookupFile(strings.ReplaceAll(importPath, ".", "/"), []string{".py", "/__init__.py"})
	}

	dots := len(importPath) - len(strings.TrimLeft(importPath, "."))
	modulePart := importPath[dots:]

	// One dot = current package, two dots = parent, etc.
	baseDir := path.Dir(sourceFile)
	for i := 1; i < dots; i++ {
		baseDir = path.Dir(baseDir)
	}

	if modulePart == "" {
		return r.lookupFile(path.Join(baseDir, "__init__"), []string{".py"})
	}
	base := path.Join(baseDir, strings.ReplaceAll(modulePart, ".", "/"))
	return r.lookupFile(base, []string{".py", "/__init__.py"})
}

// --- Rust resolution ---

func (r *Resolver) resolveRust(importPath, sourceFile string) (string, bool) {
	// "crate::model::{Repository, User}" → "crate::model"
	if idx := strings.Index(importPath, "::{"); idx != -1 {
		importPath = importPath[:idx]
	}
	if idx := strings.Index(importPath, " as "); idx != -1 {
		importPath = importPath[:idx]
	}
	rustExts := []string{".rs", "/mod.rs"}

	switch {
	case strings.HasPrefix(importPath, "crate::"):
		relPath := strings.ReplaceAll(strings.TrimPrefix(importPath, "crate::"), "::", "/")
		candidates := []string{path.Join("src", relPath), relPath}
		if srcDir := findCrateRoot(sourceFile); srcDir != "" {
			candidates = append(candidates, path.Join(srcDir, relPath))
		}
		for _, base := range candidates {
			if resolved, ok := r.lookupRustPath(base, rustExts); ok {
				return resolved, true
			}
		}
		return "", false

	case strings.HasPrefix(importPath, "self::"):
		relPath := strings.ReplaceAll(strings.TrimPrefix(importPath, "self::"), "::", "/")
		return r.lookupRustPath(path.Join(path.Dir(sourceFile), relPath), rustExts)

	case strings.HasPrefix(importPath, "super::"):
		relPath := strings.ReplaceAll(strings.TrimPrefix(importPath, "super::"), "::", "/")
		return r.lookupRustPath(path.Join(path.Dir(path.Dir(sourceFile)), relPath), rustExts)
	}
	return "", false // external crate
}

// lookupRustPath tries the module path, then drops the last segment since
// `use crate::a::Item` names an item inside module a.
func (r *Resolver) lookupRustPath(base string, exts []string) (string, bool) {
	if resolved, ok := r.lookupFile(base, exts); ok {
		return resolved, true
	}
	if parent := path.Dir(base); parent != "." && parent != base {
		return r.lookupFile(parent, exts)
	}
	return "", false
}

// findCrateRoot walks up from a file path to find the nearest "src" directory,
// which is the conventional Rust crate source root.
func findCrateRoot(filePath string) string {
	dir := path.Dir(filePath)
	for dir != "." && dir != "/" && dir != "" {
		if path.Base(dir) == "src" {
			return dir
		}
		dir = path.Dir(dir)
	}
	return ""
}

// --- Shared helpers ---

// lookupFile checks if basePath (with any of the given extensions appended)
// exists in the known file set.
func (r *Resolver) lookupFile(basePath string, extensions []string) (string, bool) {
	basePath = path.Clean(basePath)
	if r.fileSet[basePath] {
		return basePath, true
	}
	for _, ext := range extensions {
		candidate := basePath + ext
		if r.fileSet[candidate] {
			return candidate, true
		}
	}
	return "", false
}

// --- Workspace / module scanning ---

// packageJSON is a minimal representation for reading package.json files.
type packageJSON struct {
	Name       string          `json:"name"`
	Main       string          `json:"main"`
	Workspaces json.RawMessage `json:"workspaces"`
	Exports    json.RawMessage `json:"exports"`
}

func (r *Resolver) scanTSWorkspaces() {
	data, err := os.ReadFile(filepath.Join(r.repoRoot, "package.json"))
	if err != nil {
		return
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return
	}

	for _, pattern := range parseWorkspacePatterns(pkg.Workspaces) {
		matches, err := filepath.Glob(filepath.Join(r.repoRoot, pattern))
		if err != nil {
			continue
		}
		for _, dir := range matches {
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() {
				continue
			}
			r.loadWorkspacePackage(dir)
		}
	}
}

// parseWorkspacePatterns accepts ["packages/*"] or {"packages": [...]}.
func parseWorkspacePatterns(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Packages
	}
	return nil
}

func (r *Resolver) loadWorkspacePackage(absDir string) {
	data, err := os.ReadFile(filepath.Join(absDir, "package.json"))
	if err != nil {
		return
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil || pkg.Name == "" {
		return
	}
	rel, err := filepath.Rel(r.repoRoot, absDir)
	if err != nil {
		return
	}
	relDir := filepath.ToSlash(rel)

	ws := &tsWorkspace{dir: relDir, subpathExports: make(map[string]string)}
	r.parseExports(ws, pkg.Exports)

	if ws.mainFile == "" && pkg.Main != "" {
		if resolved, ok := r.lookupTS(path.Join(relDir, pkg.Main)); ok {
			ws.mainFile = resolved
		}
	}
	if ws.mainFile == "" {
		for _, try := range []string{path.Join(relDir, "src", "index"), path.Join(relDir, "index")} {
			if resolved, ok := r.lookupTS(try); ok {
				ws.mainFile = resolved
				break
			}
		}
	}

	r.tsWorkspaces[pkg.Name] = ws
}

func (r *Resolver) parseExports(ws *tsWorkspace, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}

	// "exports": "./src/index.ts"
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if resolved, ok := r.lookupTS(path.Join(ws.dir, str)); ok {
			ws.mainFile = resolved
		}
		return
	}

	// "exports": {".": "./src/index.ts", "./queries": "./src/queries.ts"}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return
	}
	for key, val := range obj {
		target := resolveExportValue(val)
		if target == "" {
			continue
		}
		resolved, ok := r.lookupTS(path.Join(ws.dir, target))
		if !ok {
			continue
		}
		if key == "." {
			ws.mainFile = resolved
		} else {
			ws.subpathExports[key] = resolved
		}
	}
}

// resolveExportValue extracts a file path from an export value, which can be
// a string or a conditional object {"import": "...", "require": "...", "default": "..."}.
func resolveExportValue(raw json.RawMessage) string {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	for _, key := range []string{"import", "default", "require"} {
		if v, ok := obj[key]; ok {
			return resolveExportValue(v)
		}
	}
	return ""
}

func (r *Resolver) scanGoMod() {
	data, err := os.ReadFile(filepath.Join(r.repoRoot, "go.mod"))
	if err != nil {
		return
	}
	r.goModPath = modfile.ModulePath(data)
}

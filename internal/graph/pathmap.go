package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// maxExtendsDepth bounds the tsconfig `extends` chain.
const maxExtendsDepth = 10

var (
	// ErrExtendsCycle is returned when a config extends itself transitively.
	ErrExtendsCycle = errors.New("tsconfig extends cycle")
	// ErrExtendsDepth is returned when the extends chain is too long.
	ErrExtendsDepth = errors.New("tsconfig extends chain too deep")
	// ErrUnsupportedPattern marks alias patterns the resolver cannot match.
	ErrUnsupportedPattern = errors.New("unsupported path alias pattern")
)

// PathAlias is one `paths` entry: a pattern with at most one '*' and the
// candidate templates it expands to.
type PathAlias struct {
	Pattern string   `json:"pattern"`
	Targets []string `json:"targets"`
}

// PathMappings are the alias settings of a tsconfig/jsconfig after
// resolving `extends`. BaseURL is repo-relative ("." for the root).
type PathMappings struct {
	BaseURL string      `json:"baseUrl"`
	Paths   []PathAlias `json:"paths"`
}

// Candidates expands specifier through the first matching alias, in
// declaration order, into repo-relative candidate paths.
func (m *PathMappings) Candidates(specifier string) []string {
	if m == nil {
		return nil
	}
	base := m.BaseURL
	if base == "" {
		base = "."
	}
	for _, alias := range m.Paths {
		capture, ok := matchAlias(alias.Pattern, specifier)
		if !ok {
			continue
		}
		out := make([]string, 0, len(alias.Targets))
		for _, tmpl := range alias.Targets {
			out = append(out, path.Join(base, strings.Replace(tmpl, "*", capture, 1)))
		}
		return out
	}
	return nil
}

// Validate reports aliases whose pattern can never match. Such aliases are
// skipped by Candidates.
func (m *PathMappings) Validate() error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, a := range m.Paths {
		if err := validatePattern(a.Pattern); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// matchAlias matches a specifier against an exact or single-wildcard
// pattern and returns the text captured by '*'.
func matchAlias(pattern, specifier string) (string, bool) {
	if validatePattern(pattern) != nil {
		return "", false
	}
	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		return "", pattern == specifier
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	if len(specifier) < len(prefix)+len(suffix) {
		return "", false
	}
	if !strings.HasPrefix(specifier, prefix) || !strings.HasSuffix(specifier, suffix) {
		return "", false
	}
	return specifier[len(prefix) : len(specifier)-len(suffix)], true
}

// validatePattern rejects patterns with more than one '*' or with no
// literal prefix before the '*'.
func validatePattern(pattern string) error {
	switch strings.Count(pattern, "*") {
	case 0:
		return nil
	case 1:
		if strings.HasPrefix(pattern, "*") {
			return fmt.Errorf("%w: %q has no prefix before '*'", ErrUnsupportedPattern, pattern)
		}
		return nil
	}
	return fmt.Errorf("%w: %q has more than one '*'", ErrUnsupportedPattern, pattern)
}

// ---------- Loading ----------

// tsconfigFile is the subset of tsconfig.json the resolver reads.
type tsconfigFile struct {
	Extends         json.RawMessage `json:"extends"`
	CompilerOptions struct {
		BaseURL *string         `json:"baseUrl"`
		Paths   json.RawMessage `json:"paths"`
	} `json:"compilerOptions"`
}

// configLayer is one parsed file of the extends chain with its settings
// made absolute.
type configLayer struct {
	baseURL string // absolute, "" when unset
	paths   []PathAlias
	dir     string
}

// DefaultConfigNames are the files tried by FindPathMappings.
var DefaultConfigNames = []string{"tsconfig.json", "jsconfig.json"}

// FindPathMappings loads the first config in DefaultConfigNames under
// repoRoot. It returns (nil, nil) when none exists.
func FindPathMappings(repoRoot string) (*PathMappings, error) {
	for _, name := range DefaultConfigNames {
		if _, err := os.Stat(filepath.Join(repoRoot, name)); err == nil {
			return LoadPathMappings(repoRoot, name)
		}
	}
	return nil, nil
}

// LoadPathMappings parses configPath (JSON with comments and trailing
// commas), follows `extends` up to maxExtendsDepth, and merges the chain:
// the child's baseUrl wins and paths dictionaries are merged with the
// child's entries overriding the parent's.
func LoadPathMappings(repoRoot, configPath string) (*PathMappings, error) {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve repo root: %w", err)
	}
	if !filepath.IsAbs(configPath) {
		configPath = filepath.Join(absRoot, configPath)
	}

	layers, err := loadChain(absRoot, configPath, 0, map[string]bool{})
	if err != nil {
		return nil, err
	}

	// layers is child-first; merge from the root ancestor down.
	var merged configLayer
	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		if l.baseURL != "" {
			merged.baseURL = l.baseURL
		}
		merged.paths = mergePaths(merged.paths, l.paths)
	}

	m := &PathMappings{Paths: merged.paths}
	base := merged.baseURL
	if base == "" {
		// Without baseUrl, paths resolve against the outermost config.
		base = layers[0].dir
	}
	rel, err := filepath.Rel(absRoot, base)
	if err != nil {
		return nil, fmt.Errorf("baseUrl %s: %w", base, err)
	}
	m.BaseURL = filepath.ToSlash(rel)
	return m, nil
}

func loadChain(repoRoot, file string, depth int, seen map[string]bool) ([]configLayer, error) {
	if depth > maxExtendsDepth {
		return nil, fmt.Errorf("%w: %s", ErrExtendsDepth, file)
	}
	if seen[file] {
		return nil, fmt.Errorf("%w: %s", ErrExtendsCycle, file)
	}
	seen[file] = true

	cfg, err := readTSConfig(file)
	if err != nil {
		return nil, err
	}

	layer := configLayer{dir: filepath.Dir(file)}
	if cfg.CompilerOptions.BaseURL != nil {
		layer.baseURL = filepath.Join(layer.dir, filepath.FromSlash(*cfg.CompilerOptions.BaseURL))
	}
	if layer.paths, err = decodeOrderedPaths(cfg.CompilerOptions.Paths); err != nil {
		return nil, fmt.Errorf("%s: paths: %w", file, err)
	}

	parent := extendsTarget(cfg.Extends)
	if parent == "" {
		return []configLayer{layer}, nil
	}
	parentFile, err := locateExtends(repoRoot, layer.dir, parent)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	ancestors, err := loadChain(repoRoot, parentFile, depth+1, seen)
	if err != nil {
		return nil, err
	}
	return append([]configLayer{layer}, ancestors...), nil
}

func readTSConfig(file string) (*tsconfigFile, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	var cfg tsconfigFile
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", file, err)
	}
	return &cfg, nil
}

// extendsTarget returns the single parent named by `extends`. An array
// form contributes only its first entry.
func extendsTarget(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return arr[0]
	}
	return ""
}

// locateExtends finds the file an `extends` value refers to: a path
// relative to the extending config, or a package under node_modules.
func locateExtends(repoRoot, dir, target string) (string, error) {
	var candidates []string
	if isRelativeSpecifier(target) || filepath.IsAbs(target) {
		base := target
		if !filepath.IsAbs(base) {
			base = filepath.Join(dir, filepath.FromSlash(target))
		}
		candidates = append(candidates, base, base+".json")
	} else {
		base := filepath.Join(repoRoot, "node_modules", filepath.FromSlash(target))
		candidates = append(candidates, base, base+".json", filepath.Join(base, "tsconfig.json"))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return filepath.Abs(c)
		}
	}
	return "", fmt.Errorf("extends %q: %w", target, os.ErrNotExist)
}

// decodeOrderedPaths decodes the `paths` object preserving key order,
// which decides which alias wins when several match.
func decodeOrderedPaths(raw json.RawMessage) ([]PathAlias, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var out []PathAlias
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected key, got %v", tok)
		}
		var targets []string
		if err := dec.Decode(&targets); err != nil {
			return nil, fmt.Errorf("%q: %w", key, err)
		}
		out = append(out, PathAlias{Pattern: key, Targets: targets})
	}
	return out, nil
}

// mergePaths overlays child entries on parent entries. Overridden keys keep
// the parent's position; new keys are appended in the child's order.
func mergePaths(parent, child []PathAlias) []PathAlias {
	if len(child) == 0 {
		return parent
	}
	out := make([]PathAlias, len(parent), len(parent)+len(child))
	copy(out, parent)
	index := make(map[string]int, len(out))
	for i, a := range out {
		index[a.Pattern] = i
	}
	for _, a := range child {
		if i, ok := index[a.Pattern]; ok {
			out[i] = a
			continue
		}
		index[a.Pattern] = len(out)
		out = append(out, a)
	}
	return out
}

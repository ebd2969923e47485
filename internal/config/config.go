package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/codegraph/internal/discover"
	"github.com/dusk-indust/codegraph/internal/graph"
)

const (
	DefaultDatabase    = ".codegraph/index.db"
	DefaultMaxFileSize = 2 << 20
)

// ProjectConfig holds project-level settings loaded from codegraph.yml.
type ProjectConfig struct {
	Database    string   `yaml:"database,omitempty"`
	GraphDir    string   `yaml:"graphDir,omitempty"`
	Include     []string `yaml:"include,omitempty"`
	Exclude     []string `yaml:"exclude,omitempty"`
	Languages   []string `yaml:"languages,omitempty"`
	Workers     int      `yaml:"workers,omitempty"`
	MaxFileSize int64    `yaml:"maxFileSize,omitempty"`
	BaseRef     string   `yaml:"baseRef,omitempty"`
	TSConfig    string   `yaml:"tsconfig,omitempty"`
	Verbose     bool     `yaml:"verbose,omitempty"`
}

// Load attempts to read codegraph.yml or codegraph.yaml from the given
// directory. Returns a defaulted config (not an error) if no config file
// exists.
func Load(dir string) (*ProjectConfig, error) {
	for _, name := range []string{"codegraph.yml", "codegraph.yaml"} {
		cfg, err := LoadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return cfg, err
	}
	var cfg ProjectConfig
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFile reads the config at path. A missing file is an error.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &cfg, nil
}

func (c *ProjectConfig) applyDefaults() {
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
}

// Validate checks languages and glob patterns.
func (c *ProjectConfig) Validate() error {
	var errs []error
	for _, l := range c.Languages {
		if graph.LanguageForName(l) == "" {
			errs = append(errs, fmt.Errorf("unknown language %q", l))
		}
	}
	if err := c.DiscoverOptions().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DiscoverOptions converts the file filters for discovery.
func (c *ProjectConfig) DiscoverOptions() discover.Options {
	opts := discover.Options{Include: c.Include, Exclude: c.Exclude}
	for _, l := range c.Languages {
		if lang := graph.LanguageForName(l); lang != "" {
			opts.Languages = append(opts.Languages, lang)
		}
	}
	return opts
}

// Resolve returns p relative to root unless it is already absolute.
func Resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(p, "./")))
}

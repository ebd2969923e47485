package graph

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tsFixtureRoot = "../../testdata/fixtures/ts_project"

func TestLoadPathMappings_ExtendsMerge(t *testing.T) {
	m, err := FindPathMappings(tsFixtureRoot)
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, ".", m.BaseURL)
	assert.Equal(t, []PathAlias{
		{Pattern: "@lib/*", Targets: []string{"src/lib/*"}},
		{Pattern: "@shared", Targets: []string{"src/lib/format.ts"}},
		{Pattern: "@services/*", Targets: []string{"src/services/*"}},
	}, m.Paths, "child overrides keep the parent position, new keys follow")
	assert.NoError(t, m.Validate())
}

func TestFindPathMappings_RelativeRoot(t *testing.T) {
	abs, err := filepath.Abs(tsFixtureRoot)
	require.NoError(t, err)
	want, err := FindPathMappings(abs)
	require.NoError(t, err)

	got, err := FindPathMappings(tsFixtureRoot)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Paths, got.Paths)
	assert.Equal(t, []string{"src/lib/format"}, got.Candidates("@lib/format"))
}

func TestFindPathMappings_Absent(t *testing.T) {
	m, err := FindPathMappings(t.TempDir())
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestFindPathMappings_JSConfig(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"jsconfig.json": `{"compilerOptions": {"paths": {"~/*": ["./web/*"]}}}`,
	})
	m, err := FindPathMappings(root)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, ".", m.BaseURL, "without baseUrl paths resolve from the config directory")
	assert.Equal(t, []string{"web/app"}, m.Candidates("~/app"))
}

func TestLoadPathMappings_BaseURLInherited(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"tsconfig.json":   `{"extends": "./tools/base", "compilerOptions": {"paths": {"@a/*": ["a/*"]}}}`,
		"tools/base.json": `{"compilerOptions": {"baseUrl": "../src"}}`,
	})
	m, err := LoadPathMappings(root, "tsconfig.json")
	require.NoError(t, err)
	assert.Equal(t, "src", m.BaseURL)
	assert.Equal(t, []string{"src/a/x"}, m.Candidates("@a/x"))
}

func TestLoadPathMappings_ExtendsPackage(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"tsconfig.json":                        `{"extends": ["@org/tsconfig/base.json", "./ignored.json"]}`,
		"node_modules/@org/tsconfig/base.json": `{"compilerOptions": {"baseUrl": "../../..", "paths": {"#x": ["x.ts"]}}}`,
	})
	m, err := LoadPathMappings(root, "tsconfig.json")
	require.NoError(t, err)
	assert.Equal(t, ".", m.BaseURL)
	assert.Equal(t, []string{"x.ts"}, m.Candidates("#x"))
}

func TestLoadPathMappings_Cycle(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"tsconfig.json": `{"extends": "./a.json"}`,
		"a.json":        `{"extends": "./b.json"}`,
		"b.json":        `{"extends": "./a.json"}`,
	})
	_, err := LoadPathMappings(root, "tsconfig.json")
	assert.ErrorIs(t, err, ErrExtendsCycle)
}

func TestLoadPathMappings_Depth(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{"tsconfig.json": `{"extends": "./c0.json"}`}
	for i := 0; i <= maxExtendsDepth+1; i++ {
		files[fmt.Sprintf("c%d.json", i)] = fmt.Sprintf(`{"extends": "./c%d.json"}`, i+1)
	}
	files[fmt.Sprintf("c%d.json", maxExtendsDepth+2)] = `{}`
	writeTree(t, root, files)

	_, err := LoadPathMappings(root, "tsconfig.json")
	assert.ErrorIs(t, err, ErrExtendsDepth)
}

func TestLoadPathMappings_MissingParent(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"tsconfig.json": `{"extends": "./nope.json"}`,
	})
	_, err := LoadPathMappings(root, "tsconfig.json")
	assert.Error(t, err)
}

func TestLoadPathMappings_Malformed(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"tsconfig.json": `{"compilerOptions": {`,
	})
	_, err := LoadPathMappings(root, "tsconfig.json")
	assert.Error(t, err)
}

func TestPathMappings_Candidates(t *testing.T) {
	m := &PathMappings{
		BaseURL: "src",
		Paths: []PathAlias{
			{Pattern: "@ui/*.css", Targets: []string{"styles/*.css"}},
			{Pattern: "@ui/*", Targets: []string{"components/*", "legacy/*/index"}},
			{Pattern: "@ui/button", Targets: []string{"never"}},
			{Pattern: "*", Targets: []string{"fallback/*"}},
			{Pattern: "@a/*/*", Targets: []string{"a/*"}},
		},
	}

	tests := []struct {
		specifier string
		want      []string
	}{
		{"@ui/theme.css", []string{"src/styles/theme.css"}},
		{"@ui/button", []string{"src/components/button", "src/legacy/button/index"}},
		{"@ui/forms/input", []string{"src/components/forms/input", "src/legacy/forms/input/index"}},
		{"lodash", nil},
		{"@a/b/c", nil},
	}
	for _, tt := range tests {
		t.Run(tt.specifier, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Candidates(tt.specifier))
		})
	}

	err := m.Validate()
	assert.ErrorIs(t, err, ErrUnsupportedPattern)
}

func TestPathMappings_NilCandidates(t *testing.T) {
	var m *PathMappings
	assert.Nil(t, m.Candidates("@x/y"))
	assert.NoError(t, m.Validate())
}

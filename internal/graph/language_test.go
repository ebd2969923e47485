package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLanguageForPath(t *testing.T) {
	tests := map[string]Language{
		"src/a.ts":      LangTypeScript,
		"src/View.TSX":  LangTypeScript,
		"lib/x.mjs":     LangJavaScript,
		"cmd/main.go":   LangGo,
		"pkg/mod.py":    LangPython,
		"src/lib.rs":    LangRust,
		"README.md":     "",
		"Makefile":      "",
		"types.d.ts":    LangTypeScript,
		"config/app.js": LangJavaScript,
	}
	for p, want := range tests {
		assert.Equal(t, want, LanguageForPath(p), p)
	}
}

func TestLanguageForName(t *testing.T) {
	assert.Equal(t, LangTypeScript, LanguageForName(" TS "))
	assert.Equal(t, LangJavaScript, LanguageForName("jsx"))
	assert.Equal(t, LangGo, LanguageForName("golang"))
	assert.Equal(t, LangPython, LanguageForName("python"))
	assert.Equal(t, LangRust, LanguageForName("rs"))
	assert.Empty(t, LanguageForName("cobol"))
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "src/a.ts", NormalizePath("./src/a.ts"))
	assert.Equal(t, "src/a.ts", NormalizePath(`src\lib\..\a.ts`))
	assert.Equal(t, "a.ts", NormalizePath("a.ts"))
}

func TestContentHash(t *testing.T) {
	h := ContentHash([]byte("export const x = 1;\n"))
	assert.Len(t, h, 64)
	assert.Equal(t, h, ContentHash([]byte("export const x = 1;\n")))
	assert.NotEqual(t, h, ContentHash([]byte("export const x = 2;\n")))
}

package graph

import (
	"path"
	"strings"
)

// extToLanguage maps file extensions to Language. JavaScript flavours are
// parsed with the TypeScript grammars, which accept plain JS.
var extToLanguage = map[string]Language{
	".ts":  LangTypeScript,
	".tsx": LangTypeScript,
	".mts": LangTypeScript,
	".cts": LangTypeScript,
	".js":  LangJavaScript,
	".jsx": LangJavaScript,
	".mjs": LangJavaScript,
	".cjs": LangJavaScript,
	".go":  LangGo,
	".py":  LangPython,
	".rs":  LangRust,
}

// LanguageForPath returns the language for a file path, or "" when the
// extension is not indexed.
func LanguageForPath(p string) Language {
	return extToLanguage[strings.ToLower(path.Ext(p))]
}

// isJSX reports whether the path should be parsed with the TSX grammar
// first.
func isJSX(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".tsx", ".jsx":
		return true
	}
	return false
}

// NormalizePath converts an OS path into the project-relative POSIX form
// used as SourceFile.Path.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	return strings.TrimPrefix(p, "./")
}

// LanguageForName maps a configured language name or common short form to
// a Language, or "" when unknown.
func LanguageForName(name string) Language {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "typescript", "ts", "tsx":
		return LangTypeScript
	case "javascript", "js", "jsx":
		return LangJavaScript
	case "go", "golang":
		return LangGo
	case "python", "py":
		return LangPython
	case "rust", "rs":
		return LangRust
	}
	return ""
}

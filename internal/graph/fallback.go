package graph

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

// lexicalRule matches one declaration form at the start of a line. The
// "name" group is the declared identifier, "export" marks export status,
// and "binding" is const/let/var for variable rules.
type lexicalRule struct {
	kind SymbolKind
	re   *regexp.Regexp
}

const identPattern = `[A-Za-z_$][\w$]*`

// Order matters: the exported arrow function rule must win over the plain
// exported variable rule.
var lexicalRules = []lexicalRule{
	{SymbolKindFunction, regexp.MustCompile(`^\s*(?P<export>export\s+)?(?:default\s+)?(?P<async>async\s+)?function\s*\*?\s*(?P<name>` + identPattern + `)`)},
	{SymbolKindClass, regexp.MustCompile(`^\s*(?P<export>export\s+)?(?:default\s+)?(?:declare\s+)?(?:abstract\s+)?class\s+(?P<name>` + identPattern + `)`)},
	{SymbolKindInterface, regexp.MustCompile(`^\s*(?P<export>export\s+)?(?:declare\s+)?interface\s+(?P<name>` + identPattern + `)`)},
	{SymbolKindType, regexp.MustCompile(`^\s*(?P<export>export\s+)?(?:declare\s+)?type\s+(?P<name>` + identPattern + `)\s*(?:<[^=]*>)?\s*=`)},
	{SymbolKindEnum, regexp.MustCompile(`^\s*(?P<export>export\s+)?(?:declare\s+)?(?:const\s+)?enum\s+(?P<name>` + identPattern + `)`)},
	{SymbolKindFunction, regexp.MustCompile(`^\s*(?P<export>export\s+)(?:const|let|var)\s+(?P<name>` + identPattern + `)\s*(?::[^=]+)?=\s*(?P<async>async\s+)?(?:\([^)]*\)|` + identPattern + `)\s*(?::[^=]+)?=>`)},
	{SymbolKindFunction, regexp.MustCompile(`^\s*(?P<export>export\s+)(?:const|let|var)\s+(?P<name>` + identPattern + `)\s*(?::[^=]+)?=\s*(?P<async>async\s+)?function\b`)},
	{SymbolKindVariable, regexp.MustCompile(`^\s*(?P<export>export\s+)(?P<binding>const|let|var)\s+(?P<name>` + identPattern + `)`)},
}

// ExtractLexical is the low-fidelity safety net used when no syntax tree
// could be recovered. Symbols carry ExtractionRegex and LineEnd equal to
// LineStart since declaration extents are unknown.
func ExtractLexical(filePath string, source []byte) []Symbol {
	var symbols []Symbol
	scanner := bufio.NewScanner(bytes.NewReader(source))
	scanner.Buffer(make([]byte, 0, 64*1024), len(source)+1)

	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		for _, rule := range lexicalRules {
			m := rule.re.FindStringSubmatchIndex(text)
			if m == nil {
				continue
			}
			symbols = append(symbols, lexicalSymbol(rule, m, text, filePath, line))
			break
		}
	}
	return symbols
}

func lexicalSymbol(rule lexicalRule, m []int, text, filePath string, line int) Symbol {
	group := func(name string) (string, int) {
		i := rule.re.SubexpIndex(name)
		if i < 0 || m[2*i] < 0 {
			return "", -1
		}
		return text[m[2*i]:m[2*i+1]], m[2*i]
	}

	name, col := group("name")
	export, _ := group("export")
	async, _ := group("async")

	kind := rule.kind
	if binding, _ := group("binding"); binding == "const" {
		kind = SymbolKindConstant
	}

	return Symbol{
		Name:      name,
		Kind:      kind,
		FilePath:  filePath,
		LineStart: line,
		LineEnd:   line,
		ColStart:  col,
		ColEnd:    col + len(name),
		Exported:  strings.TrimSpace(export) != "",
		Async:     async != "",
		Method:    ExtractionRegex,
	}
}

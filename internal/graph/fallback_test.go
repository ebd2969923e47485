package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLexical(t *testing.T) {
	src := `import { x } from "./x";
export async function load() {
function helper() {}
export default class Widget extends Base {
export interface Props {
type Internal<T> = T[];
export const enum Mode {
export const handler = async (req) => {
export let format = function (s) {
export const VERSION = "1.0";
export var legacy = 1;
const hidden = 2;
// function commented() {}
`
	symbols := ExtractLexical("src/broken.ts", []byte(src))

	tests := []struct {
		name     string
		kind     SymbolKind
		line     int
		exported bool
		async    bool
	}{
		{"load", SymbolKindFunction, 2, true, true},
		{"helper", SymbolKindFunction, 3, false, false},
		{"Widget", SymbolKindClass, 4, true, false},
		{"Props", SymbolKindInterface, 5, true, false},
		{"Internal", SymbolKindType, 6, false, false},
		{"Mode", SymbolKindEnum, 7, true, false},
		{"handler", SymbolKindFunction, 8, true, true},
		{"format", SymbolKindFunction, 9, true, false},
		{"VERSION", SymbolKindConstant, 10, true, false},
		{"legacy", SymbolKindVariable, 11, true, false},
	}
	require.Len(t, symbols, len(tests))

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sym := symbols[i]
			assert.Equal(t, tt.name, sym.Name)
			assert.Equal(t, tt.kind, sym.Kind)
			assert.Equal(t, tt.line, sym.LineStart)
			assert.Equal(t, sym.LineStart, sym.LineEnd)
			assert.Equal(t, tt.exported, sym.Exported)
			assert.Equal(t, tt.async, sym.Async)
			assert.Equal(t, ExtractionRegex, sym.Method)
			assert.Equal(t, "src/broken.ts", sym.FilePath)
		})
	}
}

func TestExtractLexical_Columns(t *testing.T) {
	symbols := ExtractLexical("a.ts", []byte("  export function run() {}\n"))
	require.Len(t, symbols, 1)
	assert.Equal(t, 18, symbols[0].ColStart)
	assert.Equal(t, 21, symbols[0].ColEnd)
}

func TestExtractLexical_Empty(t *testing.T) {
	assert.Empty(t, ExtractLexical("a.ts", nil))
}

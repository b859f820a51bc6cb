package navigation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.lsp.dev/protocol"
)

func TestSymbolKindNames(t *testing.T) {
	assert.Equal(t, "class", SymbolKindName(protocol.SymbolKindClass))
	assert.Equal(t, "enum_member", SymbolKindName(protocol.SymbolKindEnumMember))
	assert.Equal(t, "type_parameter", SymbolKindName(protocol.SymbolKindTypeParameter))
	assert.Equal(t, "unknown", SymbolKindName(protocol.SymbolKind(99)))

	for kind, name := range symbolKindNames {
		parsed, ok := ParseSymbolKind(name)
		assert.True(t, ok, name)
		assert.Equal(t, kind, parsed, name)
	}

	kind, ok := ParseSymbolKind("EnumMember")
	assert.True(t, ok)
	assert.Equal(t, protocol.SymbolKindEnumMember, kind)

	_, ok = ParseSymbolKind("gadget")
	assert.False(t, ok)
}

func TestFormatHover(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		want     string
	}{
		{"empty", ``, ""},
		{"null", `null`, ""},
		{"string", `"x: int"`, "x: int"},
		{"markup", `{"kind":"plaintext","value":"x: int"}`, "x: int"},
		{"object without value", `{"kind":"plaintext"}`, `{"kind":"plaintext"}`},
		{"array", `["a", {"language":"go","value":"b"}, "c"]`, "a\nb\nc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatHover(json.RawMessage(tt.contents)))
		})
	}
}

func symbolTree() []Symbol {
	at := func(line uint32) protocol.Range {
		return protocol.Range{Start: protocol.Position{Line: line}}
	}
	return []Symbol{
		{
			Name: "Server", Kind: protocol.SymbolKindClass, Range: at(0),
			Children: []Symbol{
				{Name: "port", Kind: protocol.SymbolKindField, Range: at(1)},
				{
					Name: "run", Kind: protocol.SymbolKindMethod, Range: at(3),
					Children: []Symbol{
						{Name: "conn", Kind: protocol.SymbolKindVariable, Range: at(4)},
					},
				},
			},
		},
		{Name: "main", Kind: protocol.SymbolKindFunction, Range: at(10)},
	}
}

func TestFormatSymbols(t *testing.T) {
	tests := []struct {
		name   string
		filter SymbolFilter
		want   []string
	}{
		{
			name: "everything",
			want: []string{
				"class Server (line 1)",
				"  field port (line 2)",
				"  method run (line 4)",
				"    variable conn (line 5)",
				"function main (line 11)",
			},
		},
		{
			name:   "top level only",
			filter: SymbolFilter{MaxDepth: 1},
			want:   []string{"class Server (line 1)", "function main (line 11)"},
		},
		{
			name:   "two levels",
			filter: SymbolFilter{MaxDepth: 2},
			want: []string{
				"class Server (line 1)",
				"  field port (line 2)",
				"  method run (line 4)",
				"function main (line 11)",
			},
		},
		{
			name:   "kind filter keeps walking skipped parents",
			filter: SymbolFilter{Kinds: []protocol.SymbolKind{protocol.SymbolKindMethod, protocol.SymbolKindVariable}},
			want:   []string{"method run (line 4)", "  variable conn (line 5)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatSymbols(symbolTree(), tt.filter))
		})
	}

	assert.Empty(t, FormatSymbols(nil, SymbolFilter{}))
}

func TestFormatLocationAndDiagnostic(t *testing.T) {
	loc := protocol.Location{
		URI:   "file:///work/pkg/mod.py",
		Range: protocol.Range{Start: protocol.Position{Line: 0, Character: 0}},
	}
	assert.Equal(t, "/work/pkg/mod.py:1:1", FormatLocation(loc))

	d := protocol.Diagnostic{
		Range:    protocol.Range{Start: protocol.Position{Line: 4, Character: 2}},
		Severity: protocol.DiagnosticSeverityWarning,
		Message:  "unused import",
	}
	assert.Equal(t, "5:3 warning: unused import", FormatDiagnostic(d))
}

package navigation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"go.lsp.dev/protocol"

	"agents-ide/src/server/documents"
)

var symbolKindNames = map[protocol.SymbolKind]string{
	protocol.SymbolKindFile:          "file",
	protocol.SymbolKindModule:        "module",
	protocol.SymbolKindNamespace:     "namespace",
	protocol.SymbolKindPackage:       "package",
	protocol.SymbolKindClass:         "class",
	protocol.SymbolKindMethod:        "method",
	protocol.SymbolKindProperty:      "property",
	protocol.SymbolKindField:         "field",
	protocol.SymbolKindConstructor:   "constructor",
	protocol.SymbolKindEnum:          "enum",
	protocol.SymbolKindInterface:     "interface",
	protocol.SymbolKindFunction:      "function",
	protocol.SymbolKindVariable:      "variable",
	protocol.SymbolKindConstant:      "constant",
	protocol.SymbolKindString:        "string",
	protocol.SymbolKindNumber:        "number",
	protocol.SymbolKindBoolean:       "boolean",
	protocol.SymbolKindArray:         "array",
	protocol.SymbolKindObject:        "object",
	protocol.SymbolKindKey:           "key",
	protocol.SymbolKindNull:          "null",
	protocol.SymbolKindEnumMember:    "enum_member",
	protocol.SymbolKindStruct:        "struct",
	protocol.SymbolKindEvent:         "event",
	protocol.SymbolKindOperator:      "operator",
	protocol.SymbolKindTypeParameter: "type_parameter",
}

// SymbolKindName returns the snake_case name of kind, "unknown" otherwise
func SymbolKindName(kind protocol.SymbolKind) string {
	if name, ok := symbolKindNames[kind]; ok {
		return name
	}
	return "unknown"
}

// ParseSymbolKind resolves a kind name. Case and underscores are ignored,
// so "enum_member" and "EnumMember" both match.
func ParseSymbolKind(name string) (protocol.SymbolKind, bool) {
	want := normalizeKindName(name)
	for kind, known := range symbolKindNames {
		if normalizeKindName(known) == want {
			return kind, true
		}
	}
	return 0, false
}

func normalizeKindName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "")
}

// FormatLocation renders loc as path:line:column, 1-indexed
func FormatLocation(loc protocol.Location) string {
	return fmt.Sprintf("%s:%d:%d",
		documents.PathFromURI(string(loc.URI)),
		loc.Range.Start.Line+1,
		loc.Range.Start.Character+1)
}

// FormatHover renders hover contents: a plain string, a markup object, or
// an array of either
func FormatHover(contents json.RawMessage) string {
	if isNull(contents) {
		return ""
	}
	trimmed := bytes.TrimSpace(contents)
	switch trimmed[0] {
	case '"':
		var s string
		if json.Unmarshal(trimmed, &s) == nil {
			return s
		}
	case '{':
		var markup struct {
			Value *string `json:"value"`
		}
		if json.Unmarshal(trimmed, &markup) == nil && markup.Value != nil {
			return *markup.Value
		}
	case '[':
		var parts []json.RawMessage
		if json.Unmarshal(trimmed, &parts) == nil {
			lines := make([]string, 0, len(parts))
			for _, part := range parts {
				lines = append(lines, FormatHover(part))
			}
			return strings.Join(lines, "\n")
		}
	}
	return string(trimmed)
}

// SymbolFilter limits which symbols FormatSymbols prints
type SymbolFilter struct {
	// Kinds to print; empty prints every kind. Children of a skipped symbol
	// are still visited.
	Kinds []protocol.SymbolKind
	// MaxDepth is the number of tree levels to print; 0 means unlimited and
	// 1 prints top-level symbols only
	MaxDepth int
}

func (f SymbolFilter) allows(kind protocol.SymbolKind) bool {
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// FormatSymbols renders a symbol tree one symbol per line as
// "<kind> <name> (line N)", indented two spaces per printed level
func FormatSymbols(symbols []Symbol, filter SymbolFilter) []string {
	var lines []string
	for _, sym := range symbols {
		lines = appendSymbol(lines, sym, 0, 1, filter)
	}
	return lines
}

func appendSymbol(lines []string, sym Symbol, indent, depth int, filter SymbolFilter) []string {
	if filter.MaxDepth > 0 && depth > filter.MaxDepth {
		return lines
	}
	childIndent := indent
	if filter.allows(sym.Kind) {
		lines = append(lines, fmt.Sprintf("%s%s %s (line %d)",
			strings.Repeat("  ", indent), SymbolKindName(sym.Kind), sym.Name, sym.Range.Start.Line+1))
		childIndent++
	}
	for _, child := range sym.Children {
		lines = appendSymbol(lines, child, childIndent, depth+1, filter)
	}
	return lines
}

func severityName(s protocol.DiagnosticSeverity) string {
	switch s {
	case protocol.DiagnosticSeverityError:
		return "error"
	case protocol.DiagnosticSeverityWarning:
		return "warning"
	case protocol.DiagnosticSeverityInformation:
		return "info"
	case protocol.DiagnosticSeverityHint:
		return "hint"
	}
	return "unknown"
}

// FormatDiagnostic renders d as "line:column severity: message", with the
// source appended when the server sets one
func FormatDiagnostic(d protocol.Diagnostic) string {
	out := fmt.Sprintf("%d:%d %s: %s",
		d.Range.Start.Line+1, d.Range.Start.Character+1, severityName(d.Severity), d.Message)
	if d.Source != "" {
		out += " [" + d.Source + "]"
	}
	return out
}

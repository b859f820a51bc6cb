// Package capabilities reads the server capabilities announced in the
// initialize result and answers which requests a server accepts.
package capabilities

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.lsp.dev/protocol"
)

// providers maps request methods to the capability key that advertises them
var providers = map[string]string{
	protocol.MethodTextDocumentDefinition:           "definitionProvider",
	protocol.MethodTextDocumentDeclaration:          "declarationProvider",
	protocol.MethodTextDocumentTypeDefinition:       "typeDefinitionProvider",
	protocol.MethodTextDocumentImplementation:       "implementationProvider",
	protocol.MethodTextDocumentReferences:           "referencesProvider",
	protocol.MethodTextDocumentHover:                "hoverProvider",
	protocol.MethodTextDocumentSignatureHelp:        "signatureHelpProvider",
	protocol.MethodTextDocumentDocumentHighlight:    "documentHighlightProvider",
	protocol.MethodTextDocumentCompletion:           "completionProvider",
	protocol.MethodTextDocumentRename:               "renameProvider",
	protocol.MethodTextDocumentDocumentSymbol:       "documentSymbolProvider",
	protocol.MethodWorkspaceSymbol:                  "workspaceSymbolProvider",
	protocol.MethodTextDocumentFoldingRange:         "foldingRangeProvider",
	"textDocument/selectionRange":                   "selectionRangeProvider",
	protocol.MethodTextDocumentPrepareCallHierarchy: "callHierarchyProvider",
	protocol.MethodTextDocumentCodeAction:           "codeActionProvider",
	protocol.MethodTextDocumentCodeLens:             "codeLensProvider",
	protocol.MethodTextDocumentFormatting:           "documentFormattingProvider",
	protocol.MethodTextDocumentRangeFormatting:      "documentRangeFormattingProvider",
}

// Servers known to under-report their core features
var underReporting = []string{"jdtls", "omnisharp"}

var coreProviders = []string{
	"definitionProvider",
	"referencesProvider",
	"hoverProvider",
	"documentSymbolProvider",
	"completionProvider",
}

// ServerCapabilities holds the raw provider entries of one server
type ServerCapabilities map[string]json.RawMessage

// Parse decodes the capabilities of an initialize result. serverCommand is
// the configured executable and enables per-server corrections.
func Parse(initResult json.RawMessage, serverCommand string) (ServerCapabilities, error) {
	var result struct {
		Capabilities ServerCapabilities `json:"capabilities"`
	}
	if err := json.Unmarshal(initResult, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal initialize result: %w", err)
	}
	caps := result.Capabilities
	if caps == nil {
		caps = ServerCapabilities{}
	}

	command := strings.ToLower(serverCommand)
	for _, name := range underReporting {
		if !strings.Contains(command, name) {
			continue
		}
		for _, key := range coreProviders {
			if !enabled(caps[key]) {
				caps[key] = json.RawMessage("true")
			}
		}
	}
	return caps, nil
}

// Supports reports whether the server accepts method. Methods without a
// provider entry are assumed to be supported.
func (c ServerCapabilities) Supports(method string) bool {
	key, ok := providers[method]
	if !ok {
		return true
	}
	return enabled(c[key])
}

// Methods lists every method with a known provider entry, sorted
func Methods() []string {
	out := make([]string, 0, len(providers))
	for m := range providers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// enabled treats options objects as support and false or null as absence
func enabled(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "false":
		return false
	}
	return true
}

package lsp

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"agents-ide/src/internal/constants"
)

// rootToURI accepts either a file:// URI or a filesystem path
func rootToURI(root string) uri.URI {
	if strings.HasPrefix(root, uri.FileScheme+"://") {
		return uri.URI(root)
	}
	return uri.File(root)
}

func rootPath(root uri.URI) string {
	u, err := url.Parse(string(root))
	if err != nil || u.Scheme != uri.FileScheme || u.Path == "" {
		return ""
	}
	return filepath.FromSlash(u.Path)
}

// clientCapabilities advertises what the navigation layer can consume.
// Dynamic registration is off everywhere; this client never registers
// capabilities at runtime.
func clientCapabilities() protocol.ClientCapabilities {
	markup := []protocol.MarkupKind{protocol.Markdown, protocol.PlainText}
	return protocol.ClientCapabilities{
		Workspace: &protocol.WorkspaceClientCapabilities{
			WorkspaceFolders: true,
			Configuration:    true,
			Symbol:           &protocol.WorkspaceSymbolClientCapabilities{},
		},
		TextDocument: &protocol.TextDocumentClientCapabilities{
			Synchronization: &protocol.TextDocumentSyncClientCapabilities{DidSave: true},
			Completion: &protocol.CompletionTextDocumentClientCapabilities{
				CompletionItem: &protocol.CompletionTextDocumentClientCapabilitiesItem{},
			},
			Hover: &protocol.HoverTextDocumentClientCapabilities{ContentFormat: markup},
			SignatureHelp: &protocol.SignatureHelpTextDocumentClientCapabilities{
				SignatureInformation: &protocol.TextDocumentClientCapabilitiesSignatureInformation{
					DocumentationFormat: markup,
				},
			},
			Declaration:       &protocol.DeclarationTextDocumentClientCapabilities{},
			Definition:        &protocol.DefinitionTextDocumentClientCapabilities{},
			TypeDefinition:    &protocol.TypeDefinitionTextDocumentClientCapabilities{},
			Implementation:    &protocol.ImplementationTextDocumentClientCapabilities{},
			References:        &protocol.ReferencesTextDocumentClientCapabilities{},
			DocumentHighlight: &protocol.DocumentHighlightClientCapabilities{},
			DocumentSymbol: &protocol.DocumentSymbolClientCapabilities{
				HierarchicalDocumentSymbolSupport: true,
			},
			CodeAction:         &protocol.CodeActionClientCapabilities{},
			CodeLens:           &protocol.CodeLensClientCapabilities{},
			Formatting:         &protocol.DocumentFormattingClientCapabilities{},
			RangeFormatting:    &protocol.DocumentRangeFormattingClientCapabilities{},
			Rename:             &protocol.RenameClientCapabilities{PrepareSupport: true},
			PublishDiagnostics: &protocol.PublishDiagnosticsClientCapabilities{RelatedInformation: true},
			FoldingRange:       &protocol.FoldingRangeClientCapabilities{LineFoldingOnly: true},
			SelectionRange:     &protocol.SelectionRangeClientCapabilities{},
			CallHierarchy:      &protocol.CallHierarchyClientCapabilities{},
		},
	}
}

// initializeParams builds the handshake request for a workspace root
func (s *Session) initializeParams(root uri.URI) *protocol.InitializeParams {
	name := filepath.Base(rootPath(root))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "workspace"
	}
	return &protocol.InitializeParams{
		ProcessID: int32(os.Getpid()),
		ClientInfo: &protocol.ClientInfo{
			Name:    constants.ClientName,
			Version: constants.ClientVersion,
		},
		RootPath:              rootPath(root),
		RootURI:               root,
		InitializationOptions: s.cfg.InitializationOptions,
		Capabilities:          clientCapabilities(),
		WorkspaceFolders: []protocol.WorkspaceFolder{
			{URI: string(root), Name: name},
		},
	}
}

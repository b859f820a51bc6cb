package documents

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"agents-ide/src/internal/common"
	"agents-ide/src/internal/errors"
)

// Notifier is the part of a session the document manager needs
type Notifier interface {
	Notify(method string, params interface{}) error
}

// documentVersion is sent with every didOpen. Documents are always opened
// with their full on-disk content, so no change tracking is needed.
const documentVersion int32 = 1

var extensionLanguages = map[string]protocol.LanguageIdentifier{
	".go":    protocol.GoLanguage,
	".py":    protocol.PythonLanguage,
	".pyi":   protocol.PythonLanguage,
	".js":    protocol.JavaScriptLanguage,
	".mjs":   protocol.JavaScriptLanguage,
	".cjs":   protocol.JavaScriptLanguage,
	".jsx":   protocol.JavaScriptReactLanguage,
	".ts":    protocol.TypeScriptLanguage,
	".tsx":   protocol.TypeScriptReactLanguage,
	".java":  protocol.JavaLanguage,
	".rs":    protocol.RustLanguage,
	".c":     protocol.CLanguage,
	".h":     protocol.CLanguage,
	".cc":    protocol.CppLanguage,
	".cpp":   protocol.CppLanguage,
	".hpp":   protocol.CppLanguage,
	".cs":    protocol.CsharpLanguage,
	".rb":    protocol.RubyLanguage,
	".php":   protocol.PHPLanguage,
	".lua":   protocol.LuaLanguage,
	".json":  protocol.JSONLanguage,
	".yaml":  protocol.YamlLanguage,
	".yml":   protocol.YamlLanguage,
	".md":    protocol.MarkdownLanguage,
	".sh":    protocol.ShellscriptLanguage,
	".sql":   protocol.SQLLanguage,
	".swift": protocol.SwiftLanguage,
	".scala": protocol.ScalaLanguage,
}

// Manager opens and closes documents on a session
type Manager struct {
	fallback protocol.LanguageIdentifier
	logger   *common.SafeLogger
}

// NewManager creates a manager. fallbackLanguage is used for unknown
// extensions; empty means python.
func NewManager(fallbackLanguage string) *Manager {
	fallback := protocol.PythonLanguage
	if fallbackLanguage != "" {
		fallback = protocol.ToLanguageIdentifier(fallbackLanguage)
	}
	return &Manager{
		fallback: fallback,
		logger:   common.LSPLogger.With("component", "documents"),
	}
}

// DetectLanguage maps a file path or URI to a language identifier
func (m *Manager) DetectLanguage(path string) protocol.LanguageIdentifier {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	return m.fallback
}

// ToURI converts a path to an absolute file:// URI. file:// input is
// returned unchanged.
func ToURI(path string) (uri.URI, error) {
	if path == "" {
		return "", errors.NewValidationError("path", "file path is empty")
	}
	if strings.HasPrefix(path, uri.FileScheme+"://") {
		return uri.URI(path), nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return uri.File(abs), nil
}

// PathFromURI returns the local path of a file:// URI, or the input when it
// is not a file URI
func PathFromURI(u string) string {
	if !strings.HasPrefix(u, uri.FileScheme+"://") {
		return u
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return strings.TrimPrefix(u, uri.FileScheme+"://")
	}
	return filepath.FromSlash(parsed.Path)
}

// Open reads path from disk and sends textDocument/didOpen with its full
// content. It returns the document URI used on the wire.
func (m *Manager) Open(ctx context.Context, sess Notifier, path string) (uri.URI, error) {
	docURI, err := ToURI(path)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	localPath := PathFromURI(string(docURI))
	content, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", localPath, err)
	}

	params := &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        docURI,
			LanguageID: m.DetectLanguage(localPath),
			Version:    documentVersion,
			Text:       string(content),
		},
	}
	if err := sess.Notify(protocol.MethodTextDocumentDidOpen, params); err != nil {
		return "", errors.WrapWithContext("didOpen "+string(docURI), err)
	}
	m.logger.Debug("Opened %s (%d bytes)", docURI, len(content))
	return docURI, nil
}

// Close sends textDocument/didClose for path
func (m *Manager) Close(sess Notifier, path string) error {
	docURI, err := ToURI(path)
	if err != nil {
		return err
	}
	params := &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
	}
	if err := sess.Notify(protocol.MethodTextDocumentDidClose, params); err != nil {
		return errors.WrapWithContext("didClose "+string(docURI), err)
	}
	return nil
}

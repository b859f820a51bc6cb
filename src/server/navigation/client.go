// Package navigation exposes the editor-style operations agents use:
// definitions, references, symbols, diagnostics and friends. Positions are
// taken 1-indexed and translated to the 0-indexed wire form here.
package navigation

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.lsp.dev/protocol"

	"agents-ide/src/internal/constants"
	"agents-ide/src/internal/errors"
	"agents-ide/src/server/documents"
)

// Session is the part of lsp.Session the navigation operations use
type Session interface {
	documents.Notifier
	Request(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error)
	Generation(subject string) uint64
	LatestNotification(subject string) (json.RawMessage, bool)
	WaitNotification(ctx context.Context, subject string, after uint64) (json.RawMessage, error)
}

// Position is a 1-indexed line and column as users and agents see them
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Span is a 1-indexed start and end position
type Span struct {
	Start Position
	End   Position
}

// Options tune a Client; zero fields take defaults
type Options struct {
	RequestTimeout  time.Duration
	DiagnosticsWait time.Duration
}

// Client runs navigation operations against one session
type Client struct {
	sess     Session
	docs     *documents.Manager
	timeout  time.Duration
	diagWait time.Duration

	mu     sync.Mutex
	opened map[string]struct{}
}

// New creates a Client. docs opens files before position requests.
func New(sess Session, docs *documents.Manager, opts Options) *Client {
	if opts.DiagnosticsWait <= 0 {
		opts.DiagnosticsWait = constants.DiagnosticsWait
	}
	return &Client{
		sess:     sess,
		docs:     docs,
		timeout:  opts.RequestTimeout,
		diagWait: opts.DiagnosticsWait,
		opened:   make(map[string]struct{}),
	}
}

func toLSP(p Position) (protocol.Position, error) {
	if p.Line < 1 {
		return protocol.Position{}, errors.NewValidationError("line", "line must be >= 1")
	}
	if p.Column < 1 {
		return protocol.Position{}, errors.NewValidationError("column", "column must be >= 1")
	}
	return protocol.Position{Line: uint32(p.Line - 1), Character: uint32(p.Column - 1)}, nil
}

func toLSPRange(s Span) (protocol.Range, error) {
	start, err := toLSP(s.Start)
	if err != nil {
		return protocol.Range{}, err
	}
	end, err := toLSP(s.End)
	if err != nil {
		return protocol.Range{}, err
	}
	return protocol.Range{Start: start, End: end}, nil
}

// open sends didOpen for path. Callers validate positions first.
func (c *Client) open(ctx context.Context, path string) (protocol.TextDocumentIdentifier, error) {
	docURI, err := c.docs.Open(ctx, c.sess, path)
	if err != nil {
		return protocol.TextDocumentIdentifier{}, err
	}
	c.mu.Lock()
	c.opened[path] = struct{}{}
	c.mu.Unlock()
	return protocol.TextDocumentIdentifier{URI: docURI}, nil
}

// OpenDocuments lists the paths opened through this client, sorted
func (c *Client) OpenDocuments() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths := make([]string, 0, len(c.opened))
	for path := range c.opened {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// CloseDocuments sends didClose for every document this client opened. All
// documents are attempted; the first error is returned.
func (c *Client) CloseDocuments() error {
	var first error
	for _, path := range c.OpenDocuments() {
		err := c.docs.Close(c.sess, path)
		if err == nil {
			c.mu.Lock()
			delete(c.opened, path)
			c.mu.Unlock()
		} else if first == nil {
			first = err
		}
	}
	return first
}

func (c *Client) positionParams(ctx context.Context, path string, pos Position) (protocol.TextDocumentPositionParams, error) {
	lspPos, err := toLSP(pos)
	if err != nil {
		return protocol.TextDocumentPositionParams{}, err
	}
	doc, err := c.open(ctx, path)
	if err != nil {
		return protocol.TextDocumentPositionParams{}, err
	}
	return protocol.TextDocumentPositionParams{TextDocument: doc, Position: lspPos}, nil
}

func (c *Client) request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return c.sess.Request(ctx, method, params, c.timeout)
}

func (c *Client) locations(ctx context.Context, method, path string, pos Position) ([]protocol.Location, error) {
	tdp, err := c.positionParams(ctx, path, pos)
	if err != nil {
		return nil, err
	}
	raw, err := c.request(ctx, method, &protocol.DefinitionParams{TextDocumentPositionParams: tdp})
	if err != nil {
		return nil, err
	}
	return decodeLocations(method, raw)
}

// Definition returns where the symbol at pos is defined
func (c *Client) Definition(ctx context.Context, path string, pos Position) ([]protocol.Location, error) {
	return c.locations(ctx, protocol.MethodTextDocumentDefinition, path, pos)
}

// Declaration returns where the symbol at pos is declared
func (c *Client) Declaration(ctx context.Context, path string, pos Position) ([]protocol.Location, error) {
	return c.locations(ctx, protocol.MethodTextDocumentDeclaration, path, pos)
}

// TypeDefinition returns the definition of the type of the symbol at pos
func (c *Client) TypeDefinition(ctx context.Context, path string, pos Position) ([]protocol.Location, error) {
	return c.locations(ctx, protocol.MethodTextDocumentTypeDefinition, path, pos)
}

// Implementation returns implementations of the interface or method at pos
func (c *Client) Implementation(ctx context.Context, path string, pos Position) ([]protocol.Location, error) {
	return c.locations(ctx, protocol.MethodTextDocumentImplementation, path, pos)
}

// References returns every reference to the symbol at pos
func (c *Client) References(ctx context.Context, path string, pos Position, includeDeclaration bool) ([]protocol.Location, error) {
	tdp, err := c.positionParams(ctx, path, pos)
	if err != nil {
		return nil, err
	}
	raw, err := c.request(ctx, protocol.MethodTextDocumentReferences, &protocol.ReferenceParams{
		TextDocumentPositionParams: tdp,
		Context:                    protocol.ReferenceContext{IncludeDeclaration: includeDeclaration},
	})
	if err != nil {
		return nil, err
	}
	return decodeLocations(protocol.MethodTextDocumentReferences, raw)
}

// Hover returns the hover text at pos, empty when the server has none
func (c *Client) Hover(ctx context.Context, path string, pos Position) (string, error) {
	tdp, err := c.positionParams(ctx, path, pos)
	if err != nil {
		return "", err
	}
	raw, err := c.request(ctx, protocol.MethodTextDocumentHover, &protocol.HoverParams{TextDocumentPositionParams: tdp})
	if err != nil {
		return "", err
	}
	if isNull(raw) {
		return "", nil
	}
	var hover struct {
		Contents json.RawMessage `json:"contents"`
	}
	if err := json.Unmarshal(raw, &hover); err != nil {
		return "", decodeError(protocol.MethodTextDocumentHover, err)
	}
	return FormatHover(hover.Contents), nil
}

// SignatureHelp returns the signatures active at pos, nil when none
func (c *Client) SignatureHelp(ctx context.Context, path string, pos Position) (*protocol.SignatureHelp, error) {
	tdp, err := c.positionParams(ctx, path, pos)
	if err != nil {
		return nil, err
	}
	raw, err := c.request(ctx, protocol.MethodTextDocumentSignatureHelp, &protocol.SignatureHelpParams{TextDocumentPositionParams: tdp})
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	var help protocol.SignatureHelp
	if err := json.Unmarshal(raw, &help); err != nil {
		return nil, decodeError(protocol.MethodTextDocumentSignatureHelp, err)
	}
	return &help, nil
}

// DocumentHighlight returns the occurrences of the symbol at pos in its file
func (c *Client) DocumentHighlight(ctx context.Context, path string, pos Position) ([]protocol.DocumentHighlight, error) {
	tdp, err := c.positionParams(ctx, path, pos)
	if err != nil {
		return nil, err
	}
	raw, err := c.request(ctx, protocol.MethodTextDocumentDocumentHighlight, &protocol.DocumentHighlightParams{TextDocumentPositionParams: tdp})
	if err != nil {
		return nil, err
	}
	return decodeList[protocol.DocumentHighlight](protocol.MethodTextDocumentDocumentHighlight, raw)
}

// Completion returns completion candidates at pos. Both the list and the
// bare array reply shapes are accepted.
func (c *Client) Completion(ctx context.Context, path string, pos Position) (*protocol.CompletionList, error) {
	tdp, err := c.positionParams(ctx, path, pos)
	if err != nil {
		return nil, err
	}
	raw, err := c.request(ctx, protocol.MethodTextDocumentCompletion, &protocol.CompletionParams{TextDocumentPositionParams: tdp})
	if err != nil {
		return nil, err
	}
	return decodeCompletion(raw)
}

// Rename asks for the edits that rename the symbol at pos. The edits are
// returned, not applied.
func (c *Client) Rename(ctx context.Context, path string, pos Position, newName string) (*protocol.WorkspaceEdit, error) {
	if newName == "" {
		return nil, errors.NewValidationError("new_name", "new name is empty")
	}
	tdp, err := c.positionParams(ctx, path, pos)
	if err != nil {
		return nil, err
	}
	raw, err := c.request(ctx, protocol.MethodTextDocumentRename, &protocol.RenameParams{
		TextDocumentPositionParams: tdp,
		NewName:                    newName,
	})
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	var edit protocol.WorkspaceEdit
	if err := json.Unmarshal(raw, &edit); err != nil {
		return nil, decodeError(protocol.MethodTextDocumentRename, err)
	}
	return &edit, nil
}

// DocumentSymbols returns the outline of path as a tree
func (c *Client) DocumentSymbols(ctx context.Context, path string) ([]Symbol, error) {
	doc, err := c.open(ctx, path)
	if err != nil {
		return nil, err
	}
	raw, err := c.request(ctx, protocol.MethodTextDocumentDocumentSymbol, &protocol.DocumentSymbolParams{TextDocument: doc})
	if err != nil {
		return nil, err
	}
	return decodeSymbols(raw)
}

// WorkspaceSymbols searches symbols across the workspace
func (c *Client) WorkspaceSymbols(ctx context.Context, query string) ([]Symbol, error) {
	raw, err := c.request(ctx, protocol.MethodWorkspaceSymbol, &protocol.WorkspaceSymbolParams{Query: query})
	if err != nil {
		return nil, err
	}
	return decodeSymbols(raw)
}

// foldingRangeParams carries only the document. protocol.FoldingRangeParams
// embeds a position that this request does not take.
type foldingRangeParams struct {
	TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
}

// FoldingRanges returns the foldable regions of path
func (c *Client) FoldingRanges(ctx context.Context, path string) ([]protocol.FoldingRange, error) {
	doc, err := c.open(ctx, path)
	if err != nil {
		return nil, err
	}
	raw, err := c.request(ctx, protocol.MethodTextDocumentFoldingRange, &foldingRangeParams{TextDocument: doc})
	if err != nil {
		return nil, err
	}
	return decodeList[protocol.FoldingRange](protocol.MethodTextDocumentFoldingRange, raw)
}

const methodSelectionRange = "textDocument/selectionRange"

// SelectionRanges returns the nested selection ranges at each position
func (c *Client) SelectionRanges(ctx context.Context, path string, positions []Position) ([]protocol.SelectionRange, error) {
	if len(positions) == 0 {
		return nil, errors.NewValidationError("positions", "at least one position is required")
	}
	lspPositions := make([]protocol.Position, 0, len(positions))
	for _, p := range positions {
		lp, err := toLSP(p)
		if err != nil {
			return nil, err
		}
		lspPositions = append(lspPositions, lp)
	}
	doc, err := c.open(ctx, path)
	if err != nil {
		return nil, err
	}
	raw, err := c.request(ctx, methodSelectionRange, &protocol.SelectionRangeParams{
		TextDocument: doc,
		Positions:    lspPositions,
	})
	if err != nil {
		return nil, err
	}
	return decodeList[protocol.SelectionRange](methodSelectionRange, raw)
}

// CallHierarchyResult is the prepared item set with the calls into and out
// of each item
type CallHierarchyResult struct {
	Items    []protocol.CallHierarchyItem         `json:"items"`
	Incoming []protocol.CallHierarchyIncomingCall `json:"incoming,omitempty"`
	Outgoing []protocol.CallHierarchyOutgoingCall `json:"outgoing,omitempty"`
}

// CallHierarchy prepares the call hierarchy at pos and resolves incoming
// and/or outgoing calls for every prepared item
func (c *Client) CallHierarchy(ctx context.Context, path string, pos Position, incoming, outgoing bool) (*CallHierarchyResult, error) {
	tdp, err := c.positionParams(ctx, path, pos)
	if err != nil {
		return nil, err
	}
	raw, err := c.request(ctx, protocol.MethodTextDocumentPrepareCallHierarchy, &protocol.CallHierarchyPrepareParams{TextDocumentPositionParams: tdp})
	if err != nil {
		return nil, err
	}
	items, err := decodeList[protocol.CallHierarchyItem](protocol.MethodTextDocumentPrepareCallHierarchy, raw)
	if err != nil {
		return nil, err
	}
	result := &CallHierarchyResult{Items: items}

	for _, item := range result.Items {
		if incoming {
			raw, err := c.request(ctx, protocol.MethodCallHierarchyIncomingCalls, &protocol.CallHierarchyIncomingCallsParams{Item: item})
			if err != nil {
				return nil, err
			}
			calls, err := decodeList[protocol.CallHierarchyIncomingCall](protocol.MethodCallHierarchyIncomingCalls, raw)
			if err != nil {
				return nil, err
			}
			result.Incoming = append(result.Incoming, calls...)
		}
		if outgoing {
			raw, err := c.request(ctx, protocol.MethodCallHierarchyOutgoingCalls, &protocol.CallHierarchyOutgoingCallsParams{Item: item})
			if err != nil {
				return nil, err
			}
			calls, err := decodeList[protocol.CallHierarchyOutgoingCall](protocol.MethodCallHierarchyOutgoingCalls, raw)
			if err != nil {
				return nil, err
			}
			result.Outgoing = append(result.Outgoing, calls...)
		}
	}
	return result, nil
}

// CodeActions returns the commands and code actions available for span.
// Entries are left raw because servers mix Command and CodeAction shapes.
func (c *Client) CodeActions(ctx context.Context, path string, span Span) ([]json.RawMessage, error) {
	rng, err := toLSPRange(span)
	if err != nil {
		return nil, err
	}
	doc, err := c.open(ctx, path)
	if err != nil {
		return nil, err
	}
	raw, err := c.request(ctx, protocol.MethodTextDocumentCodeAction, &protocol.CodeActionParams{
		TextDocument: doc,
		Range:        rng,
		Context:      protocol.CodeActionContext{Diagnostics: []protocol.Diagnostic{}},
	})
	if err != nil {
		return nil, err
	}
	return decodeList[json.RawMessage](protocol.MethodTextDocumentCodeAction, raw)
}

// CodeLens returns the code lenses of path
func (c *Client) CodeLens(ctx context.Context, path string) ([]protocol.CodeLens, error) {
	doc, err := c.open(ctx, path)
	if err != nil {
		return nil, err
	}
	raw, err := c.request(ctx, protocol.MethodTextDocumentCodeLens, &protocol.CodeLensParams{TextDocument: doc})
	if err != nil {
		return nil, err
	}
	return decodeList[protocol.CodeLens](protocol.MethodTextDocumentCodeLens, raw)
}

var defaultFormatting = protocol.FormattingOptions{TabSize: 4, InsertSpaces: true}

// Formatting returns the edits that format the whole of path
func (c *Client) Formatting(ctx context.Context, path string) ([]protocol.TextEdit, error) {
	doc, err := c.open(ctx, path)
	if err != nil {
		return nil, err
	}
	raw, err := c.request(ctx, protocol.MethodTextDocumentFormatting, &protocol.DocumentFormattingParams{
		TextDocument: doc,
		Options:      defaultFormatting,
	})
	if err != nil {
		return nil, err
	}
	return decodeList[protocol.TextEdit](protocol.MethodTextDocumentFormatting, raw)
}

// RangeFormatting returns the edits that format span
func (c *Client) RangeFormatting(ctx context.Context, path string, span Span) ([]protocol.TextEdit, error) {
	rng, err := toLSPRange(span)
	if err != nil {
		return nil, err
	}
	doc, err := c.open(ctx, path)
	if err != nil {
		return nil, err
	}
	raw, err := c.request(ctx, protocol.MethodTextDocumentRangeFormatting, &protocol.DocumentRangeFormattingParams{
		TextDocument: doc,
		Range:        rng,
		Options:      defaultFormatting,
	})
	if err != nil {
		return nil, err
	}
	return decodeList[protocol.TextEdit](protocol.MethodTextDocumentRangeFormatting, raw)
}

// Diagnostics opens path and returns its diagnostics. It waits up to the
// configured delay for a publish newer than the one seen before opening,
// then falls back to the latest known list. A quiet server yields the stale
// list (or none), never an error.
func (c *Client) Diagnostics(ctx context.Context, path string) ([]protocol.Diagnostic, error) {
	docURI, err := documents.ToURI(path)
	if err != nil {
		return nil, err
	}
	subject := string(docURI)
	before := c.sess.Generation(subject)

	if _, err := c.docs.Open(ctx, c.sess, path); err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.diagWait)
	defer cancel()
	payload, err := c.sess.WaitNotification(waitCtx, subject, before)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		latest, ok := c.sess.LatestNotification(subject)
		if !ok {
			return nil, nil
		}
		payload = latest
	}
	return decodeDiagnostics(payload)
}

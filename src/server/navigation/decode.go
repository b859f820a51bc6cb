package navigation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.lsp.dev/protocol"
)

// Symbol is a document or workspace symbol in one shape, whichever form
// the server replied with
type Symbol struct {
	Name      string               `json:"name"`
	Kind      protocol.SymbolKind  `json:"kind"`
	Detail    string               `json:"detail,omitempty"`
	Container string               `json:"container,omitempty"`
	URI       protocol.DocumentURI `json:"uri,omitempty"`
	Range     protocol.Range       `json:"range"`
	Children  []Symbol             `json:"children,omitempty"`
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeError(method string, err error) error {
	return fmt.Errorf("decode %s result: %w", method, err)
}

// decodeList decodes an array result; null yields an empty list
func decodeList[T any](method string, raw json.RawMessage) ([]T, error) {
	if isNull(raw) {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, decodeError(method, err)
	}
	return out, nil
}

// decodeLocations accepts Location, Location[] and LocationLink[] replies
func decodeLocations(method string, raw json.RawMessage) ([]protocol.Location, error) {
	if isNull(raw) {
		return nil, nil
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '{' {
		var loc protocol.Location
		if err := json.Unmarshal(trimmed, &loc); err != nil {
			return nil, decodeError(method, err)
		}
		return []protocol.Location{loc}, nil
	}

	var items []struct {
		URI                  protocol.DocumentURI `json:"uri"`
		Range                protocol.Range       `json:"range"`
		TargetURI            protocol.DocumentURI `json:"targetUri"`
		TargetSelectionRange protocol.Range       `json:"targetSelectionRange"`
	}
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, decodeError(method, err)
	}
	out := make([]protocol.Location, 0, len(items))
	for _, it := range items {
		if it.TargetURI != "" {
			out = append(out, protocol.Location{URI: it.TargetURI, Range: it.TargetSelectionRange})
			continue
		}
		out = append(out, protocol.Location{URI: it.URI, Range: it.Range})
	}
	return out, nil
}

func decodeCompletion(raw json.RawMessage) (*protocol.CompletionList, error) {
	if isNull(raw) {
		return &protocol.CompletionList{}, nil
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '[' {
		var items []protocol.CompletionItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, decodeError(protocol.MethodTextDocumentCompletion, err)
		}
		return &protocol.CompletionList{Items: items}, nil
	}
	var list protocol.CompletionList
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, decodeError(protocol.MethodTextDocumentCompletion, err)
	}
	return &list, nil
}

// decodeSymbols accepts both DocumentSymbol trees and flat
// SymbolInformation lists
func decodeSymbols(raw json.RawMessage) ([]Symbol, error) {
	entries, err := decodeList[json.RawMessage](protocol.MethodTextDocumentDocumentSymbol, raw)
	if err != nil {
		return nil, err
	}
	out := make([]Symbol, 0, len(entries))
	for _, entry := range entries {
		var probe struct {
			Location *json.RawMessage `json:"location"`
		}
		if err := json.Unmarshal(entry, &probe); err != nil {
			return nil, decodeError(protocol.MethodTextDocumentDocumentSymbol, err)
		}
		if probe.Location != nil {
			var info protocol.SymbolInformation
			if err := json.Unmarshal(entry, &info); err != nil {
				return nil, decodeError(protocol.MethodTextDocumentDocumentSymbol, err)
			}
			out = append(out, Symbol{
				Name:      info.Name,
				Kind:      info.Kind,
				Container: info.ContainerName,
				URI:       info.Location.URI,
				Range:     info.Location.Range,
			})
			continue
		}
		var doc protocol.DocumentSymbol
		if err := json.Unmarshal(entry, &doc); err != nil {
			return nil, decodeError(protocol.MethodTextDocumentDocumentSymbol, err)
		}
		out = append(out, fromDocumentSymbol(doc))
	}
	return out, nil
}

func fromDocumentSymbol(doc protocol.DocumentSymbol) Symbol {
	sym := Symbol{
		Name:   doc.Name,
		Kind:   doc.Kind,
		Detail: doc.Detail,
		Range:  doc.Range,
	}
	for _, child := range doc.Children {
		sym.Children = append(sym.Children, fromDocumentSymbol(child))
	}
	return sym
}

func decodeDiagnostics(payload json.RawMessage) ([]protocol.Diagnostic, error) {
	if isNull(payload) {
		return nil, nil
	}
	var params protocol.PublishDiagnosticsParams
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, decodeError(protocol.MethodTextDocumentPublishDiagnostics, err)
	}
	return params.Diagnostics, nil
}

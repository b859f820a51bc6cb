// Package errors provides the typed errors of the language-server client.
package errors

// Standard JSON-RPC error codes as defined in RFC 7309
const (
	ParseError     = -32700 // Invalid JSON was received by the server
	InvalidRequest = -32600 // The JSON sent is not a valid Request object
	MethodNotFound = -32601 // The method does not exist / is not available
	InvalidParams  = -32602 // Invalid method parameter(s)
	InternalError  = -32603 // Internal JSON-RPC error
)

// LSP-specific error codes as defined in the LSP specification
const (
	ServerNotInitialized = -32002 // Server not initialized
	UnknownErrorCode     = -32001 // Unknown error code
	RequestCancelled     = -32800 // Request was cancelled
	ContentModified      = -32801 // Content was modified
	RequestFailed        = -32803 // Request failed with unrecoverable error
)

// CodeName returns a short name for well-known codes, used in log lines
func CodeName(code int) string {
	switch code {
	case ParseError:
		return "parse_error"
	case InvalidRequest:
		return "invalid_request"
	case MethodNotFound:
		return "method_not_found"
	case InvalidParams:
		return "invalid_params"
	case InternalError:
		return "internal_error"
	case ServerNotInitialized:
		return "server_not_initialized"
	case UnknownErrorCode:
		return "unknown_error_code"
	case RequestCancelled:
		return "request_cancelled"
	case ContentModified:
		return "content_modified"
	case RequestFailed:
		return "request_failed"
	}
	return "server_error"
}

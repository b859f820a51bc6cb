package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"
)

// Session lifecycle sentinels
var (
	// ErrSessionStopped fails calls that were pending when Stop ran, and any
	// call issued afterwards
	ErrSessionStopped = stderrors.New("lsp session stopped")

	// ErrNotInitialized rejects requests issued before the handshake completed
	ErrNotInitialized = stderrors.New("lsp session not initialized")

	// ErrAlreadyStarted rejects a second Start on the same session
	ErrAlreadyStarted = stderrors.New("lsp session already started")
)

// FramingError is a malformed header or body on the wire. It is fatal to the
// connection.
type FramingError struct {
	Reason string `json:"reason"`
	Cause  error  `json:"cause,omitempty"`
}

func (e *FramingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("framing error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("framing error: %s", e.Reason)
}

func (e *FramingError) Unwrap() error {
	return e.Cause
}

// ProtocolError is a well-formed JSON-RPC error object returned by the server
// for one request. Sibling requests are unaffected.
type ProtocolError struct {
	Method  string          `json:"method,omitempty"`
	ID      int64           `json:"id"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ProtocolError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("LSP error %d (%s) for %s: %s", e.Code, CodeName(e.Code), e.Method, e.Message)
	}
	return fmt.Sprintf("LSP error %d (%s): %s", e.Code, CodeName(e.Code), e.Message)
}

// IsMethodNotFound returns true if the server does not implement the method
func (e *ProtocolError) IsMethodNotFound() bool {
	return e.Code == MethodNotFound
}

// IsRequestCancelled returns true if the server cancelled the request
func (e *ProtocolError) IsRequestCancelled() bool {
	return e.Code == RequestCancelled
}

// TimeoutError means no response arrived within the caller's deadline. The
// connection stays alive and a late response is discarded.
type TimeoutError struct {
	Method  string        `json:"method,omitempty"`
	ID      int64         `json:"id"`
	Timeout time.Duration `json:"timeout"`
}

func (e *TimeoutError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("request %d (%s) timed out after %v", e.ID, e.Method, e.Timeout)
	}
	return fmt.Sprintf("request %d timed out after %v", e.ID, e.Timeout)
}

// ProcessExitError means the language server terminated while the session
// was live. It is fatal to the connection.
type ProcessExitError struct {
	Command string   `json:"command"`
	Cause   error    `json:"cause,omitempty"`
	Stderr  []string `json:"stderr,omitempty"`
}

func (e *ProcessExitError) Error() string {
	msg := fmt.Sprintf("language server %s exited unexpectedly", e.Command)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if len(e.Stderr) > 0 {
		msg = fmt.Sprintf("%s (stderr: %s)", msg, e.Stderr[len(e.Stderr)-1])
	}
	return msg
}

func (e *ProcessExitError) Unwrap() error {
	return e.Cause
}

// StartupError means Start failed: spawn error, handshake error response,
// handshake timeout, or the process died first. No session is left running.
type StartupError struct {
	Command string `json:"command"`
	Cause   error  `json:"cause,omitempty"`
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("failed to start language server %s: %v", e.Command, e.Cause)
}

func (e *StartupError) Unwrap() error {
	return e.Cause
}

// ValidationError represents parameter validation errors
type ValidationError struct {
	Parameter string `json:"parameter"`
	Message   string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for parameter '%s': %s", e.Parameter, e.Message)
}

// Error constructors

// NewFramingError creates a framing error with an optional cause
func NewFramingError(reason string, cause error) *FramingError {
	return &FramingError{Reason: reason, Cause: cause}
}

// NewProtocolError creates a protocol error from a JSON-RPC error object
func NewProtocolError(id int64, code int, message string, data json.RawMessage) *ProtocolError {
	return &ProtocolError{ID: id, Code: code, Message: message, Data: data}
}

// NewTimeoutError creates a timeout error for one request
func NewTimeoutError(method string, id int64, timeout time.Duration) *TimeoutError {
	return &TimeoutError{Method: method, ID: id, Timeout: timeout}
}

// NewProcessExitError creates a process exit error
func NewProcessExitError(command string, cause error, stderr []string) *ProcessExitError {
	return &ProcessExitError{Command: command, Cause: cause, Stderr: stderr}
}

// NewStartupError creates a startup error
func NewStartupError(command string, cause error) *StartupError {
	return &StartupError{Command: command, Cause: cause}
}

// NewValidationError creates a new validation error for the specified parameter
func NewValidationError(parameter, message string) *ValidationError {
	return &ValidationError{Parameter: parameter, Message: message}
}

// Classification helpers

// IsFramingError checks if err is or wraps a FramingError
func IsFramingError(err error) bool {
	var target *FramingError
	return stderrors.As(err, &target)
}

// IsProtocolError checks if err is or wraps a ProtocolError
func IsProtocolError(err error) bool {
	var target *ProtocolError
	return stderrors.As(err, &target)
}

// IsTimeoutError checks if err is or wraps a TimeoutError
func IsTimeoutError(err error) bool {
	var target *TimeoutError
	return stderrors.As(err, &target)
}

// IsProcessExitError checks if err is or wraps a ProcessExitError
func IsProcessExitError(err error) bool {
	var target *ProcessExitError
	return stderrors.As(err, &target)
}

// IsStartupError checks if err is or wraps a StartupError
func IsStartupError(err error) bool {
	var target *StartupError
	return stderrors.As(err, &target)
}

// IsValidationError checks if err is or wraps a ValidationError
func IsValidationError(err error) bool {
	var target *ValidationError
	return stderrors.As(err, &target)
}

// IsConnectionFatal reports whether err means the whole connection is gone,
// as opposed to one call failing. Collaborators restart the session on these.
func IsConnectionFatal(err error) bool {
	if err == nil {
		return false
	}
	return IsFramingError(err) || IsProcessExitError(err) || stderrors.Is(err, ErrSessionStopped)
}

// WrapWithContext wraps an error with operation context
func WrapWithContext(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// Kind returns a short classification used as a metric attribute
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsTimeoutError(err):
		return "timeout"
	case IsProtocolError(err):
		return "protocol"
	case IsFramingError(err):
		return "framing"
	case IsProcessExitError(err):
		return "process_exit"
	case stderrors.Is(err, ErrSessionStopped):
		return "stopped"
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "other"
}

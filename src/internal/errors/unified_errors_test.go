package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		kind  string
		fatal bool
	}{
		{"framing", NewFramingError("bad header", nil), "framing", true},
		{"wrapped framing", fmt.Errorf("read: %w", NewFramingError("bad body", io.ErrUnexpectedEOF)), "framing", true},
		{"process exit", NewProcessExitError("pyright-langserver", nil, nil), "process_exit", true},
		{"stopped", ErrSessionStopped, "stopped", true},
		{"protocol", NewProtocolError(3, MethodNotFound, "nope", nil), "protocol", false},
		{"timeout", NewTimeoutError("textDocument/hover", 5, 100*time.Millisecond), "timeout", false},
		{"cancelled", context.Canceled, "cancelled", false},
		{"nil", nil, "ok", false},
		{"other", stderrors.New("x"), "other", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, Kind(tt.err))
			assert.Equal(t, tt.fatal, IsConnectionFatal(tt.err))
		})
	}
}

func TestProtocolErrorMessage(t *testing.T) {
	err := NewProtocolError(7, MethodNotFound, "unhandled method", nil)
	assert.True(t, err.IsMethodNotFound())
	assert.False(t, err.IsRequestCancelled())
	assert.Equal(t, "LSP error -32601 (method_not_found): unhandled method", err.Error())

	err.Method = "textDocument/foo"
	assert.Contains(t, err.Error(), "for textDocument/foo")
}

func TestStartupErrorUnwraps(t *testing.T) {
	cause := NewTimeoutError("initialize", 1, time.Second)
	err := NewStartupError("pyright-langserver", cause)

	require.True(t, IsStartupError(err))
	assert.True(t, IsTimeoutError(err))

	var te *TimeoutError
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, int64(1), te.ID)
}

func TestProcessExitErrorIncludesStderrTail(t *testing.T) {
	err := NewProcessExitError("srv", stderrors.New("exit status 3"), []string{"first", "last line"})
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "last line")
	assert.NotContains(t, err.Error(), "first")
}

func TestCodeName(t *testing.T) {
	assert.Equal(t, "parse_error", CodeName(ParseError))
	assert.Equal(t, "content_modified", CodeName(ContentModified))
	assert.Equal(t, "server_error", CodeName(-32050))
}

func TestValidationError(t *testing.T) {
	err := WrapWithContext("definition", NewValidationError("line", "must be >= 1"))
	assert.True(t, IsValidationError(err))
	assert.Equal(t, "definition: validation error for parameter 'line': must be >= 1", err.Error())
	assert.Nil(t, WrapWithContext("noop", nil))
}

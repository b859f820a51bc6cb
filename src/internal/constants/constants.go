package constants

import "time"

// Timeout constants for LSP operations
const (
	// DefaultRequestTimeout bounds a single request when the caller gives none
	DefaultRequestTimeout = 30 * time.Second

	// DefaultInitializeTimeout bounds the initialize handshake
	DefaultInitializeTimeout = 30 * time.Second

	// ProcessShutdownTimeout is the grace period between the terminate
	// signal and a forced kill
	ProcessShutdownTimeout = 5 * time.Second

	// DispatchStopTimeout bounds how long Stop waits for the dispatch loop
	DispatchStopTimeout = 2 * time.Second

	// ExitStatusWait bounds how long the dispatch loop waits for the child to
	// be reaped after stdout closes, to attach an exit status to the error
	ExitStatusWait = 500 * time.Millisecond

	// DiagnosticsWait is how long a diagnostics read waits for the server to
	// publish after a document was opened
	DiagnosticsWait = 500 * time.Millisecond
)

// Protocol buffer sizing
const (
	// LSPResponseBufferSize is the read buffer for server stdout. Large
	// workspace/symbol responses arrive in one frame.
	LSPResponseBufferSize = 1024 * 1024

	// MaxFrameBodySize rejects absurd Content-Length values before allocating
	MaxFrameBodySize = 256 * 1024 * 1024

	// StderrTailLines is how many stderr lines are kept for error context
	StderrTailLines = 20
)

// Client identity sent during initialize
const (
	ClientName    = "agents-ide"
	ClientVersion = "1.0.0"
)

// DefaultLanguageServer is launched when no config file exists
var DefaultLanguageServer = []string{"pyright-langserver", "--stdio"}

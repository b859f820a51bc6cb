// Package lsp implements a persistent client session to a language server
// speaking JSON-RPC over stdio.
//
// A Session owns one server process. Start spawns it, runs the dispatch loop
// and performs the initialize/initialized handshake. Request and Notify may
// be called from many goroutines; requests are written in id order and their
// responses are routed by id in whatever order the server produces them.
// Push diagnostics are kept per document and read with LatestNotification.
//
// Errors from Request are typed (see agents-ide/src/internal/errors):
// ProtocolError and TimeoutError affect one call only, while FramingError,
// ProcessExitError and ErrSessionStopped mean the connection is gone and a
// new Session is needed.
package lsp

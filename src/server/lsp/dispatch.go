package lsp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"go.lsp.dev/protocol"

	"agents-ide/src/internal/common"
	"agents-ide/src/internal/constants"
	"agents-ide/src/internal/errors"
	"agents-ide/src/server/process"
	lspproto "agents-ide/src/server/protocol"
)

// loopState is the dispatch loop's position. The loop never decodes the
// next frame before the current one is routed.
type loopState int

const (
	loopIdle loopState = iota
	loopReadingFrame
	loopRouting
	loopStopped
)

func (s loopState) String() string {
	switch s {
	case loopIdle:
		return "Idle"
	case loopReadingFrame:
		return "ReadingFrame"
	case loopRouting:
		return "Routing"
	case loopStopped:
		return "Stopped"
	}
	return "Unknown"
}

// frameResult is what ReadingFrame hands to Routing: a message, or the
// reason the stream ended
type frameResult struct {
	msg *lspproto.Message
	err error
}

// dispatchLoop is the only reader of the server's stdout
func (s *Session) dispatchLoop(proc *process.Process, dec *lspproto.Decoder) {
	defer close(s.loopDone)

	state := loopIdle
	var frame frameResult
	var cause error
	for state != loopStopped {
		switch state {
		case loopIdle:
			state = loopReadingFrame

		case loopReadingFrame:
			msg, err := dec.Decode()
			frame = frameResult{msg: msg, err: err}
			state = loopRouting

		case loopRouting:
			if frame.err != nil {
				cause = s.classifyStreamEnd(proc, frame.err)
				state = loopStopped
				continue
			}
			s.route(proc, frame.msg)
			frame = frameResult{}
			state = loopReadingFrame
		}
	}

	s.loopStopped(cause)
}

// classifyStreamEnd turns a decode failure into the error pending calls
// will see
func (s *Session) classifyStreamEnd(proc *process.Process, err error) error {
	if s.stopping.Load() {
		return errors.ErrSessionStopped
	}
	if errors.IsFramingError(err) {
		return err
	}
	if err != io.EOF {
		s.logger.Debug("stdout read failed: %v", err)
	}
	// Give the reaper a moment so the exit status can be reported
	select {
	case <-proc.Done():
	case <-time.After(constants.ExitStatusWait):
	}
	if s.stopping.Load() {
		return errors.ErrSessionStopped
	}
	exitErr := proc.ExitErr()
	if exitErr == nil {
		if proc.Exited() {
			exitErr = fmt.Errorf("exited with status 0")
		} else {
			exitErr = fmt.Errorf("stdout closed")
		}
	}
	return errors.NewProcessExitError(proc.Command(), exitErr, proc.StderrTail())
}

func (s *Session) loopStopped(cause error) {
	n := s.table.Close(cause)
	if stderrors.Is(cause, errors.ErrSessionStopped) {
		s.logger.Debug("Dispatch loop stopped")
		return
	}
	s.logger.Error("Connection lost, failed %d pending requests: %v", n, cause)
	go s.stopOnce.Do(func() { s.shutdown(cause, false) })
}

func (s *Session) route(proc *process.Process, msg *lspproto.Message) {
	switch {
	case msg.IsResponse():
		s.routeResponse(msg)
	case msg.IsNotification():
		s.routeNotification(msg)
	case msg.IsRequest():
		s.metrics.recordServerRequest(context.Background(), msg.Method)
		go s.answerServerRequest(proc, msg)
	default:
		if msg.Error != nil {
			s.logger.Warn("Dropping error without request id: %s", common.SanitizeErrorForLogging(msg.Error.Message))
		} else {
			s.logger.Warn("Dropping malformed message (no id and no method)")
		}
	}
}

func (s *Session) routeResponse(msg *lspproto.Message) {
	id, ok := msg.IntID()
	if !ok {
		s.logger.Warn("Dropping response with non-integer id %s", string(msg.ID))
		return
	}
	var delivered bool
	if msg.Error != nil {
		s.logger.Debug("<- error %d: %s", id, common.SanitizeErrorForLogging(msg.Error.Message))
		delivered = s.table.Fail(id, errors.NewProtocolError(id, msg.Error.Code, msg.Error.Message, msg.Error.Data))
	} else {
		result := msg.Result
		if len(result) == 0 {
			result = json.RawMessage("null")
		}
		s.logger.Debug("<- response %d (%d bytes)", id, len(result))
		delivered = s.table.Resolve(id, result)
	}
	if !delivered {
		s.metrics.discardedResponses.Add(context.Background(), 1)
	}
}

func (s *Session) routeNotification(msg *lspproto.Message) {
	s.metrics.recordNotification(context.Background(), msg.Method)

	switch msg.Method {
	case protocol.MethodTextDocumentPublishDiagnostics:
		var params struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(msg.Params, &params); err != nil || params.URI == "" {
			s.logger.Warn("Dropping diagnostics without a document uri")
			return
		}
		gen := s.store.Put(params.URI, msg.Params)
		s.logger.Debug("<- diagnostics for %s (generation %d)", params.URI, gen)

	case protocol.MethodWindowLogMessage, protocol.MethodWindowShowMessage:
		var params protocol.LogMessageParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return
		}
		s.logServerMessage(params.Type, params.Message)

	default:
		s.logger.Debug("<- notification %s (ignored)", msg.Method)
	}
}

func (s *Session) logServerMessage(kind protocol.MessageType, message string) {
	message = common.SanitizeErrorForLogging(message)
	switch kind {
	case protocol.MessageTypeError:
		s.logger.Error("server: %s", message)
	case protocol.MessageTypeWarning:
		s.logger.Warn("server: %s", message)
	case protocol.MessageTypeInfo:
		s.logger.Info("server: %s", message)
	default:
		s.logger.Debug("server: %s", message)
	}
}

// answerServerRequest replies to a request the server sent us. It runs off
// the dispatch loop so a blocked stdin can never stall stdout reading.
func (s *Session) answerServerRequest(proc *process.Process, msg *lspproto.Message) {
	var result interface{}
	switch msg.Method {
	case protocol.MethodWorkspaceConfiguration:
		var params protocol.ConfigurationParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			s.logger.Debug("Malformed workspace/configuration params: %v", err)
		}
		items := make([]map[string]interface{}, len(params.Items))
		for i := range items {
			items[i] = map[string]interface{}{}
		}
		result = items
	default:
		s.logger.Debug("<- server request %s answered with null", msg.Method)
	}

	resp, err := lspproto.NewResponse(msg.ID, result, nil)
	if err != nil {
		s.logger.Error("Failed to build reply to %s: %v", msg.Method, err)
		return
	}
	if err := lspproto.WriteMessage(proc, resp); err != nil {
		s.logger.Debug("Failed to reply to %s: %v", msg.Method, err)
	}
}

// Package lsptest provides a fake language server for tests. The test
// binary re-executes itself with ModeEnv set and serves the real framing on
// stdin/stdout.
package lsptest

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"agents-ide/src/server/process"
	lspproto "agents-ide/src/server/protocol"
)

// ModeEnv selects the stub behaviour in the child process
const ModeEnv = "AGENTS_IDE_STUB_LSP"

// Stub modes
const (
	ModeOK         = "ok"
	ModeInitError  = "initerror"
	ModeInitExit   = "initexit"
	ModeInitSilent = "initsilent"
	// ModeInitSlow answers initialize after InitDelay
	ModeInitSlow   = "initslow"
)

// InitDelay is how long ModeInitSlow takes to answer initialize
const InitDelay = 400 * time.Millisecond

// Main is used as TestMain by packages that spawn the stub. In the child it
// serves the stub and exits; in the parent it runs the tests.
func Main(m *testing.M) {
	if mode := os.Getenv(ModeEnv); mode != "" {
		os.Exit(Run(mode))
	}
	os.Exit(m.Run())
}

// ProcessConfig launches the current test binary as a stub server
func ProcessConfig(mode string) process.Config {
	return process.Config{
		Command:         os.Args[0],
		Args:            []string{"-test.run=^$"},
		Env:             []string{ModeEnv + "=" + mode},
		ShutdownTimeout: 500 * time.Millisecond,
	}
}

type stubServer struct {
	mode string
	dec  *lspproto.Decoder

	held  []*lspproto.Message
	never []*lspproto.Message
	// arrivals holds request ids in the order they were read
	arrivals []json.RawMessage
	// waiting maps an id we sent to the client onto the request that
	// triggered it
	waiting map[string]*lspproto.Message
}

// Run serves the stub on stdin/stdout until exit or end of input and
// returns the process exit code
func Run(mode string) int {
	s := &stubServer{
		mode:    mode,
		dec:     lspproto.NewDecoder(os.Stdin),
		waiting: make(map[string]*lspproto.Message),
	}
	for {
		msg, err := s.dec.Decode()
		if err != nil {
			return 0
		}
		if code, exit := s.handle(msg); exit {
			return code
		}
	}
}

func (s *stubServer) send(msg *lspproto.Message) {
	_ = lspproto.WriteMessage(os.Stdout, msg)
}

func (s *stubServer) reply(req *lspproto.Message, result interface{}) {
	resp, err := lspproto.NewResponse(req.ID, result, nil)
	if err != nil {
		panic(err)
	}
	s.send(resp)
}

func (s *stubServer) replyError(req *lspproto.Message, code int, message string) {
	resp, _ := lspproto.NewResponse(req.ID, nil, &lspproto.RPCError{Code: code, Message: message})
	s.send(resp)
}

func (s *stubServer) notify(method string, params interface{}) {
	msg, err := lspproto.NewNotification(method, params)
	if err != nil {
		panic(err)
	}
	s.send(msg)
}

func (s *stubServer) publishDiagnostics(uri, message string) {
	s.notify("textDocument/publishDiagnostics", map[string]interface{}{
		"uri": uri,
		"diagnostics": []interface{}{
			map[string]interface{}{
				"range": map[string]interface{}{
					"start": map[string]int{"line": 0, "character": 0},
					"end":   map[string]int{"line": 0, "character": 1},
				},
				"severity": 1,
				"message":  message,
			},
		},
	})
}

func stubRange(line, start, end int) map[string]interface{} {
	return map[string]interface{}{
		"start": map[string]int{"line": line, "character": start},
		"end":   map[string]int{"line": line, "character": end},
	}
}

type stubParams struct {
	Tag   string `json:"tag"`
	Hold  int    `json:"hold"`
	URI   string `json:"uri"`
	Sleep int    `json:"sleepMs"`

	TextDocument struct {
		URI string `json:"uri"`
	} `json:"textDocument"`
}

func (s *stubServer) handle(msg *lspproto.Message) (int, bool) {
	var p stubParams
	if len(msg.Params) > 0 {
		_ = json.Unmarshal(msg.Params, &p)
	}
	if msg.IsRequest() {
		s.arrivals = append(s.arrivals, msg.ID)
	}

	if msg.IsResponse() {
		if orig, ok := s.waiting[string(msg.ID)]; ok {
			delete(s.waiting, string(msg.ID))
			s.reply(orig, msg.Result)
		}
		return 0, false
	}

	switch msg.Method {
	case "initialize":
		switch s.mode {
		case ModeInitError:
			s.replyError(msg, -32603, "stub refuses to initialize")
		case ModeInitExit:
			fmt.Fprintln(os.Stderr, "fatal: stub crashed during initialize")
			return 2, true
		case ModeInitSilent:
		case ModeInitSlow:
			time.Sleep(InitDelay)
			s.reply(msg, map[string]interface{}{"capabilities": map[string]interface{}{}})
		default:
			s.reply(msg, map[string]interface{}{
				"capabilities": map[string]interface{}{"hoverProvider": true},
				"serverInfo":   map[string]string{"name": "stub"},
			})
		}
	case "initialized":
	case "shutdown":
		s.reply(msg, nil)
	case "exit":
		return 0, true

	case "test/echo":
		if p.Sleep > 0 {
			time.Sleep(time.Duration(p.Sleep) * time.Millisecond)
		}
		s.reply(msg, json.RawMessage(msg.Params))
	case "test/hold":
		s.held = append(s.held, msg)
		if len(s.held) >= p.Hold {
			for i := len(s.held) - 1; i >= 0; i-- {
				req := s.held[i]
				var hp stubParams
				_ = json.Unmarshal(req.Params, &hp)
				s.reply(req, map[string]interface{}{"tag": hp.Tag, "id": json.RawMessage(req.ID)})
			}
			s.held = nil
		}
	case "test/arrivals":
		s.reply(msg, s.arrivals)
	case "test/never":
		s.never = append(s.never, msg)
	case "test/flush":
		for _, req := range s.never {
			s.reply(req, "late")
		}
		s.never = nil
	case "test/error":
		s.replyError(msg, -32601, "unhandled method test/error")
	case "test/diagnose":
		s.publishDiagnostics(p.URI, "stub diagnostic")
	case "test/garbage":
		fmt.Fprint(os.Stdout, "Content-Length: nope\r\n\r\n{}")
	case "test/crash":
		fmt.Fprintln(os.Stderr, "stub: simulated crash")
		return 3, true
	case "test/askConfig":
		id := fmt.Sprintf(`"cfg-%s"`, string(msg.ID))
		s.waiting[id] = msg
		s.send(&lspproto.Message{
			JSONRPC: lspproto.JSONRPCVersion,
			ID:      json.RawMessage(id),
			Method:  "workspace/configuration",
			Params:  json.RawMessage(`{"items":[{"section":"python"},{"section":"python.analysis"}]}`),
		})
	case "textDocument/didOpen":
		s.publishDiagnostics(p.TextDocument.URI, "opened")
	case "textDocument/hover":
		s.reply(msg, map[string]interface{}{
			"contents": map[string]string{"kind": "markdown", "value": "stub hover"},
		})
	case "textDocument/definition":
		s.reply(msg, []interface{}{map[string]interface{}{
			"uri":   p.TextDocument.URI,
			"range": stubRange(0, 4, 8),
		}})
	case "textDocument/documentSymbol":
		s.reply(msg, []interface{}{map[string]interface{}{
			"name":           "Greeter",
			"kind":           5,
			"range":          stubRange(0, 0, 10),
			"selectionRange": stubRange(0, 6, 13),
			"children": []interface{}{map[string]interface{}{
				"name":           "greet",
				"kind":           6,
				"range":          stubRange(1, 4, 20),
				"selectionRange": stubRange(1, 8, 13),
			}},
		}})
	default:
		if msg.IsRequest() {
			s.replyError(msg, -32601, "method not found: "+msg.Method)
		}
	}
	return 0, false
}

package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"agents-ide/src/internal/constants"
	"agents-ide/src/internal/errors"
)

// JSON-RPC protocol constants
const (
	JSONRPCVersion = "2.0"

	headerContentLength = "content-length"
	headerTerminator    = "\r\n\r\n"
)

// Message is a JSON-RPC 2.0 envelope. Payload fields stay raw so the
// dispatch loop decides how to decode them, and so server-chosen ids (which
// may be strings) can be echoed back untouched.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// IsRequest reports a server-initiated request (method and id)
func (m *Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

// IsNotification reports a push message (method, no id)
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IsResponse reports a reply to one of our requests (id, no method)
func (m *Message) IsResponse() bool {
	return m.Method == "" && len(m.ID) > 0
}

// IntID returns the id as an integer. Client-issued ids are always integers;
// ok is false for string or null ids.
func (m *Message) IntID() (int64, bool) {
	if len(m.ID) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(string(bytes.TrimSpace(m.ID)), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return data, nil
}

// NewRequest creates a request with an integer id
func NewRequest(id int64, method string, params interface{}) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
		Method:  method,
		Params:  raw,
	}, nil
}

// NewNotification creates a notification (no id). Nil params are omitted.
func NewNotification(method string, params interface{}) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: JSONRPCVersion, Method: method, Params: raw}, nil
}

// NewResponse answers a server-initiated request. A nil result is sent as
// an explicit null so the envelope always carries result or error.
func NewResponse(id json.RawMessage, result interface{}, rpcErr *RPCError) (*Message, error) {
	msg := &Message{JSONRPC: JSONRPCVersion, ID: id, Error: rpcErr}
	if rpcErr != nil {
		return msg, nil
	}
	raw, err := marshalParams(result)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = json.RawMessage("null")
	}
	msg.Result = raw
	return msg, nil
}

// Encode renders msg as one frame: the Content-Length header, the blank
// line, then the JSON body. The header carries the body's byte length.
func Encode(msg *Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(body) + 32)
	fmt.Fprintf(&buf, "Content-Length: %d%s", len(body), headerTerminator)
	buf.Write(body)
	return buf.Bytes(), nil
}

// WriteMessage encodes msg and writes it with a single Write call, so a
// writer serialized per call never interleaves two frames.
func WriteMessage(w io.Writer, msg *Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// Decoder reads frames from a byte stream. It is not safe for concurrent use;
// the dispatch loop is its only caller.
type Decoder struct {
	r       *bufio.Reader
	maxBody int
}

// NewDecoder creates a decoder with the default buffer and body limits
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:       bufio.NewReaderSize(r, constants.LSPResponseBufferSize),
		maxBody: constants.MaxFrameBodySize,
	}
}

// SetMaxBodySize overrides the largest Content-Length accepted
func (d *Decoder) SetMaxBodySize(n int) {
	d.maxBody = n
}

// ReadFrame returns the raw body of the next frame. It returns io.EOF when
// the stream ends, including mid-header or mid-body, and a FramingError when
// the header is unusable.
func (d *Decoder) ReadFrame() ([]byte, error) {
	length := -1
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			// Partial header at end of stream is still end of stream
			return nil, io.EOF
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return nil, errors.NewFramingError(fmt.Sprintf("malformed header line %q", line), nil)
		}
		if strings.ToLower(strings.TrimSpace(name)) != headerContentLength {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, errors.NewFramingError(fmt.Sprintf("invalid Content-Length %q", strings.TrimSpace(value)), err)
		}
		if n < 0 {
			return nil, errors.NewFramingError(fmt.Sprintf("negative Content-Length %d", n), nil)
		}
		length = n
	}

	if length < 0 {
		return nil, errors.NewFramingError("missing Content-Length header", nil)
	}
	if d.maxBody > 0 && length > d.maxBody {
		return nil, errors.NewFramingError(fmt.Sprintf("Content-Length %d exceeds limit %d", length, d.maxBody), nil)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return nil, io.EOF
	}
	return body, nil
}

// Decode reads and parses the next message
func (d *Decoder) Decode() (*Message, error) {
	body, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	return Unmarshal(body)
}

// Unmarshal parses one frame body. Bodies that are not a JSON object are
// framing errors: the stream can no longer be trusted.
func Unmarshal(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, errors.NewFramingError("invalid JSON body", err)
	}
	if bytes.Equal(bytes.TrimSpace(msg.ID), []byte("null")) {
		msg.ID = nil
	}
	return &msg, nil
}

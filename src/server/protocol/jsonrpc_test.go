package protocol

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agents-ide/src/internal/errors"
)

func frame(body string) string {
	return "Content-Length: " + itoa(len(body)) + "\r\n\r\n" + body
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func TestEncodeUsesByteLength(t *testing.T) {
	msg, err := NewNotification("window/showMessage", map[string]string{"message": "héllo ✓"})
	require.NoError(t, err)

	out, err := Encode(msg)
	require.NoError(t, err)

	parts := bytes.SplitN(out, []byte("\r\n\r\n"), 2)
	require.Len(t, parts, 2)
	body := parts[1]
	assert.Equal(t, "Content-Length: "+itoa(len(body)), string(parts[0]))
	assert.Greater(t, len(body), len([]rune(string(body))), "body should contain multi-byte runes")
}

func TestRequestRoundTrip(t *testing.T) {
	params := map[string]interface{}{
		"textDocument": map[string]interface{}{"uri": "file:///a.py"},
		"position":     map[string]interface{}{"line": float64(3), "character": float64(7)},
	}
	req, err := NewRequest(42, "textDocument/definition", params)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, WriteMessage(buf, req))

	got, err := NewDecoder(buf).Decode()
	require.NoError(t, err)

	assert.True(t, got.IsRequest())
	id, ok := got.IntID()
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "textDocument/definition", got.Method)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(got.Params, &decoded))
	assert.Equal(t, params, decoded)
}

func TestDecodeSequentialFrames(t *testing.T) {
	stream := frame(`{"jsonrpc":"2.0","id":2,"result":{"b":2}}`) +
		frame(`{"jsonrpc":"2.0","method":"textDocument/publishDiagnostics","params":{"uri":"file:///a.py","diagnostics":[]}}`) +
		frame(`{"jsonrpc":"2.0","id":1,"result":null}`)
	dec := NewDecoder(strings.NewReader(stream))

	first, err := dec.Decode()
	require.NoError(t, err)
	assert.True(t, first.IsResponse())
	assert.JSONEq(t, `{"b":2}`, string(first.Result))

	second, err := dec.Decode()
	require.NoError(t, err)
	assert.True(t, second.IsNotification())
	assert.Equal(t, "textDocument/publishDiagnostics", second.Method)

	third, err := dec.Decode()
	require.NoError(t, err)
	assert.True(t, third.IsResponse())
	assert.Equal(t, "null", string(third.Result))

	_, err = dec.Decode()
	assert.Equal(t, io.EOF, err)
}

func TestDecodeHeaderVariants(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"result":true}`
	stream := "content-length: " + itoa(len(body)) + "\r\n" +
		"Content-Type: application/vscode-jsonrpc; charset=utf-8\r\n\r\n" + body

	msg, err := NewDecoder(strings.NewReader(stream)).Decode()
	require.NoError(t, err)
	assert.Equal(t, "true", string(msg.Result))
}

func TestDecodeFramingErrors(t *testing.T) {
	tests := []struct {
		name   string
		stream string
	}{
		{"missing content length", "Content-Type: x\r\n\r\n{}"},
		{"non numeric length", "Content-Length: abc\r\n\r\n{}"},
		{"negative length", "Content-Length: -4\r\n\r\n{}"},
		{"header without colon", "garbage\r\n\r\n{}"},
		{"invalid json body", frame("not json at all")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(strings.NewReader(tt.stream)).Decode()
			require.Error(t, err)
			assert.True(t, errors.IsFramingError(err), "got %v", err)
		})
	}
}

func TestDecodeBodyLimit(t *testing.T) {
	dec := NewDecoder(strings.NewReader(frame(`{"jsonrpc":"2.0","id":1,"result":"xxxxxxxx"}`)))
	dec.SetMaxBodySize(8)

	_, err := dec.Decode()
	assert.True(t, errors.IsFramingError(err))
}

func TestDecodeEndOfStream(t *testing.T) {
	tests := []struct {
		name   string
		stream string
	}{
		{"empty", ""},
		{"mid header", "Content-Len"},
		{"after header", "Content-Length: 10\r\n"},
		{"mid body", "Content-Length: 40\r\n\r\n{\"jsonrpc\":"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(strings.NewReader(tt.stream)).Decode()
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestMessageShapes(t *testing.T) {
	req, err := Unmarshal([]byte(`{"jsonrpc":"2.0","id":"srv-1","method":"workspace/configuration","params":{"items":[{}]}}`))
	require.NoError(t, err)
	assert.True(t, req.IsRequest())
	_, ok := req.IntID()
	assert.False(t, ok, "string ids are not client ids")

	nullID, err := Unmarshal([]byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`))
	require.NoError(t, err)
	assert.False(t, nullID.IsResponse())
	assert.False(t, nullID.IsNotification())
	assert.False(t, nullID.IsRequest())
}

func TestNewResponse(t *testing.T) {
	resp, err := NewResponse(json.RawMessage(`"srv-1"`), nil, nil)
	require.NoError(t, err)
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"srv-1","result":null}`, string(out))

	resp, err = NewResponse(json.RawMessage(`7`), []interface{}{map[string]interface{}{}}, nil)
	require.NoError(t, err)
	out, err = json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":[{}]}`, string(out))

	resp, err = NewResponse(json.RawMessage(`8`), nil, &RPCError{Code: errors.MethodNotFound, Message: "unsupported"})
	require.NoError(t, err)
	out, err = json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":8,"error":{"code":-32601,"message":"unsupported"}}`, string(out))
}

func TestNotificationOmitsNilParams(t *testing.T) {
	msg, err := NewNotification("exit", nil)
	require.NoError(t, err)
	out, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"exit"}`, string(out))
}

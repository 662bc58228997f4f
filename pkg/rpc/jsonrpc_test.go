package rpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	id := json.RawMessage(`7`)
	require.NoError(t, WriteMessage(&buf, &Message{ID: &id, Method: MethodStatus}))

	assert.True(t, strings.HasPrefix(buf.String(), "Content-Length: "))

	msg, err := ReadMessage(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "2.0", msg.JSONRPC)
	assert.Equal(t, MethodStatus, msg.Method)
	assert.Equal(t, "7", string(*msg.ID))
	assert.False(t, msg.IsNotification())
}

func TestReadMessage_HeaderCaseAndLeadingBlankLines(t *testing.T) {
	body := `{"jsonrpc":"2.0","method":"exit"}`
	raw := "\r\ncontent-length: " + itoa(len(body)) + "\r\nContent-Type: application/vscode-jsonrpc\r\n\r\n" + body

	msg, err := ReadMessage(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, MethodExit, msg.Method)
	assert.True(t, msg.IsNotification())
}

func TestReadMessage_EOF(t *testing.T) {
	_, err := ReadMessage(bufio.NewReader(strings.NewReader("")))
	assert.Equal(t, io.EOF, err)

	_, err = ReadMessage(bufio.NewReader(strings.NewReader("Content-Length: 5\r\n")))
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestReadMessage_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing length", "Content-Type: x\r\n\r\n{}"},
		{"bad length", "Content-Length: abc\r\n\r\n{}"},
		{"negative length", "Content-Length: -1\r\n\r\n{}"},
		{"malformed header", "garbage\r\n\r\n{}"},
		{"short body", "Content-Length: 50\r\n\r\n{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMessage(bufio.NewReader(strings.NewReader(tt.raw)))
			assert.Error(t, err)
		})
	}
}

func TestReadMessage_ParseError(t *testing.T) {
	_, err := ReadMessage(bufio.NewReader(strings.NewReader("Content-Length: 3\r\n\r\n{x}")))
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ParseError, rpcErr.Code)
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

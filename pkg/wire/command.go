package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Terminator ends every frame on the wire.
const Terminator = "\r\n"

// ErrEmptyMethod is returned when encoding a command without a method name.
var ErrEmptyMethod = errors.New("command method is empty")

// Command is a single request sent to a device.
type Command struct {
	ID     uint16 `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// NewCommand creates a command. A nil params slice is encoded as [].
func NewCommand(id uint16, method string, params ...any) Command {
	if params == nil {
		params = []any{}
	}
	return Command{ID: id, Method: method, Params: params}
}

// EncodeCommand encodes a command as one JSON object followed by "\r\n".
func EncodeCommand(cmd Command) ([]byte, error) {
	if cmd.Method == "" {
		return nil, ErrEmptyMethod
	}
	if cmd.Params == nil {
		cmd.Params = []any{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cmd); err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Method, err)
	}

	// Encoder appends '\n'; the device expects CRLF.
	out := buf.Bytes()
	out = append(out[:len(out)-1], Terminator...)
	return out, nil
}

// DecodeCommand parses an encoded command line. Used by test peers.
func DecodeCommand(line []byte) (Command, error) {
	var cmd Command
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimSpace(line)))
	dec.UseNumber()
	if err := dec.Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if cmd.Method == "" {
		return Command{}, fmt.Errorf("%w: missing method", ErrMalformedFrame)
	}
	for i, p := range cmd.Params {
		if n, ok := p.(json.Number); ok {
			cmd.Params[i] = numberValue(n)
		}
	}
	return cmd, nil
}

// numberValue converts a json.Number to int when integral, float64 otherwise.
func numberValue(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	f, _ := n.Float64()
	return f
}

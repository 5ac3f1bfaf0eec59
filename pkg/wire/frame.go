package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// PropsMethod is the method name carried by property notifications.
const PropsMethod = "props"

// PropsResultLen is the minimum number of result values treated as a
// property payload.
const PropsResultLen = 21

// ErrMalformedFrame is returned for lines that are not a valid frame.
var ErrMalformedFrame = errors.New("malformed frame")

// FrameType distinguishes responses from notifications.
type FrameType uint8

const (
	// FrameResponse is a reply correlated to a command by id.
	FrameResponse FrameType = iota

	// FrameNotification is an unsolicited message without an id.
	FrameNotification
)

// String returns the frame type name.
func (t FrameType) String() string {
	switch t {
	case FrameResponse:
		return "RESPONSE"
	case FrameNotification:
		return "NOTIFICATION"
	default:
		return "UNKNOWN"
	}
}

// ResponseKind classifies the payload of a response frame.
type ResponseKind uint8

const (
	// ResponseUnexpected is a parseable response of no known shape.
	ResponseUnexpected ResponseKind = iota

	// ResponseOK is a result array starting with "ok".
	ResponseOK

	// ResponseProps is a result array of property values.
	ResponseProps

	// ResponseError carries a device error object.
	ResponseError
)

// String returns the response kind name.
func (k ResponseKind) String() string {
	switch k {
	case ResponseOK:
		return "OK"
	case ResponseProps:
		return "PROPS"
	case ResponseError:
		return "ERROR"
	default:
		return "UNEXPECTED"
	}
}

// Frame is one decoded line received from a device.
type Frame struct {
	Type FrameType

	// Response fields.
	ID     uint16
	Kind   ResponseKind
	Result []any
	Error  *DeviceError

	// Notification fields.
	Method string
	Params map[string]any
}

// Err returns the error a response frame resolves its waiter with.
// OK and property responses return nil.
func (f *Frame) Err() error {
	switch f.Kind {
	case ResponseOK, ResponseProps:
		return nil
	case ResponseError:
		if f.Error != nil {
			return f.Error
		}
		return ErrDevice
	default:
		return ErrUnexpectedResponse
	}
}

// ResultCode returns the Result code of a response frame.
func (f *Frame) ResultCode() Result {
	return ResultOf(f.Err())
}

// IsProps reports whether the frame is a property notification.
func (f *Frame) IsProps() bool {
	return f.Type == FrameNotification && f.Method == PropsMethod
}

type rawFrame struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
	Params json.RawMessage `json:"params"`
}

type rawError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DecodeFrame decodes and classifies a single line.
//
// A numeric id makes the line a response. Without an id the line must carry
// a method and is returned as a notification.
func DecodeFrame(line []byte) (*Frame, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty line", ErrMalformedFrame)
	}

	var raw rawFrame
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if len(raw.ID) > 0 && !bytes.Equal(raw.ID, []byte("null")) {
		id, err := strconv.ParseUint(string(raw.ID), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid id %s", ErrMalformedFrame, raw.ID)
		}
		f := &Frame{Type: FrameResponse, ID: uint16(id)}
		classifyResponse(f, &raw)
		return f, nil
	}

	if raw.Method == "" {
		return nil, fmt.Errorf("%w: neither id nor method", ErrMalformedFrame)
	}

	f := &Frame{Type: FrameNotification, Method: raw.Method}
	if len(raw.Params) > 0 && !bytes.Equal(raw.Params, []byte("null")) {
		if err := json.Unmarshal(raw.Params, &f.Params); err != nil {
			return nil, fmt.Errorf("%w: notification params: %v", ErrMalformedFrame, err)
		}
	}
	if f.Params == nil {
		f.Params = map[string]any{}
	}
	return f, nil
}

func classifyResponse(f *Frame, raw *rawFrame) {
	if len(raw.Error) > 0 && !bytes.Equal(raw.Error, []byte("null")) {
		var e rawError
		if err := json.Unmarshal(raw.Error, &e); err != nil {
			f.Kind = ResponseUnexpected
			return
		}
		f.Kind = ResponseError
		f.Error = &DeviceError{Code: e.Code, Message: e.Message}
		return
	}

	if len(raw.Result) == 0 {
		f.Kind = ResponseUnexpected
		return
	}
	var values []any
	if err := json.Unmarshal(raw.Result, &values); err != nil {
		f.Kind = ResponseUnexpected
		return
	}
	f.Result = values

	if len(values) >= 1 {
		if s, ok := values[0].(string); ok && s == "ok" {
			f.Kind = ResponseOK
			return
		}
	}
	if len(values) >= PropsResultLen && allScalars(values) {
		f.Kind = ResponseProps
		return
	}
	f.Kind = ResponseUnexpected
}

func allScalars(values []any) bool {
	for _, v := range values {
		switch v.(type) {
		case string, float64, bool:
		default:
			return false
		}
	}
	return true
}

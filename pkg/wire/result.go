package wire

import (
	"errors"
	"fmt"
)

// Result represents the outcome of an operation.
type Result uint8

const (
	// ResultSuccess indicates the device acknowledged the command.
	ResultSuccess Result = iota

	// ResultDeviceNotFound indicates no device answered for the requested address.
	ResultDeviceNotFound

	// ResultMethodNotSupported indicates the capability bit for the method is unset.
	ResultMethodNotSupported

	// ResultInvalidParams indicates a client-side range check failed. No I/O was performed.
	ResultInvalidParams

	// ResultError indicates the device reported a protocol-level error.
	ResultError

	// ResultUnexpectedResponse indicates a parseable but ill-shaped response.
	ResultUnexpectedResponse

	// ResultTimeout indicates no matching response arrived within the timeout.
	ResultTimeout

	// ResultConnectionFailed indicates connect retries were exhausted or the
	// direct-channel handoff timed out.
	ResultConnectionFailed

	// ResultConnectionLost indicates the channel dropped before or while
	// awaiting a response.
	ResultConnectionLost

	// ResultInProgress indicates a concurrent connect is already underway.
	ResultInProgress
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultDeviceNotFound:
		return "DEVICE_NOT_FOUND"
	case ResultMethodNotSupported:
		return "METHOD_NOT_SUPPORTED"
	case ResultInvalidParams:
		return "INVALID_PARAMS"
	case ResultError:
		return "ERROR"
	case ResultUnexpectedResponse:
		return "UNEXPECTED_RESPONSE"
	case ResultTimeout:
		return "TIMEOUT"
	case ResultConnectionFailed:
		return "CONNECTION_FAILED"
	case ResultConnectionLost:
		return "CONNECTION_LOST"
	case ResultInProgress:
		return "IN_PROGRESS"
	default:
		return "UNKNOWN"
	}
}

// Result errors. Each non-success Result has exactly one sentinel.
var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrMethodNotSupported = errors.New("method not supported")
	ErrInvalidParams      = errors.New("invalid params")
	ErrDevice             = errors.New("device error")
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrTimeout            = errors.New("timeout")
	ErrConnectionFailed   = errors.New("connection failed")
	ErrConnectionLost     = errors.New("connection lost")
	ErrInProgress         = errors.New("connect in progress")
)

var resultErrors = []struct {
	err    error
	result Result
}{
	{ErrDeviceNotFound, ResultDeviceNotFound},
	{ErrMethodNotSupported, ResultMethodNotSupported},
	{ErrInvalidParams, ResultInvalidParams},
	{ErrDevice, ResultError},
	{ErrUnexpectedResponse, ResultUnexpectedResponse},
	{ErrTimeout, ResultTimeout},
	{ErrConnectionFailed, ResultConnectionFailed},
	{ErrConnectionLost, ResultConnectionLost},
	{ErrInProgress, ResultInProgress},
}

// Err returns the sentinel error for r, or nil for ResultSuccess.
func (r Result) Err() error {
	for _, re := range resultErrors {
		if re.result == r {
			return re.err
		}
	}
	return nil
}

// ResultOf maps an error returned by this module to its Result.
// A nil error is ResultSuccess. Errors outside the taxonomy map to ResultError.
func ResultOf(err error) Result {
	if err == nil {
		return ResultSuccess
	}
	for _, re := range resultErrors {
		if errors.Is(err, re.err) {
			return re.result
		}
	}
	return ResultError
}

// DeviceError is an error object reported by the device in a response.
type DeviceError struct {
	Code    int
	Message string
}

func (e *DeviceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("device error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("device error %d", e.Code)
}

// Unwrap makes errors.Is(err, ErrDevice) hold for device errors.
func (e *DeviceError) Unwrap() error {
	return ErrDevice
}

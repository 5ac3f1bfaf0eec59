package mock

import "errors"

// ErrNotStarted is returned when stopping a device that was never started.
var ErrNotStarted = errors.New("device not started")

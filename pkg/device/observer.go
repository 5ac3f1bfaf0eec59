package device

import (
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/connection"
	"github.com/yeelight-lan/yeelight-go/pkg/log"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// Observer receives session traffic events. Methods are called from both
// caller goroutines and read loops and must not block.
type Observer interface {
	// CommandCompleted is called once per sent or rejected command.
	// rtt is zero for commands that were not answered.
	CommandCompleted(method string, channel log.Channel, result wire.Result, rtt time.Duration)

	// NotificationReceived is called for every property notification with
	// the fields that changed.
	NotificationReceived(changed []string)

	// FrameDropped is called when a received line could not be used.
	FrameDropped(err error)

	// StateChanged is called on every connection state transition.
	StateChanged(oldState, newState connection.State)
}

// NoopObserver ignores all events.
type NoopObserver struct{}

func (NoopObserver) CommandCompleted(string, log.Channel, wire.Result, time.Duration) {}
func (NoopObserver) NotificationReceived([]string)                                    {}
func (NoopObserver) FrameDropped(error)                                               {}
func (NoopObserver) StateChanged(connection.State, connection.State)                  {}

var _ Observer = NoopObserver{}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

// Observers returns an observer that forwards to every non-nil o.
func Observers(o ...Observer) Observer {
	var m MultiObserver
	for _, obs := range o {
		if obs != nil {
			m = append(m, obs)
		}
	}
	if len(m) == 0 {
		return NoopObserver{}
	}
	return m
}

func (m MultiObserver) CommandCompleted(method string, ch log.Channel, r wire.Result, rtt time.Duration) {
	for _, o := range m {
		o.CommandCompleted(method, ch, r, rtt)
	}
}

func (m MultiObserver) NotificationReceived(changed []string) {
	for _, o := range m {
		o.NotificationReceived(changed)
	}
}

func (m MultiObserver) FrameDropped(err error) {
	for _, o := range m {
		o.FrameDropped(err)
	}
}

func (m MultiObserver) StateChanged(oldState, newState connection.State) {
	for _, o := range m {
		o.StateChanged(oldState, newState)
	}
}

var _ Observer = MultiObserver(nil)

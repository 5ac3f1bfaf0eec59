package device

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/connection"
	"github.com/yeelight-lan/yeelight-go/pkg/log"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// Direct channel states in protocol logs.
const (
	directNone        = "NONE"
	directNegotiating = "NEGOTIATING"
	directActive      = "ACTIVE"
)

// AcceptDirect is called by the negotiator with a connection from this
// session's device address. It is only taken while EnableDirectMode waits.
func (s *Session) AcceptDirect(conn net.Conn) bool {
	return s.handoff.Offer(conn)
}

// EnableDirectMode asks the device to connect back to the negotiator and
// switches all further commands to that connection. Commands on the direct
// channel are not answered and return as soon as they are written. The
// primary channel is closed once the direct channel is up.
func (s *Session) EnableDirectMode(ctx context.Context) error {
	s.direct.Lock()
	defer s.direct.Unlock()

	if s.DirectActive() {
		return nil
	}
	n := s.config.Negotiator
	if n == nil {
		return ErrNoNegotiator
	}
	if err := s.Capabilities().Check(opMusic.main); err != nil {
		return fmt.Errorf("%s: %w", opMusic.name, err)
	}
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}

	host, port, err := n.Endpoint(s.manager.LocalAddr())
	if err != nil {
		return fmt.Errorf("direct mode: %w: %v", wire.ErrConnectionFailed, err)
	}

	s.logDirect(directNone, directNegotiating, fmt.Sprintf("%s:%d", host, port))

	// Arm before asking so a fast device cannot race the waiter.
	slot := s.handoff.Arm()
	defer s.handoff.Disarm(slot)

	if _, err := s.send(ctx, opMusic.main, []any{1, host, port}); err != nil {
		s.logDirect(directNegotiating, directNone, err.Error())
		return err
	}

	timer := time.NewTimer(s.config.DirectTimeout)
	defer timer.Stop()

	select {
	case conn := <-slot:
		if err := s.manager.EnterDirect(conn); err != nil {
			s.logDirect(directNegotiating, directNone, err.Error())
			return fmt.Errorf("direct mode: %w: %v", wire.ErrConnectionFailed, err)
		}
		s.logger.Debug("direct mode enabled", "remote", conn.RemoteAddr())
		s.logDirect(directNegotiating, directActive, "")
		return nil
	case <-timer.C:
		s.logDirect(directNegotiating, directNone, "timeout")
		return fmt.Errorf("direct mode: device did not connect within %v: %w",
			s.config.DirectTimeout, wire.ErrConnectionFailed)
	case <-ctx.Done():
		s.logDirect(directNegotiating, directNone, ctx.Err().Error())
		return fmt.Errorf("direct mode: %w: %w", wire.ErrConnectionFailed, ctx.Err())
	}
}

// DisableDirectMode tells the device to leave music mode, closes the
// direct channel and reconnects the primary channel.
func (s *Session) DisableDirectMode(ctx context.Context) error {
	s.direct.Lock()
	defer s.direct.Unlock()

	if s.manager.State() != connection.StateDirectActive {
		return nil
	}
	if _, err := s.send(ctx, opMusic.main, []any{0}); err != nil {
		s.logger.Debug("music off not sent", "error", err)
	}
	s.manager.ExitDirect()
	s.logDirect(directActive, directNone, "disabled")

	return s.Connect(ctx)
}

func (s *Session) logDirect(oldState, newState, reason string) {
	s.plog.Log(log.Event{
		Timestamp:  time.Now(),
		Layer:      log.LayerSession,
		Category:   log.CategoryState,
		Channel:    log.ChannelDirect,
		RemoteAddr: s.remote(),
		DeviceID:   s.config.ID,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityDirectChannel,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

package connection

import (
	"time"
)

// SetAutoReconnect enables or disables background reconnection after an
// unexpected loss of the primary channel. The loop goroutine is started on
// first enable and runs until Close.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return
	}
	m.autoReconnect = enabled
	if enabled && !m.loopStarted {
		m.loopStarted = true
		m.wg.Add(1)
		go m.reconnectLoop()
	}
}

// BackoffAttempts returns the current number of reconnection attempts.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}

// triggerReconnect signals that reconnection should be attempted.
func (m *Manager) triggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
		// Already pending
	}
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

// attemptReconnect dials with exponential backoff until connected, closed,
// disabled, or superseded by an explicit Connect.
func (m *Manager) attemptReconnect() {
	for {
		m.mu.Lock()
		state, address, enabled := m.state, m.address, m.autoReconnect
		m.mu.Unlock()

		if state != StateReconnecting {
			return
		}
		if !enabled {
			m.mu.Lock()
			changed := m.state == StateReconnecting
			if changed {
				m.state = StateDisconnected
			}
			m.mu.Unlock()
			if changed {
				m.notifyState(StateReconnecting, StateDisconnected, "reconnect disabled")
			}
			return
		}

		delay := m.backoff.Next()
		attempts := m.backoff.Attempts()
		if m.config.OnReconnecting != nil {
			m.config.OnReconnecting(attempts, delay)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		if m.State() != StateReconnecting {
			return
		}

		conn, err := m.dialOnce(m.ctx, address)
		if err != nil {
			m.logger.Debug("reconnect failed", "address", address, "attempt", attempts, "error", err)
			continue
		}
		_ = m.install(conn, StateReconnecting)
		return
	}
}

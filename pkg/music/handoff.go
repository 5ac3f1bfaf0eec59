package music

import (
	"net"
	"sync"
)

// Handoff is a single-slot rendezvous between the negotiator's accept
// goroutine and a session waiting in EnableDirectMode. Each Arm admits at
// most one connection.
type Handoff struct {
	mu   sync.Mutex
	slot chan net.Conn
}

// Arm opens the slot and returns the channel the connection will arrive on.
// Arming again replaces an earlier slot.
func (h *Handoff) Arm() <-chan net.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.slot = make(chan net.Conn, 1)
	return h.slot
}

// Offer delivers conn to the armed slot and closes it to further offers.
// It returns false when nobody is waiting; the caller keeps conn.
func (h *Handoff) Offer(conn net.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.slot == nil {
		return false
	}
	h.slot <- conn
	h.slot = nil
	return true
}

// Disarm closes the slot returned by Arm. If a connection was already
// delivered to it, that connection is closed; the waiter gave up.
func (h *Handoff) Disarm(slot <-chan net.Conn) {
	h.mu.Lock()
	if h.slot == slot {
		h.slot = nil
	}
	h.mu.Unlock()

	select {
	case conn := <-slot:
		_ = conn.Close()
	default:
	}
}

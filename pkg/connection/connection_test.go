package connection

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/log"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

func TestBackoff(t *testing.T) {
	t.Run("DefaultSequence", func(t *testing.T) {
		b := NewBackoff()

		for i, exp := range append(BackoffSequence(), MaxBackoff) {
			base := b.Current()
			_ = b.Next()

			if base < exp-time.Millisecond || base > exp+time.Millisecond {
				t.Errorf("Attempt %d: base = %v, want %v", i, base, exp)
			}
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoff()

		samples := make([]time.Duration, 10)
		for i := range samples {
			samples[i] = b.Peek()
		}

		for i, s := range samples {
			if s < 1*time.Second || s > time.Duration(float64(1*time.Second)*1.25)+time.Millisecond {
				t.Errorf("Sample %d: %v out of expected range [1s, 1.25s]", i, s)
			}
		}

		allSame := true
		for i := 1; i < len(samples); i++ {
			if samples[i] != samples[0] {
				allSame = false
				break
			}
		}
		if allSame {
			t.Error("All jittered samples are identical - jitter may not be working")
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff()
		for i := 0; i < 5; i++ {
			b.Next()
		}
		if b.Current() <= InitialBackoff {
			t.Error("Backoff should have increased")
		}

		b.Reset()

		if b.Current() != InitialBackoff {
			t.Errorf("Current() = %v after reset, want %v", b.Current(), InitialBackoff)
		}
		if b.Attempts() != 0 {
			t.Errorf("Attempts() = %d after reset, want 0", b.Attempts())
		}
	})

	t.Run("CustomConfig", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial:    100 * time.Millisecond,
			Max:        500 * time.Millisecond,
			Multiplier: 2.0,
			Jitter:     0,
		})

		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			500 * time.Millisecond,
			500 * time.Millisecond,
		}
		for i, exp := range expected {
			if got := b.Next(); got != exp {
				t.Errorf("Attempt %d: got %v, want %v", i, got, exp)
			}
		}
	})

	t.Run("Fixed", func(t *testing.T) {
		b := NewFixedBackoff(250 * time.Millisecond)
		for i := 0; i < 4; i++ {
			if got := b.Next(); got != 250*time.Millisecond {
				t.Errorf("Attempt %d: got %v, want 250ms", i, got)
			}
		}
		if b.Attempts() != 4 {
			t.Errorf("Attempts() = %d, want 4", b.Attempts())
		}
	})
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{StateDirectActive, "DIRECT_ACTIVE"},
		{StateReconnecting, "RECONNECTING"},
		{StateClosed, "CLOSED"},
		{State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// bulb is a loopback listener standing in for a device.
type bulb struct {
	ln    net.Listener
	conns chan net.Conn
}

func newBulb(t *testing.T) *bulb {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	b := &bulb{ln: ln, conns: make(chan net.Conn, 8)}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			b.conns <- c
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return b
}

func (b *bulb) addr() string { return b.ln.Addr().String() }

func (b *bulb) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-b.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for connection")
		return nil
	}
}

type transitions struct {
	mu   sync.Mutex
	seen []State
}

func (tr *transitions) record(_, newState State) {
	tr.mu.Lock()
	tr.seen = append(tr.seen, newState)
	tr.mu.Unlock()
}

func (tr *transitions) list() []State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]State(nil), tr.seen...)
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("State() = %v, want %v", m.State(), want)
}

func TestManagerConnect(t *testing.T) {
	t.Run("InitialState", func(t *testing.T) {
		m := NewManager(Config{})
		defer m.Close()

		if m.State() != StateDisconnected {
			t.Errorf("Initial state = %v, want StateDisconnected", m.State())
		}
		if m.IsConnected() {
			t.Error("IsConnected() = true, want false")
		}
		if _, err := m.Send([]byte("x\r\n")); !errors.Is(err, wire.ErrConnectionLost) {
			t.Errorf("Send() error = %v, want ErrConnectionLost", err)
		}
	})

	t.Run("Success", func(t *testing.T) {
		b := newBulb(t)
		tr := &transitions{}
		m := NewManager(Config{OnStateChange: tr.record})
		defer m.Close()

		if err := m.Connect(context.Background(), b.addr()); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		peer := b.accept(t)

		if !m.IsConnected() {
			t.Error("IsConnected() = false after Connect")
		}
		if ch, ok := m.Channel(); !ok || ch != log.ChannelPrimary {
			t.Errorf("Channel() = %v, %v", ch, ok)
		}
		if m.LocalAddr() == nil {
			t.Error("LocalAddr() = nil")
		}
		got := tr.list()
		if len(got) != 2 || got[0] != StateConnecting || got[1] != StateConnected {
			t.Errorf("transitions = %v", got)
		}

		// Same address again is a no-op.
		if err := m.Connect(context.Background(), b.addr()); err != nil {
			t.Errorf("second Connect() error = %v", err)
		}

		if _, err := m.Send([]byte("ping\r\n")); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		buf := make([]byte, 6)
		if _, err := io.ReadFull(peer, buf); err != nil || string(buf) != "ping\r\n" {
			t.Errorf("peer read %q, %v", buf, err)
		}
	})

	t.Run("RetriesThenFails", func(t *testing.T) {
		var attempts atomic.Int32
		m := NewManager(Config{
			MaxRetries: 3,
			RetryDelay: time.Millisecond,
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				attempts.Add(1)
				return nil, errors.New("refused")
			},
		})
		defer m.Close()

		err := m.Connect(context.Background(), "192.0.2.1:55443")
		if !errors.Is(err, wire.ErrConnectionFailed) {
			t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
		}
		if attempts.Load() != 4 {
			t.Errorf("dial attempts = %d, want 4", attempts.Load())
		}
		if m.State() != StateDisconnected {
			t.Errorf("State() = %v, want StateDisconnected", m.State())
		}
	})

	t.Run("InProgress", func(t *testing.T) {
		release := make(chan struct{})
		entered := make(chan struct{})
		m := NewManager(Config{
			MaxRetries: -1,
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				close(entered)
				<-release
				return nil, errors.New("refused")
			},
		})
		defer m.Close()

		done := make(chan error, 1)
		go func() { done <- m.Connect(context.Background(), "192.0.2.1:55443") }()
		<-entered

		err := m.Connect(context.Background(), "192.0.2.1:55443")
		if !errors.Is(err, wire.ErrInProgress) {
			t.Errorf("concurrent Connect() error = %v, want ErrInProgress", err)
		}
		close(release)
		if err := <-done; !errors.Is(err, wire.ErrConnectionFailed) {
			t.Errorf("first Connect() error = %v", err)
		}
	})

	t.Run("AfterClose", func(t *testing.T) {
		m := NewManager(Config{})
		m.Close()
		m.Close()
		if err := m.Connect(context.Background(), "127.0.0.1:1"); !errors.Is(err, ErrManagerClosed) {
			t.Errorf("Connect() error = %v, want ErrManagerClosed", err)
		}
	})
}

func TestManagerConnectionLost(t *testing.T) {
	b := newBulb(t)
	lost := make(chan log.Channel, 1)
	m := NewManager(Config{
		OnConnectionLost: func(ch log.Channel, err error) {
			if err == nil {
				t.Error("loss reported with nil error")
			}
			lost <- ch
		},
	})
	defer m.Close()

	if err := m.Connect(context.Background(), b.addr()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	b.accept(t).Close()

	select {
	case ch := <-lost:
		if ch != log.ChannelPrimary {
			t.Errorf("lost channel = %v, want PRIMARY", ch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnectionLost not called")
	}
	waitState(t, m, StateDisconnected)
	m.Wait()
}

func TestManagerDisconnectIsNotLoss(t *testing.T) {
	b := newBulb(t)
	var lost atomic.Int32
	m := NewManager(Config{
		OnConnectionLost: func(log.Channel, error) { lost.Add(1) },
	})
	defer m.Close()

	if err := m.Connect(context.Background(), b.addr()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	b.accept(t)

	m.Disconnect()
	m.Wait()

	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want StateDisconnected", m.State())
	}
	if lost.Load() != 0 {
		t.Errorf("OnConnectionLost called %d times for a local disconnect", lost.Load())
	}
}

func TestManagerDirect(t *testing.T) {
	b := newBulb(t)
	var lost atomic.Int32
	lines := make(chan log.Channel, 4)
	m := NewManager(Config{
		OnLine:           func(ch log.Channel, _ []byte) { lines <- ch },
		OnConnectionLost: func(log.Channel, error) { lost.Add(1) },
	})
	defer m.Close()

	if err := m.EnterDirect(nopConn(t)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("EnterDirect() before connect error = %v, want ErrNotConnected", err)
	}

	if err := m.Connect(context.Background(), b.addr()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	primaryPeer := b.accept(t)

	local, remote := net.Pipe()
	defer remote.Close()
	if err := m.EnterDirect(local); err != nil {
		t.Fatalf("EnterDirect() error = %v", err)
	}
	if m.State() != StateDirectActive {
		t.Errorf("State() = %v, want StateDirectActive", m.State())
	}
	if ch, ok := m.Channel(); !ok || ch != log.ChannelDirect {
		t.Errorf("Channel() = %v, %v", ch, ok)
	}

	// The primary is retired.
	_ = primaryPeer.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := primaryPeer.Read(make([]byte, 1)); err == nil {
		t.Error("primary socket should be closed after entering direct mode")
	}

	go func() {
		buf := make([]byte, 16)
		n, _ := remote.Read(buf)
		_, _ = remote.Write([]byte("echo:" + string(buf[:n])))
	}()
	ch, err := m.Send([]byte("a\r\n"))
	if err != nil || ch != log.ChannelDirect {
		t.Fatalf("Send() = %v, %v", ch, err)
	}
	select {
	case got := <-lines:
		if got != log.ChannelDirect {
			t.Errorf("line arrived on %v, want DIRECT", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no line from direct channel")
	}

	m.ExitDirect()
	m.Wait()
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v after ExitDirect, want StateDisconnected", m.State())
	}
	if lost.Load() != 0 {
		t.Errorf("OnConnectionLost called %d times", lost.Load())
	}
}

func TestManagerRetireReported(t *testing.T) {
	first, second := newBulb(t), newBulb(t)
	retired := make(chan log.Channel, 4)
	m := NewManager(Config{
		OnRetire: func(ch log.Channel) { retired <- ch },
	})
	defer m.Close()

	if err := m.Connect(context.Background(), first.addr()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	first.accept(t)
	if len(retired) != 0 {
		t.Fatalf("OnRetire called on first connect")
	}

	if err := m.Connect(context.Background(), second.addr()); err != nil {
		t.Fatalf("Connect() to new address error = %v", err)
	}
	second.accept(t)
	select {
	case ch := <-retired:
		if ch != log.ChannelPrimary {
			t.Errorf("retired channel = %v, want PRIMARY", ch)
		}
	default:
		t.Fatal("OnRetire not called when the address changed")
	}

	local, remote := net.Pipe()
	defer remote.Close()
	if err := m.EnterDirect(local); err != nil {
		t.Fatalf("EnterDirect() error = %v", err)
	}
	select {
	case ch := <-retired:
		if ch != log.ChannelPrimary {
			t.Errorf("retired channel = %v, want PRIMARY", ch)
		}
	default:
		t.Fatal("OnRetire not called for the primary on EnterDirect")
	}

	m.Close()
	m.Wait()
	if len(retired) != 0 {
		t.Errorf("OnRetire called %d times by Close", len(retired))
	}
}

func nopConn(t *testing.T) net.Conn {
	a, b := net.Pipe()
	t.Cleanup(func() { b.Close() })
	return a
}

func TestManagerAutoReconnect(t *testing.T) {
	b := newBulb(t)
	var attempts atomic.Int32
	m := NewManager(Config{
		Reconnect: BackoffConfig{
			Initial:    10 * time.Millisecond,
			Max:        20 * time.Millisecond,
			Multiplier: 2,
		},
		OnReconnecting: func(int, time.Duration) { attempts.Add(1) },
	})
	defer m.Close()
	m.SetAutoReconnect(true)

	if err := m.Connect(context.Background(), b.addr()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	b.accept(t).Close()

	// The loop dials again.
	b.accept(t)
	waitState(t, m, StateConnected)

	if attempts.Load() < 1 {
		t.Error("OnReconnecting was not called")
	}
	if m.BackoffAttempts() != 0 {
		t.Errorf("BackoffAttempts() = %d after success, want 0", m.BackoffAttempts())
	}
}

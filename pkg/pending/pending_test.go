package pending

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

func TestRegisterResolve(t *testing.T) {
	tbl := New()

	id, ch, err := tbl.Register()
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if id != 1 {
		t.Errorf("first id = %d, want 1", id)
	}

	if !tbl.Resolve(id, Success([]any{"ok"})) {
		t.Fatal("Resolve returned false for in-flight id")
	}
	o := <-ch
	if o.Result != wire.ResultSuccess || o.Err != nil {
		t.Errorf("outcome = %+v", o)
	}
	if tbl.Len() != 0 {
		t.Errorf("Len() = %d after resolve, want 0", tbl.Len())
	}
	if tbl.Resolve(id, Success(nil)) {
		t.Error("second Resolve should return false")
	}
}

func TestOutOfOrderResolution(t *testing.T) {
	tbl := New()

	id1, ch1, _ := tbl.Register()
	id2, ch2, _ := tbl.Register()

	// Responses arrive in reverse order.
	tbl.Resolve(id2, Failure(&wire.DeviceError{Code: -1, Message: "bad"}))
	tbl.Resolve(id1, Success([]any{"ok"}))

	o1 := <-ch1
	o2 := <-ch2
	if o1.Result != wire.ResultSuccess {
		t.Errorf("id1 result = %v, want SUCCESS", o1.Result)
	}
	if o2.Result != wire.ResultError {
		t.Errorf("id2 result = %v, want ERROR", o2.Result)
	}
}

func TestIDWraparound(t *testing.T) {
	tbl := New()
	tbl.lastID = 0xFFFE

	id1, _, _ := tbl.Register()
	id2, _, _ := tbl.Register()

	if id1 != 0xFFFF {
		t.Errorf("id1 = %d, want 65535", id1)
	}
	if id2 == 0 {
		t.Error("id 0 should be skipped")
	}
	if id2 != 1 {
		t.Errorf("id2 = %d, want 1 after wraparound", id2)
	}
}

func TestIDSkipsInFlight(t *testing.T) {
	tbl := New()
	held, _, _ := tbl.Register()
	if held != 1 {
		t.Fatalf("first id = %d, want 1", held)
	}

	tbl.lastID = 65535
	id, _, err := tbl.Register()
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if id != 2 {
		t.Errorf("id = %d, want 2 (0 skipped, 1 in flight)", id)
	}
}

func TestResolveUnknownIsDropped(t *testing.T) {
	tbl := New()
	if tbl.Resolve(99, Success(nil)) {
		t.Error("Resolve for unknown id should return false")
	}
}

func TestFailAll(t *testing.T) {
	tbl := New()
	_, ch1, _ := tbl.Register()
	_, ch2, _ := tbl.Register()

	if n := tbl.FailAll(wire.ErrConnectionLost); n != 2 {
		t.Errorf("FailAll() = %d, want 2", n)
	}
	for _, ch := range []<-chan Outcome{ch1, ch2} {
		o := <-ch
		if o.Result != wire.ResultConnectionLost {
			t.Errorf("result = %v, want CONNECTION_LOST", o.Result)
		}
	}
	if tbl.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tbl.Len())
	}
}

func TestWaitTimeout(t *testing.T) {
	tbl := New()
	id, ch, _ := tbl.Register()

	start := time.Now()
	o := tbl.Wait(context.Background(), id, ch, 50*time.Millisecond)
	if o.Result != wire.ResultTimeout {
		t.Errorf("result = %v, want TIMEOUT", o.Result)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("Wait returned before the timeout")
	}
	if tbl.Len() != 0 {
		t.Error("entry should be removed after timeout")
	}

	// A late response is dropped.
	if tbl.Resolve(id, Success(nil)) {
		t.Error("late Resolve should return false")
	}
}

func TestWaitContextCancel(t *testing.T) {
	tbl := New()
	id, ch, _ := tbl.Register()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := tbl.Wait(ctx, id, ch, time.Second)
	if !errors.Is(o.Err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", o.Err)
	}
}

func TestWaitResolvedConcurrently(t *testing.T) {
	tbl := New()

	const n = 50
	var wg sync.WaitGroup
	results := make([]wire.Result, n)
	for i := range n {
		id, ch, err := tbl.Register()
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		wg.Add(1)
		go func(i int, id uint16, ch <-chan Outcome) {
			defer wg.Done()
			results[i] = tbl.Wait(context.Background(), id, ch, time.Second).Result
		}(i, id, ch)
	}

	for id := uint16(n); id >= 1; id-- {
		tbl.Resolve(id, Success([]any{"ok"}))
	}
	wg.Wait()

	for i, r := range results {
		if r != wire.ResultSuccess {
			t.Errorf("waiter %d result = %v", i, r)
		}
	}
}

// Package pending correlates commands with their responses.
//
// Each in-flight command id owns a one-shot buffered channel. The read loop
// resolves it when the matching response arrives; the waiter removes the
// entry on read, timeout or cancellation.
package pending

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// ErrTableFull is returned by Register when every id is in flight.
var ErrTableFull = errors.New("no free command id")

// Outcome is the resolution of one in-flight command.
type Outcome struct {
	Result wire.Result
	Err    error
	Values []any
}

// Success returns an outcome for an acknowledged command.
func Success(values []any) Outcome {
	return Outcome{Result: wire.ResultSuccess, Values: values}
}

// Failure returns an outcome carrying err.
func Failure(err error) Outcome {
	return Outcome{Result: wire.ResultOf(err), Err: err}
}

// Table tracks in-flight commands by id.
type Table struct {
	mu      sync.Mutex
	entries map[uint16]chan Outcome
	lastID  uint16
}

// New creates an empty table.
func New() *Table {
	return &Table{entries: make(map[uint16]chan Outcome)}
}

// Register allocates the next free id and its channel.
// Ids wrap at 65535 and skip 0 and ids still in flight.
func (t *Table) Register() (uint16, <-chan Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for range 1 << 16 {
		t.lastID++
		if t.lastID == 0 {
			continue
		}
		if _, busy := t.entries[t.lastID]; busy {
			continue
		}
		ch := make(chan Outcome, 1)
		t.entries[t.lastID] = ch
		return t.lastID, ch, nil
	}
	return 0, nil, ErrTableFull
}

// Resolve delivers o to the waiter for id and removes the entry.
// It returns false if no command with that id is in flight.
func (t *Table) Resolve(id uint16, o Outcome) bool {
	t.mu.Lock()
	ch, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	// Buffered with capacity 1 and removed above, so this never blocks.
	ch <- o
	return true
}

// Remove drops the entry for id. Safe to call after Resolve.
func (t *Table) Remove(id uint16) {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
}

// FailAll resolves every in-flight command with err and returns how many
// waiters were released.
func (t *Table) FailAll(err error) int {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[uint16]chan Outcome)
	t.mu.Unlock()

	o := Failure(err)
	for _, ch := range entries {
		ch <- o
	}
	return len(entries)
}

// Len returns the number of in-flight commands.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Wait blocks until id is resolved, the timeout elapses or ctx is done.
// The entry is always removed on return.
func (t *Table) Wait(ctx context.Context, id uint16, ch <-chan Outcome, timeout time.Duration) Outcome {
	defer t.Remove(id)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-ch:
		return o
	case <-timer.C:
		return Failure(fmt.Errorf("command %d: %w", id, wire.ErrTimeout))
	case <-ctx.Done():
		return Failure(fmt.Errorf("command %d: %w: %w", id, wire.ErrTimeout, ctx.Err()))
	}
}

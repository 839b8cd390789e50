package batch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddstream/oddstream-go/internal/order"
)

// fakeClock fires AfterFunc callbacks only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	when    time.Time
	fn      func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{when: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		was := t.stopped
		t.stopped = true
		return !was
	}
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.when.After(c.now) {
			t.stopped = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

type fakeDispatcher struct {
	mu      sync.Mutex
	batches [][]order.Order
	err     error
}

func (d *fakeDispatcher) Submit(_ context.Context, orders []order.Order) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.batches = append(d.batches, orders)
	return nil
}

func (d *fakeDispatcher) batchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func testOrder(marketID string) order.Order {
	return order.Order{MarketID: marketID, Side: order.SideYes, Amount: decimal.NewFromInt(100)}
}

func newTestAccumulator(d Dispatcher, clock Clock) *Accumulator {
	return NewAccumulator(d, DefaultWindow, clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDebouncedFlushDispatchesAllInOrder(t *testing.T) {
	clock := newFakeClock()
	disp := &fakeDispatcher{}
	acc := newTestAccumulator(disp, clock)

	var events []Event
	acc.SetListener(func(e Event) { events = append(events, e) })

	acc.Enqueue(testOrder("m1"))
	acc.Enqueue(testOrder("m2"))
	acc.Enqueue(testOrder("m3"))

	if got := disp.batchCount(); got != 0 {
		t.Fatalf("dispatched before window elapsed: %d batches", got)
	}

	clock.Advance(DefaultWindow)

	if got := disp.batchCount(); got != 1 {
		t.Fatalf("expected 1 batch, got %d", got)
	}
	batch := disp.batches[0]
	if len(batch) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(batch))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if batch[i].MarketID != want {
			t.Errorf("order %d: got %q, want %q", i, batch[i].MarketID, want)
		}
	}

	if len(events) != 1 || events[0].Type != EventSuccess || events[0].Count != 3 {
		t.Errorf("unexpected events: %+v", events)
	}

	// The window elapsed once; nothing further should fire.
	clock.Advance(10 * DefaultWindow)
	if got := disp.batchCount(); got != 1 {
		t.Errorf("timer fired again: %d batches", got)
	}
}

func TestFlushEmptyQueueIsNoop(t *testing.T) {
	disp := &fakeDispatcher{}
	acc := newTestAccumulator(disp, newFakeClock())

	fired := false
	acc.SetListener(func(Event) { fired = true })

	if err := acc.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if disp.batchCount() != 0 || fired {
		t.Error("empty flush must not dispatch or emit")
	}
}

func TestManualFlushCancelsTimer(t *testing.T) {
	clock := newFakeClock()
	disp := &fakeDispatcher{}
	acc := newTestAccumulator(disp, clock)

	acc.Enqueue(testOrder("m1"))
	if err := acc.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if got := disp.batchCount(); got != 1 {
		t.Fatalf("expected 1 batch, got %d", got)
	}
	if acc.Pending() != 0 {
		t.Errorf("pending = %d after flush", acc.Pending())
	}

	clock.Advance(DefaultWindow)
	if got := disp.batchCount(); got != 1 {
		t.Errorf("cancelled timer still flushed: %d batches", got)
	}
}

func TestDispatchErrorClearsQueueAndEmits(t *testing.T) {
	clock := newFakeClock()
	boom := errors.New("dispatch exploded")
	disp := &fakeDispatcher{err: boom}
	acc := newTestAccumulator(disp, clock)

	var events []Event
	acc.SetListener(func(e Event) { events = append(events, e) })

	acc.Enqueue(testOrder("m1"))
	acc.Enqueue(testOrder("m2"))

	err := acc.Flush(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}

	if acc.Pending() != 0 {
		t.Errorf("queue not cleared on failure: pending = %d", acc.Pending())
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Type != EventError || !errors.Is(e.Err, boom) || len(e.Remaining) != 2 {
		t.Errorf("unexpected event: %+v", e)
	}

	// No automatic retry: advancing time must not re-dispatch.
	clock.Advance(10 * DefaultWindow)
	if disp.batchCount() != 0 {
		t.Error("failed batch was retried")
	}
}

func TestNextBatchAfterFlushGetsOwnTimer(t *testing.T) {
	clock := newFakeClock()
	disp := &fakeDispatcher{}
	acc := newTestAccumulator(disp, clock)

	acc.Enqueue(testOrder("m1"))
	clock.Advance(DefaultWindow)

	acc.Enqueue(testOrder("m2"))
	clock.Advance(DefaultWindow)

	if got := disp.batchCount(); got != 2 {
		t.Fatalf("expected 2 batches, got %d", got)
	}
	if disp.batches[1][0].MarketID != "m2" {
		t.Errorf("second batch = %+v", disp.batches[1])
	}
}

func TestStopCancelsTimerAndRejectsEnqueues(t *testing.T) {
	clock := newFakeClock()
	disp := &fakeDispatcher{}
	acc := newTestAccumulator(disp, clock)

	acc.Enqueue(testOrder("m1"))
	acc.Stop()

	clock.Advance(10 * DefaultWindow)
	if disp.batchCount() != 0 {
		t.Error("stopped accumulator still dispatched")
	}

	acc.Enqueue(testOrder("m2"))
	if acc.Pending() != 0 {
		t.Error("enqueue accepted after stop")
	}
}

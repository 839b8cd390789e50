// Package batch coalesces orders submitted within a debounce window
// into a single dispatch.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oddstream/oddstream-go/internal/order"
)

// DefaultWindow is how long enqueued orders wait for company before
// the batch flushes.
const DefaultWindow = 5 * time.Second

// Dispatcher receives the accumulated orders as one unit.
type Dispatcher interface {
	Submit(ctx context.Context, orders []order.Order) error
}

type EventType string

const (
	EventSuccess EventType = "batch-success"
	EventError   EventType = "batch-error"
)

// Event reports the outcome of a flush attempt.
type Event struct {
	Type      EventType
	Count     int
	Remaining []order.Order // orders the caller must re-enqueue, on error
	Err       error
	Timestamp time.Time
}

// Accumulator buffers orders and flushes them after the debounce
// window, or earlier on a manual Flush. Failed batches are not
// retried: the queue is cleared either way and the error is surfaced
// as an EventError.
type Accumulator struct {
	window     time.Duration
	clock      Clock
	dispatcher Dispatcher
	listener   func(Event)
	logger     *slog.Logger

	mu        sync.Mutex
	queue     []order.Order
	stopTimer func() bool
	stopped   bool
}

func NewAccumulator(d Dispatcher, window time.Duration, clock Clock, l *slog.Logger) *Accumulator {
	if window <= 0 {
		window = DefaultWindow
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Accumulator{
		window:     window,
		clock:      clock,
		dispatcher: d,
		logger:     l.With("component", "batch"),
	}
}

// SetListener registers the observer for flush outcomes. Must be set
// before the first Enqueue.
func (a *Accumulator) SetListener(fn func(Event)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listener = fn
}

// Enqueue appends an order to the queue. The first order of a batch
// arms the flush timer; later ones ride along.
func (a *Accumulator) Enqueue(o order.Order) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		a.logger.Warn("enqueue after stop, dropping order", "market_id", o.MarketID)
		return
	}

	a.queue = append(a.queue, o)
	if a.stopTimer == nil {
		a.stopTimer = a.clock.AfterFunc(a.window, func() {
			if err := a.Flush(context.Background()); err != nil {
				// Already surfaced as an EventError; log only.
				a.logger.Error("debounced flush failed", "error", err)
			}
		})
	}
}

// Pending returns how many orders are waiting for the next flush.
func (a *Accumulator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// Flush hands the queued orders to the dispatcher as one unit. An
// empty queue is a no-op. The queue is cleared whether or not dispatch
// succeeds; on failure the orders ride on the emitted event for the
// caller to re-enqueue.
func (a *Accumulator) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.stopTimer != nil {
		a.stopTimer()
		a.stopTimer = nil
	}
	if len(a.queue) == 0 {
		a.mu.Unlock()
		return nil
	}
	orders := a.queue
	a.queue = nil
	listener := a.listener
	a.mu.Unlock()

	err := a.dispatcher.Submit(ctx, orders)
	now := a.clock.Now()

	if err != nil {
		a.logger.Error("batch dispatch failed", "count", len(orders), "error", err)
		if listener != nil {
			listener(Event{Type: EventError, Count: len(orders), Remaining: orders, Err: err, Timestamp: now})
		}
		return err
	}

	a.logger.Info("batch dispatched", "count", len(orders))
	if listener != nil {
		listener(Event{Type: EventSuccess, Count: len(orders), Timestamp: now})
	}
	return nil
}

// Stop cancels any pending flush timer and rejects further enqueues.
// Queued orders are dropped; used on wallet disconnect.
func (a *Accumulator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopTimer != nil {
		a.stopTimer()
		a.stopTimer = nil
	}
	if n := len(a.queue); n > 0 {
		a.logger.Warn("dropping queued orders on stop", "count", n)
	}
	a.queue = nil
	a.stopped = true
}

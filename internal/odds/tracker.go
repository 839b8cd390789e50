package odds

import (
	"log/slog"
	"sync"
	"time"
)

// Update is one market update as delivered by the push channel.
type Update struct {
	MarketID  string
	Yes       Odds
	No        Odds
	Volume    Odds
	Status    string
	EventTime time.Time // Timestamp from the service (zero = use current time)
}

// MarketState is the latest known state of a market.
type MarketState struct {
	MarketID  string
	Yes       Odds
	No        Odds
	Volume    Odds
	Status    string
	UpdatedAt time.Time
}

// Tracker maintains the live view of market odds fed by subscription
// updates, with a bounded per-market history window.
type Tracker struct {
	mu      sync.RWMutex
	states  map[string]*MarketState
	history map[string]*History
	window  time.Duration
	logger  *slog.Logger
}

// NewTracker creates a tracker that retains `window` of history per
// market. A zero window keeps history unbounded.
func NewTracker(window time.Duration, l *slog.Logger) *Tracker {
	return &Tracker{
		states:  make(map[string]*MarketState),
		history: make(map[string]*History),
		window:  window,
		logger:  l.With("component", "odds_tracker"),
	}
}

// Apply folds one update into the live view.
func (t *Tracker) Apply(u Update) {
	eventTime := u.EventTime
	if eventTime.IsZero() {
		eventTime = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[u.MarketID]
	if !ok {
		state = &MarketState{MarketID: u.MarketID}
		t.states[u.MarketID] = state
		t.history[u.MarketID] = NewHistory()
	}

	// Stale updates must not roll the view backwards.
	if eventTime.Before(state.UpdatedAt) {
		t.logger.Debug("dropping stale update", "market_id", u.MarketID, "event_time", eventTime)
		return
	}

	state.Yes = u.Yes
	state.No = u.No
	state.Volume = u.Volume
	state.Status = u.Status
	state.UpdatedAt = eventTime

	h := t.history[u.MarketID]
	h.Add(Point{Time: eventTime, Yes: u.Yes, No: u.No, Volume: u.Volume})
	if t.window > 0 {
		h.TrimBefore(eventTime.Add(-t.window))
	}
}

// State returns a copy of the latest state for a market.
func (t *Tracker) State(marketID string) (MarketState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.states[marketID]
	if !ok {
		return MarketState{}, false
	}
	return *state, true
}

// HistorySince returns the retained samples for a market at or after t.
func (t *Tracker) HistorySince(marketID string, since time.Time) []Point {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, ok := t.history[marketID]
	if !ok {
		return nil
	}
	return h.Since(since)
}

// Snapshot captures the current state of every tracked market. Safe to
// call concurrently with updates.
func (t *Tracker) Snapshot() []MarketState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]MarketState, 0, len(t.states))
	for _, state := range t.states {
		out = append(out, *state)
	}
	return out
}

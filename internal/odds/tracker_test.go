package odds

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTrackerApplyAndState(t *testing.T) {
	tr := NewTracker(0, discardLogger())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tr.Apply(Update{MarketID: "m1", Yes: 600_000, No: 400_000, Volume: 1_000_000, Status: "active", EventTime: base})

	state, ok := tr.State("m1")
	if !ok {
		t.Fatal("expected state for m1")
	}
	if state.Yes != 600_000 || state.No != 400_000 {
		t.Errorf("got yes=%d no=%d", state.Yes, state.No)
	}

	if _, ok := tr.State("unknown"); ok {
		t.Error("expected no state for unknown market")
	}
}

func TestTrackerDropsStaleUpdates(t *testing.T) {
	tr := NewTracker(0, discardLogger())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tr.Apply(Update{MarketID: "m1", Yes: 600_000, EventTime: base})
	tr.Apply(Update{MarketID: "m1", Yes: 100_000, EventTime: base.Add(-time.Minute)})

	state, _ := tr.State("m1")
	if state.Yes != 600_000 {
		t.Errorf("stale update overwrote state: yes=%d", state.Yes)
	}
}

func TestTrackerHistoryWindow(t *testing.T) {
	tr := NewTracker(10*time.Minute, discardLogger())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		tr.Apply(Update{
			MarketID:  "m1",
			Yes:       Odds(500_000 + int64(i)*10_000),
			EventTime: base.Add(time.Duration(i) * 5 * time.Minute),
		})
	}

	// Last event at base+20m, window 10m: only base+10m and later kept.
	points := tr.HistorySince("m1", time.Time{})
	if len(points) != 3 {
		t.Fatalf("expected 3 retained points, got %d", len(points))
	}
	if points[0].Time != base.Add(10*time.Minute) {
		t.Errorf("unexpected oldest point: %v", points[0].Time)
	}
}

func TestTrackerSnapshot(t *testing.T) {
	tr := NewTracker(0, discardLogger())
	tr.Apply(Update{MarketID: "m1", Yes: 500_000})
	tr.Apply(Update{MarketID: "m2", Yes: 300_000})

	snap := tr.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(snap))
	}
}

func TestHistoryLatestAndTrim(t *testing.T) {
	h := NewHistory()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, ok := h.Latest(); ok {
		t.Fatal("empty history should have no latest")
	}

	h.Add(Point{Time: base, Yes: 1})
	h.Add(Point{Time: base.Add(time.Minute), Yes: 2})
	h.Add(Point{Time: base.Add(2 * time.Minute), Yes: 3})

	latest, ok := h.Latest()
	if !ok || latest.Yes != 3 {
		t.Fatalf("latest = %+v, ok = %v", latest, ok)
	}

	removed := h.TrimBefore(base.Add(time.Minute))
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if h.Len() != 2 {
		t.Errorf("expected 2 remaining, got %d", h.Len())
	}
}

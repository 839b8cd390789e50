package odds

import (
	"time"

	"github.com/google/btree"
)

// Point is one observed odds sample for a market.
type Point struct {
	Time   time.Time
	Yes    Odds
	No     Odds
	Volume Odds
}

// lessByTime orders points ascending by event time.
func lessByTime(a, b Point) bool {
	return a.Time.Before(b.Time)
}

// History keeps a time-ordered window of odds samples for one market.
// Not safe for concurrent use; the tracker serializes access.
type History struct {
	points *btree.BTreeG[Point]
}

func NewHistory() *History {
	return &History{
		points: btree.NewG(32, lessByTime),
	}
}

// Add inserts a sample. A sample with the same event time replaces the
// previous one.
func (h *History) Add(p Point) {
	h.points.ReplaceOrInsert(p)
}

// Len returns the number of retained samples.
func (h *History) Len() int {
	return h.points.Len()
}

// Since returns all samples at or after t, oldest first.
func (h *History) Since(t time.Time) []Point {
	var out []Point
	h.points.AscendGreaterOrEqual(Point{Time: t}, func(p Point) bool {
		out = append(out, p)
		return true
	})
	return out
}

// Latest returns the most recent sample, if any.
func (h *History) Latest() (Point, bool) {
	var latest Point
	found := false
	h.points.Descend(func(p Point) bool {
		latest = p
		found = true
		return false
	})
	return latest, found
}

// TrimBefore drops samples older than t and returns how many were
// removed.
func (h *History) TrimBefore(t time.Time) int {
	var stale []Point
	h.points.AscendLessThan(Point{Time: t}, func(p Point) bool {
		stale = append(stale, p)
		return true
	})
	for _, p := range stale {
		h.points.Delete(p)
	}
	return len(stale)
}

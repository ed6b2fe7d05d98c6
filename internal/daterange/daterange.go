package daterange

import "time"

// Range splits the half-open interval [start, end) into contiguous
// chunks of at most chunk duration. The final chunk is clamped to end.
// A Range is single-pass; create a new one per traversal.
type Range struct {
	start time.Time
	end   time.Time
	chunk time.Duration
	cur   time.Time
	next  time.Time
}

func New(start, end time.Time, chunk time.Duration) *Range {
	return &Range{start: start, end: end, chunk: chunk, next: start}
}

// Next advances to the following chunk. It returns false once the
// interval is exhausted; for start == end it returns false immediately.
func (r *Range) Next() bool {
	if r.chunk <= 0 || !r.next.Before(r.end) {
		return false
	}
	r.cur = r.next
	r.next = r.cur.Add(r.chunk)
	if r.next.After(r.end) {
		r.next = r.end
	}
	return true
}

// Interval returns the current chunk bounds. Valid only after Next
// reported true.
func (r *Range) Interval() (time.Time, time.Time) {
	return r.cur, r.next
}

// Count returns the number of chunks a full traversal yields. It walks
// a fresh copy and does not disturb iteration state.
func (r *Range) Count() int {
	c := New(r.start, r.end, r.chunk)
	n := 0
	for c.Next() {
		n++
	}
	return n
}

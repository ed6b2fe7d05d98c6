package daterange_test

import (
	"testing"
	"time"

	"ahjosync/internal/daterange"
)

func TestWeeklyChunks(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)
	r := daterange.New(start, end, 7*24*time.Hour)
	if got := r.Count(); got != 3 {
		t.Fatalf("count: got %d, want 3", got)
	}
	var chunks [][2]time.Time
	for r.Next() {
		from, to := r.Interval()
		chunks = append(chunks, [2]time.Time{from, to})
	}
	if len(chunks) != 3 {
		t.Fatalf("iterated %d chunks, want 3", len(chunks))
	}
	want := [][2]time.Time{
		{start, start.AddDate(0, 0, 7)},
		{start.AddDate(0, 0, 7), start.AddDate(0, 0, 14)},
		{start.AddDate(0, 0, 14), end},
	}
	for i, c := range chunks {
		if !c[0].Equal(want[i][0]) || !c[1].Equal(want[i][1]) {
			t.Errorf("chunk %d: got [%v, %v), want [%v, %v)", i, c[0], c[1], want[i][0], want[i][1])
		}
	}
}

func TestChunksAreContiguous(t *testing.T) {
	start := time.Date(2023, 3, 14, 9, 30, 0, 0, time.UTC)
	end := time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)
	for _, chunk := range []time.Duration{time.Hour, 24 * time.Hour, 30 * 24 * time.Hour, 365 * 24 * time.Hour} {
		r := daterange.New(start, end, chunk)
		prev := start
		n := 0
		for r.Next() {
			from, to := r.Interval()
			if !from.Equal(prev) {
				t.Fatalf("chunk %d not contiguous: starts %v, previous ended %v", n, from, prev)
			}
			if to.After(end) {
				t.Fatalf("chunk %d overshoots end: %v > %v", n, to, end)
			}
			if !from.Before(to) {
				t.Fatalf("chunk %d is empty or reversed: [%v, %v)", n, from, to)
			}
			prev = to
			n++
		}
		if !prev.Equal(end) {
			t.Fatalf("chunk size %v: final chunk ends %v, want %v", chunk, prev, end)
		}
		if got := r.Count(); got != n {
			t.Fatalf("chunk size %v: Count()=%d, iterated %d", chunk, got, n)
		}
	}
}

func TestEmptyInterval(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	r := daterange.New(at, at, time.Hour)
	if r.Next() {
		t.Fatal("empty interval should yield no chunks")
	}
	if got := r.Count(); got != 0 {
		t.Fatalf("count: got %d, want 0", got)
	}
}

func TestCountDoesNotDisturbIteration(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := daterange.New(start, start.AddDate(0, 0, 10), 24*time.Hour)
	if !r.Next() {
		t.Fatal("expected first chunk")
	}
	if got := r.Count(); got != 10 {
		t.Fatalf("count mid-iteration: got %d, want 10", got)
	}
	from, _ := r.Interval()
	if !from.Equal(start) {
		t.Fatalf("iteration state disturbed: current chunk starts %v", from)
	}
}

package metrics

import (
	"testing"
	"time"
)

func TestLatencyTracker_Stats(t *testing.T) {
	lt := NewLatencyTracker(100)
	for i := 1; i <= 100; i++ {
		lt.Record(time.Duration(i) * time.Millisecond)
	}

	s := lt.Stats()
	if s.Count != 100 {
		t.Fatalf("Count = %d", s.Count)
	}
	if s.MinMs != 1 || s.MaxMs != 100 {
		t.Fatalf("min/max = %v/%v", s.MinMs, s.MaxMs)
	}
	if s.P50Ms != 50 {
		t.Fatalf("P50 = %v, want 50", s.P50Ms)
	}
	if s.P99Ms != 99 {
		t.Fatalf("P99 = %v, want 99", s.P99Ms)
	}
}

func TestLatencyTracker_WindowDropsOldest(t *testing.T) {
	lt := NewLatencyTracker(10)
	for i := 0; i < 10; i++ {
		lt.Record(time.Second)
	}
	lt.Record(time.Millisecond)

	s := lt.Stats()
	if s.Count != 10 {
		t.Fatalf("Count = %d, want 10", s.Count)
	}
	if s.MinMs != 1 {
		t.Fatalf("MinMs = %v", s.MinMs)
	}
}

func TestRegistry_PerKey(t *testing.T) {
	r := NewRegistry(10)
	r.Record("POST /integration/sync", 200*time.Millisecond)
	r.Record("GET /integration", 5*time.Millisecond)
	r.Record("GET /integration", 7*time.Millisecond)

	all := r.AllStats()
	if len(all) != 2 {
		t.Fatalf("keys = %d", len(all))
	}
	if all["GET /integration"].Count != 2 {
		t.Fatalf("count = %d", all["GET /integration"].Count)
	}
}

func TestGetDBPoolStats_Nil(t *testing.T) {
	if s := GetDBPoolStats(nil); s != (DBPoolStats{}) {
		t.Fatalf("stats = %+v", s)
	}
}

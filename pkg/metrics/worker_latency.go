// Package metrics tracks request latency percentiles and database pool usage.
package metrics

import (
	"database/sql"
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a sliding window of samples for percentile calculation.
type LatencyTracker struct {
	mu         sync.Mutex
	samples    []int64 // microseconds
	maxSamples int
	sorted     bool
}

func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &LatencyTracker{
		samples:    make([]int64, 0, windowSize),
		maxSamples: windowSize,
	}
}

func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if len(lt.samples) >= lt.maxSamples {
		// drop the oldest 10% at once
		drop := lt.maxSamples / 10
		if drop < 1 {
			drop = 1
		}
		lt.samples = lt.samples[drop:]
	}
	lt.samples = append(lt.samples, d.Microseconds())
	lt.sorted = false
}

func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	n := len(lt.samples)
	if n == 0 {
		return LatencyStats{}
	}
	if !lt.sorted {
		sort.Slice(lt.samples, func(i, j int) bool { return lt.samples[i] < lt.samples[j] })
		lt.sorted = true
	}

	var sum int64
	for _, v := range lt.samples {
		sum += v
	}
	ms := func(micros int64) float64 { return float64(micros) / 1000 }

	return LatencyStats{
		Count: n,
		MinMs: ms(lt.samples[0]),
		MaxMs: ms(lt.samples[n-1]),
		AvgMs: ms(sum / int64(n)),
		P50Ms: ms(lt.samples[int(float64(n-1)*0.50)]),
		P95Ms: ms(lt.samples[int(float64(n-1)*0.95)]),
		P99Ms: ms(lt.samples[int(float64(n-1)*0.99)]),
	}
}

// LatencyStats is a snapshot of one tracker.
type LatencyStats struct {
	Count int     `json:"count"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// Registry holds one tracker per key (route, job type).
type Registry struct {
	mu         sync.RWMutex
	trackers   map[string]*LatencyTracker
	windowSize int
}

func NewRegistry(windowSize int) *Registry {
	return &Registry{
		trackers:   make(map[string]*LatencyTracker),
		windowSize: windowSize,
	}
}

func (r *Registry) Record(key string, d time.Duration) {
	r.mu.RLock()
	tracker, ok := r.trackers[key]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		if tracker, ok = r.trackers[key]; !ok {
			tracker = NewLatencyTracker(r.windowSize)
			r.trackers[key] = tracker
		}
		r.mu.Unlock()
	}
	tracker.Record(d)
}

func (r *Registry) AllStats() map[string]LatencyStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]LatencyStats, len(r.trackers))
	for key, tracker := range r.trackers {
		out[key] = tracker.Stats()
	}
	return out
}

// DBPoolStats is the subset of sql.DBStats worth watching.
type DBPoolStats struct {
	OpenConnections    int   `json:"open_connections"`
	InUse              int   `json:"in_use"`
	Idle               int   `json:"idle"`
	MaxOpenConnections int   `json:"max_open_connections"`
	WaitCount          int64 `json:"wait_count"`
	WaitDurationMs     int64 `json:"wait_duration_ms"`
}

func GetDBPoolStats(db *sql.DB) DBPoolStats {
	if db == nil {
		return DBPoolStats{}
	}
	s := db.Stats()
	return DBPoolStats{
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		MaxOpenConnections: s.MaxOpenConnections,
		WaitCount:          s.WaitCount,
		WaitDurationMs:     s.WaitDuration.Milliseconds(),
	}
}

package observer

import (
	"context"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// LatencyStats summarizes recorded invocation latencies.
type LatencyStats struct {
	Count int64         `json:"count"`
	Min   time.Duration `json:"min_ns"`
	Mean  time.Duration `json:"mean_ns"`
	P50   time.Duration `json:"p50_ns"`
	P90   time.Duration `json:"p90_ns"`
	P99   time.Duration `json:"p99_ns"`
	Max   time.Duration `json:"max_ns"`
}

// LatencyRecorder keeps an HDR histogram of invocation durations in
// microseconds, from 1µs up to 10 minutes.
type LatencyRecorder struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

// NewLatencyRecorder returns an empty recorder.
func NewLatencyRecorder() *LatencyRecorder {
	return &LatencyRecorder{hist: hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)}
}

// Notify implements Observer.
func (r *LatencyRecorder) Notify(_ context.Context, evt Event) {
	r.Record(evt.Elapsed)
}

// Record adds one sample, clamped to the trackable range.
func (r *LatencyRecorder) Record(d time.Duration) {
	us := d.Microseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	if us < r.hist.LowestTrackableValue() {
		us = r.hist.LowestTrackableValue()
	}
	if us > r.hist.HighestTrackableValue() {
		us = r.hist.HighestTrackableValue()
	}
	_ = r.hist.RecordValue(us)
}

// Snapshot returns the current percentiles.
func (r *LatencyRecorder) Snapshot() LatencyStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := r.hist.TotalCount()
	if count == 0 {
		return LatencyStats{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return LatencyStats{
		Count: count,
		Min:   us(r.hist.Min()),
		Mean:  time.Duration(r.hist.Mean() * float64(time.Microsecond)),
		P50:   us(r.hist.ValueAtQuantile(50)),
		P90:   us(r.hist.ValueAtQuantile(90)),
		P99:   us(r.hist.ValueAtQuantile(99)),
		Max:   us(r.hist.Max()),
	}
}

// Reset clears all samples.
func (r *LatencyRecorder) Reset() {
	r.mu.Lock()
	r.hist.Reset()
	r.mu.Unlock()
}

package xfer

import (
	"sync"
	"time"
)

// RateTracker turns Progress events into transfer-rate numbers for host
// UIs. Feed it every Progress event; it invokes the callback at most once
// per update interval.
type RateTracker struct {
	mu sync.Mutex

	callback       func(fileName string, transferred, total uint64, rate float64)
	updateInterval time.Duration

	lastUpdate time.Time
	lastBytes  uint64
}

// NewRateTracker creates a tracker. A zero or negative interval defaults to
// 100ms.
func NewRateTracker(callback func(string, uint64, uint64, float64), interval time.Duration) *RateTracker {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &RateTracker{
		callback:       callback,
		updateInterval: interval,
	}
}

// Observe consumes one session event. Non-Progress events are ignored, so
// the tracker can be chained in front of another sink.
func (rt *RateTracker) Observe(ev Event) {
	p, ok := ev.(Progress)
	if !ok {
		return
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	now := time.Now()
	if rt.lastUpdate.IsZero() {
		rt.lastUpdate = now
		rt.lastBytes = p.BytesTransferred
		return
	}
	elapsed := now.Sub(rt.lastUpdate)
	if elapsed < rt.updateInterval {
		return
	}

	rate := float64(p.BytesTransferred-rt.lastBytes) / elapsed.Seconds()
	if rt.callback != nil {
		rt.callback(p.FileName, p.BytesTransferred, p.TotalBytes, rate)
	}
	rt.lastUpdate = now
	rt.lastBytes = p.BytesTransferred
}

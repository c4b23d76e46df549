// Package progress measures transfer throughput and renders it for humans.
package progress

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of a Meter.
type Stats struct {
	Bytes     int64
	Items     int64
	RateBps   float64
	AvgBps    float64
	Elapsed   time.Duration
	StartedAt time.Time
}

// Meter counts transferred bytes and finished items and keeps an
// exponentially smoothed byte rate. It is safe for concurrent use.
type Meter struct {
	mu        sync.Mutex
	bytes     int64
	items     int64
	startedAt time.Time
	lastAt    time.Time
	lastBytes int64
	rateBps   float64
	alpha     float64
	now       func() time.Time
}

// NewMeter returns a meter that starts counting now.
func NewMeter() *Meter {
	return NewMeterWithNow(time.Now)
}

// NewMeterWithNow returns a meter with a custom time source (for tests).
func NewMeterWithNow(now func() time.Time) *Meter {
	if now == nil {
		now = time.Now
	}
	start := now()
	return &Meter{alpha: 0.2, now: now, startedAt: start, lastAt: start}
}

// Add records n transferred bytes.
func (m *Meter) Add(n int64) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.bytes += n
	deltaTime := now.Sub(m.lastAt).Seconds()
	if deltaTime <= 0 {
		return
	}
	inst := float64(m.bytes-m.lastBytes) / deltaTime
	if m.rateBps == 0 {
		m.rateBps = inst
	} else {
		m.rateBps = m.alpha*inst + (1-m.alpha)*m.rateBps
	}
	m.lastAt = now
	m.lastBytes = m.bytes
}

// Done records one finished item.
func (m *Meter) Done() {
	m.mu.Lock()
	m.items++
	m.mu.Unlock()
}

// Snapshot returns the current counters.
func (m *Meter) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{
		Bytes:     m.bytes,
		Items:     m.items,
		RateBps:   m.rateBps,
		StartedAt: m.startedAt,
		Elapsed:   m.now().Sub(m.startedAt),
	}
	if secs := stats.Elapsed.Seconds(); secs > 0 {
		stats.AvgBps = float64(m.bytes) / secs
	}
	return stats
}

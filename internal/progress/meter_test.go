package progress

import (
	"sync"
	"testing"
	"time"
)

func TestMeterRate(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	m := NewMeterWithNow(func() time.Time { return now })

	now = now.Add(1 * time.Second)
	m.Add(1000)
	m.Done()

	stats := m.Snapshot()
	if stats.Bytes != 1000 || stats.Items != 1 {
		t.Fatalf("expected 1000 bytes / 1 item, got %d / %d", stats.Bytes, stats.Items)
	}
	if stats.RateBps < 900 || stats.RateBps > 1100 {
		t.Fatalf("expected rate around 1000 B/s, got %.2f", stats.RateBps)
	}
	if stats.Elapsed != time.Second {
		t.Fatalf("expected elapsed 1s, got %s", stats.Elapsed)
	}
}

func TestMeterEWMASmoothing(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	m := NewMeterWithNow(func() time.Time { return now })

	now = now.Add(1 * time.Second)
	m.Add(1000)

	now = now.Add(1 * time.Second)
	m.Add(3000)

	stats := m.Snapshot()
	if stats.RateBps < 1300 || stats.RateBps > 1500 {
		t.Fatalf("expected smoothed rate around 1400 B/s, got %.2f", stats.RateBps)
	}
	if stats.AvgBps != 2000 {
		t.Fatalf("expected average 2000 B/s, got %.2f", stats.AvgBps)
	}
}

func TestMeterIdle(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	m := NewMeterWithNow(func() time.Time { return now })
	m.Add(0)
	m.Add(-5)

	stats := m.Snapshot()
	if stats.RateBps != 0 || stats.AvgBps != 0 || stats.Bytes != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestMeterConcurrentAdds(t *testing.T) {
	m := NewMeter()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Add(10)
				m.Done()
			}
		}()
	}
	wg.Wait()
	if s := m.Snapshot(); s.Bytes != 8000 || s.Items != 800 {
		t.Fatalf("got %d bytes / %d items", s.Bytes, s.Items)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{FormatRate(512), "512 B/s"},
		{FormatRate(2048), "2 KB/s"},
		{FormatRate(3 * 1024 * 1024), "3.0 MB/s"},
		{FormatBytes(100), "100 B"},
		{FormatBytes(1536), "1.5 KiB"},
		{FormatBytes(5 * 1024 * 1024 * 1024), "5.00 GiB"},
		{FormatElapsed(3723 * time.Second), "01:02:03"},
		{FormatElapsed(0), "00:00:00"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

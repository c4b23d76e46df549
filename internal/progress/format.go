package progress

import (
	"fmt"
	"time"
)

// FormatRate renders a byte rate with a binary unit.
func FormatRate(bps float64) string {
	const (
		k = 1024
		m = 1024 * k
		g = 1024 * m
	)
	if bps >= g {
		return fmt.Sprintf("%.2f GB/s", bps/float64(g))
	}
	if bps >= m {
		return fmt.Sprintf("%.1f MB/s", bps/float64(m))
	}
	if bps >= k {
		return fmt.Sprintf("%.0f KB/s", bps/float64(k))
	}
	return fmt.Sprintf("%.0f B/s", bps)
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n int64) string {
	const (
		k = 1024
		m = 1024 * k
		g = 1024 * m
	)
	switch {
	case n >= g:
		return fmt.Sprintf("%.2f GiB", float64(n)/float64(g))
	case n >= m:
		return fmt.Sprintf("%.1f MiB", float64(n)/float64(m))
	case n >= k:
		return fmt.Sprintf("%.1f KiB", float64(n)/float64(k))
	case n < 0:
		return "0 B"
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// FormatElapsed renders d as hh:mm:ss.
func FormatElapsed(d time.Duration) string {
	if d <= 0 {
		return "00:00:00"
	}
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

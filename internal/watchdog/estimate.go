package watchdog

import (
	"fmt"
	"time"
)

// ETA is the advisory time left: remaining records times the average per record.
func ETA(remaining int, avg time.Duration) time.Duration {
	if remaining <= 0 || avg <= 0 {
		return 0
	}
	return time.Duration(remaining) * avg
}

// FormatETA renders d as "<minutes>m <seconds>s".
func FormatETA(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}

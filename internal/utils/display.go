package utils

import (
	"fmt"
	"time"
)

const (
	kib = 1024
	mib = 1024 * 1024
)

// DisplayBi renders a byte count with binary units, as used for firmware images
func DisplayBi(bytes uint64) string {
	switch {
	case bytes >= mib:
		return fmt.Sprintf("%.2f MiB", float64(bytes)/mib)
	case bytes >= kib:
		return fmt.Sprintf("%.2f KiB", float64(bytes)/kib)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// DisplayTime renders a duration rounded to milliseconds
func DisplayTime(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

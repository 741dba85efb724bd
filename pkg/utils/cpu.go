package utils

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/cpu"
)

// CheckCPUUsage samples total CPU usage over interval and reports whether it
// is at or below maxCPUUsage. A failed sample counts as busy.
func CheckCPUUsage(ctx context.Context, maxCPUUsage float64, interval time.Duration) (bool, float64) {
	usage, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil || len(usage) == 0 {
		return false, 0
	}
	return usage[0] <= maxCPUUsage, usage[0]
}

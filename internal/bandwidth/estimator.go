// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package bandwidth

import "time"

// EstimateDuration predicts how long moving records and bytes takes under
// limits. The slowest limit wins. Returns 0 when nothing is throttled.
//
// Examples:
//   - 10 MiB at 1 MiB/s = 10s
//   - 5000 records at 1000 records/s and 1 GiB at 100 MiB/s = 10.24s
func EstimateDuration(limits Limits, records, bytes int64) time.Duration {
	var seconds float64
	if limits.BytesPerSecond > 0 && bytes > 0 {
		seconds = float64(bytes) / float64(limits.BytesPerSecond)
	}
	if limits.RecordsPerSecond > 0 && records > 0 {
		seconds = max(seconds, float64(records)/float64(limits.RecordsPerSecond))
	}
	return time.Duration(seconds * float64(time.Second))
}

// FormatRate renders a bytes-per-second figure with a binary unit.
func FormatRate(bytesPerSecond float64) (float64, string) {
	switch {
	case bytesPerSecond >= 1<<30:
		return bytesPerSecond / (1 << 30), "GiB/s"
	case bytesPerSecond >= 1<<20:
		return bytesPerSecond / (1 << 20), "MiB/s"
	case bytesPerSecond >= 1<<10:
		return bytesPerSecond / (1 << 10), "KiB/s"
	default:
		return bytesPerSecond, "B/s"
	}
}

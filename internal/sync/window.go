package sync

import (
	"math"
	"time"

	"github.com/peteski22/adsbridge/internal/config"
	"github.com/peteski22/adsbridge/internal/state"
)

// Maximum report window spans in days. The API caps segmented queries at 45
// days and unsegmented ones at 90; rounding can add up to two units.
const (
	segmentedWindowDays   = 42
	unsegmentedWindowDays = 85
)

// window is a half-open time range [start, end).
type window struct {
	end   time.Time
	start time.Time
}

// floorUnit truncates t to the start of its hour, or its day for DAY and
// TOTAL granularity, in t's own location.
func floorUnit(t time.Time, granularity string) time.Time {
	y, m, d := t.Date()
	if granularity == config.GranularityHour {
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, t.Location())
	}
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// addUnits moves t by n hours or calendar days.
func addUnits(t time.Time, granularity string, n int) time.Time {
	if granularity == config.GranularityHour {
		return t.Add(time.Duration(n) * time.Hour)
	}
	return t.AddDate(0, 0, n)
}

// roundOutward widens [start, end] to whole units with one unit of padding on each side.
func roundOutward(start, end time.Time, granularity string) (time.Time, time.Time) {
	return addUnits(floorUnit(start, granularity), granularity, -1),
		addUnits(floorUnit(end, granularity), granularity, 1)
}

// absoluteWindow returns the range a report run covers. It starts at the last
// watermark, or attributionDays before now when the watermark is more recent
// than that, and ends one unit after now.
func absoluteWindow(last, now time.Time, granularity string, attributionDays int) window {
	deltaDays := int(math.Floor(now.Sub(last).Hours() / 24))

	var start time.Time
	if deltaDays < attributionDays {
		start = floorUnit(now, granularity).AddDate(0, 0, -attributionDays)
	} else {
		start = floorUnit(last, granularity)
	}

	return window{
		start: start,
		end:   addUnits(floorUnit(now, granularity), granularity, 1),
	}
}

// windowSpanDays returns the maximum window width for a report.
func windowSpanDays(segmented bool) int {
	if segmented {
		return segmentedWindowDays
	}
	return unsegmentedWindowDays
}

// splitWindows partitions w into consecutive windows at most spanDays wide.
func splitWindows(w window, spanDays int) []window {
	var out []window
	for start := w.start; start.Before(w.end); {
		end := start.AddDate(0, 0, spanDays)
		if end.After(w.end) {
			end = w.end
		}
		out = append(out, window{start: start, end: end})
		start = end
	}
	return out
}

// formatBounds rounds w outward and renders both ends in the watermark layout.
func formatBounds(start, end time.Time, granularity string) (string, string) {
	s, e := roundOutward(start, end, granularity)
	return state.FormatTime(s), state.FormatTime(e)
}

// chunk splits items into consecutive slices of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	var out [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n:n])
		items = items[n:]
	}
	return out
}

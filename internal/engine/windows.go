package engine

import "time"

// BuildWindows enumerates every run of intervalCount consecutive points that
// lies fully inside [rangeStart, rangeEnd], in order of start index. The
// returned windows share the series' backing array and must not be modified.
func BuildWindows(series Series, intervalCount int, rangeStart, rangeEnd time.Time) []Window {
	if intervalCount <= 0 {
		return nil
	}

	windows := []Window{}
	for i := 0; i+intervalCount <= len(series); i++ {
		points := series[i : i+intervalCount : i+intervalCount]

		if points[0].Start.Before(rangeStart) || points[len(points)-1].End.After(rangeEnd) {
			continue
		}

		// A gap in the feed splits the run
		if !isContiguous(points) {
			continue
		}

		windows = append(windows, newWindow(points))
	}

	return windows
}

// averagePrice is the duration-weighted mean price of the points
func averagePrice(points []PricePoint) float64 {
	var weighted, total float64
	for _, p := range points {
		secs := p.Duration().Seconds()
		weighted += secs * p.Price
		total += secs
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// isContiguous verifies that each point starts where the previous one ended
func isContiguous(points []PricePoint) bool {
	for i := 1; i < len(points); i++ {
		if !points[i].Start.Equal(points[i-1].End) {
			return false
		}
	}
	return true
}

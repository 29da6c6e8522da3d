package playback

import "math"

// BufferedAhead returns how many seconds are buffered contiguously past
// position, using the range that covers position.
func BufferedAhead(ranges []TimeRange, position float64) float64 {
	for _, r := range ranges {
		if position >= r.Start && position <= r.End {
			return r.End - position
		}
	}
	return 0
}

// BufferHealth expresses the buffered-ahead seconds as a percentage of
// lookahead, clamped to [0, 100].
func BufferHealth(ranges []TimeRange, position, lookahead float64) float64 {
	return HealthPercent(BufferedAhead(ranges, position), lookahead)
}

// HealthPercent converts buffered-ahead seconds to a percentage of lookahead.
func HealthPercent(ahead, lookahead float64) float64 {
	if lookahead <= 0 || math.IsNaN(ahead) || ahead <= 0 {
		return 0
	}
	return math.Min(ahead/lookahead*100, 100)
}

// clamp bounds v to [lo, hi]. NaN maps to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

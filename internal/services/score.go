package services

// AdjustScore normalizes a raw Likert value onto the forward-oriented scale
// [min, max]. Reverse-scored items are mirrored so that a higher adjusted
// value always means less friction. Out-of-range raw values are clamped.
// Applying the adjustment twice with the same bounds is the identity.
func AdjustScore(raw int, reverse bool, min, max int) float64 {
	if max <= min {
		return float64(raw)
	}
	if raw < min {
		raw = min
	}
	if raw > max {
		raw = max
	}
	if reverse {
		return float64(min + max - raw)
	}
	return float64(raw)
}

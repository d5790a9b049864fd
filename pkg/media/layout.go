package media

// Corner-rounding rules for a message's asset grid, 0-indexed over total
// assets. The index thresholds {0,3,6} and {total-1,5,8} over the <4 / <7
// size tiers are a presentation contract: they keep 1/2/3/6/9-asset grids
// visually correct and must not drift.

// RoundTopLeft: only the first asset, and only when the message carries no
// accompanying text above the grid.
func RoundTopLeft(index, total int, hasText bool) bool {
	return index == 0 && !hasText
}

// RoundTopRight mirrors RoundTopLeft for the end of the first row.
func RoundTopRight(index, total int, hasText bool) bool {
	if hasText {
		return false
	}
	last := total - 1
	if last > 2 {
		last = 2
	}
	return index == last
}

// RoundBottomLeft: first asset of the bottom row per size tier.
func RoundBottomLeft(index, total int) bool {
	switch {
	case total < 4:
		return index == 0
	case total < 7:
		return index == 3
	default:
		return index == 6
	}
}

// RoundBottomRight: last asset of the bottom row per size tier.
func RoundBottomRight(index, total int) bool {
	switch {
	case total < 4:
		return index == total-1
	case total < 7:
		return index == 5
	default:
		return index == 8
	}
}

// ScaleDimensions clamps the longest side to max, preserving aspect ratio.
// Dimensions already within bounds pass through unchanged.
func ScaleDimensions(width, height, max int) (int, int) {
	if max <= 0 || (width <= max && height <= max) {
		return width, height
	}
	if width >= height {
		h := height * max / width
		if h < 1 {
			h = 1
		}
		return max, h
	}
	w := width * max / height
	if w < 1 {
		w = 1
	}
	return w, max
}

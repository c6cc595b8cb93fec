package main

import (
	"math"
	"strings"
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// spark renders a sparkline of normalized values (0..1), sampling evenly
// when there are more values than columns.
func spark(vals []float64, width int) string {
	if len(vals) == 0 || width <= 0 {
		return ""
	}
	step := float64(len(vals)) / float64(width)
	var b strings.Builder
	for i := 0; i < width; i++ {
		idx := int(math.Min(float64(len(vals)-1), math.Floor(float64(i)*step)))
		level := int(math.Round(clamp01(vals[idx]) * float64(len(sparkBlocks)-1)))
		if level < 0 {
			level = 0
		}
		if level > len(sparkBlocks)-1 {
			level = len(sparkBlocks) - 1
		}
		b.WriteRune(sparkBlocks[level])
	}
	return b.String()
}

// bar renders a horizontal gauge for a 0..1 value. A non-zero value always
// shows at least one cell.
func bar(v float64, width int) string {
	v = clamp01(v)
	fill := int(math.Round(v * float64(width)))
	if v > 0 && fill == 0 {
		fill = 1
	}
	if fill > width {
		fill = width
	}
	return strings.Repeat("█", fill) + strings.Repeat(" ", width-fill)
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

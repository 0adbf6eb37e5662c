// Package export renders saved runs for reports.
package export

import (
	"fmt"
	"strings"
)

// Trace is one line of a trend chart.
type Trace struct {
	Name   string
	Color  string
	Values []float64
}

// TrendSVG draws traces against the sample index on a shared vertical
// scale, with a legend in the top-left corner.
func TrendSVG(traces []Trace, width, height int) string {
	n := 0
	var minY, maxY float64
	first := true
	for _, tr := range traces {
		n = max(n, len(tr.Values))
		for _, v := range tr.Values {
			if first {
				minY, maxY, first = v, v, false
				continue
			}
			minY, maxY = min(minY, v), max(maxY, v)
		}
	}
	if n < 2 {
		return ""
	}

	rangeY := maxY - minY
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeY = maxY - minY
	rangeX := float64(n - 1)

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	for i, tr := range traces {
		if len(tr.Values) < 2 {
			continue
		}
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, tr.Color)
		for j, v := range tr.Values {
			x := float64(j) / rangeX * float64(width)
			y := float64(height) - (v-minY)/rangeY*float64(height)
			if j == 0 {
				fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
			}
		}
		sb.WriteString("\"/>\n")
		fmt.Fprintf(&sb, `<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, 16+14*i, tr.Color, tr.Name)
	}

	fmt.Fprintf(&sb, `<text x="%d" y="16" fill="#888888" font-family="monospace" font-size="11" text-anchor="end">%.3g .. %.3g</text>
</svg>`, width-8, minY, maxY)
	return sb.String()
}

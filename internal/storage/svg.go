package storage

import (
	"fmt"
	"html"
	"io"
	"strings"
)

var palette = []string{"#5fd7d7", "#ff87ff", "#ffd700", "#5fff00", "#ff5f5f", "#87afff"}

// WriteSVG plots columns of a stored path (as returned by LoadPath)
// against the time column. Each series is scaled to its own range so that
// amounts and pH share one chart; the legend shows each range.
func WriteSVG(w io.Writer, header []string, rows [][]float64, columns []int, width, height int) error {
	if len(rows) < 2 {
		return fmt.Errorf("storage: need at least two rows to plot, got %d", len(rows))
	}
	for _, c := range columns {
		if c <= 0 || c >= len(header) {
			return fmt.Errorf("storage: column %d out of range [1, %d)", c, len(header))
		}
	}

	t0, t1 := rows[0][0], rows[len(rows)-1][0]
	spanT := t1 - t0
	if spanT == 0 {
		spanT = 1
	}
	const pad = 0.05
	plotH := float64(height) * (1 - 2*pad)
	top := float64(height) * pad

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	for k, c := range columns {
		lo, hi := rows[0][c], rows[0][c]
		for _, row := range rows {
			lo = min(lo, row[c])
			hi = max(hi, row[c])
		}
		rang := hi - lo
		if rang == 0 {
			rang = 1
		}
		color := palette[k%len(palette)]

		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, color)
		for i, row := range rows {
			x := (row[0] - t0) / spanT * float64(width)
			y := top + plotH - (row[c]-lo)/rang*plotH
			if i == 0 {
				fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
			}
		}
		sb.WriteString("\"/>\n")

		fmt.Fprintf(&sb, `<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s [%.4g, %.4g]</text>
`, 16*(k+1), color, html.EscapeString(header[c]), lo, hi)
	}

	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

package presentation

import (
	"fmt"
	"html"
	"strings"
)

const (
	svgWidth   = 360
	svgHeight  = 200
	svgPadding = 30
)

// RenderSVG draws the chart as an inline SVG fragment.
func RenderSVG(chart Chart) string {
	var b strings.Builder
	plotHeight := float64(svgHeight - 2*svgPadding)
	span := chart.YMax - chart.YMin
	if span <= 0 {
		span = 1
	}
	slot := float64(svgWidth-2*svgPadding) / float64(max(len(chart.Bars), 1))
	barWidth := slot * 0.6

	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" role="img" aria-label="%s">`,
		svgWidth, svgHeight, svgWidth, svgHeight, html.EscapeString(chart.YLabel))
	fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#999"/>`,
		svgPadding, svgHeight-svgPadding, svgWidth-svgPadding, svgHeight-svgPadding)

	for i, bar := range chart.Bars {
		ratio := clamp01((bar.Value - chart.YMin) / span)
		h := ratio * plotHeight
		x := float64(svgPadding) + float64(i)*slot + (slot-barWidth)/2
		y := float64(svgHeight-svgPadding) - h
		fmt.Fprintf(&b, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s" fill-opacity="0.8"/>`,
			x, y, barWidth, h, html.EscapeString(bar.Color))
		fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" text-anchor="middle" font-size="12">%s</text>`,
			x+barWidth/2, y-4, html.EscapeString(bar.Text))
		fmt.Fprintf(&b, `<text x="%.1f" y="%d" text-anchor="middle" font-size="12">%s</text>`,
			x+barWidth/2, svgHeight-svgPadding+16, html.EscapeString(bar.Category))
	}
	b.WriteString(`</svg>`)
	return b.String()
}

// RenderText draws the chart as fixed-width ASCII bars, one line per category.
func RenderText(chart Chart, width int) string {
	if width <= 0 {
		width = 40
	}
	labelWidth := 0
	for _, bar := range chart.Bars {
		labelWidth = max(labelWidth, len(bar.Category))
	}
	span := chart.YMax - chart.YMin
	if span <= 0 {
		span = 1
	}

	var b strings.Builder
	for _, bar := range chart.Bars {
		filled := int(clamp01((bar.Value-chart.YMin)/span)*float64(width) + 0.5)
		fmt.Fprintf(&b, "%-*s |%s%s| %s\n",
			labelWidth, bar.Category,
			strings.Repeat("#", filled), strings.Repeat(".", width-filled),
			bar.Text)
	}
	return b.String()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

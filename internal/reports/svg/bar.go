package svg

import (
	"fmt"
	"html/template"
	"strings"
)

// Bars renders a grouped or stacked bar chart. Values are counts and
// therefore non-negative; negative values are drawn as zero.
func Bars(width, height int, series []Series, labels []string, opts BarOpts) (template.HTML, error) {
	if len(series) == 0 {
		return "", fmt.Errorf("svg: at least one series required")
	}
	if len(labels) == 0 {
		return "", fmt.Errorf("svg: labels required")
	}
	for _, s := range series {
		if len(s.Values) != len(labels) {
			return "", fmt.Errorf("svg: series %q length must match labels", s.Label)
		}
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	padding := opts.Padding
	if padding <= 0 {
		padding = DefaultPadding
	}
	tickCount := opts.TickCount
	if tickCount <= 0 {
		tickCount = DefaultTicks
	}
	axisColor := fallback(opts.AxisColor, "#475569")
	gridColor := fallback(opts.GridColor, "#cbd5f5")

	chartWidth := float64(width) - 2*padding
	chartHeight := float64(height) - 2*padding
	if chartWidth <= 0 || chartHeight <= 0 {
		return "", fmt.Errorf("svg: viewport too small")
	}

	maxVal := 0.0
	for i := range labels {
		stack := 0.0
		for _, s := range series {
			v := positive(s.Values[i])
			if opts.Stacked {
				stack += v
			} else if v > maxVal {
				maxVal = v
			}
		}
		if stack > maxVal {
			maxVal = stack
		}
	}
	if almostEqual(maxVal, 0) {
		maxVal = 1
	}
	scale := chartHeight / maxVal
	bottom := padding + chartHeight

	groupWidth := chartWidth / float64(len(labels))
	barWidth := groupWidth * 0.7
	if !opts.Stacked {
		barWidth = groupWidth * 0.8 / float64(len(series))
	}

	titleID := makeID(opts.Title, "bar-title")
	descID := makeID(opts.Title, "bar-desc")

	var b strings.Builder
	openSVG(&b, width, height, titleID, descID, fallback(opts.Title, "Bar chart"), fallback(opts.Description, "Counts per category"))
	grid(&b, padding, chartWidth, chartHeight, 0, maxVal, tickCount, axisColor, gridColor)

	for i, label := range labels {
		baseX := padding + float64(i)*groupWidth
		stackTop := bottom
		for j, s := range series {
			h := positive(s.Values[i]) * scale
			color := fallback(s.Color, colorAt(nil, j))
			var x, y float64
			if opts.Stacked {
				x = baseX + (groupWidth-barWidth)/2
				y = stackTop - h
				stackTop = y
			} else {
				x = baseX + groupWidth*0.1 + float64(j)*barWidth
				y = bottom - h
			}
			b.WriteString(fmt.Sprintf("<rect x=\"%.2f\" y=\"%.2f\" width=\"%.2f\" height=\"%.2f\" fill=\"%s\" aria-label=\"%s %s: %s\"></rect>",
				x, y, barWidth, h, color, template.HTMLEscapeString(s.Label), template.HTMLEscapeString(label), formatTick(s.Values[i])))
		}
		center := baseX + groupWidth/2
		b.WriteString(fmt.Sprintf("<text x=\"%.2f\" y=\"%.2f\" fill=\"%s\" font-size=\"10\" text-anchor=\"middle\">%s</text>", center, bottom+14, axisColor, template.HTMLEscapeString(label)))
	}

	if len(series) > 1 || series[0].Label != "" {
		legendX := padding
		legendY := padding - 12
		if legendY < 12 {
			legendY = 12
		}
		for j, s := range series {
			color := fallback(s.Color, colorAt(nil, j))
			b.WriteString(fmt.Sprintf("<rect x=\"%.2f\" y=\"%.2f\" width=\"10\" height=\"10\" fill=\"%s\"></rect>", legendX, legendY-8, color))
			b.WriteString(fmt.Sprintf("<text x=\"%.2f\" y=\"%.2f\" fill=\"%s\" font-size=\"10\" text-anchor=\"start\">%s</text>", legendX+14, legendY, axisColor, template.HTMLEscapeString(s.Label)))
			legendX += 18 + 6*float64(len(s.Label)) + 12
		}
	}

	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}

func positive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

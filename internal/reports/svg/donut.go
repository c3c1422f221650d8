package svg

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// Donut renders category shares as a ring with a legend on the right.
// A zero total renders an empty grey ring.
func Donut(width, height int, values []float64, labels []string, opts DonutOpts) (template.HTML, error) {
	if len(values) != len(labels) {
		return "", fmt.Errorf("svg: labels length must match values")
	}
	if width <= 0 {
		width = DefaultWidth / 2
	}
	if height <= 0 {
		height = DefaultHeight
	}
	thickness := opts.Thickness
	if thickness <= 0 || thickness >= 1 {
		thickness = 0.38
	}

	total := 0.0
	for _, v := range values {
		total += positive(v)
	}

	radius := math.Min(float64(height), float64(width)*0.55)/2 - 8
	if radius <= 4 {
		return "", fmt.Errorf("svg: viewport too small")
	}
	cx := radius + 8
	cy := float64(height) / 2
	stroke := radius * thickness
	r := radius - stroke/2

	titleID := makeID(opts.Title, "donut-title")
	descID := makeID(opts.Title, "donut-desc")

	var b strings.Builder
	openSVG(&b, width, height, titleID, descID, fallback(opts.Title, "Donut chart"), fallback(opts.Description, "Share per category"))
	b.WriteString(fmt.Sprintf("<circle cx=\"%.2f\" cy=\"%.2f\" r=\"%.2f\" fill=\"none\" stroke=\"#e2e8f0\" stroke-width=\"%.2f\"></circle>", cx, cy, r, stroke))

	if total > 0 {
		angle := -math.Pi / 2
		for i, v := range values {
			v = positive(v)
			if v == 0 {
				continue
			}
			color := colorAt(opts.Colors, i)
			share := v / total
			label := template.HTMLEscapeString(labels[i])
			if almostEqual(share, 1) {
				b.WriteString(fmt.Sprintf("<circle cx=\"%.2f\" cy=\"%.2f\" r=\"%.2f\" fill=\"none\" stroke=\"%s\" stroke-width=\"%.2f\"><title>%s: %s</title></circle>", cx, cy, r, color, stroke, label, formatTick(v)))
				break
			}
			sweep := share * 2 * math.Pi
			x1, y1 := cx+r*math.Cos(angle), cy+r*math.Sin(angle)
			x2, y2 := cx+r*math.Cos(angle+sweep), cy+r*math.Sin(angle+sweep)
			large := 0
			if sweep > math.Pi {
				large = 1
			}
			b.WriteString(fmt.Sprintf("<path d=\"M%.2f %.2f A%.2f %.2f 0 %d 1 %.2f %.2f\" fill=\"none\" stroke=\"%s\" stroke-width=\"%.2f\"><title>%s: %s</title></path>",
				x1, y1, r, r, large, x2, y2, color, stroke, label, formatTick(v)))
			angle += sweep
		}
	}
	b.WriteString(fmt.Sprintf("<text x=\"%.2f\" y=\"%.2f\" font-size=\"16\" font-weight=\"600\" fill=\"#0f172a\" text-anchor=\"middle\">%s</text>", cx, cy+5, formatTick(total)))

	legendX := cx + radius + 16
	rowHeight := 16.0
	legendY := cy - rowHeight*float64(len(labels))/2 + 10
	for i, label := range labels {
		y := legendY + float64(i)*rowHeight
		b.WriteString(fmt.Sprintf("<rect x=\"%.2f\" y=\"%.2f\" width=\"10\" height=\"10\" fill=\"%s\"></rect>", legendX, y-9, colorAt(opts.Colors, i)))
		b.WriteString(fmt.Sprintf("<text x=\"%.2f\" y=\"%.2f\" fill=\"#475569\" font-size=\"11\">%s (%s)</text>", legendX+16, y, template.HTMLEscapeString(label), formatTick(positive(values[i]))))
	}

	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}

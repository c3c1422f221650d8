package reports

import (
	"html/template"

	"github.com/fleetdesk/fleetdesk/internal/reports/svg"
)

// Render draws the chart as inline SVG at the default size.
func (c Chart) Render() (template.HTML, error) {
	return c.RenderSize(svg.DefaultWidth, svg.DefaultHeight)
}

// RenderSize draws the chart as inline SVG.
func (c Chart) RenderSize(width, height int) (template.HTML, error) {
	switch c.Kind {
	case ChartDonut:
		var values []float64
		if len(c.Series) > 0 {
			values = c.Series[0].Values
		}
		return svg.Donut(height, height, values, c.Labels, svg.DonutOpts{Title: c.Title, Description: c.Title + " distribution"})
	case ChartLine:
		var values []float64
		if len(c.Series) > 0 {
			values = c.Series[0].Values
		}
		return svg.Line(width, height, values, c.Labels, svg.LineOpts{Title: c.Title, Description: c.Title + " trend", ShowDots: true})
	default:
		return svg.Bars(width, height, c.Series, c.Labels, svg.BarOpts{Title: c.Title, Description: c.Title + " comparison", Stacked: c.Kind == ChartStackedBar})
	}
}

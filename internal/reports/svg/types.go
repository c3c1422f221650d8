package svg

// Series is one named value sequence of a bar chart.
type Series struct {
	Label  string
	Values []float64
	Color  string
}

// LineOpts customises the line chart renderer.
type LineOpts struct {
	Title       string
	Description string
	StrokeColor string
	FillColor   string
	AxisColor   string
	GridColor   string
	Padding     float64
	ShowDots    bool
	TickCount   int
}

// BarOpts customises the bar chart renderer.
type BarOpts struct {
	Title       string
	Description string
	AxisColor   string
	GridColor   string
	Padding     float64
	TickCount   int
	// Stacked draws series on top of each other instead of side by side.
	Stacked bool
}

// DonutOpts customises the donut renderer.
type DonutOpts struct {
	Title       string
	Description string
	Colors      []string
	// Thickness is the ring width as a fraction of the radius.
	Thickness float64
}

// Defaults for the report charts.
const (
	DefaultWidth   = 720
	DefaultHeight  = 240
	DefaultPadding = 28.0
	DefaultTicks   = 5
)

// Palette is the default series colour cycle.
var Palette = []string{"#2563eb", "#16a34a", "#f59e0b", "#dc2626", "#7c3aed", "#0891b2", "#db2777", "#65a30d"}

func colorAt(custom []string, i int) string {
	if i < len(custom) && custom[i] != "" {
		return custom[i]
	}
	return Palette[i%len(Palette)]
}

package report

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/hexenrich/internal/geo"
)

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// WriteHTML renders the cell centres as a scatter coloured by value.
func WriteHTML(w io.Writer, cells []Cell, o Options) error {
	data := make([]opts.ScatterData, 0, len(cells))
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range cells {
		if c.Geometry == nil {
			continue
		}
		b := c.Geometry.Bounds()
		if b == nil {
			continue
		}
		ctr := geo.Center(b)
		minX, maxX = math.Min(minX, ctr.X), math.Max(maxX, ctr.X)
		minY, maxY = math.Min(minY, ctr.Y), math.Max(maxY, ctr.Y)
		var v interface{} = c.Value
		if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
			v = "-"
		}
		data = append(data, opts.ScatterData{Name: c.ID, Value: []interface{}{ctr.X, ctr.Y, v}})
	}

	sum := Summarize(cells)
	lo, hi := sum.valueRange()
	subtitle := fmt.Sprintf("cells=%d", len(data))
	if o.Variable != "" {
		subtitle = fmt.Sprintf("%s %s", o.Variable, sum)
	}

	scatter := charts.NewScatter()
	global := []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{PageTitle: o.title(), Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: o.title(), Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	}
	if len(data) > 0 {
		global = append(global,
			charts.WithXAxisOpts(opts.XAxis{Min: minX, Max: maxX, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
			charts.WithYAxisOpts(opts.YAxis{Min: minY, Max: maxY, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		)
	}
	scatter.SetGlobalOptions(global...)
	scatter.AddSeries("cells", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render html: %w", err)
	}
	return nil
}

// Package report renders previews of an enriched grid: a PNG map drawn with
// gonum/plot and an interactive HTML scatter drawn with go-echarts.
package report

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Cell is one grid cell with the value it is coloured by.
type Cell struct {
	ID       string
	Geometry geom.Polygonal
	Value    float64
}

// Options controls preview titles.
type Options struct {
	Title    string
	Variable string
}

func (o Options) title() string {
	if o.Title != "" {
		return o.Title
	}
	return "Enriched grid"
}

// Summary holds descriptive statistics of the coloured variable.
type Summary struct {
	Count  int
	Sum    float64
	Min    float64
	Max    float64
	Mean   float64
	Median float64
}

// Summarize returns statistics over the cell values. NaN values are skipped.
func Summarize(cells []Cell) Summary {
	values := make([]float64, 0, len(cells))
	for _, c := range cells {
		if !math.IsNaN(c.Value) {
			values = append(values, c.Value)
		}
	}
	if len(values) == 0 {
		return Summary{}
	}
	sort.Float64s(values)
	return Summary{
		Count:  len(values),
		Sum:    floats.Sum(values),
		Min:    values[0],
		Max:    values[len(values)-1],
		Mean:   stat.Mean(values, nil),
		Median: stat.Quantile(0.5, stat.Empirical, values, nil),
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("n=%d sum=%.2f min=%.2f max=%.2f mean=%.2f median=%.2f", s.Count, s.Sum, s.Min, s.Max, s.Mean, s.Median)
}

// valueRange returns a non-empty [min, max] over the summary.
func (s Summary) valueRange() (float64, float64) {
	lo, hi := s.Min, s.Max
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

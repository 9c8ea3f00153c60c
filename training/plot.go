package training

import (
	"errors"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SavePredictionPlot renders held-out predictions against actual prices with
// the identity line for reference. The format follows the file extension.
func SavePredictionPlot(path string, actual, predicted []float64) error {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return errors.New("no held-out predictions to plot")
	}

	p := plot.New()
	p.Title.Text = "Predicted vs actual price"
	p.X.Label.Text = "Actual (₹)"
	p.Y.Label.Text = "Predicted (₹)"

	pts := make(plotter.XYs, len(actual))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range actual {
		pts[i].X = actual[i]
		pts[i].Y = predicted[i]
		lo = math.Min(lo, math.Min(actual[i], predicted[i]))
		hi = math.Max(hi, math.Max(actual[i], predicted[i]))
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	s.Color = color.RGBA{R: 50, G: 50, B: 255, A: 255}
	p.Add(s)

	l, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return err
	}
	l.Color = color.RGBA{R: 255, A: 255}
	l.LineStyle.Width = vg.Points(1.5)
	p.Add(l)

	return p.Save(5*vg.Inch, 5*vg.Inch, path)
}

// Package chart renders the per-model score report.
package chart

import (
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/mlops-project/trainer/pkg/errors"
)

// Score is one bar of the chart.
type Score struct {
	Name  string
	Value float64
}

// SaveScores draws one bar per model with its test R² and a horizontal line
// at threshold, and saves it to path. The image format follows the file
// extension (png, svg, pdf, ...).
func SaveScores(path string, scores []Score, threshold float64) error {
	if len(scores) == 0 {
		return errors.NewValueError("chart.SaveScores", "no scores to plot")
	}

	p := plot.New()
	p.Title.Text = "Test R² by model"
	p.Y.Label.Text = "R²"

	values := make(plotter.Values, len(scores))
	names := make([]string, len(scores))
	lo, hi := math.Min(0, threshold), math.Max(1, threshold)
	for i, s := range scores {
		v := s.Value
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		values[i] = v
		names[i] = s.Name
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return errors.Wrap(err, "build bar chart")
	}
	bars.Color = color.RGBA{R: 66, G: 133, B: 244, A: 255}
	bars.LineStyle.Width = vg.Length(0)

	gate, err := plotter.NewLine(plotter.XYs{
		{X: -0.5, Y: threshold},
		{X: float64(len(scores)) - 0.5, Y: threshold},
	})
	if err != nil {
		return errors.Wrap(err, "build threshold line")
	}
	gate.LineStyle.Color = color.RGBA{R: 219, G: 68, B: 55, A: 255}
	gate.LineStyle.Width = vg.Points(1.5)
	gate.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}

	p.Add(bars, gate)
	p.Legend.Add("threshold", gate)
	p.Legend.Top = true
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 6
	p.X.Tick.Label.XAlign = -0.8
	p.Y.Min = lo
	p.Y.Max = hi

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create chart directory for %s", path)
	}
	width := vg.Length(math.Max(4, float64(len(scores))*0.9)) * vg.Inch
	if err := p.Save(width, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save chart %s", path)
	}
	return nil
}

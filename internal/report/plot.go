// Package report renders calibration fits and replayed logs for a person to
// look at: a static fit plot and an interactive HTML error report.
package report

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/wind.report/internal/calibration"
)

const (
	curveSamples = 200
	// maxCurveDeg keeps model curves away from the tan asymptote.
	maxCurveDeg = 85.0
)

var palette = []color.Color{
	color.RGBA{R: 31, G: 119, B: 180, A: 255},
	color.RGBA{R: 214, G: 39, B: 40, A: 255},
	color.RGBA{R: 44, G: 160, B: 44, A: 255},
}

// FitPlot draws the measurements as |angle| against anemometer speed, with
// one curve per model across the observed angle range.
func FitPlot(ms []calibration.Measurement, models []calibration.Model) (*plot.Plot, error) {
	if len(ms) == 0 {
		return nil, fmt.Errorf("%w: nothing to plot", calibration.ErrInsufficientData)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Pendulum calibration (%d samples)", len(ms))
	p.X.Label.Text = "Angle (deg)"
	p.Y.Label.Text = "Wind speed (m/s)"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, 0, len(ms))
	maxAngle := 0.0
	for _, m := range ms {
		a := math.Abs(m.AngleDeg)
		if math.IsNaN(a) || math.IsNaN(m.GroundTruthMPS) {
			continue
		}
		pts = append(pts, plotter.XY{X: a, Y: m.GroundTruthMPS})
		maxAngle = math.Max(maxAngle, a)
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter: %w", err)
	}
	scatter.GlyphStyle.Color = color.Gray{Y: 90}
	scatter.GlyphStyle.Radius = vg.Points(2)
	p.Add(scatter)
	p.Legend.Add("anemometer", scatter)

	maxAngle = math.Min(maxAngle, maxCurveDeg)
	for i, m := range models {
		curve := make(plotter.XYs, 0, curveSamples+1)
		for j := 0; j <= curveSamples; j++ {
			a := maxAngle * float64(j) / curveSamples
			curve = append(curve, plotter.XY{X: a, Y: calibration.Speed(a, m)})
		}
		line, err := plotter.NewLine(curve)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s curve: %w", m.Name(), err)
		}
		line.Width = vg.Points(1.5)
		line.Color = palette[i%len(palette)]
		p.Add(line)
		p.Legend.Add(fmt.Sprint(m), line)
	}

	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10
	return p, nil
}

// SaveFitPlot writes FitPlot to path. The image format follows the
// extension (png, svg, pdf).
func SaveFitPlot(path string, ms []calibration.Measurement, models []calibration.Model) error {
	p, err := FitPlot(ms, models)
	if err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}

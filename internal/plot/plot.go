// Package plot renders the figures a training run logs as image artifacts.
package plot

import (
	"fmt"
	"io"

	gonum "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Figure size of every rendered PNG.
const (
	Width  = 4 * vg.Inch
	Height = 3 * vg.Inch
)

// Line renders a single line chart as a PNG. xs and ys must have the same
// length; an empty series yields an empty set of axes.
func Line(title string, xs, ys []float64) (io.WriterTo, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("plot %q: %d x values but %d y values", title, len(xs), len(ys))
	}

	p := gonum.New()
	p.Title.Text = title
	p.X.Label.Text = "step"
	p.Add(plotter.NewGrid())

	if len(xs) > 0 {
		pts := make(plotter.XYs, len(xs))
		for i := range xs {
			pts[i].X = xs[i]
			pts[i].Y = ys[i]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("plot %q: %w", title, err)
		}
		p.Add(line)
	}

	w, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return nil, fmt.Errorf("plot %q: failed to render: %w", title, err)
	}
	return w, nil
}

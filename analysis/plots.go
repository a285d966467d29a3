package analysis

import (
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/medpipe/matrixio"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

const plotSize = 5 * vg.Inch

// plotCurve は (xs, ys) の折れ線を PNG として path に書き出す。
// diagonal が真のとき (0,0)-(1,1) の破線を重ねる。
func plotCurve(title, xLabel, yLabel string, xs, ys []float64, diagonal bool, path string) error {
	if len(xs) != len(ys) {
		return errors.NewDimensionError("plotCurve", len(xs), len(ys), 0)
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}
	if len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return errors.Wrapf(err, "plot %s", title)
		}
		line.LineStyle.Width = vg.Points(2)
		line.LineStyle.Color = color.RGBA{B: 200, A: 255}
		p.Add(line)
	}

	if diagonal {
		ref, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
		if err != nil {
			return errors.Wrapf(err, "plot %s", title)
		}
		ref.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		ref.LineStyle.Color = color.Gray{Y: 128}
		p.Add(ref)
		p.X.Min, p.X.Max = 0, 1
		p.Y.Min, p.Y.Max = 0, 1
	}

	wt, err := p.WriterTo(plotSize, plotSize, "png")
	if err != nil {
		return errors.Wrapf(err, "render %s", title)
	}
	return matrixio.WriteAtomic(path, func(w io.Writer) error {
		_, err := wt.WriteTo(w)
		return errors.Wrapf(err, "encode %s", path)
	})
}

package analysis

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"descale-qc/internal/decoder"
	"descale-qc/internal/kernels"
)

// DefaultErrorThreshold drops per-pixel differences at or below this value
// from the error image, so dither and rounding noise do not count.
const DefaultErrorThreshold = 0.01

const (
	errorBorder = 10
	errorGain   = 32
)

// Rescaler descales a frame to a target's native geometry and scales it
// back to the clip size with the same kernel.
type Rescaler struct {
	target kernels.Target
	label  string
	geom   kernels.Geometry
	kernel *draw.Kernel
	width  int
	height int
	window image.Rectangle
	thr    float64
}

// NewRescaler prepares a rescaler for frames of width x height. thr is the
// error image threshold; zero selects DefaultErrorThreshold.
func NewRescaler(t kernels.Target, width, height int, thr float64) (*Rescaler, error) {
	geom, err := t.Crop(width, height)
	if err != nil {
		return nil, err
	}
	if thr == 0 {
		thr = DefaultErrorThreshold
	}
	window := image.Rect(
		int(math.Round(geom.Src.Left)),
		int(math.Round(geom.Src.Top)),
		int(math.Round(geom.Src.Left+geom.Src.Width)),
		int(math.Round(geom.Src.Top+geom.Src.Height)),
	).Intersect(image.Rect(0, 0, geom.Width, geom.Height))
	if window.Empty() {
		return nil, fmt.Errorf("%s: empty source window in %dx%d", t.Label(), geom.Width, geom.Height)
	}
	return &Rescaler{
		target: t,
		label:  t.Label(),
		geom:   geom,
		kernel: t.Kernel.Interpolator(),
		width:  width,
		height: height,
		window: window,
		thr:    thr,
	}, nil
}

// Label returns the target label.
func (r *Rescaler) Label() string { return r.label }

// Geometry returns the descale geometry.
func (r *Rescaler) Geometry() kernels.Geometry { return r.geom }

// Descale scales the frame down into the source window of the descale
// canvas. Pixels of the canvas outside the window are filled by scaling to
// the whole canvas, so the rescale step has real data around the window
// edges.
func (r *Rescaler) Descale(p *decoder.Plane) *image.Gray16 {
	src := p.Gray16()
	canvas := image.NewGray16(image.Rect(0, 0, r.geom.Width, r.geom.Height))
	r.kernel.Scale(canvas, canvas.Bounds(), src, src.Bounds(), draw.Src, nil)
	if r.window != canvas.Bounds() {
		r.kernel.Scale(canvas, r.window, src, src.Bounds(), draw.Src, nil)
	}
	return canvas
}

// Rescale runs the descale and scales the result back to the clip size.
func (r *Rescaler) Rescale(p *decoder.Plane) (*decoder.Plane, error) {
	if p.Width != r.width || p.Height != r.height {
		return nil, fmt.Errorf("%s: frame is %dx%d, expected %dx%d", r.label, p.Width, p.Height, r.width, r.height)
	}
	canvas := r.Descale(p)
	out := image.NewGray16(image.Rect(0, 0, r.width, r.height))
	r.kernel.Scale(out, out.Bounds(), canvas, r.window, draw.Src, nil)
	return decoder.PlaneFromImage(out), nil
}

// Error returns the mean of the thresholded error image of p.
func (r *Rescaler) Error(p *decoder.Plane) (float64, error) {
	rescaled, err := r.Rescale(p)
	if err != nil {
		return 0, err
	}
	return ErrorValue(p, rescaled, r.thr), nil
}

// ErrorValue is the mean of |orig - rescaled| where it exceeds thr, with a
// 10 pixel border cropped and the result scaled by 32. Planes too small to
// crop are measured whole.
func ErrorValue(orig, rescaled *decoder.Plane, thr float64) float64 {
	border := errorBorder
	if orig.Width <= 2*border || orig.Height <= 2*border {
		border = 0
	}
	var sum float64
	for y := border; y < orig.Height-border; y++ {
		row := y * orig.Width
		for x := border; x < orig.Width-border; x++ {
			d := math.Abs(float64(orig.Pix[row+x]) - float64(rescaled.Pix[row+x]))
			if d > thr {
				sum += d
			}
		}
	}
	n := (orig.Width - 2*border) * (orig.Height - 2*border)
	if n <= 0 {
		return 0
	}
	return sum * errorGain / float64(n)
}

package analysis

import (
	"math"

	"descale-qc/internal/decoder"
)

// Complexity is the mean Sobel gradient magnitude of the plane, with each
// pixel's magnitude clipped to 1. It is the divisor that makes errors of
// busy and flat frames comparable.
func Complexity(p *decoder.Plane) float64 {
	if p.Width == 0 || p.Height == 0 {
		return 0
	}
	var sum float64
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			tl, t, tr := p.At(x-1, y-1), p.At(x, y-1), p.At(x+1, y-1)
			l, r := p.At(x-1, y), p.At(x+1, y)
			bl, b, br := p.At(x-1, y+1), p.At(x, y+1), p.At(x+1, y+1)

			gx := float64((tr + 2*r + br) - (tl + 2*l + bl))
			gy := float64((bl + 2*b + br) - (tl + 2*t + tr))
			sum += math.Min(math.Hypot(gx, gy), 1)
		}
	}
	return sum / float64(p.Width*p.Height)
}

package analysis

import (
	"context"
	"fmt"
	"math"

	"descale-qc/internal/decoder"
	"descale-qc/internal/offset"
)

// maxPSNR is reported for identical planes.
const maxPSNR = 100

// Measure compares two planes with the given method. It satisfies
// offset.Measure for decoded planes.
func Measure(ctx context.Context, method offset.Method, a, b *decoder.Plane) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if a.Width != b.Width || a.Height != b.Height {
		return 0, fmt.Errorf("%s: plane sizes differ: %dx%d vs %dx%d", method, a.Width, a.Height, b.Width, b.Height)
	}
	switch method {
	case offset.Diff:
		return meanAbsDiff(a, b), nil
	case offset.PSNR:
		return psnr(mse(a, b)), nil
	case offset.PSNRHVS:
		return psnrHVS(a, b), nil
	case offset.SSIM:
		return ssim(a, b), nil
	case offset.MSSSIM:
		return msssim(a, b), nil
	}
	return 0, fmt.Errorf("unsupported method %v", method)
}

func mse(a, b *decoder.Plane) float64 {
	var sum float64
	for i := range a.Pix {
		d := float64(a.Pix[i]) - float64(b.Pix[i])
		sum += d * d
	}
	return sum / float64(len(a.Pix))
}

func psnr(mse float64) float64 {
	if mse <= 0 {
		return maxPSNR
	}
	return math.Min(10*math.Log10(1/mse), maxPSNR)
}

const (
	ssimC1     = 0.01 * 0.01
	ssimC2     = 0.03 * 0.03
	ssimWindow = 8
)

// ssim averages the structural similarity over non-overlapping 8x8 windows.
func ssim(a, b *decoder.Plane) float64 {
	s, _ := ssimParts(a, b)
	return s
}

// ssimParts returns the mean SSIM and the mean contrast-structure term
// used by the multi-scale variant.
func ssimParts(a, b *decoder.Plane) (float64, float64) {
	win := ssimWindow
	if a.Width < win || a.Height < win {
		win = min(a.Width, a.Height)
	}
	var total, totalCS float64
	var count int
	for y := 0; y+win <= a.Height; y += win {
		for x := 0; x+win <= a.Width; x += win {
			var ma, mb float64
			for j := y; j < y+win; j++ {
				for i := x; i < x+win; i++ {
					ma += float64(a.Pix[j*a.Width+i])
					mb += float64(b.Pix[j*b.Width+i])
				}
			}
			n := float64(win * win)
			ma /= n
			mb /= n
			var va, vb, cov float64
			for j := y; j < y+win; j++ {
				for i := x; i < x+win; i++ {
					da := float64(a.Pix[j*a.Width+i]) - ma
					db := float64(b.Pix[j*b.Width+i]) - mb
					va += da * da
					vb += db * db
					cov += da * db
				}
			}
			va /= n
			vb /= n
			cov /= n
			cs := (2*cov + ssimC2) / (va + vb + ssimC2)
			l := (2*ma*mb + ssimC1) / (ma*ma + mb*mb + ssimC1)
			total += l * cs
			totalCS += cs
			count++
		}
	}
	if count == 0 {
		return 1, 1
	}
	return total / float64(count), totalCS / float64(count)
}

var msssimWeights = []float64{0.0448, 0.2856, 0.3001, 0.2363, 0.1333}

// msssim runs SSIM over a 2x box-downsampled pyramid. Scales that would be
// smaller than one SSIM window are dropped and the weights renormalised.
func msssim(a, b *decoder.Plane) float64 {
	var (
		logSum float64
		wSum   float64
	)
	for s, w := range msssimWeights {
		last := s == len(msssimWeights)-1 || a.Width/2 < ssimWindow || a.Height/2 < ssimWindow
		l, cs := ssimParts(a, b)
		v := cs
		if last {
			v = l
		}
		logSum += w * math.Log(math.Max(v, 1e-6))
		wSum += w
		if last {
			break
		}
		a, b = halve(a), halve(b)
	}
	return math.Exp(logSum / wSum)
}

func halve(p *decoder.Plane) *decoder.Plane {
	out := decoder.NewPlane(p.Width/2, p.Height/2)
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			out.Pix[y*out.Width+x] = (p.At(2*x, 2*y) + p.At(2*x+1, 2*y) +
				p.At(2*x, 2*y+1) + p.At(2*x+1, 2*y+1)) / 4
		}
	}
	return out
}

// Contrast sensitivity weights for the 8x8 DCT of PSNR-HVS.
var csf = [8][8]float64{
	{1.608443, 2.339554, 2.573509, 1.608443, 1.072295, 0.643377, 0.504610, 0.421887},
	{2.144591, 2.144591, 1.838221, 1.354478, 0.989811, 0.443708, 0.428918, 0.467911},
	{1.838221, 1.979316, 1.608443, 1.072295, 0.643377, 0.451493, 0.372972, 0.459555},
	{1.838221, 1.513829, 1.169777, 0.887417, 0.504610, 0.295806, 0.321689, 0.415082},
	{1.429727, 1.169777, 0.695543, 0.459555, 0.378457, 0.236102, 0.249855, 0.334222},
	{1.072295, 0.735288, 0.467911, 0.402111, 0.317717, 0.247453, 0.227744, 0.279729},
	{0.525206, 0.402111, 0.329937, 0.295806, 0.249855, 0.212687, 0.214459, 0.254803},
	{0.357432, 0.279729, 0.270896, 0.262603, 0.229778, 0.257351, 0.249855, 0.259950},
}

var dctBasis = func() [8][8]float64 {
	var m [8][8]float64
	for u := 0; u < 8; u++ {
		c := math.Sqrt(2.0 / 8)
		if u == 0 {
			c = math.Sqrt(1.0 / 8)
		}
		for x := 0; x < 8; x++ {
			m[u][x] = c * math.Cos(float64(2*x+1)*float64(u)*math.Pi/16)
		}
	}
	return m
}()

// psnrHVS weights the DCT of the 8x8 block differences by contrast
// sensitivity before taking the PSNR, on an 8-bit scale.
func psnrHVS(a, b *decoder.Plane) float64 {
	var sum float64
	var blocks int
	var diff, tmp [8][8]float64
	for y := 0; y+8 <= a.Height; y += 8 {
		for x := 0; x+8 <= a.Width; x += 8 {
			for j := 0; j < 8; j++ {
				for i := 0; i < 8; i++ {
					k := (y+j)*a.Width + x + i
					diff[j][i] = (float64(a.Pix[k]) - float64(b.Pix[k])) * 255
				}
			}
			// Separable 2-D DCT: rows then columns.
			for j := 0; j < 8; j++ {
				for u := 0; u < 8; u++ {
					var s float64
					for i := 0; i < 8; i++ {
						s += dctBasis[u][i] * diff[j][i]
					}
					tmp[j][u] = s
				}
			}
			for u := 0; u < 8; u++ {
				for v := 0; v < 8; v++ {
					var s float64
					for j := 0; j < 8; j++ {
						s += dctBasis[v][j] * tmp[j][u]
					}
					w := s * csf[v][u]
					sum += w * w
				}
			}
			blocks++
		}
	}
	if blocks == 0 {
		return psnr(mse(a, b))
	}
	m := sum / float64(blocks*64)
	if m <= 0 {
		return maxPSNR
	}
	return math.Min(10*math.Log10(255*255/m), maxPSNR)
}

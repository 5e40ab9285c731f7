package decoder

import (
	"image"
	"math"
)

// Plane is a luma plane with values in [0, 1].
type Plane struct {
	Width  int
	Height int
	Pix    []float32
}

// NewPlane allocates a black plane.
func NewPlane(width, height int) *Plane {
	return &Plane{Width: width, Height: height, Pix: make([]float32, width*height)}
}

// At returns the value at (x, y), clamping coordinates to the plane.
func (p *Plane) At(x, y int) float32 {
	x = min(max(x, 0), p.Width-1)
	y = min(max(y, 0), p.Height-1)
	return p.Pix[y*p.Width+x]
}

// Mean returns the average value of the plane.
func (p *Plane) Mean() float64 {
	if len(p.Pix) == 0 {
		return 0
	}
	var sum float64
	for _, v := range p.Pix {
		sum += float64(v)
	}
	return sum / float64(len(p.Pix))
}

// Gray16 converts the plane for resampling with golang.org/x/image/draw.
func (p *Plane) Gray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, p.Width, p.Height))
	for i, v := range p.Pix {
		u := uint16(math.Round(float64(clamp01(v)) * 0xffff))
		img.Pix[2*i] = uint8(u >> 8)
		img.Pix[2*i+1] = uint8(u)
	}
	return img
}

// PlaneFromImage extracts BT.709 luma from any image.
func PlaneFromImage(img image.Image) *Plane {
	b := img.Bounds()
	p := NewPlane(b.Dx(), b.Dy())
	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < p.Height; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < p.Width; x++ {
				u := uint16(row[2*x])<<8 | uint16(row[2*x+1])
				p.Pix[y*p.Width+x] = float32(u) / 0xffff
			}
		}
	case *image.Gray:
		for y := 0; y < p.Height; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < p.Width; x++ {
				p.Pix[y*p.Width+x] = float32(row[x]) / 0xff
			}
		}
	case *image.NRGBA:
		for y := 0; y < p.Height; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < p.Width; x++ {
				px := row[4*x : 4*x+3]
				p.Pix[y*p.Width+x] = luma(float32(px[0])/0xff, float32(px[1])/0xff, float32(px[2])/0xff)
			}
		}
	default:
		for y := 0; y < p.Height; y++ {
			for x := 0; x < p.Width; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				p.Pix[y*p.Width+x] = luma(float32(r)/0xffff, float32(g)/0xffff, float32(bl)/0xffff)
			}
		}
	}
	return p
}

// PlaneFromGray16LE decodes a raw little-endian 16-bit gray frame.
func PlaneFromGray16LE(buf []byte, width, height int) *Plane {
	p := NewPlane(width, height)
	for i := range p.Pix {
		u := uint16(buf[2*i]) | uint16(buf[2*i+1])<<8
		p.Pix[i] = float32(u) / 0xffff
	}
	return p
}

func luma(r, g, b float32) float32 {
	return 0.2126*r + 0.7152*g + 0.0722*b
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}

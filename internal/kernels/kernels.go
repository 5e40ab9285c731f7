package kernels

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// ErrUnknownKernel is returned for kernel names Parse does not know.
var ErrUnknownKernel = errors.New("unknown kernel")

// Kernel is a resampling kernel. B and C only apply to bicubic, Taps only
// to lanczos.
type Kernel struct {
	Name string  `yaml:"name" json:"name"`
	B    float64 `yaml:"b,omitempty" json:"b,omitempty"`
	C    float64 `yaml:"c,omitempty" json:"c,omitempty"`
	Taps int     `yaml:"taps,omitempty" json:"taps,omitempty"`
}

type kernelFunc struct {
	support float64
	at      func(x float64) float64
}

var fixed = map[string]kernelFunc{
	"point":    {0.5, func(x float64) float64 { return boolTo(x < 0.5) }},
	"box":      {0.5, func(x float64) float64 { return boolTo(x <= 0.5) }},
	"bilinear": {1, func(x float64) float64 { return math.Max(0, 1-x) }},
	"spline16": {2, spline16},
	"spline36": {3, spline36},
	"spline64": {4, spline64},
}

// aliases are shorthands for common bicubic parameterisations.
var aliases = map[string]Kernel{
	"catrom":     {Name: "bicubic", B: 0, C: 0.5},
	"catmullrom": {Name: "bicubic", B: 0, C: 0.5},
	"mitchell":   {Name: "bicubic", B: 1.0 / 3, C: 1.0 / 3},
	"hermite":    {Name: "bicubic", B: 0, C: 0},
	"sharp":      {Name: "bicubic", B: 0, C: 1},
}

// Names lists the kernel names Parse accepts, aliases included.
func Names() []string {
	names := []string{"bicubic", "lanczos"}
	for n := range fixed {
		names = append(names, n)
	}
	for n := range aliases {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Parse reads a kernel description such as "bilinear", "bicubic:b=0:c=0.5"
// or "lanczos:taps=4". Bicubic defaults to b=0 c=0.5 and lanczos to 3 taps.
func Parse(s string) (Kernel, error) {
	fields := strings.Split(strings.ToLower(strings.TrimSpace(s)), ":")
	name := fields[0]
	k, ok := aliases[name]
	if !ok {
		k = Kernel{Name: name}
		switch name {
		case "bicubic":
			k.C = 0.5
		case "lanczos":
			k.Taps = 3
		}
	}
	for _, f := range fields[1:] {
		key, val, found := strings.Cut(f, "=")
		if !found {
			return Kernel{}, fmt.Errorf("kernel %q: parameter %q needs a value", s, f)
		}
		switch key {
		case "b", "c":
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return Kernel{}, fmt.Errorf("kernel %q: %s: %w", s, key, err)
			}
			if key == "b" {
				k.B = v
			} else {
				k.C = v
			}
		case "taps":
			v, err := strconv.Atoi(val)
			if err != nil {
				return Kernel{}, fmt.Errorf("kernel %q: taps: %w", s, err)
			}
			k.Taps = v
		default:
			return Kernel{}, fmt.Errorf("kernel %q: unknown parameter %q", s, key)
		}
	}
	return k, k.Validate()
}

// Validate checks that the kernel exists and its parameters are usable.
func (k Kernel) Validate() error {
	switch k.Name {
	case "bicubic":
		return nil
	case "lanczos":
		if k.Taps < 1 {
			return fmt.Errorf("lanczos needs at least 1 tap, got %d", k.Taps)
		}
		return nil
	}
	if _, ok := fixed[k.Name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKernel, k.Name)
	}
	return nil
}

// String is the label prefix of the kernel: the name, plus b and c for
// bicubic or the tap count for lanczos.
func (k Kernel) String() string {
	switch k.Name {
	case "bicubic":
		return fmt.Sprintf("bicubic_%s_%s", formatFloat(k.B), formatFloat(k.C))
	case "lanczos":
		return fmt.Sprintf("lanczos_%d", k.Taps)
	}
	return k.Name
}

func (k Kernel) fn() kernelFunc {
	switch k.Name {
	case "bicubic":
		b, c := k.B, k.C
		return kernelFunc{2, func(x float64) float64 { return bicubic(x, b, c) }}
	case "lanczos":
		taps := float64(k.Taps)
		return kernelFunc{taps, func(x float64) float64 {
			if x >= taps {
				return 0
			}
			return sinc(x) * sinc(x/taps)
		}}
	}
	return fixed[k.Name]
}

// Filter returns the kernel as an imaging resample filter.
func (k Kernel) Filter() imaging.ResampleFilter {
	f := k.fn()
	return imaging.ResampleFilter{
		Support: f.support,
		Kernel:  func(x float64) float64 { return f.at(math.Abs(x)) },
	}
}

// Interpolator returns the kernel for golang.org/x/image/draw scaling,
// which keeps 16-bit precision on gray images.
func (k Kernel) Interpolator() *draw.Kernel {
	f := k.fn()
	return &draw.Kernel{
		Support: f.support,
		At:      func(x float64) float64 { return f.at(math.Abs(x)) },
	}
}

// bicubic is the Mitchell-Netravali family.
func bicubic(x, b, c float64) float64 {
	switch {
	case x < 1:
		return ((12-9*b-6*c)*x*x*x + (-18+12*b+6*c)*x*x + (6 - 2*b)) / 6
	case x < 2:
		return ((-b-6*c)*x*x*x + (6*b+30*c)*x*x + (-12*b-48*c)*x + (8*b + 24*c)) / 6
	}
	return 0
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	x *= math.Pi
	return math.Sin(x) / x
}

func spline16(x float64) float64 {
	switch {
	case x < 1:
		return ((x-9.0/5)*x-1.0/5)*x + 1
	case x < 2:
		x--
		return ((-1.0/3*x+4.0/5)*x - 7.0/15) * x
	}
	return 0
}

func spline36(x float64) float64 {
	switch {
	case x < 1:
		return ((13.0/11*x-453.0/209)*x-3.0/209)*x + 1
	case x < 2:
		x--
		return ((-6.0/11*x+270.0/209)*x - 156.0/209) * x
	case x < 3:
		x -= 2
		return ((1.0/11*x-45.0/209)*x + 26.0/209) * x
	}
	return 0
}

func spline64(x float64) float64 {
	switch {
	case x < 1:
		return ((49.0/41*x-6387.0/2911)*x-3.0/2911)*x + 1
	case x < 2:
		x--
		return ((-24.0/41*x+4032.0/2911)*x - 2328.0/2911) * x
	case x < 3:
		x -= 2
		return ((6.0/41*x-1008.0/2911)*x + 582.0/2911) * x
	case x < 4:
		x -= 3
		return ((-1.0/41*x+168.0/2911)*x - 97.0/2911) * x
	}
	return 0
}

func boolTo(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

package kernels

import (
	"fmt"
	"math"
	"strings"

	"descale-qc/internal/scenes"
)

// Window is a manual source window inside the descaled picture.
type Window struct {
	Top    float64 `yaml:"top" json:"top"`
	Height float64 `yaml:"height" json:"height"`
	Left   float64 `yaml:"left" json:"left"`
	Width  float64 `yaml:"width" json:"width"`
}

// Target is one descale hypothesis: a kernel and the native resolution it
// is tested at.
type Target struct {
	Kernel Kernel `yaml:"kernel" json:"kernel"`
	// SrcHeight is the (possibly fractional) native height. Zero means an
	// integer descale to BaseHeight.
	SrcHeight  float64 `yaml:"src_height,omitempty" json:"src_height,omitempty"`
	BaseHeight int     `yaml:"base_height" json:"base_height"`
	BaseWidth  int     `yaml:"base_width" json:"base_width"`
	// Mode selects which axes use the fractional window: "w", "h" or "wh".
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`
	// Manual overrides the computed window.
	Manual *Window `yaml:"manual,omitempty" json:"manual,omitempty"`

	Bias         float64  `yaml:"bias,omitempty" json:"bias,omitempty"`
	IndThreshold *float64 `yaml:"ind_error_thr,omitempty" json:"ind_error_thr,omitempty"`
	AvgThreshold *float64 `yaml:"avg_error_thr,omitempty" json:"avg_error_thr,omitempty"`
}

// Validate checks the geometry of the target.
func (t Target) Validate() error {
	if err := t.Kernel.Validate(); err != nil {
		return err
	}
	if t.BaseHeight <= 0 || t.BaseWidth <= 0 {
		return fmt.Errorf("%s: base size %dx%d must be positive", t.Kernel, t.BaseWidth, t.BaseHeight)
	}
	if t.SrcHeight < 0 || t.SrcHeight > float64(t.BaseHeight) {
		return fmt.Errorf("%s: src height %v must be in (0, %d]", t.Kernel, t.SrcHeight, t.BaseHeight)
	}
	if t.Mode != "" && strings.Trim(strings.ToLower(t.Mode), "wh") != "" {
		return fmt.Errorf("%s: mode %q must be w, h or wh", t.Kernel, t.Mode)
	}
	if m := t.Manual; m != nil && (m.Width <= 0 || m.Height <= 0) {
		return fmt.Errorf("%s: manual window must have a positive size", t.Kernel)
	}
	return nil
}

// Label identifies the target in catalogue file names, for example
// "bicubic_0_0.5_720" or "lanczos_3_1080_1920_0_719.5_0_1279".
func (t Target) Label() string {
	var b strings.Builder
	b.WriteString(t.Kernel.String())
	switch {
	case t.Manual != nil:
		fmt.Fprintf(&b, "_%d_%d_%s_%s_%s_%s", t.BaseHeight, t.BaseWidth,
			formatFloat(t.Manual.Top), formatFloat(t.Manual.Height),
			formatFloat(t.Manual.Left), formatFloat(t.Manual.Width))
	case t.SrcHeight == 0:
		fmt.Fprintf(&b, "_%d", t.BaseHeight)
	default:
		fmt.Fprintf(&b, "_%s", formatFloat(t.SrcHeight))
	}
	return b.String()
}

// Candidate converts the target for the multi-kernel arbiter.
func (t Target) Candidate() scenes.Candidate {
	return scenes.Candidate{
		Label:        t.Label(),
		Bias:         t.Bias,
		IndThreshold: t.IndThreshold,
		AvgThreshold: t.AvgThreshold,
	}
}

// Geometry is the descale resolution and the window of it that maps onto
// the full-resolution frame.
type Geometry struct {
	Width, Height int
	Src           Window
}

// Crop computes the descale geometry of the target for a clip of the given
// size. For fractional heights the base size is cropped symmetrically to
// the nearest even margin around the native size:
//
//	cropped = base - 2*floor((base - src) / 2)
func (t Target) Crop(clipWidth, clipHeight int) (Geometry, error) {
	if err := t.Validate(); err != nil {
		return Geometry{}, err
	}
	if clipWidth <= 0 || clipHeight <= 0 {
		return Geometry{}, fmt.Errorf("clip size %dx%d must be positive", clipWidth, clipHeight)
	}

	if t.Manual != nil {
		return Geometry{Width: t.BaseWidth, Height: t.BaseHeight, Src: *t.Manual}, nil
	}

	if t.SrcHeight == 0 {
		return Geometry{
			Width:  t.BaseWidth,
			Height: t.BaseHeight,
			Src:    Window{Width: float64(t.BaseWidth), Height: float64(t.BaseHeight)},
		}, nil
	}

	// Axes left out of the mode keep the clip size.
	g := Geometry{
		Width:  clipWidth,
		Height: clipHeight,
		Src:    Window{Width: float64(clipWidth), Height: float64(clipHeight)},
	}
	mode := strings.ToLower(t.Mode)
	if mode == "" {
		mode = "wh"
	}
	srcHeight := t.SrcHeight
	srcWidth := srcHeight * float64(clipWidth) / float64(clipHeight)
	if strings.Contains(mode, "w") {
		cw := t.BaseWidth - 2*int(math.Floor((float64(t.BaseWidth)-srcWidth)/2))
		g.Width = cw
		g.Src.Width = srcWidth
		g.Src.Left = (float64(cw) - srcWidth) / 2
	}
	if strings.Contains(mode, "h") {
		ch := t.BaseHeight - 2*int(math.Floor((float64(t.BaseHeight)-srcHeight)/2))
		g.Height = ch
		g.Src.Height = srcHeight
		g.Src.Top = (float64(ch) - srcHeight) / 2
	}
	return g, nil
}

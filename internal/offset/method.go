package offset

import (
	"context"
	"fmt"
	"strings"
)

// Method selects the comparison used to match frames.
type Method int

const (
	PSNR Method = iota
	PSNRHVS
	SSIM
	MSSSIM
	Diff
)

var methodNames = map[Method]string{
	PSNR:    "psnr",
	PSNRHVS: "psnr-hvs",
	SSIM:    "ssim",
	MSSSIM:  "ms-ssim",
	Diff:    "diff",
}

func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// Similarity reports whether higher values mean a better match. Diff is
// the only distance.
func (m Method) Similarity() bool {
	return m != Diff
}

// ParseMethod parses a method name as printed by String. Underscores are
// accepted in place of dashes.
func ParseMethod(s string) (Method, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for m, name := range methodNames {
		if name == norm {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown method %q", s)
}

// Measure compares two frames with the given method.
type Measure[F any] func(ctx context.Context, method Method, a, b F) (float64, error)

package scenes

import (
	"context"
	"fmt"

	"descale-qc/internal/coalesce"
)

// Frame is the measurement for one frame index. Values are computed on
// demand so a classifier can skip expensive error evaluation for frames it
// has already disqualified.
type Frame interface {
	// SceneChange reports whether a hard cut starts at this frame.
	SceneChange() bool
	// Complexity is the texture complexity used to normalise errors.
	Complexity() (float64, error)
	// Error is the raw rescale error for the candidate at the given position.
	Error(candidate int) (float64, error)
}

// Source yields frames in increasing index order. Frame is called exactly
// once per index per run.
type Source interface {
	Len() int
	Candidates() []string
	Frame(ctx context.Context, n int) (Frame, error)
}

// Normalize divides a raw error by the frame complexity. Flat frames with
// no complexity count as a perfect fit.
func Normalize(rawError, complexity float64) float64 {
	if complexity <= 0 {
		return 0
	}
	return rawError / complexity
}

// normalizedError pulls complexity and the candidate error from f.
func normalizedError(f Frame, candidate int, complexity float64) (float64, error) {
	raw, err := f.Error(candidate)
	if err != nil {
		return 0, fmt.Errorf("candidate %d error: %w", candidate, err)
	}
	return Normalize(raw, complexity), nil
}

// exclusion is a sorted set of frame ranges that are never measured.
type exclusion struct {
	cat coalesce.Catalogue
}

func newExclusion(ranges []coalesce.Interval) exclusion {
	return exclusion{cat: coalesce.Catalogue{Intervals: coalesce.Merge(ranges)}}
}

func (e exclusion) Contains(n int) bool {
	if len(e.cat.Intervals) == 0 {
		return false
	}
	return e.cat.Contains(n)
}

func average(sum float64, frames int) float64 {
	if frames == 0 {
		return 0
	}
	return sum / float64(frames)
}

package offset

import (
	"context"
	"errors"
	"fmt"
	"math"

	"descale-qc/internal/logging"
)

const (
	DefaultApproxOffset = 100
	DefaultNumParts     = 40
	DefaultOverlap      = 33
)

var (
	// ErrOutOfRange is returned when a window or frame falls outside a clip.
	ErrOutOfRange = errors.New("out of range")
	// ErrNoMatch is returned when no window position yields a usable score.
	ErrNoMatch = errors.New("no usable match")
)

// Options configures FindOffset.
type Options[F any] struct {
	// ApproxOffset is the largest shift searched in either direction.
	ApproxOffset int
	// RefFrame is the reference frame index; negative means the middle.
	RefFrame int
	Method   Method
	Measure  Measure[F]
}

// DefaultOptions returns the default search around the middle of the
// reference using SSIM.
func DefaultOptions[F any](measure Measure[F]) Options[F] {
	return Options[F]{
		ApproxOffset: DefaultApproxOffset,
		RefFrame:     -1,
		Method:       SSIM,
		Measure:      measure,
	}
}

// FindOffset returns, for every clip, the shift at which the clip best
// matches ref. A positive offset means the clip lags behind ref.
//
// The search window is [RefFrame-ApproxOffset, RefFrame+ApproxOffset) in
// both clips. The reference frame at window position ApproxOffset-1 is
// compared with every candidate frame of the window.
func FindOffset[F any](ctx context.Context, ref Clip[F], clips []Clip[F], opts Options[F]) ([]int, error) {
	if opts.Measure == nil {
		return nil, errors.New("offset: no measure function")
	}
	approx := opts.ApproxOffset
	if approx <= 0 {
		approx = DefaultApproxOffset
	}
	refFrame := opts.RefFrame
	if refFrame < 0 {
		refFrame = ref.Len() / 2
	}
	start, end := refFrame-approx, refFrame+approx
	if start < 0 || end > ref.Len() {
		return nil, fmt.Errorf("%w: window [%d %d) for reference of %d frames", ErrOutOfRange, start, end, ref.Len())
	}
	half := approx

	target, err := ref.Frame(ctx, start+half-1)
	if err != nil {
		return nil, fmt.Errorf("reference frame: %w", err)
	}

	offsets := make([]int, 0, len(clips))
	for i, clip := range clips {
		window := Slice(clip, start, end)
		if window.Len() == 0 {
			return nil, fmt.Errorf("%w: clip %d has no frames in [%d %d)", ErrOutOfRange, i, start, end)
		}
		scores, err := score(ctx, opts.Method, opts.Measure, Repeat(target, window.Len()), window)
		if err != nil {
			return nil, fmt.Errorf("clip %d: %w", i, err)
		}
		pos, ok := best(opts.Method, scores)
		if !ok {
			return nil, fmt.Errorf("clip %d: %w", i, ErrNoMatch)
		}
		offsets = append(offsets, pos-half+1)
	}
	return offsets, nil
}

// score measures a[i] against b[i] for every i of the shorter clip.
func score[F any](ctx context.Context, method Method, measure Measure[F], a, b Clip[F]) ([]float64, error) {
	n := min(a.Len(), b.Len())
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fa, err := a.Frame(ctx, i)
		if err != nil {
			return nil, err
		}
		fb, err := b.Frame(ctx, i)
		if err != nil {
			return nil, err
		}
		v, err := measure(ctx, method, fa, fb)
		if err != nil {
			return nil, fmt.Errorf("measure frame %d: %w", i, err)
		}
		scores[i] = v
	}
	return scores, nil
}

// best picks the highest similarity, or the lowest non-negative distance.
// The first position wins ties.
func best(method Method, scores []float64) (int, bool) {
	pos := -1
	for i, v := range scores {
		if math.IsNaN(v) {
			continue
		}
		if method.Similarity() {
			if pos < 0 || v > scores[pos] {
				pos = i
			}
			continue
		}
		if v < 0 || math.IsInf(v, 0) {
			continue
		}
		if pos < 0 || v < scores[pos] {
			pos = i
		}
	}
	return pos, pos >= 0
}

// breakpoint picks the frame where two clips stop matching: the largest
// distance, or the smallest positive similarity.
func breakpoint(method Method, scores []float64) (int, bool) {
	pos := -1
	for i, v := range scores {
		if math.IsNaN(v) {
			continue
		}
		if !method.Similarity() {
			if pos < 0 || v > scores[pos] {
				pos = i
			}
			continue
		}
		if v <= 0 {
			continue
		}
		if pos < 0 || v < scores[pos] {
			pos = i
		}
	}
	return pos, pos >= 0
}

// DesyncOptions configures FindDesync.
type DesyncOptions[F any] struct {
	ApproxOffset int
	NumParts     int
	// Overlap is the percentage of each part shared with the next one.
	Overlap int
	Method  Method
	Measure Measure[F]
	// Blank builds the padding frame used when the rescanned parts differ
	// in length under a similarity method.
	Blank    func() F
	Observer Observer
}

// DefaultDesyncOptions returns the default part layout using Diff.
func DefaultDesyncOptions[F any](measure Measure[F]) DesyncOptions[F] {
	return DesyncOptions[F]{
		ApproxOffset: DefaultApproxOffset,
		NumParts:     DefaultNumParts,
		Overlap:      DefaultOverlap,
		Method:       Diff,
		Measure:      measure,
	}
}

// Part is a window of the timeline scanned for a constant offset.
type Part struct {
	Index int
	Start int
	End   int
}

// Desync is a point where the offset between two clips changes.
type Desync struct {
	Part Part
	// Frame is the first frame of a that no longer matches b.
	Frame int
	// Offset is the shift found for the part.
	Offset int
}

// Observer is notified as FindDesync progresses.
type Observer interface {
	ObservePart(p Part, parts int, offset int)
	ObserveDesync(d Desync)
}

// Parts splits n frames into count parts of n/count frames, each extended
// by overlap percent into the next one. The last part ends at n.
func Parts(n, count, overlap int) []Part {
	if count <= 0 || n <= 0 {
		return nil
	}
	size := n / count
	if size == 0 {
		size, count = 1, n
	}
	ov := size * overlap / 100
	parts := make([]Part, 0, count)
	for i := 0; i < count; i++ {
		start := i * size
		end := min(start+size+ov, n)
		if i == count-1 {
			end = n
		}
		parts = append(parts, Part{Index: i, Start: start, End: end})
	}
	return parts
}

// FindDesync scans a and b part by part for changes in their relative
// offset and locates the frame where each new offset starts.
func FindDesync[F any](ctx context.Context, a, b Clip[F], opts DesyncOptions[F]) ([]Desync, error) {
	if opts.Measure == nil {
		return nil, errors.New("offset: no measure function")
	}
	if opts.NumParts <= 0 {
		opts.NumParts = DefaultNumParts
	}
	if opts.Overlap < 0 || opts.Overlap >= 100 {
		return nil, fmt.Errorf("offset: overlap must be in [0, 100), got %d", opts.Overlap)
	}
	if opts.ApproxOffset <= 0 {
		opts.ApproxOffset = DefaultApproxOffset
	}
	if a.Len() == 0 || b.Len() == 0 {
		return nil, fmt.Errorf("%w: empty clip", ErrOutOfRange)
	}

	log := logging.Component("offset")
	parts := Parts(a.Len(), opts.NumParts, opts.Overlap)
	seen := map[int]bool{}
	var suspects []Desync

	for _, p := range parts {
		partA := Slice(a, p.Start, p.End)
		partB := Slice(b, p.Start, p.End)
		approx := min(opts.ApproxOffset, partA.Len()/2)
		if approx == 0 || partB.Len() == 0 {
			continue
		}
		found, err := FindOffset(ctx, partA, []Clip[F]{partB}, Options[F]{
			ApproxOffset: approx,
			RefFrame:     -1,
			Method:       opts.Method,
			Measure:      opts.Measure,
		})
		if err != nil {
			return nil, fmt.Errorf("part %d [%d %d): %w", p.Index, p.Start, p.End, err)
		}
		off := found[0]
		if opts.Observer != nil {
			opts.Observer.ObservePart(p, len(parts), off)
		}
		log.WithField("part", p.Index).Debugf("Offset %d in [%d %d)", off, p.Start, p.End)
		if off != 0 && !seen[off] {
			seen[off] = true
			suspects = append(suspects, Desync{Part: p, Offset: off})
			log.Infof("Desync found in part %d [%d %d), offset=%d", p.Index, p.Start, p.End, off)
		}
	}

	for i := range suspects {
		d := &suspects[i]
		pa := Slice(a, d.Part.Start, d.Part.End)
		pb := Slice(b, d.Part.Start, d.Part.End)
		if opts.Method.Similarity() && pa.Len() != pb.Len() && opts.Blank != nil {
			n := max(pa.Len(), pb.Len())
			pa, pb = Pad(pa, n, opts.Blank()), Pad(pb, n, opts.Blank())
		}
		scores, err := score(ctx, opts.Method, opts.Measure, pa, pb)
		if err != nil {
			return nil, fmt.Errorf("rescan part %d: %w", d.Part.Index, err)
		}
		pos, ok := breakpoint(opts.Method, scores)
		if !ok {
			pos = 0
		}
		d.Frame = d.Part.Start + pos
		log.Infof("Desync at frame %d with an approximate offset of %d, b is now at %d", d.Frame, d.Offset, d.Frame+d.Offset)
		if opts.Observer != nil {
			opts.Observer.ObserveDesync(*d)
		}
	}
	return suspects, nil
}

package scenes

import (
	"context"
	"errors"
	"fmt"
)

// fixtureFrame is a precomputed measurement.
type fixtureFrame struct {
	cut        bool
	complexity float64
	errors     []float64
}

// fixture enforces the Source contract: every index is pulled once, in
// increasing order, as a decoding source would require.
type fixture struct {
	labels []string
	frames []fixtureFrame
	pulled []int
	errs   map[int]error
}

// newFixture builds a source of n frames with complexity 1, zero error and
// scene changes at the given indices.
func newFixture(n int, labels []string, cuts ...int) *fixture {
	f := &fixture{labels: labels, frames: make([]fixtureFrame, n)}
	for i := range f.frames {
		f.frames[i] = fixtureFrame{complexity: 1, errors: make([]float64, len(labels))}
	}
	for _, c := range cuts {
		f.frames[c].cut = true
	}
	return f
}

// setErr sets the raw error of candidate c on frames [start, end].
func (f *fixture) setErr(c, start, end int, v float64) *fixture {
	for i := start; i <= end; i++ {
		f.frames[i].errors[c] = v
	}
	return f
}

func (f *fixture) Len() int             { return len(f.frames) }
func (f *fixture) Candidates() []string { return f.labels }

func (f *fixture) Frame(_ context.Context, n int) (Frame, error) {
	if n < 0 || n >= len(f.frames) {
		return nil, fmt.Errorf("frame %d out of range", n)
	}
	if next := len(f.pulled); n != next {
		return nil, fmt.Errorf("expected frame %d, got %d", next, n)
	}
	if err := f.errs[n]; err != nil {
		return nil, err
	}
	f.pulled = append(f.pulled, n)
	return &fixtureView{fr: &f.frames[n]}, nil
}

type fixtureView struct {
	fr *fixtureFrame
}

func (v *fixtureView) SceneChange() bool            { return v.fr.cut }
func (v *fixtureView) Complexity() (float64, error) { return v.fr.complexity, nil }

func (v *fixtureView) Error(c int) (float64, error) {
	if c < 0 || c >= len(v.fr.errors) {
		return 0, errors.New("no such candidate")
	}
	return v.fr.errors[c], nil
}

// recorder counts observer notifications.
type recorder struct {
	measured int
	skipped  int
	scenes   []SceneDecision
}

func (r *recorder) ObserveFrame(_, _ int, measured bool) {
	if measured {
		r.measured++
	} else {
		r.skipped++
	}
}

func (r *recorder) ObserveScene(d SceneDecision) {
	r.scenes = append(r.scenes, d)
}

package analysis

import (
	"context"
	"fmt"
	"sync"

	"descale-qc/internal/decoder"
	"descale-qc/internal/kernels"
	"descale-qc/internal/scenes"
	"descale-qc/internal/workers"
)

// Options configure a live Source.
type Options struct {
	// ErrorThreshold is the per-pixel floor of the error image.
	ErrorThreshold float64
	// SceneThreshold tunes the built-in scene detector.
	SceneThreshold float64
	// SceneChanges, when non-nil, replaces detection with a known list of
	// frames that start a scene.
	SceneChanges []int
	// Workers bounds the per-frame candidate fan-out. Zero picks one worker
	// per CPU.
	Workers int
	// Throttle, when set, is waited on before each frame is decoded.
	Throttle Throttle
}

// Throttle holds back decoding while memory is short.
type Throttle interface {
	Wait(ctx context.Context) error
}

// Source computes per-frame statistics from decoded planes. It implements
// scenes.Source; frames must be requested in increasing order.
type Source struct {
	cursor    *decoder.Cursor
	frames    int
	rescalers []*Rescaler
	labels    []string
	cuts      map[int]bool
	detector  *SceneDetector
	workers   int
	throttle  Throttle
}

// NewSource builds a source over r testing every target. r is owned by the
// source and closed by Close.
func NewSource(r decoder.Reader, targets []kernels.Target, opts Options) (*Source, error) {
	info := r.Info()
	s := &Source{
		cursor:   decoder.NewCursor(r),
		frames:   info.Frames,
		workers:  opts.Workers,
		throttle: opts.Throttle,
	}
	for _, t := range targets {
		rs, err := NewRescaler(t, info.Width, info.Height, opts.ErrorThreshold)
		if err != nil {
			return nil, err
		}
		s.rescalers = append(s.rescalers, rs)
		s.labels = append(s.labels, rs.Label())
	}
	if opts.SceneChanges != nil {
		s.cuts = make(map[int]bool, len(opts.SceneChanges))
		for _, n := range opts.SceneChanges {
			s.cuts[n] = true
		}
	} else {
		s.detector = NewSceneDetector(opts.SceneThreshold)
	}
	if s.workers <= 0 {
		s.workers = workers.ForCPU(len(s.rescalers))
	}
	return s, nil
}

// Len returns the frame count reported by the decoder.
func (s *Source) Len() int { return s.frames }

// Candidates returns the target labels in order.
func (s *Source) Candidates() []string { return s.labels }

// Close releases the decoder.
func (s *Source) Close() error { return s.cursor.Close() }

// Frame decodes frame n. Complexity and errors are computed when first
// asked for.
func (s *Source) Frame(ctx context.Context, n int) (scenes.Frame, error) {
	if s.throttle != nil {
		if err := s.throttle.Wait(ctx); err != nil {
			return nil, err
		}
	}
	p, err := s.cursor.Frame(ctx, n)
	if err != nil {
		return nil, err
	}
	f := &frame{ctx: ctx, src: s, plane: p}
	if s.detector != nil {
		f.cut, err = s.detector.Observe(n, p)
		if err != nil {
			return nil, err
		}
	} else {
		f.cut = s.cuts[n]
	}
	return f, nil
}

type frame struct {
	ctx   context.Context
	src   *Source
	plane *decoder.Plane
	cut   bool

	complexityOnce sync.Once
	complexity     float64

	errorsOnce sync.Once
	errors     []float64
	errorsErr  error
}

func (f *frame) SceneChange() bool { return f.cut }

func (f *frame) Complexity() (float64, error) {
	f.complexityOnce.Do(func() {
		f.complexity = Complexity(f.plane)
	})
	return f.complexity, nil
}

// Error computes every candidate's error on first use: the arbiter always
// asks for all of them, so they are fanned out together.
func (f *frame) Error(candidate int) (float64, error) {
	if candidate < 0 || candidate >= len(f.src.rescalers) {
		return 0, fmt.Errorf("candidate %d out of range", candidate)
	}
	f.errorsOnce.Do(func() {
		f.errors = make([]float64, len(f.src.rescalers))
		f.errorsErr = workers.Each(f.ctx, len(f.src.rescalers), f.src.workers, func(_ context.Context, i int) error {
			v, err := f.src.rescalers[i].Error(f.plane)
			if err != nil {
				return err
			}
			f.errors[i] = v
			return nil
		})
	})
	if f.errorsErr != nil {
		return 0, f.errorsErr
	}
	return f.errors[candidate], nil
}

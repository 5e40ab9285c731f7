package offset

import (
	"context"
	"fmt"
)

// Clip is a random-access sequence of frames. F is whatever the Measure
// function compares: decoded planes, thumbnails or plain scalars in tests.
type Clip[F any] interface {
	Len() int
	Frame(ctx context.Context, n int) (F, error)
}

// Frames is an in-memory clip.
type Frames[F any] []F

func (f Frames[F]) Len() int { return len(f) }

func (f Frames[F]) Frame(_ context.Context, n int) (F, error) {
	if n < 0 || n >= len(f) {
		var zero F
		return zero, fmt.Errorf("%w: frame %d of %d", ErrOutOfRange, n, len(f))
	}
	return f[n], nil
}

type slice[F any] struct {
	clip       Clip[F]
	start, end int
}

// Slice returns frames [start, end) of clip. Bounds are clamped to the clip.
func Slice[F any](clip Clip[F], start, end int) Clip[F] {
	if start < 0 {
		start = 0
	}
	if end > clip.Len() {
		end = clip.Len()
	}
	if end < start {
		end = start
	}
	return &slice[F]{clip: clip, start: start, end: end}
}

func (s *slice[F]) Len() int { return s.end - s.start }

func (s *slice[F]) Frame(ctx context.Context, n int) (F, error) {
	if n < 0 || n >= s.Len() {
		var zero F
		return zero, fmt.Errorf("%w: frame %d of %d", ErrOutOfRange, n, s.Len())
	}
	return s.clip.Frame(ctx, s.start+n)
}

type repeat[F any] struct {
	frame F
	n     int
}

// Repeat returns a clip of n copies of frame.
func Repeat[F any](frame F, n int) Clip[F] {
	return &repeat[F]{frame: frame, n: n}
}

func (r *repeat[F]) Len() int { return r.n }

func (r *repeat[F]) Frame(_ context.Context, n int) (F, error) {
	if n < 0 || n >= r.n {
		var zero F
		return zero, fmt.Errorf("%w: frame %d of %d", ErrOutOfRange, n, r.n)
	}
	return r.frame, nil
}

type pad[F any] struct {
	clip  Clip[F]
	n     int
	blank F
}

// Pad extends clip to n frames with blank frames. Clips that are already
// long enough are returned unchanged.
func Pad[F any](clip Clip[F], n int, blank F) Clip[F] {
	if clip.Len() >= n {
		return clip
	}
	return &pad[F]{clip: clip, n: n, blank: blank}
}

func (p *pad[F]) Len() int { return p.n }

func (p *pad[F]) Frame(ctx context.Context, n int) (F, error) {
	if n >= p.clip.Len() && n < p.n {
		return p.blank, nil
	}
	return p.clip.Frame(ctx, n)
}

package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Reader yields the luma planes of a clip in order. Next returns io.EOF
// after the last frame.
type Reader interface {
	Info() Info
	Next(ctx context.Context) (*Plane, error)
	Close() error
}

// Options control how a clip is opened.
type Options struct {
	// Width and Height rescale every frame when both are set.
	Width  int
	Height int
}

// Open opens a video file, or a directory of images as an image sequence.
func (d *Decoder) Open(ctx context.Context, path string, opts Options) (Reader, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return openSequence(path, opts.Width, opts.Height)
	}
	info, err := d.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	return d.openVideo(ctx, path, info, opts.Width, opts.Height)
}

// Stat describes a video file or image-sequence directory without
// decoding it.
func (d *Decoder) Stat(ctx context.Context, path string) (*Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return d.Probe(ctx, path)
	}
	r, err := openSequence(path, 0, 0)
	if err != nil {
		return nil, err
	}
	info := r.Info()
	return &info, nil
}

// Cursor gives in-order random access to a Reader: frames may be skipped
// but never revisited.
type Cursor struct {
	r    Reader
	pos  int
	last *Plane
}

// NewCursor wraps r.
func NewCursor(r Reader) *Cursor {
	return &Cursor{r: r}
}

// ErrBackwards is returned when a Cursor is asked for an earlier frame.
var ErrBackwards = errors.New("frame already consumed")

// Frame returns frame n, decoding and discarding any frames in between.
func (c *Cursor) Frame(ctx context.Context, n int) (*Plane, error) {
	if c.last != nil && n == c.pos-1 {
		return c.last, nil
	}
	if n < c.pos {
		return nil, fmt.Errorf("%w: frame %d, cursor at %d", ErrBackwards, n, c.pos)
	}
	for c.pos <= n {
		p, err := c.r.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("frame %d: %w", n, io.ErrUnexpectedEOF)
			}
			return nil, err
		}
		c.last = p
		c.pos++
	}
	return c.last, nil
}

// Len returns the frame count reported by the reader.
func (c *Cursor) Len() int { return c.r.Info().Frames }

// Close closes the underlying reader.
func (c *Cursor) Close() error { return c.r.Close() }

// ReadAll decodes every frame of r into memory.
func ReadAll(ctx context.Context, r Reader) ([]*Plane, error) {
	frames := make([]*Plane, 0, r.Info().Frames)
	for {
		p, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return nil, err
		}
		frames = append(frames, p)
	}
}

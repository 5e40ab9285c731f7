package decoder

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbe(t *testing.T) {
	data := []byte(`{
		"streams": [{
			"codec_name": "h264", "width": 1920, "height": 1080,
			"r_frame_rate": "24000/1001", "nb_read_packets": "34046",
			"duration": "1420.003"
		}],
		"format": {"duration": "1420.100"}
	}`)
	info, err := parseProbe(data)
	require.NoError(t, err)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.Equal(t, 34046, info.Frames)
	assert.Equal(t, "h264", info.Codec)
	assert.InDelta(t, 23.976, info.FPS, 0.001)
	assert.InDelta(t, 1420.003, info.Duration, 1e-9)
}

func TestParseProbeFallbacks(t *testing.T) {
	t.Run("header frame count", func(t *testing.T) {
		info, err := parseProbe([]byte(`{"streams":[{"width":64,"height":36,"r_frame_rate":"24/1","nb_frames":"100"}]}`))
		require.NoError(t, err)
		assert.Equal(t, 100, info.Frames)
	})

	t.Run("frames from format duration", func(t *testing.T) {
		info, err := parseProbe([]byte(`{"streams":[{"width":64,"height":36,"r_frame_rate":"25/1"}],"format":{"duration":"4.0"}}`))
		require.NoError(t, err)
		assert.Equal(t, 100, info.Frames)
		assert.InDelta(t, 4.0, info.Duration, 1e-9)
	})
}

func TestParseProbeErrors(t *testing.T) {
	for name, data := range map[string]string{
		"bad json":     `{"streams":`,
		"no stream":    `{"streams":[]}`,
		"invalid size": `{"streams":[{"width":0,"height":0}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseProbe([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestPlaneFromGray16LE(t *testing.T) {
	buf := []byte{0x00, 0x00, 0xff, 0xff, 0x00, 0x80, 0xff, 0x7f}
	p := PlaneFromGray16LE(buf, 2, 2)
	assert.Equal(t, float32(0), p.Pix[0])
	assert.Equal(t, float32(1), p.Pix[1])
	assert.InDelta(t, 0.5, p.Pix[2], 1e-4)
	assert.InDelta(t, 0.5, p.Pix[3], 1e-4)
}

func TestPlaneFromImage(t *testing.T) {
	t.Run("gray", func(t *testing.T) {
		img := image.NewGray(image.Rect(0, 0, 2, 1))
		img.Pix[0], img.Pix[1] = 0, 255
		p := PlaneFromImage(img)
		assert.Equal(t, []float32{0, 1}, p.Pix)
	})

	t.Run("nrgba uses bt709 weights", func(t *testing.T) {
		img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
		img.Set(0, 0, color.NRGBA{R: 255, A: 255})
		img.Set(1, 0, color.NRGBA{G: 255, A: 255})
		img.Set(2, 0, color.NRGBA{B: 255, A: 255})
		p := PlaneFromImage(img)
		assert.InDelta(t, 0.2126, p.Pix[0], 1e-4)
		assert.InDelta(t, 0.7152, p.Pix[1], 1e-4)
		assert.InDelta(t, 0.0722, p.Pix[2], 1e-4)
	})

	t.Run("offset bounds", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(10, 10, 12, 11))
		img.Set(11, 10, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		p := PlaneFromImage(img)
		require.Equal(t, 2, p.Width)
		assert.Equal(t, float32(0), p.Pix[0])
		assert.InDelta(t, 1.0, p.Pix[1], 1e-4)
	})
}

func TestPlaneGray16RoundTrip(t *testing.T) {
	p := NewPlane(3, 1)
	p.Pix = []float32{0, 0.25, 1.5}
	back := PlaneFromImage(p.Gray16())
	assert.InDelta(t, 0, back.Pix[0], 1e-4)
	assert.InDelta(t, 0.25, back.Pix[1], 1e-4)
	assert.InDelta(t, 1, back.Pix[2], 1e-4, "values are clamped")
}

func TestPlaneAtAndMean(t *testing.T) {
	p := NewPlane(2, 2)
	p.Pix = []float32{0, 0.5, 0.5, 1}
	assert.Equal(t, float32(0.5), p.At(1, 0))
	assert.Equal(t, float32(1), p.At(5, 5), "coordinates clamp to the plane")
	assert.Equal(t, float32(0), p.At(-1, -1))
	assert.InDelta(t, 0.5, p.Mean(), 1e-9)
	assert.Zero(t, (&Plane{}).Mean())
}

// writeSequence saves n 8x4 gray frames whose value is i*20.
func writeSequence(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		img := image.NewGray(image.Rect(0, 0, 8, 4))
		for j := range img.Pix {
			img.Pix[j] = uint8(i * 20)
		}
		require.NoError(t, imaging.Save(img, filepath.Join(dir, fmt.Sprintf("%04d.png", i))))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	return dir
}

func TestListSequence(t *testing.T) {
	dir := writeSequence(t, 3)
	files, err := ListSequence(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "0000.png", filepath.Base(files[0]))
	assert.Equal(t, "0002.png", filepath.Base(files[2]))

	_, err = ListSequence(t.TempDir())
	assert.Error(t, err)
	assert.True(t, IsImage("A.TIFF"))
	assert.False(t, IsImage("a.mkv"))
}

func TestOpenSequence(t *testing.T) {
	dir := writeSequence(t, 4)
	d := New()
	r, err := d.Open(context.Background(), dir, Options{})
	require.NoError(t, err)
	defer r.Close()

	info := r.Info()
	assert.Equal(t, Info{Width: 8, Height: 4, Frames: 4, Codec: "image"}, info)

	frames, err := ReadAll(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, frames, 4)
	assert.InDelta(t, 60.0/255, frames[3].Mean(), 1e-4)
}

func TestOpenSequenceScaled(t *testing.T) {
	dir := writeSequence(t, 2)
	r, err := New().Open(context.Background(), dir, Options{Width: 4, Height: 2})
	require.NoError(t, err)

	p, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, p.Width)
	assert.Equal(t, 2, p.Height)
}

func TestOpenMissing(t *testing.T) {
	_, err := New().Open(context.Background(), filepath.Join(t.TempDir(), "none.mkv"), Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSequenceSizeMismatch(t *testing.T) {
	dir := writeSequence(t, 1)
	require.NoError(t, imaging.Save(image.NewGray(image.Rect(0, 0, 4, 4)), filepath.Join(dir, "0001.png")))

	r, err := New().Open(context.Background(), dir, Options{})
	require.NoError(t, err)
	_, err = ReadAll(context.Background(), r)
	assert.ErrorContains(t, err, "differs from the first frame")
}

func TestCursor(t *testing.T) {
	ctx := context.Background()
	r, err := New().Open(ctx, writeSequence(t, 5), Options{})
	require.NoError(t, err)
	c := NewCursor(r)
	defer c.Close()
	assert.Equal(t, 5, c.Len())

	p, err := c.Frame(ctx, 2)
	require.NoError(t, err)
	assert.InDelta(t, 40.0/255, p.Mean(), 1e-4)

	again, err := c.Frame(ctx, 2)
	require.NoError(t, err)
	assert.Same(t, p, again, "the last frame is repeated without decoding")

	_, err = c.Frame(ctx, 0)
	assert.ErrorIs(t, err, ErrBackwards)

	p, err = c.Frame(ctx, 4)
	require.NoError(t, err)
	assert.InDelta(t, 80.0/255, p.Mean(), 1e-4)

	_, err = c.Frame(ctx, 5)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReaderHonoursContext(t *testing.T) {
	r, err := New().Open(context.Background(), writeSequence(t, 2), Options{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckFFmpegAndCleanup(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	assert.Error(t, CheckFFmpeg())
	New().Cleanup()
}

func TestStatSequence(t *testing.T) {
	info, err := New().Stat(context.Background(), writeSequence(t, 3))
	require.NoError(t, err)
	assert.Equal(t, 8, info.Width)
	assert.Equal(t, 4, info.Height)
	assert.Equal(t, 3, info.Frames)

	_, err = New().Stat(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

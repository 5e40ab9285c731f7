package decoder

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"descale-qc/internal/logging"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
	".gif":  true,
}

// IsImage reports whether path has an extension the sequence reader loads.
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// ListSequence returns the image files of dir in lexical order, which is
// frame order for the usual zero-padded dumps.
func ListSequence(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read sequence directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && IsImage(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	return files, nil
}

// LoadImage decodes one image, through libvips when it is available.
func LoadImage(path string) (image.Image, error) {
	if IsVipsAvailable() {
		img, err := loadWithVips(path)
		if err == nil {
			return img, nil
		}
		logging.Debug("vips failed for %s: %v, falling back to imaging", path, err)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return img, nil
}

// imageReader reads a directory of still frames.
type imageReader struct {
	files  []string
	info   Info
	width  int
	height int
	next   int
}

func openSequence(dir string, width, height int) (*imageReader, error) {
	files, err := ListSequence(dir)
	if err != nil {
		return nil, err
	}
	first, err := LoadImage(files[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", files[0], err)
	}
	b := first.Bounds()
	r := &imageReader{
		files: files,
		info:  Info{Width: b.Dx(), Height: b.Dy(), Frames: len(files), Codec: "image"},
	}
	if width > 0 && height > 0 {
		r.width, r.height = width, height
		r.info.Width, r.info.Height = width, height
	}
	return r, nil
}

func (r *imageReader) Info() Info { return r.info }

func (r *imageReader) Next(ctx context.Context) (*Plane, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.next >= len(r.files) {
		return nil, io.EOF
	}
	path := r.files[r.next]
	img, err := LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if r.width > 0 {
		img = imaging.Resize(img, r.width, r.height, imaging.Box)
	}
	p := PlaneFromImage(img)
	if p.Width != r.info.Width || p.Height != r.info.Height {
		return nil, fmt.Errorf("%s: size %dx%d differs from the first frame %dx%d",
			path, p.Width, p.Height, r.info.Width, r.info.Height)
	}
	r.next++
	return p, nil
}

func (r *imageReader) Close() error { return nil }

package analysis

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"descale-qc/internal/decoder"
	"descale-qc/internal/logging"
)

// SceneListName is the scene list looked up inside an image-sequence
// directory.
const SceneListName = "scenes.txt"

// Scene detector defaults. Frames are compared on a small thumbnail; a cut
// is reported when the mean absolute luma difference exceeds the threshold.
const (
	DefaultSceneThreshold = 0.12
	thumbWidth            = 64
	thumbHeight           = 36
)

// SceneDetector finds hard cuts in a stream of planes fed in order.
type SceneDetector struct {
	threshold float64
	prev      *decoder.Plane
	next      int
}

// NewSceneDetector creates a detector. A zero threshold selects
// DefaultSceneThreshold.
func NewSceneDetector(threshold float64) *SceneDetector {
	if threshold <= 0 {
		threshold = DefaultSceneThreshold
	}
	return &SceneDetector{threshold: threshold}
}

// Thumbnail shrinks a plane with a box filter.
func Thumbnail(p *decoder.Plane, width, height int) *decoder.Plane {
	if p.Width == width && p.Height == height {
		return p
	}
	return decoder.PlaneFromImage(imaging.Resize(p.Gray16(), width, height, imaging.Box))
}

// Observe feeds frame n and reports whether a scene starts at it. Frames
// must be fed in increasing order starting at 0; frame 0 is never a cut.
func (d *SceneDetector) Observe(n int, p *decoder.Plane) (bool, error) {
	if n != d.next {
		return false, fmt.Errorf("scene detector expected frame %d, got %d", d.next, n)
	}
	d.next++
	thumb := Thumbnail(p, thumbWidth, thumbHeight)
	prev := d.prev
	d.prev = thumb
	if prev == nil {
		return false, nil
	}
	return meanAbsDiff(prev, thumb) > d.threshold, nil
}

func meanAbsDiff(a, b *decoder.Plane) float64 {
	var sum float64
	for i := range a.Pix {
		sum += math.Abs(float64(a.Pix[i]) - float64(b.Pix[i]))
	}
	return sum / float64(len(a.Pix))
}

// ReadSceneList reads one frame index per line. Blank lines and lines
// starting with '#' are ignored.
func ReadSceneList(r io.Reader) ([]int, error) {
	var cuts []int
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		n, err := strconv.Atoi(text)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("scene list line %d: bad frame index %q", line, text)
		}
		cuts = append(cuts, n)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.Ints(cuts)
	return cuts, nil
}

// WriteSceneList writes frame indices one per line.
func WriteSceneList(w io.Writer, cuts []int) error {
	bw := bufio.NewWriter(w)
	for _, n := range cuts {
		if _, err := fmt.Fprintln(bw, n); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// LoadSceneList returns the cached scene list in dir, or nil if there is
// none.
func LoadSceneList(dir string) ([]int, error) {
	path := filepath.Join(dir, SceneListName)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cuts, err := ReadSceneList(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.Info("Reusing %d scene changes from %s", len(cuts), path)
	return cuts, nil
}

package coalesce

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scene struct {
	start, end int
	accepted   bool
}

func runScenes(label string, scenes []scene) *Catalogue {
	c := NewCoalescer(label)
	for _, s := range scenes {
		c.Scene(s.start, s.end, s.accepted)
	}
	return c.Finish()
}

func TestCoalescerScenarios(t *testing.T) {
	tests := []struct {
		name     string
		scenes   []scene
		expected string
	}{
		{
			name:     "all accepted merge into one run",
			scenes:   []scene{{0, 99, true}, {100, 199, true}, {200, 299, true}},
			expected: "[0 299] ",
		},
		{
			name:     "rejected middle scene splits the run",
			scenes:   []scene{{0, 99, true}, {100, 199, false}, {200, 299, true}},
			expected: "[0 99] [200 299] ",
		},
		{
			name:     "leading rejection",
			scenes:   []scene{{0, 49, false}, {50, 99, true}},
			expected: "[50 99] ",
		},
		{
			name:     "trailing rejection flushes pending run",
			scenes:   []scene{{0, 49, true}, {50, 99, false}},
			expected: "[0 49] ",
		},
		{
			name:     "consecutive rejections",
			scenes:   []scene{{0, 9, true}, {10, 19, false}, {20, 29, false}, {30, 39, true}, {40, 49, true}},
			expected: "[0 9] [30 49] ",
		},
		{
			name:     "nothing accepted",
			scenes:   []scene{{0, 9, false}, {10, 19, false}},
			expected: "",
		},
		{
			name:     "single frame scenes",
			scenes:   []scene{{0, 0, true}, {1, 1, false}, {2, 2, true}},
			expected: "[0 0] [2 2] ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := runScenes("k", tt.scenes)
			assert.Equal(t, tt.expected, cat.String())
			assert.Equal(t, "k", cat.Label)
		})
	}
}

func TestCoalescerStates(t *testing.T) {
	c := NewCoalescer("k")
	assert.Equal(t, NoOpenRun, c.State())

	c.Scene(0, 9, true)
	assert.Equal(t, OpenRun, c.State())

	c.Scene(10, 19, false)
	assert.Equal(t, JustClosed, c.State())
	assert.Empty(t, c.Catalogue().Intervals, "closed runs stay pending until the next accepted run")

	c.Scene(20, 29, true)
	assert.Equal(t, OpenRun, c.State())
	assert.Equal(t, []Interval{{0, 9}}, c.Catalogue().Intervals)

	first := c.Finish()
	second := c.Finish()
	assert.Equal(t, NoOpenRun, c.State())
	assert.Equal(t, []Interval{{0, 9}, {20, 29}}, second.Intervals)
	assert.Same(t, first, second)
}

func TestCoverageWithComplement(t *testing.T) {
	scenes := []scene{
		{0, 11, true}, {12, 40, false}, {41, 41, true}, {42, 70, true},
		{71, 90, false}, {91, 99, false}, {100, 149, true},
	}
	cat := runScenes("k", scenes)

	covered := make([]int, 150)
	for _, iv := range cat.Intervals {
		for n := iv.Start; n <= iv.End; n++ {
			covered[n]++
		}
	}
	for _, iv := range cat.Complement(150) {
		for n := iv.Start; n <= iv.End; n++ {
			covered[n]++
		}
	}
	for n, count := range covered {
		require.Equal(t, 1, count, "frame %d covered %d times", n, count)
	}
	assert.Equal(t, []Interval{{12, 40}, {71, 99}}, cat.Complement(150))
	assert.Equal(t, 12+30+50, cat.Frames())
}

func TestCatalogueContains(t *testing.T) {
	cat := &Catalogue{Intervals: []Interval{{0, 9}, {20, 29}}}
	assert.True(t, cat.Contains(0))
	assert.True(t, cat.Contains(9))
	assert.False(t, cat.Contains(10))
	assert.True(t, cat.Contains(25))
	assert.False(t, cat.Contains(30))
}

func TestParse(t *testing.T) {
	got, err := Parse("[0 99] [200 299] ")
	require.NoError(t, err)
	assert.Equal(t, []Interval{{0, 99}, {200, 299}}, got)

	got, err = Parse("  ")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Parse("[ 5   7 ][8 8]\n")
	require.NoError(t, err)
	assert.Equal(t, []Interval{{5, 7}, {8, 8}}, got)

	for _, bad := range []string{"0 99", "[0 99", "[0]", "[a b]", "[9 3]"} {
		_, err := Parse(bad)
		assert.True(t, errors.Is(err, ErrMalformed), "input %q", bad)
	}
}

func TestParseRoundTripsCoalescerOutput(t *testing.T) {
	cat := runScenes("k", []scene{{0, 4, true}, {5, 9, false}, {10, 14, true}})
	got, err := Parse(cat.String())
	require.NoError(t, err)
	assert.Equal(t, cat.Intervals, got)
}

func TestMerge(t *testing.T) {
	got := Merge([]Interval{{20, 29}, {0, 9}, {10, 12}, {25, 40}, {50, 50}})
	assert.Equal(t, []Interval{{0, 12}, {20, 40}, {50, 50}}, got)
	assert.Nil(t, Merge(nil))
}

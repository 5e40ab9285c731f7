package scenes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"descale-qc/internal/coalesce"
)

func runSingle(t *testing.T, cfg Config, src Source) *Result {
	t.Helper()
	acc, err := NewAccumulator(cfg)
	require.NoError(t, err)
	res, err := acc.Run(context.Background(), src)
	require.NoError(t, err)
	return res
}

func TestAccumulatorCleanSequence(t *testing.T) {
	src := newFixture(300, []string{"bilinear_720"}, 100, 200, 299)

	res := runSingle(t, DefaultSingleConfig(), src)

	require.Len(t, res.Catalogues, 1)
	assert.Equal(t, "[0 299] ", res.Catalogues[0].String())
	assert.Len(t, res.Scenes, 4)
	assert.Equal(t, 300, res.Frames)
}

func TestAccumulatorFrameBreachRejectsScene(t *testing.T) {
	cfg := DefaultSingleConfig()
	src := newFixture(300, []string{"bilinear_720"}, 100, 200, 299)
	src.setErr(0, 150, 150, cfg.IndThreshold*10)

	res := runSingle(t, cfg, src)

	assert.Equal(t, "[0 99] [200 299] ", res.Catalogues[0].String())
}

func TestAccumulatorAverageRejectsScene(t *testing.T) {
	cfg := Config{IndThreshold: 1, AvgThreshold: 0.004}
	src := newFixture(30, []string{"k"}, 10, 20)
	// 0.005 on every frame of the middle scene: under the per-frame
	// ceiling, over the average ceiling.
	src.setErr(0, 10, 19, 0.005)

	res := runSingle(t, cfg, src)

	assert.Equal(t, "[0 9] [20 29] ", res.Catalogues[0].String())
	require.Len(t, res.Scenes, 3)
	assert.False(t, res.Scenes[1].Tripped[0])
	assert.InDelta(t, 0.005, res.Scenes[1].Averages[0], 1e-12)
}

func TestAccumulatorSceneAverageMatchesFrameSum(t *testing.T) {
	cfg := Config{IndThreshold: 1, AvgThreshold: 1}
	src := newFixture(20, []string{"k"}, 8)
	vals := []float64{0.1, 0.2, 0.05, 0.0, 0.3, 0.15, 0.25, 0.1}
	for i, v := range vals {
		src.setErr(0, i, i, v)
	}
	src.frames[3].complexity = 2
	src.frames[4].complexity = 0.5

	res := runSingle(t, cfg, src)

	var sum float64
	for i, v := range vals {
		sum += Normalize(v, src.frames[i].complexity)
	}
	assert.InDelta(t, sum/8, res.Scenes[0].Averages[0], 1e-12)
	assert.Equal(t, 8, res.Scenes[0].Frames)
}

func TestAccumulatorZeroComplexity(t *testing.T) {
	cfg := DefaultSingleConfig()
	src := newFixture(10, []string{"k"})
	src.setErr(0, 0, 9, 5)
	for i := range src.frames {
		src.frames[i].complexity = 0
	}

	res := runSingle(t, cfg, src)

	assert.Equal(t, "[0 9] ", res.Catalogues[0].String())
	assert.Zero(t, res.Scenes[0].Averages[0])
	assert.False(t, res.Scenes[0].Tripped[0])
}

func TestAccumulatorFirstFrameIsNeverBoundary(t *testing.T) {
	src := newFixture(10, []string{"k"}, 0)

	res := runSingle(t, DefaultSingleConfig(), src)

	require.Len(t, res.Scenes, 1)
	assert.Equal(t, 0, res.Scenes[0].Start)
	assert.Equal(t, 9, res.Scenes[0].End)
}

func TestAccumulatorLastFrameIsMeasured(t *testing.T) {
	cfg := DefaultSingleConfig()
	// The last frame is its own scene and breaches the ceiling.
	src := newFixture(10, []string{"k"}, 9)
	src.setErr(0, 9, 9, 1)

	res := runSingle(t, cfg, src)

	assert.Equal(t, "[0 8] ", res.Catalogues[0].String())
	require.Len(t, res.Scenes, 2)
	assert.Equal(t, 1, res.Scenes[1].Frames)
	assert.True(t, res.Scenes[1].Tripped[0])
}

func TestAccumulatorSkipsAfterTrip(t *testing.T) {
	cfg := DefaultSingleConfig()
	rec := &recorder{}
	cfg.Observer = rec
	src := newFixture(20, []string{"k"}, 10)
	src.setErr(0, 2, 2, 1)

	res := runSingle(t, cfg, src)

	assert.Equal(t, "[10 19] ", res.Catalogues[0].String())
	// Frames 3..9 are counted without being measured.
	assert.Equal(t, 7, rec.skipped)
	assert.Equal(t, 13, rec.measured)
	assert.Equal(t, 10, res.Scenes[0].Frames)
	assert.Len(t, rec.scenes, 2)
}

func TestAccumulatorExclusion(t *testing.T) {
	cfg := DefaultSingleConfig()
	cfg.Exclude = []coalesce.Interval{{Start: 0, End: 4}}
	src := newFixture(10, []string{"k"})
	src.setErr(0, 0, 4, 100)

	res := runSingle(t, cfg, src)

	assert.Equal(t, "[0 9] ", res.Catalogues[0].String())
	assert.Equal(t, 10, res.Scenes[0].Frames)
}

func TestAccumulatorCoverage(t *testing.T) {
	cfg := DefaultSingleConfig()
	src := newFixture(100, []string{"k"}, 7, 19, 33, 50, 51, 80, 99)
	src.setErr(0, 20, 20, 1).setErr(0, 51, 51, 1).setErr(0, 99, 99, 1)

	res := runSingle(t, cfg, src)

	cat := res.Catalogues[0]
	seen := make([]int, 100)
	for _, iv := range cat.Intervals {
		for i := iv.Start; i <= iv.End; i++ {
			seen[i]++
		}
	}
	for _, iv := range cat.Complement(100) {
		for i := iv.Start; i <= iv.End; i++ {
			seen[i]++
		}
	}
	for i, c := range seen {
		assert.Equal(t, 1, c, "frame %d", i)
	}
	assert.Equal(t, "[0 18] [33 50] [80 98] ", cat.String())
}

func TestAccumulatorErrors(t *testing.T) {
	t.Run("negative threshold", func(t *testing.T) {
		_, err := NewAccumulator(Config{IndThreshold: -1})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfig))
	})

	t.Run("empty source", func(t *testing.T) {
		acc, err := NewAccumulator(DefaultSingleConfig())
		require.NoError(t, err)
		_, err = acc.Run(context.Background(), newFixture(0, []string{"k"}))
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("frame failure aborts", func(t *testing.T) {
		src := newFixture(10, []string{"k"})
		src.errs = map[int]error{5: errors.New("decode failed")}
		acc, err := NewAccumulator(DefaultSingleConfig())
		require.NoError(t, err)
		_, err = acc.Run(context.Background(), src)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode failed")
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		acc, err := NewAccumulator(DefaultSingleConfig())
		require.NoError(t, err)
		_, err = acc.Run(ctx, newFixture(10, []string{"k"}))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestResultOutputs(t *testing.T) {
	single := &Result{Kind: KindSingle, Catalogues: []*coalesce.Catalogue{{Label: "k"}}}
	outs := single.Outputs("ep01")
	require.Len(t, outs, 1)
	assert.Equal(t, "ep01.txt", outs[0].Name)

	multi := &Result{
		Kind:        KindMulti,
		Catalogues:  []*coalesce.Catalogue{{Label: "bilinear_720"}, {Label: "lanczos_3_720"}},
		NoCandidate: &coalesce.Catalogue{Label: NoCandidateLabel},
	}
	var names []string
	for _, o := range multi.Outputs("ep01") {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"ep01_bilinear_720.txt", "ep01_lanczos_3_720.txt", "ep01_nokernel.txt"}, names)
	assert.NotNil(t, multi.Catalogue("nokernel"))
	assert.NotNil(t, multi.Catalogue("lanczos_3_720"))
	assert.Nil(t, multi.Catalogue("missing"))
}

func TestValidateBaseName(t *testing.T) {
	assert.NoError(t, ValidateBaseName("ep01"))
	for _, bad := range []string{"", "  ", "dir/ep01", "a\\b", "a\x00b"} {
		err := ValidateBaseName(bad)
		assert.ErrorIs(t, err, ErrConfig, "base %q", bad)
	}
}

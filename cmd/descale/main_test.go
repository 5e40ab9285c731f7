package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"descale-qc/internal/coalesce"
	"descale-qc/internal/database"
	"descale-qc/internal/framestats"
	"descale-qc/internal/logging"
	"descale-qc/internal/offset"
)

// testEnv points every directory at a fresh temp dir and returns the
// output directory.
func testEnv(t *testing.T) string {
	t.Helper()
	out := t.TempDir()
	t.Setenv("OUTPUT_DIR", out)
	t.Setenv("CACHE_DIR", t.TempDir())
	t.Setenv("DATABASE_DIR", t.TempDir())
	t.Setenv("VIPS_ENABLED", "false")
	t.Setenv("DESCALE_WORKERS", "2")
	logging.SetOutput(io.Discard)
	t.Cleanup(func() { logging.SetOutput(os.Stderr) })
	return out
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// writeClip saves an image sequence of n frames.
func writeClip(t *testing.T, n, w, h int, value func(i, x, y int) uint8) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		img := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.Pix[y*img.Stride+x] = value(i, x, y)
			}
		}
		require.NoError(t, imaging.Save(img, filepath.Join(dir, fmt.Sprintf("%05d.png", i))))
	}
	return dir
}

func flatClip(t *testing.T, n int, value func(i int) uint8) string {
	return writeClip(t, n, 8, 8, func(i, _, _ int) uint8 { return value(i) })
}

func texturedClip(t *testing.T, n int) string {
	return writeClip(t, n, 64, 36, func(i, x, y int) uint8 { return uint8((x*7 + y*13 + i*3) % 256) })
}

// writeStats writes a framestats CSV with a cut at frame 6 of 12. errs
// gives the raw error of each label in the first and second scene.
func writeStats(t *testing.T, labels []string, errs map[string][2]float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stats.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := framestats.NewWriter(f, labels)
	require.NoError(t, err)
	for n := 0; n < 12; n++ {
		rec := framestats.Record{SceneChange: n == 6, Complexity: 1}
		scene := 0
		if n >= 6 {
			scene = 1
		}
		for _, l := range labels {
			rec.Errors = append(rec.Errors, errs[l][scene])
		}
		require.NoError(t, w.Write(rec))
	}
	require.NoError(t, w.Flush())
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestUsage(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "Usage: descale")

	code, stdout, _ := runCLI(t, "help")
	assert.Equal(t, exitOK, code)
	for _, c := range commands() {
		assert.Contains(t, stdout, c.name)
	}

	code, stdout, _ = runCLI(t, "version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "descale ")

	code, _, stderr = runCLI(t, "rm;-rf")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "Unknown command: rm_-rf")
}

func TestSanitizeCommand(t *testing.T) {
	assert.Equal(t, "scenes", sanitizeCommand("scenes"))
	assert.Equal(t, "a_b_c", sanitizeCommand("a b\nc"))
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		want    coalesce.Interval
		wantErr bool
	}{
		{"100-200", coalesce.Interval{Start: 100, End: 200}, false},
		{"5:5", coalesce.Interval{Start: 5, End: 5}, false},
		{" 0 - 9 ", coalesce.Interval{Start: 0, End: 9}, false},
		{"9-0", coalesce.Interval{}, true},
		{"12", coalesce.Interval{}, true},
		{"a-b", coalesce.Interval{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseRange(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExcludeRanges(t *testing.T) {
	cat := filepath.Join(t.TempDir(), "ep01_nokernel.txt")
	require.NoError(t, os.WriteFile(cat, []byte("[10 19] [40 49] "), 0o644))

	of := outputFlags{exclude: []string{"15-30"}, excludeFiles: []string{cat}}
	got, err := of.excludeRanges()
	require.NoError(t, err)
	assert.Equal(t, []coalesce.Interval{{Start: 10, End: 30}, {Start: 40, End: 49}}, got)
}

func TestEvenWidth(t *testing.T) {
	assert.Equal(t, 1280, evenWidth(720, 1920, 1080))
	assert.Equal(t, 1498, evenWidth(842, 1920, 1080))
	assert.Equal(t, 32, evenWidth(18, 64, 36))
	assert.Zero(t, evenWidth(18, 64, 0))
}

func TestTargetFlags(t *testing.T) {
	tf := targetFlags{kernels: []string{"bilinear", "bicubic:b=0:c=0.5"}, baseHeight: 720}
	targets, err := tf.targets(1920, 1080)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "bilinear_720", targets[0].Label())
	assert.Equal(t, "bicubic_0_0.5_720", targets[1].Label())
	assert.Equal(t, 1280, targets[0].BaseWidth)

	tf = targetFlags{kernels: []string{"lanczos"}, baseHeight: 720, srcHeight: 719.5}
	targets, err = tf.targets(1920, 1080)
	require.NoError(t, err)
	assert.Equal(t, "lanczos_3_719.5", targets[0].Label())

	_, err = (&targetFlags{kernels: []string{"bilinear"}}).targets(1920, 1080)
	assert.ErrorContains(t, err, "--height")
	_, err = (&targetFlags{baseHeight: 720}).targets(1920, 1080)
	assert.ErrorContains(t, err, "--kernel")
	_, err = (&targetFlags{kernels: []string{"nope"}, baseHeight: 720}).targets(1920, 1080)
	assert.Error(t, err)
}

func TestScenesFromStats(t *testing.T) {
	out := testEnv(t)
	clip := flatClip(t, 12, func(int) uint8 { return 128 })
	stats := writeStats(t, []string{"bilinear_18"}, map[string][2]float64{
		"bilinear_18": {0.001, 0.05},
	})

	code, stdout, stderr := runCLI(t, "scenes", "--kernel", "bilinear", "--height", "18",
		"--stats", stats, "--base", "ep01", "--write-rejected", clip)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "bilinear_18")

	assert.Equal(t, "[0 5] ", readFile(t, filepath.Join(out, "ep01.txt")))
	assert.Equal(t, "[6 11] ", readFile(t, filepath.Join(out, "ep01_rejected.txt")))

	code, stdout, _ = runCLI(t, "runs", "--json")
	require.Equal(t, exitOK, code)
	var list database.RunList
	require.NoError(t, json.Unmarshal([]byte(stdout), &list))
	require.Equal(t, 1, list.TotalItems)
	run := list.Items[0]
	assert.Equal(t, "single", run.Kind)
	assert.Equal(t, "ep01", run.Base)
	assert.Equal(t, 12, run.Frames)
	assert.Equal(t, 2, run.Scenes)

	code, stdout, _ = runCLI(t, "runs", "--show", run.ID)
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, filepath.Join(out, "ep01.txt"))

	code, _, _ = runCLI(t, "runs", "--delete", run.ID)
	require.Equal(t, exitOK, code)
	code, _, _ = runCLI(t, "runs", "--show", run.ID)
	assert.Equal(t, exitError, code)
}

func TestScenesExclusionAndNoRecord(t *testing.T) {
	out := testEnv(t)
	clip := flatClip(t, 12, func(int) uint8 { return 128 })
	stats := writeStats(t, []string{"bilinear_18"}, map[string][2]float64{
		"bilinear_18": {0.001, 0.05},
	})

	// The defective second scene is excluded, so nothing trips it.
	code, _, stderr := runCLI(t, "scenes", "-k", "bilinear", "--height", "18",
		"--stats", stats, "-b", "ep02", "-x", "6-11", "--no-record", clip)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "[0 11] ", readFile(t, filepath.Join(out, "ep02.txt")))

	code, stdout, _ := runCLI(t, "runs")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "0 runs")
}

func TestScenesConfigErrors(t *testing.T) {
	testEnv(t)
	clip := flatClip(t, 4, func(int) uint8 { return 0 })

	code, _, _ := runCLI(t, "scenes", "--kernel", "bilinear", "--height", "18", "--base", "a/b", clip)
	assert.Equal(t, exitConfig, code)

	code, _, _ = runCLI(t, "scenes", "--kernel", "bilinear", "--kernel", "spline36", "--height", "18", clip)
	assert.Equal(t, exitError, code)

	code, _, _ = runCLI(t, "scenes", "--kernel", "bilinear", "--height", "18", "--avg-thr", "-1", clip)
	assert.Equal(t, exitConfig, code)

	code, _, _ = runCLI(t, "scenes", "--help")
	assert.Equal(t, exitOK, code)
}

func TestChooseHelpDescribesAltRatio(t *testing.T) {
	testEnv(t)
	code, _, stderr := runCLI(t, "choose", "--help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stderr, "--alt-ratio")
	assert.Contains(t, stderr, "alternate is rejected for the rest of the scene")
	assert.NotContains(t, stderr, "must beat the primary")
}

func TestKernelsFromPlan(t *testing.T) {
	out := testEnv(t)
	clip := flatClip(t, 12, func(int) uint8 { return 128 })
	labels := []string{"bilinear_18", "bicubic_0_0.5_18"}
	stats := writeStats(t, labels, map[string][2]float64{
		"bilinear_18":      {0.001, 0.004},
		"bicubic_0_0.5_18": {0.004, 0.002},
	})
	planFile := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(planFile, []byte(`
basename: show_ep01
targets:
  - kernel: bilinear
    base_height: 18
    base_width: 32
  - kernel: bicubic:b=0:c=0.5
    base_height: 18
    base_width: 32
`), 0o644))

	code, _, stderr := runCLI(t, "kernels", "--plan", planFile, "--stats", stats, clip)
	require.Equal(t, exitOK, code, stderr)

	assert.Equal(t, "[0 5] ", readFile(t, filepath.Join(out, "show_ep01_bilinear_18.txt")))
	assert.Equal(t, "[6 11] ", readFile(t, filepath.Join(out, "show_ep01_bicubic_0_0.5_18.txt")))
	assert.Equal(t, "", readFile(t, filepath.Join(out, "show_ep01_nokernel.txt")))
}

func TestKernelsFromFlagsTie(t *testing.T) {
	out := testEnv(t)
	clip := flatClip(t, 12, func(int) uint8 { return 128 })
	labels := []string{"bilinear_18", "spline36_18"}
	stats := writeStats(t, labels, map[string][2]float64{
		"bilinear_18": {0.002, 0.001},
		"spline36_18": {0.002, 0.003},
	})

	code, _, stderr := runCLI(t, "kernels", "-k", "bilinear", "-k", "spline36", "--height", "18",
		"--stats", stats, "--base", "ep03", clip)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "[6 11] ", readFile(t, filepath.Join(out, "ep03_bilinear_18.txt")))
	assert.Equal(t, "", readFile(t, filepath.Join(out, "ep03_spline36_18.txt")))
	assert.Equal(t, "[0 5] ", readFile(t, filepath.Join(out, "ep03_nokernel.txt")))
}

func TestChooseRejectsStats(t *testing.T) {
	testEnv(t)
	clip := flatClip(t, 2, func(int) uint8 { return 0 })
	code, _, _ := runCLI(t, "choose", "-k", "bilinear", "--height", "4", "--stats", "x.csv", clip, clip)
	assert.Equal(t, exitError, code)
}

func TestInspectFromStats(t *testing.T) {
	testEnv(t)
	clip := flatClip(t, 12, func(int) uint8 { return 128 })
	stats := writeStats(t, []string{"bilinear_18"}, map[string][2]float64{
		"bilinear_18": {0.001, 0.05},
	})

	code, stdout, stderr := runCLI(t, "inspect", "-k", "bilinear", "--height", "18",
		"--stats", stats, "--start", "5", "--end", "6", clip)
	require.Equal(t, exitOK, code, stderr)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NORMALISED")
	assert.Contains(t, lines[1], "0.001000")
	assert.Contains(t, lines[2], "true")
	assert.Contains(t, lines[2], "0.050000")

	code, _, _ = runCLI(t, "inspect", "-k", "bilinear", "--height", "18", "--stats", stats, "--start", "20", clip)
	assert.Equal(t, exitError, code)
}

func TestStatsLive(t *testing.T) {
	testEnv(t)
	clip := texturedClip(t, 6)
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "ep.csv")
	cutsPath := filepath.Join(dir, "cuts.txt")

	code, stdout, stderr := runCLI(t, "stats", "-k", "bilinear", "--height", "18",
		"--output", csvPath, "--scene-list-out", cutsPath, clip)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, csvPath, strings.TrimSpace(stdout))

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	table, err := framestats.Read(f)
	require.NoError(t, err)
	assert.Equal(t, 6, table.Len())
	assert.Equal(t, []string{"bilinear_18"}, table.Candidates())
	assert.Positive(t, table.Record(3).Complexity)
	assert.FileExists(t, cutsPath)
}

func TestScenesLiveCoverage(t *testing.T) {
	out := testEnv(t)
	clip := texturedClip(t, 8)

	code, _, stderr := runCLI(t, "scenes", "-k", "bilinear", "--height", "18",
		"--base", "live", "--write-rejected", clip)
	require.Equal(t, exitOK, code, stderr)

	accepted, err := coalesce.Parse(readFile(t, filepath.Join(out, "live.txt")))
	require.NoError(t, err)
	rejected, err := coalesce.Parse(readFile(t, filepath.Join(out, "live_rejected.txt")))
	require.NoError(t, err)
	total := (&coalesce.Catalogue{Intervals: accepted}).Frames() + (&coalesce.Catalogue{Intervals: rejected}).Frames()
	assert.Equal(t, 8, total)
}

func TestOffsetCommand(t *testing.T) {
	testEnv(t)
	ref := flatClip(t, 20, func(i int) uint8 { return uint8(i * 10) })
	lagging := flatClip(t, 20, func(i int) uint8 { return uint8(max(i-2, 0) * 10) })

	code, stdout, stderr := runCLI(t, "offset", "--method", "diff", "--approx", "4",
		"--thumb-width", "0", ref, lagging, ref)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, lagging+"\t2\n"+ref+"\t0\n", stdout)

	code, _, _ = runCLI(t, "offset", ref)
	assert.Equal(t, exitError, code)
	code, _, _ = runCLI(t, "offset", "--method", "vmaf", ref, ref)
	assert.Equal(t, exitError, code)
}

func TestDesyncCommand(t *testing.T) {
	testEnv(t)
	a := flatClip(t, 40, func(i int) uint8 { return uint8(i * 5) })
	// b is missing frames 20 and 21.
	b := flatClip(t, 38, func(i int) uint8 {
		if i >= 20 {
			i += 2
		}
		return uint8(i * 5)
	})

	code, stdout, stderr := runCLI(t, "desync", "--parts", "2", "--overlap", "0", "--approx", "4",
		"--thumb-width", "0", "--json", a, b)
	require.Equal(t, exitOK, code, stderr)

	var got []offset.Desync
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Part.Index)
	assert.Equal(t, -2, got[0].Offset)
	assert.GreaterOrEqual(t, got[0].Frame, 20)
	assert.Less(t, got[0].Frame, 40)

	code, stdout, _ = runCLI(t, "desync", "--parts", "2", "--approx", "4", "--thumb-width", "0", a, a)
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "no desync found")
}

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"descale-qc/internal/offset"
	"descale-qc/internal/scenes"
)

// value reads the current value of a counter or gauge.
func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric %s", m.Desc())
	return 0
}

// count returns the number of series a collector exports.
func count(c prometheus.Collector) int {
	ch := make(chan prometheus.Metric)
	go func() {
		c.Collect(ch)
		close(ch)
	}()
	n := 0
	for range ch {
		n++
	}
	return n
}

func TestSceneObserverCountsFrames(t *testing.T) {
	obs := NewSceneObserver("single")
	measured := FramesTotal.WithLabelValues("single", "true")
	skipped := FramesTotal.WithLabelValues("single", "false")
	m0, s0 := value(t, measured), value(t, skipped)

	obs.ObserveFrame(0, 10, true)
	obs.ObserveFrame(1, 10, true)
	obs.ObserveFrame(2, 10, false)

	assert.Equal(t, m0+2, value(t, measured))
	assert.Equal(t, s0+1, value(t, skipped))
}

func TestSceneObserverOutcomes(t *testing.T) {
	obs := NewSceneObserver("multi")
	accepted := ScenesTotal.WithLabelValues("multi", "accepted")
	nokernel := ScenesTotal.WithLabelValues("multi", "nokernel")
	winner := CandidateScenesAccepted.WithLabelValues("test_a_720")
	trips := CandidateTrips.WithLabelValues("test_b_720")
	a0, n0, w0, t0 := value(t, accepted), value(t, nokernel),
		value(t, winner), value(t, trips)

	labels := []string{"test_a_720", "test_b_720"}
	obs.ObserveScene(scenes.SceneDecision{
		Start: 0, End: 9, Frames: 10, Labels: labels,
		Averages: []float64{0.001, 0.003},
		Accepted: []bool{true, false},
		Tripped:  []bool{false, true},
	})
	obs.ObserveScene(scenes.SceneDecision{
		Start: 10, End: 19, Frames: 10, Labels: labels,
		Averages:    []float64{0.002, 0.002},
		Accepted:    []bool{false, false},
		Tripped:     []bool{false, false},
		NoCandidate: true,
	})

	assert.Equal(t, a0+1, value(t, accepted))
	assert.Equal(t, n0+1, value(t, nokernel))
	assert.Equal(t, w0+1, value(t, winner))
	assert.Equal(t, t0+1, value(t, trips))
}

func TestSingleRejectionIsNotNoKernel(t *testing.T) {
	obs := NewSceneObserver("single")
	rejected := ScenesTotal.WithLabelValues("single", "rejected")
	r0 := value(t, rejected)

	obs.ObserveScene(scenes.SceneDecision{
		Frames: 5, Labels: []string{"x"}, Averages: []float64{1},
		Accepted: []bool{false}, Tripped: []bool{true}, NoCandidate: true,
	})
	assert.Equal(t, r0+1, value(t, rejected))
}

func TestOffsetObserver(t *testing.T) {
	obs := NewOffsetObserver()
	p0, d0 := value(t, OffsetPartsScanned), value(t, OffsetDesyncsFound)

	obs.ObservePart(offset.Part{Index: 3}, 40, -2)
	obs.ObserveDesync(offset.Desync{Frame: 100, Offset: -2})

	assert.Equal(t, p0+1, value(t, OffsetPartsScanned))
	assert.Equal(t, d0+1, value(t, OffsetDesyncsFound))
	assert.Equal(t, float64(-2), value(t, OffsetLastValue))
}

func TestFilesystemObserver(t *testing.T) {
	obs := NewFilesystemObserver()
	errs := FilesystemOperationErrors.WithLabelValues("output", "write")
	e0 := value(t, errs)

	obs.ObserveOperation("output", "write", 0.01, nil)
	obs.ObserveOperation("output", "write", 0.01, errors.New("disk full"))
	assert.Equal(t, e0+1, value(t, errs))

	attempts := FilesystemRetryAttempts.WithLabelValues("write", "output")
	a0 := value(t, attempts)
	obs.ObserveRetryAttempt("write", "output")
	obs.ObserveRetrySuccess("write", "output")
	obs.ObserveRetryFailure("write", "output")
	obs.ObserveStaleError("write", "output")
	obs.ObserveRetryDuration("write", "output", 0.2)
	assert.Equal(t, a0+1, value(t, attempts))
}

type fakeStats struct{ stats Stats }

func (f fakeStats) GetStats() Stats { return f.stats }

func TestCollector(t *testing.T) {
	c := NewCollector(fakeStats{Stats{
		RunsByKind:      map[string]int{"multi": 3, "dual": 1},
		TotalRuns:       4,
		TotalCatalogues: 11,
	}}, time.Hour)
	c.collect()

	assert.Equal(t, float64(3), value(t, StoredRuns.WithLabelValues("multi")))
	assert.Equal(t, float64(0), value(t, StoredRuns.WithLabelValues("single")))
	assert.Equal(t, float64(11), value(t, StoredCatalogues))

	NewCollector(nil, time.Hour).collect()
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(fakeStats{}, 10*time.Millisecond)
	c.Start()
	time.Sleep(25 * time.Millisecond)
	c.Stop()
}

func TestInitializeMetrics(t *testing.T) {
	InitializeMetrics()
	assert.Equal(t, 9, count(ScenesTotal))
	assert.Equal(t, 12, count(FilesystemRetryAttempts))
	SetAppInfo("dev", "none", "go1.25")
	assert.Equal(t, float64(1), value(t, AppInfo.WithLabelValues("dev", "none", "go1.25")))
}

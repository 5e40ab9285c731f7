package metrics

import (
	"strconv"

	"descale-qc/internal/filesystem"
	"descale-qc/internal/offset"
	"descale-qc/internal/scenes"
)

// filesystemObserver implements filesystem.Observer using the Prometheus
// metrics declared in this package.
type filesystemObserver struct{}

// NewFilesystemObserver creates an observer that records filesystem metrics
// into the Prometheus counters and histograms declared in metrics.go.
func NewFilesystemObserver() filesystem.Observer {
	return &filesystemObserver{}
}

func (o *filesystemObserver) ObserveOperation(volume, operation string, durationSeconds float64, err error) {
	FilesystemOperationDuration.WithLabelValues(volume, operation).Observe(durationSeconds)
	if err != nil {
		FilesystemOperationErrors.WithLabelValues(volume, operation).Inc()
	}
}

func (o *filesystemObserver) ObserveRetryAttempt(retryOp, volume string) {
	FilesystemRetryAttempts.WithLabelValues(retryOp, volume).Inc()
}

func (o *filesystemObserver) ObserveRetrySuccess(retryOp, volume string) {
	FilesystemRetrySuccess.WithLabelValues(retryOp, volume).Inc()
}

func (o *filesystemObserver) ObserveRetryFailure(retryOp, volume string) {
	FilesystemRetryFailures.WithLabelValues(retryOp, volume).Inc()
}

func (o *filesystemObserver) ObserveRetryDuration(retryOp, volume string, durationSeconds float64) {
	FilesystemRetryDuration.WithLabelValues(retryOp, volume).Observe(durationSeconds)
}

func (o *filesystemObserver) ObserveStaleError(retryOp, volume string) {
	FilesystemStaleErrors.WithLabelValues(retryOp, volume).Inc()
}

// sceneObserver implements scenes.Observer.
type sceneObserver struct {
	kind string
}

// NewSceneObserver records frame and scene counts of a run of the given
// kind ("single", "multi" or "dual").
func NewSceneObserver(kind string) scenes.Observer {
	return &sceneObserver{kind: kind}
}

func (o *sceneObserver) ObserveFrame(_, _ int, measured bool) {
	FramesTotal.WithLabelValues(o.kind, strconv.FormatBool(measured)).Inc()
}

func (o *sceneObserver) ObserveScene(d scenes.SceneDecision) {
	SceneFrames.WithLabelValues(o.kind).Observe(float64(d.Frames))

	outcome := "rejected"
	for i, label := range d.Labels {
		if d.Accepted[i] {
			outcome = "accepted"
			CandidateScenesAccepted.WithLabelValues(label).Inc()
		}
		if d.Tripped[i] {
			CandidateTrips.WithLabelValues(label).Inc()
		}
	}
	if d.NoCandidate && len(d.Labels) > 1 {
		outcome = "nokernel"
	}
	ScenesTotal.WithLabelValues(o.kind, outcome).Inc()
}

// offsetObserver implements offset.Observer.
type offsetObserver struct{}

// NewOffsetObserver records desync scan progress.
func NewOffsetObserver() offset.Observer {
	return &offsetObserver{}
}

func (o *offsetObserver) ObservePart(_ offset.Part, _ int, off int) {
	OffsetPartsScanned.Inc()
	OffsetLastValue.Set(float64(off))
}

func (o *offsetObserver) ObserveDesync(offset.Desync) {
	OffsetDesyncsFound.Inc()
}

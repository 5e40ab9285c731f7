package scenes

// SceneDecision is the outcome of one closed scene.
type SceneDecision struct {
	Start  int
	End    int
	Frames int
	// Labels are the candidate labels, shared by every decision of a run.
	Labels []string
	// Averages are the per-candidate scene averages, after bias.
	Averages []float64
	// Accepted reports, per candidate, whether the scene joined its catalogue.
	Accepted []bool
	// Tripped reports which candidates breached their per-frame ceiling.
	Tripped []bool
	// NoCandidate is set when every candidate was rejected.
	NoCandidate bool
}

// Observer receives progress notifications during a run. Implementations
// must be cheap; they are called from the frame loop.
type Observer interface {
	ObserveFrame(n, total int, measured bool)
	ObserveScene(d SceneDecision)
}

type nopObserver struct{}

func (nopObserver) ObserveFrame(int, int, bool) {}
func (nopObserver) ObserveScene(SceneDecision)  {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

// MultiObserver fans notifications out to several observers.
type MultiObserver []Observer

func (m MultiObserver) ObserveFrame(n, total int, measured bool) {
	for _, o := range m {
		if o != nil {
			o.ObserveFrame(n, total, measured)
		}
	}
}

func (m MultiObserver) ObserveScene(d SceneDecision) {
	for _, o := range m {
		if o != nil {
			o.ObserveScene(d)
		}
	}
}

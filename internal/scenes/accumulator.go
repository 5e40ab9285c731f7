package scenes

import (
	"context"
	"fmt"

	"descale-qc/internal/coalesce"
	"descale-qc/internal/logging"
)

// Accumulator classifies the scenes of a single candidate.
//
// A scene is rejected when any measured frame exceeds IndThreshold or when
// its average normalised error exceeds AvgThreshold. Once a frame breaches
// the per-frame ceiling, the rest of the scene is counted but not measured.
type Accumulator struct {
	cfg      Config
	observer Observer
	exclude  exclusion
}

// NewAccumulator validates cfg and returns an Accumulator.
func NewAccumulator(cfg Config) (*Accumulator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Accumulator{
		cfg:      cfg,
		observer: observerOrNop(cfg.Observer),
		exclude:  newExclusion(cfg.Exclude),
	}, nil
}

// Run classifies every scene of src using its first candidate.
func (a *Accumulator) Run(ctx context.Context, src Source) (*Result, error) {
	total, err := checkSource(src, "source")
	if err != nil {
		return nil, err
	}
	labels := src.Candidates()
	if len(labels) == 0 {
		return nil, configErr("source", "source exposes no candidates")
	}
	if len(labels) > 1 {
		logging.Warn("Source exposes %d candidates, classifying %s only", len(labels), labels[0])
	}

	st := newCandidateState(Candidate{Label: labels[0]}, a.cfg)
	res := &Result{Kind: KindSingle, Frames: total}
	cur := sceneCursor{}

	for n := 0; n < total; n++ {
		f, err := pullFrame(ctx, src, n)
		if err != nil {
			return nil, err
		}

		if n > 0 && f.SceneChange() {
			res.Scenes = append(res.Scenes, a.closeScene(&st, cur, n-1))
			cur = sceneCursor{start: n}
		}
		cur.frames++

		if st.tripped || a.exclude.Contains(n) {
			a.observer.ObserveFrame(n, total, false)
			continue
		}

		complexity, err := f.Complexity()
		if err != nil {
			return nil, fmt.Errorf("frame %d complexity: %w", n, err)
		}
		v, err := normalizedError(f, 0, complexity)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", n, err)
		}
		st.add(v)
		if st.tripped {
			logging.Debug("Frame %d breached the per-frame ceiling (%.6f > %.6f)", n, v, st.indThr)
		}
		a.observer.ObserveFrame(n, total, true)
	}

	res.Scenes = append(res.Scenes, a.closeScene(&st, cur, total-1))
	res.Catalogues = []*coalesce.Catalogue{st.runs.Finish()}
	return res, nil
}

func (a *Accumulator) closeScene(st *candidateState, cur sceneCursor, end int) SceneDecision {
	avg := average(st.sum, cur.frames)
	accepted := !st.tripped && avg <= st.avgThr
	if !accepted {
		logging.Debug("Scene [%d %d] rejected: avg=%.6f tripped=%v", cur.start, end, avg, st.tripped)
	}
	st.runs.Scene(cur.start, end, accepted)

	d := SceneDecision{
		Start:       cur.start,
		End:         end,
		Frames:      cur.frames,
		Labels:      []string{st.label},
		Averages:    []float64{avg},
		Accepted:    []bool{accepted},
		Tripped:     []bool{st.tripped},
		NoCandidate: !accepted,
	}
	st.reset()
	a.observer.ObserveScene(d)
	return d
}

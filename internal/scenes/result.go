package scenes

import (
	"context"
	"fmt"

	"descale-qc/internal/coalesce"
)

// Kind identifies which classifier produced a Result.
type Kind string

const (
	KindSingle Kind = "single"
	KindMulti  Kind = "multi"
	KindDual   Kind = "dual"
)

// Result holds the catalogues of a completed run.
type Result struct {
	Kind   Kind
	Frames int
	// Catalogues are in candidate order.
	Catalogues []*coalesce.Catalogue
	// NoCandidate is only set for multi-candidate runs.
	NoCandidate *coalesce.Catalogue
	Scenes      []SceneDecision
}

// Output is one catalogue file to be written.
type Output struct {
	Name      string
	Catalogue *coalesce.Catalogue
}

// Outputs returns the file names for every catalogue of the result:
// "{base}.txt" for a single candidate, "{base}_{label}.txt" otherwise,
// plus "{base}_nokernel.txt" for multi-candidate runs.
func (r *Result) Outputs(base string) []Output {
	var out []Output
	if r.Kind == KindSingle && len(r.Catalogues) == 1 {
		return []Output{{Name: base + ".txt", Catalogue: r.Catalogues[0]}}
	}
	for _, c := range r.Catalogues {
		out = append(out, Output{Name: fmt.Sprintf("%s_%s.txt", base, c.Label), Catalogue: c})
	}
	if r.NoCandidate != nil {
		out = append(out, Output{Name: fmt.Sprintf("%s_%s.txt", base, NoCandidateLabel), Catalogue: r.NoCandidate})
	}
	return out
}

// Catalogue returns the catalogue with the given label, or nil.
func (r *Result) Catalogue(label string) *coalesce.Catalogue {
	if r.NoCandidate != nil && label == r.NoCandidate.Label {
		return r.NoCandidate
	}
	for _, c := range r.Catalogues {
		if c.Label == label {
			return c
		}
	}
	return nil
}

// candidateState is the per-candidate bookkeeping for one run.
type candidateState struct {
	label   string
	bias    float64
	indThr  float64
	avgThr  float64
	sum     float64
	tripped bool
	runs    *coalesce.Coalescer
}

func newCandidateState(c Candidate, cfg Config) candidateState {
	st := candidateState{
		label:  c.Label,
		bias:   c.Bias,
		indThr: cfg.IndThreshold,
		avgThr: cfg.AvgThreshold,
		runs:   coalesce.NewCoalescer(c.Label),
	}
	if st.bias == 0 {
		st.bias = 1
	}
	if c.IndThreshold != nil {
		st.indThr = *c.IndThreshold
	}
	if c.AvgThreshold != nil {
		st.avgThr = *c.AvgThreshold
	}
	return st
}

// add accumulates a normalised frame error and trips the candidate when
// the per-frame ceiling is breached.
func (s *candidateState) add(v float64) {
	s.sum += v
	if v > s.indThr {
		s.tripped = true
	}
}

func (s *candidateState) reset() {
	s.sum = 0
	s.tripped = false
}

// sceneCursor tracks the open scene of a run.
type sceneCursor struct {
	start  int
	frames int
}

func checkSource(src Source, label string) (int, error) {
	if src == nil {
		return 0, configErr(label, "source is nil")
	}
	total := src.Len()
	if total <= 0 {
		return 0, configErr(label, "source has no frames")
	}
	return total, nil
}

func pullFrame(ctx context.Context, src Source, n int) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := src.Frame(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", n, err)
	}
	return f, nil
}

package coalesce

// RunState is the state of a Coalescer between scenes.
type RunState int

const (
	// NoOpenRun means no accepted run has started since the last flush.
	NoOpenRun RunState = iota
	// OpenRun means the latest scene was accepted and the run is still growing.
	OpenRun
	// JustClosed means a run ended at a rejected scene but is not catalogued yet.
	JustClosed
)

func (s RunState) String() string {
	switch s {
	case NoOpenRun:
		return "no-open-run"
	case OpenRun:
		return "open-run"
	case JustClosed:
		return "just-closed"
	default:
		return "unknown"
	}
}

// Coalescer merges consecutive accepted scenes into closed intervals.
// Scenes must be reported in order and must partition the frame range.
//
// A closed run is kept pending and only appended to the catalogue when the
// next accepted run opens or when Finish is called.
type Coalescer struct {
	catalogue Catalogue
	state     RunState
	start     int
	end       int
	finished  bool
}

// NewCoalescer returns a Coalescer producing a catalogue with the given label.
func NewCoalescer(label string) *Coalescer {
	return &Coalescer{catalogue: Catalogue{Label: label}}
}

// State returns the current run state.
func (c *Coalescer) State() RunState {
	return c.state
}

// Scene records the decision for the scene [start, end].
func (c *Coalescer) Scene(start, end int, accepted bool) {
	if accepted {
		switch c.state {
		case OpenRun:
			c.end = end
		case JustClosed:
			c.flush()
			fallthrough
		default:
			c.start, c.end = start, end
			c.state = OpenRun
		}
		return
	}

	if c.state == OpenRun {
		c.end = start - 1
		c.state = JustClosed
	}
}

// Finish flushes any pending run. Calling it more than once is a no-op.
func (c *Coalescer) Finish() *Catalogue {
	if !c.finished {
		if c.state == OpenRun || c.state == JustClosed {
			c.flush()
		}
		c.state = NoOpenRun
		c.finished = true
	}
	return &c.catalogue
}

// Catalogue returns the intervals flushed so far.
func (c *Coalescer) Catalogue() *Catalogue {
	return &c.catalogue
}

func (c *Coalescer) flush() {
	c.catalogue.Intervals = append(c.catalogue.Intervals, Interval{Start: c.start, End: c.end})
}

package coalesce

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformed is returned by Parse for text that is not a catalogue line.
var ErrMalformed = errors.New("malformed catalogue")

// Interval is a closed range of frame indices, inclusive on both ends.
type Interval struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Len returns the number of frames covered by the interval.
func (iv Interval) Len() int {
	if iv.End < iv.Start {
		return 0
	}
	return iv.End - iv.Start + 1
}

// Contains reports whether frame n lies inside the interval.
func (iv Interval) Contains(n int) bool {
	return n >= iv.Start && n <= iv.End
}

// String renders the interval as a catalogue token without the trailing space.
func (iv Interval) String() string {
	return fmt.Sprintf("[%d %d]", iv.Start, iv.End)
}

// Catalogue is the ordered list of accepted intervals for one candidate.
type Catalogue struct {
	Label     string     `json:"label"`
	Intervals []Interval `json:"intervals"`
}

// String renders the catalogue line: every interval followed by one space.
func (c *Catalogue) String() string {
	var b strings.Builder
	for _, iv := range c.Intervals {
		b.WriteString(iv.String())
		b.WriteByte(' ')
	}
	return b.String()
}

// Frames returns the number of frames covered by the catalogue.
func (c *Catalogue) Frames() int {
	total := 0
	for _, iv := range c.Intervals {
		total += iv.Len()
	}
	return total
}

// Contains reports whether frame n is accepted by the catalogue.
func (c *Catalogue) Contains(n int) bool {
	i := sort.Search(len(c.Intervals), func(i int) bool {
		return c.Intervals[i].End >= n
	})
	return i < len(c.Intervals) && c.Intervals[i].Contains(n)
}

// Complement returns the intervals of [0, total-1] not covered by the
// catalogue, i.e. the rejected frames.
func (c *Catalogue) Complement(total int) []Interval {
	var out []Interval
	next := 0
	for _, iv := range c.Intervals {
		if iv.Start > next {
			out = append(out, Interval{Start: next, End: iv.Start - 1})
		}
		if iv.End+1 > next {
			next = iv.End + 1
		}
	}
	if next < total {
		out = append(out, Interval{Start: next, End: total - 1})
	}
	return out
}

// Parse reads a catalogue line ("[0 99] [200 299] ") back into intervals.
// Whitespace between and around tokens is ignored.
func Parse(text string) ([]Interval, error) {
	var out []Interval
	rest := strings.TrimSpace(text)
	for rest != "" {
		if rest[0] != '[' {
			return nil, fmt.Errorf("%w: expected '[' at %q", ErrMalformed, rest)
		}
		closing := strings.IndexByte(rest, ']')
		if closing < 0 {
			return nil, fmt.Errorf("%w: unterminated interval %q", ErrMalformed, rest)
		}
		fields := strings.Fields(rest[1:closing])
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: interval %q needs two frame numbers", ErrMalformed, rest[:closing+1])
		}
		start, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		end, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if end < start {
			return nil, fmt.Errorf("%w: interval [%d %d] ends before it starts", ErrMalformed, start, end)
		}
		out = append(out, Interval{Start: start, End: end})
		rest = strings.TrimSpace(rest[closing+1:])
	}
	return out, nil
}

// Merge sorts intervals and joins overlapping or adjacent ones.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if iv.Start <= last.End+1 {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

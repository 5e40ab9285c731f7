package framestats

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"descale-qc/internal/scenes"
)

const (
	colFrame       = "frame"
	colSceneChange = "scene_change"
	colComplexity  = "complexity"
	fixedColumns   = 3
)

// ErrFormat is wrapped by every parse error.
var ErrFormat = errors.New("malformed frame statistics")

// Record is the measurement of one frame.
type Record struct {
	SceneChange bool
	Complexity  float64
	Errors      []float64
}

// Writer streams records as CSV: frame, scene_change, complexity, then one
// raw error column per candidate label.
type Writer struct {
	w      *csv.Writer
	labels []string
	next   int
}

// NewWriter writes the header for labels.
func NewWriter(w io.Writer, labels []string) (*Writer, error) {
	for _, l := range labels {
		if err := scenes.ValidateLabel(l); err != nil {
			return nil, fmt.Errorf("label: %w", err)
		}
	}
	cw := csv.NewWriter(w)
	header := append([]string{colFrame, colSceneChange, colComplexity}, labels...)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	return &Writer{w: cw, labels: labels}, nil
}

// Write appends the next frame. Records must be written in frame order.
func (w *Writer) Write(rec Record) error {
	if len(rec.Errors) != len(w.labels) {
		return fmt.Errorf("frame %d: %d errors for %d candidates", w.next, len(rec.Errors), len(w.labels))
	}
	row := make([]string, 0, fixedColumns+len(rec.Errors))
	row = append(row,
		strconv.Itoa(w.next),
		strconv.FormatBool(rec.SceneChange),
		strconv.FormatFloat(rec.Complexity, 'g', -1, 64),
	)
	for _, e := range rec.Errors {
		row = append(row, strconv.FormatFloat(e, 'g', -1, 64))
	}
	w.next++
	return w.w.Write(row)
}

// Flush flushes buffered rows.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// Capture pulls every frame of src, with every candidate error, and writes
// it to w. progress, if set, is called after each frame.
func Capture(ctx context.Context, src scenes.Source, w *Writer, progress func(n, total int)) error {
	total := src.Len()
	labels := src.Candidates()
	for n := 0; n < total; n++ {
		f, err := src.Frame(ctx, n)
		if err != nil {
			return fmt.Errorf("frame %d: %w", n, err)
		}
		rec := Record{SceneChange: f.SceneChange(), Errors: make([]float64, len(labels))}
		if rec.Complexity, err = f.Complexity(); err != nil {
			return fmt.Errorf("frame %d complexity: %w", n, err)
		}
		for i := range labels {
			if rec.Errors[i], err = f.Error(i); err != nil {
				return fmt.Errorf("frame %d %s: %w", n, labels[i], err)
			}
		}
		if err := w.Write(rec); err != nil {
			return err
		}
		if progress != nil {
			progress(n, total)
		}
	}
	return w.Flush()
}

// Table is a fully loaded statistics file. It implements scenes.Source.
type Table struct {
	labels  []string
	records []Record
	// columns maps candidate positions to columns of records[i].Errors.
	columns []int
}

// Read parses a statistics file.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrFormat, err)
	}
	if len(header) < fixedColumns || header[0] != colFrame || header[1] != colSceneChange || header[2] != colComplexity {
		return nil, fmt.Errorf("%w: header must start with %s,%s,%s", ErrFormat, colFrame, colSceneChange, colComplexity)
	}
	t := &Table{labels: append([]string(nil), header[fixedColumns:]...)}
	for i := range t.labels {
		t.columns = append(t.columns, i)
	}

	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		rec, err := parseRow(row, len(t.records), len(t.labels))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, line, err)
		}
		t.records = append(t.records, rec)
	}
	return t, nil
}

func parseRow(row []string, want, candidates int) (Record, error) {
	var rec Record
	n, err := strconv.Atoi(row[0])
	if err != nil {
		return rec, fmt.Errorf("frame: %v", err)
	}
	if n != want {
		return rec, fmt.Errorf("frame %d out of order, expected %d", n, want)
	}
	if rec.SceneChange, err = strconv.ParseBool(row[1]); err != nil {
		return rec, fmt.Errorf("scene_change: %v", err)
	}
	if rec.Complexity, err = strconv.ParseFloat(row[2], 64); err != nil {
		return rec, fmt.Errorf("complexity: %v", err)
	}
	rec.Errors = make([]float64, candidates)
	for i := range rec.Errors {
		if rec.Errors[i], err = strconv.ParseFloat(row[fixedColumns+i], 64); err != nil {
			return rec, fmt.Errorf("error %d: %v", i, err)
		}
	}
	return rec, nil
}

// Len returns the number of frames.
func (t *Table) Len() int { return len(t.records) }

// Candidates returns the candidate labels of the table or view.
func (t *Table) Candidates() []string {
	out := make([]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = t.labels[c]
	}
	return out
}

// Record returns frame n.
func (t *Table) Record(n int) Record { return t.records[n] }

// Frame returns frame n.
func (t *Table) Frame(ctx context.Context, n int) (scenes.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < 0 || n >= len(t.records) {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", n, len(t.records))
	}
	return &frame{rec: &t.records[n], columns: t.columns}, nil
}

// Select returns a view of the table restricted to the given labels, in
// the given order.
func (t *Table) Select(labels ...string) (*Table, error) {
	view := &Table{labels: t.labels, records: t.records}
	for _, l := range labels {
		found := false
		for c, have := range t.labels {
			if have == l {
				view.columns = append(view.columns, c)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no candidate %q in statistics (have %v)", l, t.labels)
		}
	}
	return view, nil
}

type frame struct {
	rec     *Record
	columns []int
}

func (f *frame) SceneChange() bool            { return f.rec.SceneChange }
func (f *frame) Complexity() (float64, error) { return f.rec.Complexity, nil }

func (f *frame) Error(candidate int) (float64, error) {
	if candidate < 0 || candidate >= len(f.columns) {
		return 0, fmt.Errorf("candidate %d out of range", candidate)
	}
	return f.rec.Errors[f.columns[candidate]], nil
}

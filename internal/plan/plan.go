package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"descale-qc/internal/coalesce"
	"descale-qc/internal/kernels"
	"descale-qc/internal/scenes"
)

// Plan describes one classification run.
type Plan struct {
	// Basename names the catalogue files.
	Basename  string `yaml:"basename"`
	OutputDir string `yaml:"output_dir,omitempty"`

	IndThreshold *float64 `yaml:"ind_error_thr,omitempty"`
	AvgThreshold *float64 `yaml:"avg_error_thr,omitempty"`
	// ErrorThreshold is the per-pixel floor of the error image.
	ErrorThreshold float64 `yaml:"error_thr,omitempty"`
	SceneThreshold float64 `yaml:"scene_thr,omitempty"`

	// Exclude holds [start, end] frame pairs.
	Exclude [][]int `yaml:"exclude,omitempty"`
	// ExcludeFiles are catalogue files whose ranges are excluded too.
	// Relative paths are resolved against the plan file.
	ExcludeFiles []string `yaml:"exclude_files,omitempty"`

	Targets []kernels.Target `yaml:"targets"`

	dir string
}

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.dir = filepath.Dir(path)
	return p, nil
}

// Parse decodes and validates a plan. Unknown keys are errors.
func Parse(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Plan
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("plan is empty")
		}
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the plan without touching the file system.
func (p *Plan) Validate() error {
	if err := scenes.ValidateBaseName(p.Basename); err != nil {
		return err
	}
	if len(p.Targets) == 0 {
		return errors.New("targets: at least one target is required")
	}
	for i, t := range p.Targets {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("targets[%d]: %w", i, err)
		}
	}
	for i, r := range p.Exclude {
		if len(r) != 2 || r[0] < 0 || r[1] < r[0] {
			return fmt.Errorf("exclude[%d]: want [start, end] with 0 <= start <= end, got %v", i, r)
		}
	}
	if p.ErrorThreshold < 0 || p.SceneThreshold < 0 {
		return errors.New("error_thr and scene_thr must not be negative")
	}
	return nil
}

// Config returns def with the plan's thresholds and exclusions applied.
func (p *Plan) Config(def scenes.Config) (scenes.Config, error) {
	cfg := def
	if p.IndThreshold != nil {
		cfg.IndThreshold = *p.IndThreshold
	}
	if p.AvgThreshold != nil {
		cfg.AvgThreshold = *p.AvgThreshold
	}
	exclude, err := p.ExcludeRanges()
	if err != nil {
		return cfg, err
	}
	cfg.Exclude = append(cfg.Exclude, exclude...)
	return cfg, nil
}

// Candidates returns the scenes candidates in target order.
func (p *Plan) Candidates() []scenes.Candidate {
	out := make([]scenes.Candidate, len(p.Targets))
	for i, t := range p.Targets {
		out[i] = t.Candidate()
	}
	return out
}

// ExcludeRanges merges the inline ranges with those read from
// ExcludeFiles.
func (p *Plan) ExcludeRanges() ([]coalesce.Interval, error) {
	var out []coalesce.Interval
	for _, r := range p.Exclude {
		out = append(out, coalesce.Interval{Start: r[0], End: r[1]})
	}
	for _, f := range p.ExcludeFiles {
		path := f
		if !filepath.IsAbs(path) && p.dir != "" {
			path = filepath.Join(p.dir, path)
		}
		ranges, err := ReadCatalogue(path)
		if err != nil {
			return nil, err
		}
		out = append(out, ranges...)
	}
	return coalesce.Merge(out), nil
}

// ReadCatalogue parses a catalogue file.
func ReadCatalogue(path string) ([]coalesce.Interval, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	ranges, err := coalesce.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ranges, nil
}

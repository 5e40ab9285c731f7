package scenes

import (
	"errors"
	"fmt"
	"strings"

	"descale-qc/internal/coalesce"
)

// Default thresholds. The single-candidate run is stricter because it has
// no competitor to beat.
const (
	DefaultSingleIndThreshold = 0.008
	DefaultSingleAvgThreshold = 0.004
	DefaultMultiIndThreshold  = 0.01
	DefaultMultiAvgThreshold  = 0.006
	DefaultDontCareThreshold  = 0.001
	DefaultAltRatio           = 1.5
	NoCandidateLabel          = "nokernel"
)

// ErrConfig is wrapped by every ConfigError.
var ErrConfig = errors.New("invalid configuration")

// ConfigError reports a configuration problem detected before any frame
// is processed. It is always fatal to the run.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

func configErr(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Config holds the run-wide thresholds shared by every classifier.
type Config struct {
	// IndThreshold is the per-frame ceiling on normalised error.
	IndThreshold float64
	// AvgThreshold is the ceiling on a scene's average normalised error.
	AvgThreshold float64
	// Exclude lists frame ranges that are counted but never measured.
	Exclude []coalesce.Interval
	// Observer receives per-frame and per-scene notifications. May be nil.
	Observer Observer
}

// DefaultSingleConfig returns the thresholds for a single-candidate run.
func DefaultSingleConfig() Config {
	return Config{IndThreshold: DefaultSingleIndThreshold, AvgThreshold: DefaultSingleAvgThreshold}
}

// DefaultMultiConfig returns the thresholds for a multi-candidate run.
func DefaultMultiConfig() Config {
	return Config{IndThreshold: DefaultMultiIndThreshold, AvgThreshold: DefaultMultiAvgThreshold}
}

func (c Config) validate() error {
	if c.IndThreshold < 0 {
		return configErr("ind_error_thr", "must not be negative, got %v", c.IndThreshold)
	}
	if c.AvgThreshold < 0 {
		return configErr("avg_error_thr", "must not be negative, got %v", c.AvgThreshold)
	}
	for _, iv := range c.Exclude {
		if iv.Start < 0 || iv.End < iv.Start {
			return configErr("exclude", "bad range %s", iv)
		}
	}
	return nil
}

// Candidate describes one kernel (or source) under test. Nil thresholds
// fall back to the run Config; a zero Bias means 1.
type Candidate struct {
	Label        string
	Bias         float64
	IndThreshold *float64
	AvgThreshold *float64
}

func validateCandidates(cands []Candidate) error {
	if len(cands) == 0 {
		return configErr("candidates", "at least one candidate is required")
	}
	seen := make(map[string]bool, len(cands))
	for i, c := range cands {
		if err := ValidateLabel(c.Label); err != nil {
			return configErr(fmt.Sprintf("candidates[%d].label", i), "%v", err)
		}
		if c.Label == NoCandidateLabel {
			return configErr(fmt.Sprintf("candidates[%d].label", i), "%q is reserved", NoCandidateLabel)
		}
		if seen[c.Label] {
			return configErr(fmt.Sprintf("candidates[%d].label", i), "duplicate label %q", c.Label)
		}
		seen[c.Label] = true
		if c.Bias < 0 {
			return configErr(fmt.Sprintf("candidates[%d].bias", i), "must be positive, got %v", c.Bias)
		}
		if c.IndThreshold != nil && *c.IndThreshold < 0 {
			return configErr(fmt.Sprintf("candidates[%d].ind_error_thr", i), "must not be negative")
		}
		if c.AvgThreshold != nil && *c.AvgThreshold < 0 {
			return configErr(fmt.Sprintf("candidates[%d].avg_error_thr", i), "must not be negative")
		}
	}
	return nil
}

// ValidateBaseName checks a catalogue base name. Catalogue files are
// written next to each other in one output directory, so the base must be
// a plain file name.
func ValidateBaseName(base string) error {
	if strings.TrimSpace(base) == "" {
		return configErr("basename", "must not be empty")
	}
	if strings.ContainsAny(base, "/\\\x00\n\r") {
		return configErr("basename", "%q must be a plain file name", base)
	}
	return nil
}

// ValidateLabel checks that a candidate label can be embedded in a file name.
func ValidateLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return errors.New("must not be empty")
	}
	if strings.ContainsAny(label, "/\\\x00\n\r ") {
		return fmt.Errorf("%q must not contain separators or whitespace", label)
	}
	return nil
}

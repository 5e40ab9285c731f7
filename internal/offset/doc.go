// Package offset finds the frame shift between two releases of the same
// video and the points where that shift changes.
//
// FindOffset compares one reference frame against a window of candidate
// frames and reports where it matches best. FindDesync repeats that over
// overlapping parts of the timeline and rescans every part whose offset
// changed to locate the first mismatching frame.
//
// Frames are opaque: callers supply a Measure function for their frame
// type, so the package works equally on decoded luma planes
// (internal/analysis) and on synthetic values in tests.
package offset

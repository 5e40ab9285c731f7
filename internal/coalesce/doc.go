// Package coalesce turns per-scene accept/reject decisions into catalogues
// of closed frame intervals.
//
// A catalogue is serialised as a single line of "[start end] " tokens,
// 0-based and inclusive on both ends, so two runs can be compared with a
// plain text diff:
//
//	[0 99] [200 299]
//
// The Coalescer implements the run state machine shared by every
// classifier in internal/scenes; Parse reads catalogue lines back for the
// server and for exclusion lists.
package coalesce

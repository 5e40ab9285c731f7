// Package kernels describes the resampling kernels and target resolutions
// tested by a descale run.
//
// A Kernel is turned into an imaging.ResampleFilter or an x/image/draw
// Kernel from the same weight function, so thumbnails and 16-bit gray
// planes are resampled identically. A Target pairs a kernel with a native
// resolution and derives the candidate label used in catalogue file names.
package kernels

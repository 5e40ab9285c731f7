// Package analysis produces the per-frame statistics the scene classifiers
// consume: the descale-rescale error of each kernel target, the Sobel
// complexity used to normalise it, and scene changes. It also provides the
// frame comparison metrics used by offset search.
//
// Resampling uses golang.org/x/image/draw kernels built from the
// kernels package on 16-bit gray images. The descale is approximated by a
// forward scale with the same kernel; it is not an exact inverse, but the
// error ordering between candidates is what the classifiers rely on.
package analysis

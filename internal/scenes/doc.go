// Package scenes classifies the scenes of a clip from per-frame scalar
// statistics.
//
// Three classifiers share one frame loop shape and the Range Coalescer in
// internal/coalesce:
//
//   - Accumulator: one candidate, a per-frame ceiling and a scene-average
//     ceiling.
//   - Arbiter: several candidate kernels compete for each scene. The one
//     with the lowest biased average wins; ties reject every candidate and
//     scenes nobody wins are catalogued as "nokernel".
//   - DualArbiter: two full sources are compared and, per scene, the less
//     erroneous one is kept.
//
// A candidate that breaches its per-frame ceiling is rejected for the rest
// of the scene; the scene-average checks still run at the boundary. The
// classifiers never touch pixels. They pull Frame values from a Source in
// increasing index order, so any statistics producer (live analysis, a CSV
// file, a test fixture) can drive them.
package scenes

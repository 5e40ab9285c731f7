// Command descale classifies the scenes of a video by how cleanly they
// descale, and finds frame offsets between encodes of the same content.
//
// Usage:
//
//	descale <command> [flags] ARGS
//
// Commands:
//
//	stats    Decode a clip once and store complexity, scene changes and
//	         the rescale error of every target per frame as a CSV in the
//	         framestats cache. Later runs with the same targets read the
//	         cache instead of decoding.
//
//	scenes   Classify every scene against one target and write
//	         {base}.txt, the frame ranges that descale cleanly.
//
//	kernels  Arbitrate between several targets, given as a YAML plan
//	         (--plan) or repeated --kernel flags. Writes one catalogue per
//	         target plus {base}_nokernel.txt.
//
//	choose   Compare two sources of the same content under one target and
//	         write which one to take for each scene.
//
//	inspect  Print complexity, raw and normalised error for a frame range.
//
//	offset   Print the offset of each clip relative to the reference.
//
//	desync   Split two clips into overlapping parts and report where
//	         their offset changes.
//
//	runs     List, show or delete runs recorded in the history database.
//
// Catalogues are single lines of "[start end] " tokens, 0-based and
// inclusive. --write-rejected also writes the complement of each one, and
// --exclude-file reads catalogues back as ranges to skip.
//
// Exit status is 2 for configuration errors, 1 for other failures.
package main

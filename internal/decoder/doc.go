// Package decoder turns video files and image sequences into luma planes.
//
// Videos are decoded by an ffmpeg child process writing raw 16-bit gray
// frames to a pipe; frame counts come from ffprobe. Image sequences are
// decoded in process with imaging (plus the golang.org/x/image codecs) or
// libvips when it has been initialised.
package decoder

// Package memory keeps frame analysis inside container memory limits.
//
// Decoding full-resolution frames and rescaling them through several
// kernels allocates a lot of short-lived float planes. [ConfigureFromEnv]
// sets GOMEMLIMIT from the container limit so the collector works harder
// before the kernel OOM killer does:
//
//   - GOMEMLIMIT: standard Go variable, takes precedence when set.
//   - MEMORY_LIMIT: container limit in bytes, usually from the Kubernetes
//     Downward API (resourceFieldRef limits.memory).
//   - MEMORY_RATIO: share of MEMORY_LIMIT given to the Go heap
//     (default 0.75; ffmpeg and libvips live outside it).
//
// A [Monitor] samples heap usage and pauses frame decoding between the
// critical and high water marks. It is passed to analysis sources as
// their Throttle.
package memory

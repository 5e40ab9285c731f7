// Package startup loads configuration and logs the lifecycle of the
// catalogue server and the command line tools.
//
// # Configuration
//
// All configuration comes from environment variables:
//
//   - OUTPUT_DIR: where catalogue files are written (default: current directory)
//   - CACHE_DIR: framestats cache root (default: the user cache dir + /descale-qc)
//   - DATABASE_DIR: run history location (default: CACHE_DIR)
//   - PORT: catalogue server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: enable or disable the metrics server (default: true)
//   - LOG_LEVEL / DEBUG: logging level, see the logging package
//   - LOG_HEALTH_CHECKS: log health probe requests (default: true)
//   - VIPS_ENABLED: load image sequences through libvips (default: true)
//   - DESCALE_WORKERS: pin the per-frame worker count
//   - MEMORY_LIMIT / MEMORY_RATIO: see the memory package
//
// [LoadConfig] is used by the server and requires a writable database
// directory. [LoadToolConfig] resolves the same settings quietly for the
// command line tools and only disables run history or the stats cache
// when their directories are unusable.
package startup

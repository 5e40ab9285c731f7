// Package logging provides the leveled logging interface shared by the
// descale-qc tools and the catalogue server.
//
// It supports the following log levels:
//   - DEBUG: per-scene decisions and collaborator details
//   - INFO: progress lines and run summaries
//   - WARN: recoverable problems
//   - ERROR: failed operations
//   - FATAL: configuration errors that terminate the tool
//
// The level is configured via the DEBUG or LOG_LEVEL environment variables
// and can be overridden from the command line with SetLevel. Output is
// written through logrus; Component and WithFields return structured
// entries for callers that want key/value fields.
package logging

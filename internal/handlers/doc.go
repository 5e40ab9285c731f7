// Package handlers provides the HTTP handlers of the catalogue server.
//
// It includes handlers for:
//   - Listing recorded runs, with kind filter and pagination
//   - Fetching one run with its catalogue summaries, and deleting it
//   - Fetching a catalogue as JSON or as the plain "[s e] " line, or its
//     complement (the rejected frames)
//   - Health, liveness, readiness and version probes
package handlers

/*
Descale-qc serves the history of descale classification runs.

The command line tools in cmd/descale record every run (its kind, sources,
and the catalogue of accepted frame ranges per candidate kernel) in a
SQLite database. This server exposes that history over HTTP so encode
pipelines and reviewers can fetch catalogues without access to the
machine that produced them.

# Servers

 1. Catalogue server (PORT, default 8080):
    - GET /api/runs: list runs, filter with ?kind=single|multi|dual
    - GET /api/runs/{id}: one run with catalogue summaries
    - DELETE /api/runs/{id}: forget a run
    - GET /api/runs/{id}/catalogues/{label}: a catalogue as JSON, or the
      plain "[s e] " line with ?format=text; ?rejected=true returns the
      complement
    - GET /health, /livez, /readyz, /version

 2. Metrics server (METRICS_PORT, default 9090, optional):
    - Prometheus metrics on /metrics

# Configuration

See the startup package for the environment variables. MEMORY_LIMIT and
MEMORY_RATIO configure GOMEMLIMIT before anything else starts.

# Shutdown

On SIGINT or SIGTERM the HTTP servers are drained for up to 30 seconds,
the metrics collector stops, and the database is closed.
*/
package main

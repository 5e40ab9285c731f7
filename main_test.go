package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"descale-qc/internal/coalesce"
	"descale-qc/internal/database"
	"descale-qc/internal/handlers"
	"descale-qc/internal/metrics"
	"descale-qc/internal/startup"
)

func newTestHandlers(t *testing.T) (*handlers.Handlers, *database.Database) {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), database.FileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return handlers.New(db), db
}

func TestDatabaseIsStatsProvider(t *testing.T) {
	var _ metrics.StatsProvider = (*database.Database)(nil)
}

func TestSetupRouterRoutes(t *testing.T) {
	h, _ := newTestHandlers(t)
	routes, err := startup.GetRoutes(setupRouter(h))
	require.NoError(t, err)

	var paths []string
	for _, r := range routes {
		paths = append(paths, r.Method+" "+r.Path)
	}
	for _, want := range []string{
		"GET /health",
		"GET /livez",
		"HEAD /livez",
		"GET /readyz",
		"GET /version",
		"GET /api/runs",
		"GET /api/runs/{id}",
		"DELETE /api/runs/{id}",
		"GET /api/runs/{id}/catalogues/{label}",
	} {
		assert.Contains(t, paths, want)
	}
}

func TestWrappedHandlerServesCatalogues(t *testing.T) {
	h, db := newTestHandlers(t)
	run, err := db.RecordRun(context.Background(), database.NewRun{
		Kind: "single", Source: "/src/ep01.mkv", Base: "ep01", Frames: 24,
		Catalogues: []*coalesce.Catalogue{{Label: "bilinear_720", Intervals: []coalesce.Interval{{Start: 0, End: 11}}}},
	})
	require.NoError(t, err)

	handler := wrapHandler(setupRouter(h), &startup.Config{LogHealthChecks: false})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/runs/"+run.ID+"/catalogues/bilinear_720?format=text", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[0 11] ", rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsServer(t *testing.T) {
	h, _ := newTestHandlers(t)
	srv := newMetricsServer(h, "0")
	assert.Equal(t, ":0", srv.Addr)
	assert.Positive(t, srv.ReadTimeout)
	assert.Positive(t, srv.WriteTimeout)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"descale-qc/internal/logging"
	"descale-qc/internal/metrics"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	t.Cleanup(func() { logging.SetOutput(os.Stderr) })
	return &buf
}

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)
	assert.Equal(t, http.StatusOK, rw.statusCode)

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusNotFound, rw.statusCode, "only the first status counts")

	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(5), rw.bytesWritten)
	rw.Flush()
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"a\nb\rc", "a b c"},
		{"nul\x00byte", "nulbyte"},
		{"\x1b[31mred", "[31mred"},
		{"tab\tkept", "tab\tkept"},
		{"bell\x07", "bell"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeLogField(tt.in))
	}
}

func TestLoggerMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		config LoggingConfig
		logged bool
	}{
		{"logs api requests", "/api/runs", DefaultLoggingConfig(), true},
		{"logs health checks when enabled", "/health", LoggingConfig{LogHealthChecks: true}, true},
		{"skips health checks when disabled", "/livez", LoggingConfig{LogHealthChecks: false}, false},
		{"skips configured prefixes", "/version", LoggingConfig{SkipPaths: []string{"/version"}, LogHealthChecks: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			h := Logger(tt.config)(okHandler(`{}`))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			assert.Equal(t, http.StatusOK, rec.Code)
			if tt.logged {
				assert.Contains(t, buf.String(), "component=http")
				assert.Contains(t, buf.String(), "path="+tt.path)
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestLoggerLevelsByStatus(t *testing.T) {
	buf := captureLogs(t)
	h := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/runs?page=2", http.NoBody))

	out := buf.String()
	assert.Contains(t, out, "level=error")
	assert.Contains(t, out, "status=500")
	assert.Contains(t, out, "query=\"page=2\"")
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.RemoteAddr = "10.0.0.5:5555"
	assert.Equal(t, "10.0.0.5", getClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.6")
	assert.Equal(t, "10.0.0.6", getClientIP(r))

	r.Header.Set("X-Forwarded-For", "192.168.1.1, 10.0.0.1")
	assert.Equal(t, "192.168.1.1", getClientIP(r))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Metrics(DefaultMetricsConfig()))
	router.Handle("/api/runs/{id}", okHandler(`{}`)).Methods(http.MethodGet)
	router.Handle("/health", okHandler(`{}`)).Methods(http.MethodGet)

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/runs/{id}", "200")
	before := counterValue(t, counter)

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+id, http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, before+3, counterValue(t, counter))

	health := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/health", "200")
	h0 := counterValue(t, health)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, h0, counterValue(t, health), "health probes are skipped")
}

func TestRoutePathUnmatched(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody)
	assert.Equal(t, "unmatched", routePath(r))
}

func gunzip(t *testing.T, data []byte) string {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(out)
}

func TestCompressionMiddleware(t *testing.T) {
	large := `{"intervals":"` + strings.Repeat("[0 99] ", 400) + `"}`

	tests := []struct {
		name       string
		accept     string
		body       string
		compressed bool
	}{
		{"large json compressed", "gzip, deflate", large, true},
		{"small json sent as is", "gzip", `{"ok":true}`, false},
		{"client without gzip", "", large, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Compression(DefaultCompressionConfig())(okHandler(tt.body))
			req := httptest.NewRequest(http.MethodGet, "/api/runs", http.NoBody)
			if tt.accept != "" {
				req.Header.Set("Accept-Encoding", tt.accept)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if tt.compressed {
				assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
				assert.Equal(t, tt.body, gunzip(t, rec.Body.Bytes()))
			} else {
				assert.Empty(t, rec.Header().Get("Content-Encoding"))
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestCompressionKeepsStatusAndSkipsBinary(t *testing.T) {
	h := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusAccepted)
		for i := 0; i < 4; i++ {
			_, _ = w.Write(bytes.Repeat([]byte{0x89}, 512))
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, 2048, rec.Body.Len())
}

func TestCompressionMultipleWrites(t *testing.T) {
	h := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for i := 0; i < 300; i++ {
			_, _ = w.Write([]byte("[0 9] "))
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/runs/x/catalogues/y", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, strings.Repeat("[0 9] ", 300), gunzip(t, rec.Body.Bytes()))
}

package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Bind:              "127.0.0.1:0",
		MetricsEnabled:    true,
		RateLimitRequests: 2,
		RateLimitWindow:   time.Minute,
	}
}

func TestServerManagerCtx_Healthz(t *testing.T) {
	srv := New(testConfig(), prometheus.NewRegistry())

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServerManagerCtx_Metrics(t *testing.T) {
	srv := New(testConfig(), prometheus.NewRegistry())

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
}

func TestServerManagerCtx_MetricsDisabled(t *testing.T) {
	config := testConfig()
	config.MetricsEnabled = false
	srv := New(config, prometheus.NewRegistry())

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code)
}

func TestServerManagerCtx_MountRateLimited(t *testing.T) {
	config := testConfig()
	config.RateLimitRequests = 1
	config.RateLimitWindow = time.Minute
	srv := New(config, prometheus.NewRegistry())

	srv.MountRateLimited(func(r chi.Router) {
		r.Get("/hls.m3u8", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	req := httptest.NewRequest("GET", "/hls.m3u8", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	// second request within the window should be rate limited
	req2 := httptest.NewRequest("GET", "/hls.m3u8", nil)
	rec2 := httptest.NewRecorder()
	srv.router.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestServerManagerCtx_Mount(t *testing.T) {
	srv := New(testConfig(), prometheus.NewRegistry())

	srv.Mount(func(r *chi.Mux) {
		r.Get("/rest/ping", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	req := httptest.NewRequest("GET", "/rest/ping", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}

func TestServerManagerCtx_NotFound(t *testing.T) {
	srv := New(testConfig(), prometheus.NewRegistry())

	req := httptest.NewRequest("GET", "/nope", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code)
}

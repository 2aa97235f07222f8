package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.LedgerTxTimeout)
	assert.Equal(t, 2*time.Minute, cfg.LedgerBatchTimeout)
	assert.Equal(t, 500, cfg.LedgerBatchMax)
	assert.Equal(t, 10*time.Minute, cfg.LedgerTBCacheTTL)
	assert.False(t, cfg.LedgerMigrate)
	assert.Equal(t, ":9091", cfg.WorkerMetricsAddr)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LEDGER_BATCH_MAX", "50")
	t.Setenv("LEDGER_MIGRATE", "true")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.LedgerBatchMax)
	assert.True(t, cfg.LedgerMigrate)
	assert.True(t, cfg.IsProduction())
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{PGDSN: "postgres://x", LedgerTxTimeout: time.Minute, LedgerBatchTimeout: time.Second, LedgerBatchMax: 10}
	assert.Error(t, cfg.Validate())

	cfg.LedgerBatchTimeout = time.Hour
	assert.NoError(t, cfg.Validate())

	cfg.LedgerBatchMax = 0
	assert.Error(t, cfg.Validate())
}

func TestRouteDeadlinesExtendBatchRoute(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var (
		mu        sync.Mutex
		deadlines = map[string]time.Duration{}
	)
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if dl, ok := r.Context().Deadline(); ok {
			mu.Lock()
			deadlines[r.URL.Path] = time.Until(dl)
			mu.Unlock()
		}
		time.Sleep(150 * time.Millisecond)
		_, _ = w.Write([]byte(`{"postedCount":2}`))
	})
	mw := routeDeadlines(logger, time.Second, map[string]time.Duration{"/accounting/journals/batch": time.Minute})

	srv := httptest.NewUnstartedServer(mw(slow))
	srv.Config.WriteTimeout = 50 * time.Millisecond
	srv.Start()
	t.Cleanup(srv.Close)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Post(srv.URL+"/accounting/journals/batch", "application/json", nil)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"postedCount":2}`, string(body))

	_, err = client.Get(srv.URL + "/healthz")
	assert.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, deadlines["/accounting/journals/batch"], 30*time.Second)
	assert.LessOrEqual(t, deadlines["/healthz"], time.Second)
}

func newTestRouter(readiness map[string]Pinger) http.Handler {
	return NewRouter(RouterParams{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:    &Config{AppEnv: "test"},
		Metrics:   observability.NewMetrics(),
		Readiness: readiness,
	})
}

func TestRouterHealthAndSecurityHeaders(t *testing.T) {
	router := newTestRouter(nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRouterReadiness(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	rec := httptest.NewRecorder()
	newTestRouter(map[string]Pinger{"postgres": ok}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	newTestRouter(map[string]Pinger{"redis": down}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")
}

func TestRouterServesMetrics(t *testing.T) {
	router := newTestRouter(nil)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `odyssey_http_requests_total{code="200",route="/healthz"}`)
}

package app

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetdesk/internal/observability"
	"github.com/fleetdesk/fleetdesk/internal/shared"
	"github.com/fleetdesk/fleetdesk/internal/view"
	_ "github.com/fleetdesk/fleetdesk/testing"
)

var csrfMeta = regexp.MustCompile(`<meta name="csrf-token" content="([^"]+)">`)

func newTestRouter(t *testing.T, live http.Handler) http.Handler {
	t.Helper()
	return newLoggedTestRouter(t, live, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newLoggedTestRouter(t *testing.T, live http.Handler, logger *slog.Logger) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	engine, err := view.NewEngine()
	require.NoError(t, err)

	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second},
		Templates:      engine,
		SessionManager: shared.NewSessionManager(client, "fleetdesk_session", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager("csrf-secret"),
		LiveHub:        live,
		Metrics:        observability.NewMetrics(),
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestPageRequestsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	router := newLoggedTestRouter(t, nil, slog.New(slog.NewTextHandler(&buf, nil)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/no-such-page", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, buf.String(), "/no-such-page")
	assert.Contains(t, buf.String(), "404")

	buf.Reset()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Empty(t, buf.String(), "health checks stay out of the request log")
}

func TestStaticAssetsAreCached(t *testing.T) {
	router := newTestRouter(t, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
	assert.Empty(t, rr.Result().Cookies())
}

func TestUnknownPageRendersNotFoundWithToken(t *testing.T) {
	router := newTestRouter(t, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "Nothing lives at")
	assert.Regexp(t, csrfMeta, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Frame-Options"))
}

func TestPostRequiresSessionToken(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/nowhere", strings.NewReader("a=1")))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	match := csrfMeta.FindStringSubmatch(first.Body.String())
	require.Len(t, match, 2)
	cookies := first.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodPost, "/nowhere", strings.NewReader("a=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRF-Token", match[1])
	for _, c := range cookies {
		req.AddCookie(c)
	}
	second := httptest.NewRecorder()
	router.ServeHTTP(second, req)
	assert.Equal(t, http.StatusNotFound, second.Code)
}

func TestLiveHubBypassesPageChain(t *testing.T) {
	var sawSession bool
	live := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawSession = shared.SessionFromContext(r.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
	})
	router := newTestRouter(t, live)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws/vehicles", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.False(t, sawSession)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "fleetdesk_http_requests_total")
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("CSRF_SECRET", "")
	t.Setenv("BACKEND_BASE_URL", "")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("BACKEND_BASE_URL", "http://backend.test")
	t.Setenv("GEOCODER_CONCURRENCY", "0")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 1, cfg.GeocoderConcurrency)
	assert.Equal(t, 15*time.Minute, cfg.SnapshotTTL)
	assert.Zero(t, cfg.BackendTimeout)
	assert.False(t, cfg.IsProduction())
}

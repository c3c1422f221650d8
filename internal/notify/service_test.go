package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/shared"
	"github.com/fleetdesk/fleetdesk/internal/view"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type fakeBackend struct {
	mu       sync.Mutex
	count    atomic.Int64
	requests []string
	fail     atomic.Bool
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if f.fail.Load() {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"db down"}`)
		return
	}
	switch {
	case r.URL.Path == "/api/notifications/unread":
		_, _ = io.WriteString(w, `{"notifications":[{"id":"n1","message":"Car assigned","link":"/assignments","read":false,"role":"DRIVER","createdAt":"2024-03-01T10:00:00"},{"id":"n2","message":"Inspection due","read":false,"role":"INSPECTOR"}]}`)
	case r.URL.Path == "/api/notifications/count":
		_, _ = io.WriteString(w, `{"count":`+strconv.FormatInt(f.count.Load(), 10)+`}`)
	default:
		_, _ = io.WriteString(w, `{"message":"ok"}`)
	}
}

func (f *fakeBackend) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func newService(t *testing.T, fb *fakeBackend) *Service {
	t.Helper()
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)
	return NewService(backend.New(srv.URL), NewContainer(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRefreshLoadsListAndCount(t *testing.T) {
	fb := &fakeBackend{}
	fb.count.Store(2)
	svc := newService(t, fb)

	require.NoError(t, svc.Refresh(context.Background()))
	st := svc.State()
	assert.Equal(t, 2, st.Unread())
	require.Len(t, st.Items(), 2)
	assert.Equal(t, "Car assigned", st.Items()[0].Message)
	assert.Equal(t, 2024, st.Items()[0].CreatedAt.Year())
	assert.False(t, st.Loading())
}

func TestRefreshFailureKeepsState(t *testing.T) {
	fb := &fakeBackend{}
	fb.count.Store(2)
	svc := newService(t, fb)
	require.NoError(t, svc.Refresh(context.Background()))

	fb.fail.Store(true)
	err := svc.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Len(t, svc.State().Items(), 2)
}

func TestActionsUpdateStateAfterBackendSuccess(t *testing.T) {
	fb := &fakeBackend{}
	fb.count.Store(2)
	svc := newService(t, fb)
	ctx := context.Background()
	require.NoError(t, svc.Refresh(ctx))

	require.NoError(t, svc.MarkRead(ctx, "n1"))
	assert.Equal(t, 1, svc.State().Unread())

	require.NoError(t, svc.Delete(ctx, "n2"))
	assert.Zero(t, svc.State().Unread())
	assert.Len(t, svc.State().Items(), 1)

	require.NoError(t, svc.MarkAllRead(ctx))

	seen := fb.seen()
	assert.Contains(t, seen, "POST /api/notifications/mark-as-read/n1")
	assert.Contains(t, seen, "DELETE /api/notifications/n2")
	assert.Contains(t, seen, "POST /api/notifications/mark-all-read")
}

func TestRunPollsCountUntilCancelled(t *testing.T) {
	fb := &fakeBackend{}
	fb.count.Store(1)
	svc := newService(t, fb)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	fb.count.Store(5)
	assert.Eventually(t, func() bool { return svc.State().Unread() == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestHandlerCountAndActions(t *testing.T) {
	fb := &fakeBackend{}
	fb.count.Store(2)
	svc := newService(t, fb)
	require.NoError(t, svc.Refresh(context.Background()))

	templates, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, templates)
	sess := &shared.Session{ID: "s"}
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	router.Route("/notifications", h.MountRoutes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/notifications/count", nil))
	assert.JSONEq(t, `{"count":2}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/notifications/n1/read", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/notifications", rr.Header().Get("Location"))
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "success", flash.Kind)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/notifications", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Inspection due")
}

func TestHandlerJSONActions(t *testing.T) {
	fb := &fakeBackend{}
	svc := newService(t, fb)
	require.NoError(t, svc.Refresh(context.Background()))

	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, nil)
	router := chi.NewRouter()
	router.Route("/notifications", h.MountRoutes)

	req := httptest.NewRequest(http.MethodPost, "/notifications/read-all", nil)
	req.Header.Set("Accept", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"count":0}`, rr.Body.String())

	fb.fail.Store(true)
	req = httptest.NewRequest(http.MethodPost, "/notifications/n1/delete", nil)
	req.Header.Set("Accept", "application/json")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "db down")
}

package tracking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/view"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	mu     sync.Mutex
	result backend.Result
	calls  int
}

func (f *fakeSource) FetchNamed(_ context.Context, name string) backend.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if name != backend.EndpointVehicleLocations {
		return backend.Result{Message: "unexpected endpoint " + name}
	}
	return f.result
}

func (f *fakeSource) set(res backend.Result) {
	f.mu.Lock()
	f.result = res
	f.mu.Unlock()
}

type captured struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *captured) Broadcast(msg []byte) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *captured) decoded(t *testing.T) []Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, 0, len(c.msgs))
	for _, raw := range c.msgs {
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		out = append(out, msg)
	}
	return out
}

type gauge struct{ n atomic.Int64 }

func (g *gauge) SetLiveClients(n int) { g.n.Store(int64(n)) }

func locations(recs ...backend.Record) backend.Result {
	return backend.Result{Success: true, Data: recs}
}

func TestLocationFromRecord(t *testing.T) {
	loc, ok := LocationFromRecord(backend.Record{
		"vehicleId":     "v1",
		"plateNumber":   "AA-12345",
		"driverName":    "Abebe",
		"vehicleStatus": "In Use",
		"latitude":      9.03,
		"longitude":     "38.74",
		"speed":         42.5,
		"timestamp":     []any{2024.0, 3.0, 9.0, 14.0, 30.0, 5.0},
	})
	require.True(t, ok)
	want := Location{
		VehicleID: "v1", PlateNumber: "AA-12345", DriverName: "Abebe", Status: "In Use",
		Latitude: 9.03, Longitude: 38.74, Speed: 42.5, UpdatedAt: "2024-03-09 14:30:05",
	}
	if diff := cmp.Diff(want, loc); diff != "" {
		t.Fatalf("location mismatch (-want +got):\n%s", diff)
	}

	_, ok = LocationFromRecord(backend.Record{"plateNumber": "AA-1"})
	assert.False(t, ok)
}

func TestPollerBroadcastsOnlyChanges(t *testing.T) {
	src := &fakeSource{result: locations(backend.Record{"plateNumber": "AA-1", "latitude": 9.0, "longitude": 38.0})}
	out := &captured{}
	p := NewPoller(src, out, time.Second, nil)
	ctx := context.Background()

	assert.True(t, p.Poll(ctx))
	assert.False(t, p.Poll(ctx), "unchanged locations are not rebroadcast")

	src.set(locations(backend.Record{"plateNumber": "AA-1", "latitude": 9.1, "longitude": 38.0}))
	assert.True(t, p.Poll(ctx))

	msgs := out.decoded(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "locations", msgs[1].Type)
	assert.InDelta(t, 9.1, msgs[1].Vehicles[0].Latitude, 1e-9)
}

func TestPollerReportsFailureAndRecovers(t *testing.T) {
	src := &fakeSource{result: backend.Result{Message: "db down", Status: http.StatusInternalServerError}}
	out := &captured{}
	p := NewPoller(src, out, time.Second, nil)
	ctx := context.Background()

	assert.True(t, p.Poll(ctx))
	src.set(locations(backend.Record{"plateNumber": "AA-1", "latitude": 1.0, "longitude": 2.0}))
	assert.True(t, p.Poll(ctx))

	msgs := out.decoded(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, Message{Type: "error", Message: "db down"}, msgs[0])
	assert.Equal(t, "locations", msgs[1].Type)
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	src := &fakeSource{result: locations()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewPoller(src, &captured{}, 10*time.Millisecond, nil).Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestHubDeliversBroadcastsAndReplaysLatest(t *testing.T) {
	g := &gauge{}
	hub := NewHub(nil, g)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	srv := httptest.NewServer(hub)

	first := dial(t, srv)
	assert.Eventually(t, func() bool { return g.n.Load() == 1 }, time.Second, 5*time.Millisecond)

	payload, err := json.Marshal(Message{Type: "locations", Vehicles: []Location{{PlateNumber: "AA-1"}}})
	require.NoError(t, err)
	hub.Broadcast(payload)
	assert.Equal(t, "AA-1", readMessage(t, first).Vehicles[0].PlateNumber)

	second := dial(t, srv)
	assert.Equal(t, "AA-1", readMessage(t, second).Vehicles[0].PlateNumber, "late joiner gets the latest snapshot")
	assert.Eventually(t, func() bool { return g.n.Load() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, second.Close())
	assert.Eventually(t, func() bool { return g.n.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = first.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	_ = first.Close()
	srv.Close()

	hub.Broadcast(payload) // returns once the hub is stopped
}

func TestMapPageRenders(t *testing.T) {
	engine, err := view.NewEngine()
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Route("/map", NewHandler(nil, engine).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/map", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-live-map="/ws/vehicles"`)
}

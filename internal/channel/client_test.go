package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operate-experience/navsync/internal/event"
	"github.com/operate-experience/navsync/pkg/types"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

// testServer counts requests and lets each test script the stream per
// request number (starting at 1).
type testServer struct {
	*httptest.Server

	mu      sync.Mutex
	count   int
	active  int
	headers []http.Header
}

func newTestServer(t *testing.T, handle func(n int, w http.ResponseWriter, r *http.Request)) *testServer {
	t.Helper()
	ts := &testServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.count++
		ts.active++
		n := ts.count
		ts.headers = append(ts.headers, r.Header.Clone())
		ts.mu.Unlock()

		defer func() {
			ts.mu.Lock()
			ts.active--
			ts.mu.Unlock()
		}()
		handle(n, w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) requests() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.count
}

func (ts *testServer) open() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.active
}

func (ts *testServer) header(i int) http.Header {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.headers[i]
}

func startStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	w.(http.Flusher).Flush()
}

func send(w http.ResponseWriter, frame string) {
	fmt.Fprint(w, frame)
	w.(http.Flusher).Flush()
}

func data(payload string) string {
	return "data: " + payload + "\n\n"
}

// collector records envelopes handed to the client handler.
type collector struct {
	mu   sync.Mutex
	envs []types.Envelope
}

func (c *collector) HandleEnvelope(env types.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
}

func (c *collector) all() []types.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Envelope(nil), c.envs...)
}

func fastRetry() types.RetryConfig {
	return types.RetryConfig{
		InitialDelay: types.Duration(10 * time.Millisecond),
		MaxDelay:     types.Duration(20 * time.Millisecond),
		Multiplier:   2,
	}
}

func newTestClient(t *testing.T, opts Options) *Client {
	t.Helper()
	c := New(opts)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Endpoint(t *testing.T) {
	assert.Equal(t, "http://localhost:3001/api/sse", New(Options{BaseURL: "http://localhost:3001/"}).Endpoint())
	assert.Equal(t, "http://relay/events", New(Options{BaseURL: "http://relay", Path: "/events"}).Endpoint())

	st := New(Options{BaseURL: "http://localhost:3001"}).Status()
	assert.Equal(t, Disconnected, st.State)
	assert.False(t, st.Connected)
}

func TestClient_ConnectionThenNavigation(t *testing.T) {
	ts := newTestServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		startStream(w)
		send(w, data(`{"type":"connection","clientId":"abc123"}`))
		send(w, data(`{"type":"navigation","targetAppId":"operate-experience","action":"NAVIGATE","route":"/dscr-trend","timestamp":1700000000000,"data":{"sourceAppId":"ingest-app","automatic":true}}`))
		<-r.Context().Done()
	})

	col := &collector{}
	c := newTestClient(t, Options{BaseURL: ts.URL, Handler: col, Retry: fastRetry()})
	c.Connect(context.Background())

	require.Eventually(t, func() bool { return len(col.all()) == 2 }, waitFor, tick)

	envs := col.all()
	assert.Equal(t, types.ConnectionAck{ClientID: "abc123"}, envs[0])
	nav, ok := envs[1].(types.Navigation)
	require.True(t, ok)
	assert.Equal(t, "/dscr-trend", nav.Event.Route)
	assert.True(t, nav.Event.Data.Automatic())

	st := c.Status()
	assert.Equal(t, Connected, st.State)
	assert.True(t, st.Connected)
	assert.Equal(t, "abc123", st.ClientID)
	assert.Equal(t, "abc123", c.ClientID())
	assert.Empty(t, st.Error)
	assert.EqualValues(t, 2, st.Received)
	assert.Equal(t, "text/event-stream", ts.header(0).Get("Accept"))
}

func TestClient_UnknownAndMalformedMessagesAreDropped(t *testing.T) {
	ts := newTestServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		startStream(w)
		send(w, data(`{"type":"connection","clientId":"abc"}`))
		send(w, data(`{"type":"presence","who":"x"}`))
		send(w, data(`not json`))
		send(w, data(`{"type":"navigation","route":"/welcome"`))
		send(w, "event: custom\n"+data(`{"type":"connection","clientId":"named"}`))
		send(w, data(`{"type":"history","events":[]}`))
		<-r.Context().Done()
	})

	col := &collector{}
	c := newTestClient(t, Options{BaseURL: ts.URL, Handler: col, Retry: fastRetry()})
	c.Connect(context.Background())

	require.Eventually(t, func() bool { return len(col.all()) == 2 }, waitFor, tick)

	envs := col.all()
	assert.Equal(t, types.EnvelopeConnection, envs[0].EnvelopeType())
	assert.Equal(t, types.EnvelopeHistory, envs[1].EnvelopeType())

	st := c.Status()
	assert.Equal(t, Connected, st.State)
	assert.Equal(t, "abc", st.ClientID)
	assert.EqualValues(t, 3, st.Dropped)
	assert.Equal(t, 1, ts.requests())
}

func TestClient_ReconnectOverwritesClientID(t *testing.T) {
	ts := newTestServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		startStream(w)
		send(w, data(fmt.Sprintf(`{"type":"connection","clientId":"client-%d"}`, n)))
		if n == 1 {
			// drop the first connection
			return
		}
		<-r.Context().Done()
	})

	bus := event.NewBus()
	var mu sync.Mutex
	var states []string
	bus.SubscribeStatus(func(s event.StatusSignal) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})

	c := newTestClient(t, Options{BaseURL: ts.URL, Bus: bus, Retry: fastRetry()})
	c.Connect(context.Background())

	require.Eventually(t, func() bool { return c.ClientID() == "client-2" }, waitFor, tick)
	st := c.Status()
	assert.Equal(t, Connected, st.State)
	assert.Empty(t, st.Error)
	assert.Equal(t, 0, st.Attempt)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, string(Erroring))
	assert.Equal(t, string(Connecting), states[0])
}

func TestClient_OverlongLineReconnects(t *testing.T) {
	ts := newTestServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		startStream(w)
		if n == 1 {
			send(w, data(`{"type":"connection","clientId":"first"}`))
			send(w, "data: "+strings.Repeat("x", MaxLineSize+1))
		} else {
			send(w, data(`{"type":"connection","clientId":"after-long-line"}`))
		}
		<-r.Context().Done()
	})

	col := &collector{}
	c := newTestClient(t, Options{BaseURL: ts.URL, Handler: col, Retry: fastRetry()})
	c.Connect(context.Background())

	require.Eventually(t, func() bool { return c.ClientID() == "after-long-line" }, waitFor, tick)
	assert.Equal(t, 2, ts.requests())
	assert.Len(t, col.all(), 2)
}

func TestClient_RetryRearmsAfterConsecutiveFailures(t *testing.T) {
	ts := newTestServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		if n <= 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		startStream(w)
		send(w, data(`{"type":"connection","clientId":"finally"}`))
		<-r.Context().Done()
	})

	c := newTestClient(t, Options{BaseURL: ts.URL, Retry: fastRetry()})
	c.Connect(context.Background())

	require.Eventually(t, func() bool { return c.ClientID() == "finally" }, waitFor, tick)
	assert.Equal(t, 4, ts.requests())
	assert.Equal(t, Connected, c.Status().State)
}

func TestClient_ErrorStatus(t *testing.T) {
	ts := newTestServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	retry := fastRetry()
	retry.InitialDelay = types.Duration(time.Hour)
	retry.MaxDelay = types.Duration(time.Hour)
	c := newTestClient(t, Options{BaseURL: ts.URL, Retry: retry})
	c.Connect(context.Background())

	require.Eventually(t, func() bool { return c.Status().State == Erroring }, waitFor, tick)
	st := c.Status()
	assert.Equal(t, MsgReconnecting, st.Error)
	assert.Contains(t, st.Cause, "unexpected content type")
	assert.Equal(t, 1, st.Attempt)
	assert.Equal(t, "retrying", st.Retry)
	assert.False(t, st.Connected)
}

func TestClient_InvalidEndpointIsReportedAndRetried(t *testing.T) {
	c := newTestClient(t, Options{BaseURL: "ftp://relay.example", Retry: fastRetry()})
	c.Connect(context.Background())

	require.Eventually(t, func() bool { return c.Status().Attempt >= 2 }, waitFor, tick)
	st := c.Status()
	assert.True(t, strings.HasPrefix(st.Error, MsgConnectFail), st.Error)
	assert.NotEqual(t, Connected, st.State)
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	ts := newTestServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})

	retry := fastRetry()
	retry.MaxAttempts = 2
	c := newTestClient(t, Options{BaseURL: ts.URL, Retry: retry})
	c.Connect(context.Background())

	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("run loop did not stop")
	}

	st := c.Status()
	assert.Equal(t, Disconnected, st.State)
	assert.Equal(t, MsgGaveUp, st.Error)
	assert.Equal(t, "idle", st.Retry)
	assert.Equal(t, 3, ts.requests())
}

func TestClient_CloseCancelsPendingRetry(t *testing.T) {
	ts := newTestServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	retry := fastRetry()
	retry.InitialDelay = types.Duration(100 * time.Millisecond)
	retry.MaxDelay = types.Duration(100 * time.Millisecond)
	c := New(Options{BaseURL: ts.URL, Retry: retry})
	c.Connect(context.Background())

	require.Eventually(t, func() bool { return c.Status().State == Erroring }, waitFor, tick)
	done := c.Done()

	start := time.Now()
	require.NoError(t, c.Close())
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	select {
	case <-done:
	default:
		t.Fatal("run loop still running after Close")
	}

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 1, ts.requests())
	assert.Equal(t, Disconnected, c.Status().State)
	assert.Empty(t, c.Status().Error)

	require.NoError(t, c.Close())
}

func TestClient_ContextCancelStopsLoop(t *testing.T) {
	ts := newTestServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		startStream(w)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(t, Options{BaseURL: ts.URL, Retry: fastRetry()})
	c.Connect(ctx)
	require.Eventually(t, func() bool { return c.Status().Connected }, waitFor, tick)
	assert.Equal(t, "connected", c.Status().Retry)

	cancel()
	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("run loop did not stop")
	}
	assert.Equal(t, Disconnected, c.Status().State)
	assert.Equal(t, "idle", c.Status().Retry)
}

func TestClient_ConnectSupersedesPreviousConnection(t *testing.T) {
	ts := newTestServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		startStream(w)
		send(w, data(fmt.Sprintf(`{"type":"connection","clientId":"c%d"}`, n)))
		<-r.Context().Done()
	})

	c := newTestClient(t, Options{BaseURL: ts.URL, Retry: fastRetry()})
	c.Connect(context.Background())
	require.Eventually(t, func() bool { return c.ClientID() == "c1" }, waitFor, tick)

	c.Connect(context.Background())
	require.Eventually(t, func() bool { return c.ClientID() == "c2" }, waitFor, tick)
	require.Eventually(t, func() bool { return ts.open() == 1 }, waitFor, tick)
	assert.Equal(t, 2, ts.requests())
}

func TestClient_Reconnect(t *testing.T) {
	ts := newTestServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		startStream(w)
		send(w, data(fmt.Sprintf(`{"type":"connection","clientId":"r%d"}`, n)))
		<-r.Context().Done()
	})

	c := newTestClient(t, Options{BaseURL: ts.URL, Retry: fastRetry()})
	assert.ErrorIs(t, c.Reconnect(), ErrNotConnected)

	c.Connect(context.Background())
	require.Eventually(t, func() bool { return c.ClientID() == "r1" }, waitFor, tick)

	require.NoError(t, c.Reconnect())
	require.Eventually(t, func() bool { return c.ClientID() == "r2" }, waitFor, tick)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Reconnect(), ErrNotConnected)
}

func TestClient_IdleTimeoutReconnects(t *testing.T) {
	ts := newTestServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		startStream(w)
		send(w, data(fmt.Sprintf(`{"type":"connection","clientId":"idle-%d"}`, n)))
		<-r.Context().Done()
	})

	c := newTestClient(t, Options{
		BaseURL:     ts.URL,
		Retry:       fastRetry(),
		IdleTimeout: 50 * time.Millisecond,
	})
	c.Connect(context.Background())

	require.Eventually(t, func() bool { return ts.requests() >= 2 }, waitFor, tick)
	require.Eventually(t, func() bool { return strings.HasPrefix(c.ClientID(), "idle-") }, waitFor, tick)
}

func TestClient_HeartbeatsKeepConnectionAlive(t *testing.T) {
	ts := newTestServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		startStream(w)
		send(w, data(`{"type":"connection","clientId":"hb"}`))
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				send(w, ": heartbeat\n\n")
			}
		}
	})

	c := newTestClient(t, Options{
		BaseURL:     ts.URL,
		Retry:       fastRetry(),
		IdleTimeout: 100 * time.Millisecond,
	})
	c.Connect(context.Background())

	require.Eventually(t, func() bool { return c.ClientID() == "hb" }, waitFor, tick)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, ts.requests())
	assert.Equal(t, Connected, c.Status().State)
}

func TestClient_SendsLastEventID(t *testing.T) {
	ts := newTestServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		startStream(w)
		if n == 1 {
			send(w, "id: 01JEVENT7\n"+data(`{"type":"connection","clientId":"first"}`))
			return
		}
		<-r.Context().Done()
	})

	c := newTestClient(t, Options{BaseURL: ts.URL, Retry: fastRetry()})
	c.Connect(context.Background())

	require.Eventually(t, func() bool { return ts.requests() >= 2 }, waitFor, tick)
	assert.Empty(t, ts.header(0).Get("Last-Event-ID"))
	assert.Equal(t, "01JEVENT7", ts.header(1).Get("Last-Event-ID"))
	assert.Equal(t, "01JEVENT7", c.Status().LastEventID)
}

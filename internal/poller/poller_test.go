package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/roomtrek/kioskd/internal/bridge"
	"github.com/roomtrek/kioskd/internal/events"
	"github.com/roomtrek/kioskd/internal/observability"
)

type testStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *testStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found", key)
	}
	return v, nil
}

func (s *testStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// testHarness runs a bridge server over an in-memory store pre-loaded with
// device credentials, and collects everything a worker emits.
type testHarness struct {
	store    *testStore
	requests chan<- bridge.Request
	messages chan events.Message
	cancel   context.CancelFunc
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	st := &testStore{data: map[string]string{
		"deviceCode": "dev-1",
		"apiToken":   "token-1",
	}}
	srv := bridge.NewServer(st, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	t.Cleanup(cancel)
	return &testHarness{
		store:    st,
		requests: srv.Requests(),
		messages: make(chan events.Message, 128),
		cancel:   cancel,
	}
}

func (h *testHarness) deps(baseURL string, interval time.Duration) Deps {
	return Deps{
		BaseURL:  baseURL,
		Requests: h.requests,
		Intervals: map[string]time.Duration{
			NameClue:           interval,
			NameGameInfo:       interval,
			NameTimerRequests:  interval,
			NameDeviceRequests: interval,
		},
		Timeout: time.Second,
	}
}

func (h *testHarness) emit(msg events.Message) { h.messages <- msg }

func (h *testHarness) collect(t *testing.T, n int, timeout time.Duration) []events.Message {
	t.Helper()
	var out []events.Message
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case msg := <-h.messages:
			out = append(out, msg)
		case <-deadline:
			t.Fatalf("collected %d of %d messages before timeout", len(out), n)
		}
	}
	return out
}

func runWorker(t *testing.T, w *Worker, h *testHarness) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, h.emit)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("worker did not stop")
		}
	})
	return cancel
}

func TestUnauthorizedEmitsResetAndLoopContinues(t *testing.T) {
	var polls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	h := newHarness(t)
	runWorker(t, NewClueWorker(h.deps(ts.URL, 10*time.Millisecond)), h)

	// One Reset per 401 occurrence.
	msgs := h.collect(t, 2, 2*time.Second)
	for _, msg := range msgs {
		assert.Equal(t, events.KindReset, msg.Kind)
	}

	// The loop keeps polling after the resets.
	require.Eventually(t, func() bool { return polls.Load() >= 5 },
		2*time.Second, 10*time.Millisecond)
}

func TestTransientErrorEmitsConnectionErrorOnceThenRestored(t *testing.T) {
	// Reserve an address with no listener, then bring a server up on it.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	h := newHarness(t)
	runWorker(t, NewClueWorker(h.deps("http://"+addr, 20*time.Millisecond)), h)

	msgs := h.collect(t, 1, 2*time.Second)
	require.Equal(t, events.KindConnection, msgs[0].Kind)
	assert.Equal(t, events.ConnectionError, msgs[0].Connection)

	// Repeated refusals must not repeat the signal.
	select {
	case msg := <-h.messages:
		t.Fatalf("unexpected extra message while still down: %+v", msg)
	case <-time.After(150 * time.Millisecond):
	}

	// Bring the endpoint up; the worker reports restoration once.
	l2, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})}
	go func() { _ = srv.Serve(l2) }()
	defer srv.Close()

	msgs = h.collect(t, 1, 2*time.Second)
	require.Equal(t, events.KindConnection, msgs[0].Kind)
	assert.Equal(t, events.ConnectionRestored, msgs[0].Connection)
}

func TestTimerRequestAcknowledgedExactlyOnce(t *testing.T) {
	var acks atomic.Int32
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/game/timer-request", func(w http.ResponseWriter, _ *http.Request) {
		polls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "req-7", "action": "pause",
		})
	})
	mux.HandleFunc("/api/game/timer-request/ack", func(w http.ResponseWriter, _ *http.Request) {
		acks.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	h := newHarness(t)
	runWorker(t, NewTimerWorker(h.deps(ts.URL, 10*time.Millisecond)), h)

	msgs := h.collect(t, 1, 2*time.Second)
	assert.Equal(t, events.KindEvent, msgs[0].Kind)
	assert.Equal(t, "timer", msgs[0].Component)
	assert.Equal(t, "pause", msgs[0].Action)

	// Let the loop see the same pending id several more times.
	require.Eventually(t, func() bool { return polls.Load() >= 4 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), acks.Load(), "same request id must be acked once")
}

func TestDeviceRequestForwardedAndAckedOnce(t *testing.T) {
	var acks atomic.Int32
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/device/request", func(w http.ResponseWriter, _ *http.Request) {
		polls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "pr-3", "action": "notify",
			"params": map[string]any{"message": "staff on the way"},
		})
	})
	mux.HandleFunc("/api/device/request/ack", func(w http.ResponseWriter, _ *http.Request) {
		acks.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	h := newHarness(t)
	runWorker(t, NewDeviceRequestWorker(h.deps(ts.URL, 10*time.Millisecond)), h)

	msgs := h.collect(t, 1, 2*time.Second)
	assert.Equal(t, events.KindEvent, msgs[0].Kind)
	assert.Equal(t, "device", msgs[0].Component)
	assert.Equal(t, "notify", msgs[0].Action)

	// The same pending id stays visible; it must not be re-acked.
	require.Eventually(t, func() bool { return polls.Load() >= 4 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), acks.Load(), "same request id must be acked once")
}

func TestStopDuringInFlightCallEmitsNoConnectionError(t *testing.T) {
	inFlight := make(chan struct{}, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case inFlight <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	}))
	defer ts.Close()

	h := newHarness(t)
	cancel := runWorker(t, NewClueWorker(h.deps(ts.URL, 10*time.Millisecond)), h)

	select {
	case <-inFlight:
	case <-time.After(2 * time.Second):
		t.Fatal("no poll arrived")
	}
	cancel()

	// Aborting our own in-flight call is a shutdown, not an outage.
	select {
	case msg := <-h.messages:
		t.Fatalf("unexpected message during shutdown: %+v", msg)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestPollResultsAreCounted(t *testing.T) {
	var polls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if polls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	h := newHarness(t)
	deps := h.deps(ts.URL, 10*time.Millisecond)
	deps.Metrics = observability.NewMetrics()
	runWorker(t, NewClueWorker(deps), h)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(deps.Metrics.PollsTotal.WithLabelValues(NameClue, "ok")) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(1),
		testutil.ToFloat64(deps.Metrics.PollsTotal.WithLabelValues(NameClue, "unauthorized")))
}

func TestGameInfoWritesStatusThroughBridge(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "running", "remainingSecond": 1800,
		})
	}))
	defer ts.Close()

	h := newHarness(t)
	runWorker(t, NewGameInfoWorker(h.deps(ts.URL, 10*time.Millisecond)), h)

	msgs := h.collect(t, 1, 2*time.Second)
	require.Equal(t, events.KindEvent, msgs[0].Kind)
	assert.Equal(t, "game", msgs[0].Component)
	assert.Equal(t, "status-changed", msgs[0].Action)

	status, err := h.store.Get(context.Background(), "gameStatus")
	require.NoError(t, err)
	assert.Equal(t, "running", status)

	// Unchanged status emits nothing further.
	select {
	case msg := <-h.messages:
		t.Fatalf("unexpected message for unchanged status: %+v", msg)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWorkerSendsBasicAuthCredentials(t *testing.T) {
	var mu sync.Mutex
	var gotUser, gotPass string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotUser, gotPass, _ = r.BasicAuth()
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	h := newHarness(t)
	runWorker(t, NewClueWorker(h.deps(ts.URL, 10*time.Millisecond)), h)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotUser != ""
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "dev-1", gotUser)
	assert.Equal(t, "token-1", gotPass)
}

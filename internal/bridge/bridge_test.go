package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMapStore() *mapStore { return &mapStore{data: map[string]string{}} }

func (m *mapStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found", key)
	}
	return v, nil
}

func (m *mapStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func TestSetThenGetAcrossClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(newMapStore(), nil)
	go srv.Run(ctx)

	writer := NewClient(srv.Requests())
	defer writer.Close()
	reader := NewClient(srv.Requests())
	defer reader.Close()

	require.NoError(t, writer.Set(ctx, "gameStatus", "running"))

	got, err := reader.Get(ctx, "gameStatus")
	require.NoError(t, err)
	assert.Equal(t, "running", got)
}

func TestGetMissingKeyRejects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(newMapStore(), nil)
	go srv.Run(ctx)

	c := NewClient(srv.Requests())
	defer c.Close()

	_, err := c.Get(ctx, "nope")
	require.Error(t, err)
	assert.Equal(t, 0, c.PendingCount())
}

func TestTimeoutRejectsAndClearsPending(t *testing.T) {
	// A request channel nobody serves: every call must time out.
	requests := make(chan Request, 8)
	c := NewClientTimeout(requests, 50*time.Millisecond)
	defer c.Close()

	_, err := c.Get(context.Background(), "anything")
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, c.PendingCount(), "timed-out call must not leave a listener")
}

func TestTimeoutRunsRegisteredHook(t *testing.T) {
	requests := make(chan Request, 8)
	c := NewClientTimeout(requests, 50*time.Millisecond)
	defer c.Close()

	var timeouts atomic.Int32
	c.OnTimeout(func() { timeouts.Add(1) })

	_, err := c.Get(context.Background(), "anything")
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(1), timeouts.Load())

	// Successful calls must not fire the hook.
	go func() {
		<-requests // the timed-out request, still buffered
		req := <-requests
		req.ReplyTo <- Reply{ID: req.ID, Value: "v"}
	}()
	_, err = c.Get(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, int32(1), timeouts.Load())
}

func TestConcurrentRequestsResolveOutOfOrder(t *testing.T) {
	requests := make(chan Request, 8)
	c := NewClientTimeout(requests, time.Second)
	defer c.Close()

	// Answer the two requests in reverse order of arrival.
	go func() {
		first := <-requests
		second := <-requests
		second.ReplyTo <- Reply{ID: second.ID, Value: "second"}
		first.ReplyTo <- Reply{ID: first.ID, Value: "first"}
	}()

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			v, err := c.Get(context.Background(), key)
			require.NoError(t, err)
			results[i] = v
		}(i, key)
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{"first", "second"}, results)
	assert.Equal(t, 0, c.PendingCount())
}

func TestUnmatchedReplyIsIgnored(t *testing.T) {
	requests := make(chan Request, 8)
	c := NewClientTimeout(requests, 200*time.Millisecond)
	defer c.Close()

	go func() {
		req := <-requests
		// A stray reply with an unknown id must not satisfy the call.
		req.ReplyTo <- Reply{ID: "bogus", Value: "stray"}
		req.ReplyTo <- Reply{ID: req.ID, Value: "real"}
	}()

	v, err := c.Get(context.Background(), "key")
	require.NoError(t, err)
	assert.Equal(t, "real", v)
	assert.Equal(t, 0, c.PendingCount())
}

func TestLateReplyAfterTimeoutDoesNotPanic(t *testing.T) {
	requests := make(chan Request, 8)
	c := NewClientTimeout(requests, 20*time.Millisecond)
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req := <-requests
		time.Sleep(100 * time.Millisecond)
		req.ReplyTo <- Reply{ID: req.ID, Value: "too late"}
	}()

	_, err := c.Get(context.Background(), "key")
	require.ErrorIs(t, err, ErrTimeout)
	<-done

	// The dispatch loop must drop the late reply without crashing.
	assert.Eventually(t, func() bool { return c.PendingCount() == 0 },
		time.Second, 10*time.Millisecond)
}
